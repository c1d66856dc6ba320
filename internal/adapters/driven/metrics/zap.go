// Package metrics provides sinks for pipeline metric events: a JSON-lines
// file sink for later analysis and an in-memory recorder for inspection.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/custodia-labs/vulnbrief/internal/core/ports/driven"
)

// Ensure ZapSink implements the interface.
var _ driven.MetricsSink = (*ZapSink)(nil)

// ZapSink appends metric events as JSON lines to a file. Writes are
// buffered and never block the pipeline beyond local disk latency.
type ZapSink struct {
	log *zap.Logger
}

// NewZapSink creates a JSON-lines sink at path, creating parent
// directories as needed.
func NewZapSink(path string) (*ZapSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating metrics directory: %w", err)
	}

	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.MessageKey = "event"
	cfg.LevelKey = ""
	cfg.CallerKey = ""

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("opening metrics file: %w", err)
	}

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(cfg),
		zapcore.Lock(file),
		zapcore.InfoLevel,
	)
	return &ZapSink{log: zap.New(core)}, nil
}

// Emit appends one event.
func (s *ZapSink) Emit(event driven.MetricEvent) {
	fields := []zap.Field{
		zap.Time("at", event.Timestamp),
		zap.Duration("duration", event.Duration),
	}
	if event.Endpoint != "" {
		fields = append(fields, zap.String("endpoint", event.Endpoint))
	}
	if event.Backend != "" {
		fields = append(fields, zap.String("backend", event.Backend))
	}
	if event.Model != "" {
		fields = append(fields, zap.String("model", event.Model))
	}
	if event.Status != 0 {
		fields = append(fields, zap.Int("status", event.Status))
	}
	if event.Cached {
		fields = append(fields, zap.Bool("cached", true))
	}
	if event.TokensIn != 0 || event.TokensOut != 0 {
		fields = append(fields,
			zap.Int("tokens_in", event.TokensIn),
			zap.Int("tokens_out", event.TokensOut),
			zap.Bool("estimated", event.Estimated),
		)
	}
	if event.RunID != "" {
		fields = append(fields, zap.String("run_id", event.RunID))
	}

	s.log.Info(string(event.Kind), fields...)
}

// Close flushes buffered events.
func (s *ZapSink) Close() error {
	return s.log.Sync()
}
