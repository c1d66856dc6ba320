package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/custodia-labs/vulnbrief/internal/core/domain"
	"github.com/custodia-labs/vulnbrief/internal/core/ports/driven"
	"github.com/custodia-labs/vulnbrief/internal/core/ports/driving"
	"github.com/custodia-labs/vulnbrief/internal/logger"
)

// Ensure DispatcherService implements the interface.
var _ driving.Dispatcher = (*DispatcherService)(nil)

// DispatcherService runs the two-phase generation protocol: a low-cost
// extract pass digests the raw facts, then a premium synthesize pass
// produces the final text. Backends are tried in preference order; a
// backend rejecting its credentials or being unreachable is substituted
// with the next one, and the substitution is logged and counted.
type DispatcherService struct {
	backends []driven.GenerationBackend
	metrics  driven.MetricsSink
}

// NewDispatcherService creates a dispatcher over backends already sorted
// by preference (first is best). A nil metrics sink discards events.
func NewDispatcherService(backends []driven.GenerationBackend, metrics driven.MetricsSink) *DispatcherService {
	if metrics == nil {
		metrics = driven.NopMetrics{}
	}
	return &DispatcherService{backends: backends, metrics: metrics}
}

// Generate produces the final advisory text. The extract phase is best
// effort: one retry per backend, and when no backend can digest, synthesis
// proceeds from the raw facts alone. The synthesize phase must succeed on
// some backend; when the whole preference list is exhausted the only hard
// failure, domain.ErrBackendsExhausted, is returned.
func (s *DispatcherService) Generate(ctx context.Context, advisory *domain.Advisory, retrieved *domain.RetrievalResult) (*domain.GenerationResponse, error) {
	if advisory == nil {
		return nil, fmt.Errorf("%w: nil advisory", domain.ErrInvalidInput)
	}
	if len(s.backends) == 0 {
		return nil, fmt.Errorf("%w: no backends configured", domain.ErrBackendsExhausted)
	}

	logger.Section("Generation")

	var usage domain.TokenUsage

	digest, extractUsage := s.runExtract(ctx, advisory)
	usage = usage.Add(extractUsage)

	prompt := buildSynthesizePrompt(advisory, digest, retrieved)
	for i, backend := range s.backends {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		result, err := s.complete(ctx, backend, domain.PhaseSynthesize, prompt)
		if err != nil {
			s.recordFallback(ctx, backend, i, err)
			continue
		}

		usage = usage.Add(result.Usage)
		logger.Info("Generated %s via %s (%s)", advisory.ID, backend.ID(), result.Model)
		return &domain.GenerationResponse{
			Text:    result.Text,
			Backend: backend.ID(),
			Model:   result.Model,
			Usage:   usage,
		}, nil
	}

	return nil, fmt.Errorf("%w: all %d backends failed", domain.ErrBackendsExhausted, len(s.backends))
}

// runExtract performs the digest pass on the first backend that answers.
// Each backend gets one retry for transient failures; credential and
// reachability failures move straight to the next backend. When nobody
// answers the phase is skipped and synthesis works from the raw facts.
func (s *DispatcherService) runExtract(ctx context.Context, advisory *domain.Advisory) (string, domain.TokenUsage) {
	prompt := buildExtractPrompt(advisory)

	for i, backend := range s.backends {
		if ctx.Err() != nil {
			return "", domain.TokenUsage{}
		}

		result, err := s.complete(ctx, backend, domain.PhaseExtract, prompt)
		if err != nil && !isBackendSwitch(err) {
			logger.Debug("extract on %s failed, retrying once: %v", backend.ID(), err)
			result, err = s.complete(ctx, backend, domain.PhaseExtract, prompt)
		}
		if err != nil {
			if isBackendSwitch(err) {
				s.recordFallback(ctx, backend, i, err)
				continue
			}
			logger.Warn("extract phase skipped: %s failed twice: %v", backend.ID(), err)
			return "", domain.TokenUsage{}
		}

		logger.Debug("extract digest from %s (%s)", backend.ID(), result.Model)
		return strings.TrimSpace(result.Text), result.Usage
	}

	logger.Warn("extract phase skipped: no backend available")
	return "", domain.TokenUsage{}
}

// complete runs one backend call and emits its generation metric.
func (s *DispatcherService) complete(ctx context.Context, backend driven.GenerationBackend, phase domain.Phase, prompt string) (*driven.CompletionResult, error) {
	started := time.Now()
	result, err := backend.Complete(ctx, phase, prompt)

	event := driven.MetricEvent{
		Timestamp: started,
		Kind:      driven.MetricGeneration,
		Backend:   backend.ID(),
		Model:     backend.ModelFor(phase),
		Duration:  time.Since(started),
		RunID:     RunIDFrom(ctx),
	}
	if err == nil {
		event.Status = 200
		event.Model = result.Model
		event.TokensIn = result.Usage.InputTokens
		event.TokensOut = result.Usage.OutputTokens
		event.Estimated = result.Usage.Estimated
	}
	s.metrics.Emit(event)

	return result, err
}

// recordFallback logs and counts one backend substitution.
func (s *DispatcherService) recordFallback(ctx context.Context, backend driven.GenerationBackend, index int, err error) {
	next := "none left"
	if index+1 < len(s.backends) {
		next = s.backends[index+1].ID()
	}
	logger.Warn("backend %s unusable (%v), substituting %s", backend.ID(), err, next)

	s.metrics.Emit(driven.MetricEvent{
		Timestamp: time.Now(),
		Kind:      driven.MetricFallback,
		Backend:   backend.ID(),
		RunID:     RunIDFrom(ctx),
	})
}

// isBackendSwitch reports whether the error means "try the next backend"
// rather than "retry this one".
func isBackendSwitch(err error) bool {
	return errors.Is(err, domain.ErrAuthInvalid) || errors.Is(err, domain.ErrBackendUnavailable)
}

// buildExtractPrompt renders the raw facts for the digest pass.
func buildExtractPrompt(advisory *domain.Advisory) string {
	var b strings.Builder
	b.WriteString("Extract the key technical facts from this vulnerability advisory as a short bullet list.\n")
	b.WriteString("Cover the flaw, the affected software, and the impact. Return only the bullets.\n\n")
	writeAdvisoryFacts(&b, advisory)
	return b.String()
}

// buildSynthesizePrompt renders the premium-pass prompt, folding in the
// extract digest and the related prior advisories when present.
func buildSynthesizePrompt(advisory *domain.Advisory, digest string, retrieved *domain.RetrievalResult) string {
	var b strings.Builder
	b.WriteString("Write a concise enrichment brief for the vulnerability advisory below.\n")
	b.WriteString("Audience: security engineers triaging exposure. Cover severity, affected software,\n")
	b.WriteString("root cause and remediation guidance. Use plain prose, no preamble.\n\n")
	writeAdvisoryFacts(&b, advisory)

	if digest != "" {
		b.WriteString("\nKey facts digest:\n")
		b.WriteString(digest)
		b.WriteString("\n")
	}

	if retrieved != nil && !retrieved.Empty() {
		b.WriteString("\nRelated prior advisories for context:\n")
		for _, ref := range retrieved.Refs {
			fmt.Fprintf(&b, "- %s (%s match", ref.Entry.ID, ref.Reason)
			if ref.Entry.SeverityLabel != "" {
				fmt.Fprintf(&b, ", %s", ref.Entry.SeverityLabel)
			}
			b.WriteString(")")
			if ref.Entry.Description != "" {
				fmt.Fprintf(&b, ": %s", truncate(ref.Entry.Description, 200))
			}
			b.WriteString("\n")
		}
	}

	return b.String()
}

// writeAdvisoryFacts renders the canonical record as prompt input.
func writeAdvisoryFacts(b *strings.Builder, advisory *domain.Advisory) {
	fmt.Fprintf(b, "Advisory: %s\n", advisory.ID)
	if advisory.Description != "" {
		fmt.Fprintf(b, "Description: %s\n", advisory.Description)
	}
	if advisory.SeverityScore != nil {
		fmt.Fprintf(b, "CVSS score: %.1f", *advisory.SeverityScore)
		if advisory.SeverityLabel != "" {
			fmt.Fprintf(b, " (%s)", advisory.SeverityLabel)
		}
		b.WriteString("\n")
	} else if advisory.SeverityLabel != "" {
		fmt.Fprintf(b, "Severity: %s\n", advisory.SeverityLabel)
	}
	if advisory.VectorString != "" {
		fmt.Fprintf(b, "Vector: %s\n", advisory.VectorString)
	}
	if len(advisory.CWEIDs) > 0 {
		fmt.Fprintf(b, "Weaknesses: %s\n", strings.Join(advisory.CWEIDs, ", "))
	}
	for _, pkg := range advisory.Affected {
		fmt.Fprintf(b, "Affected: %s %s %s\n", pkg.Vendor, pkg.Product, pkg.VersionRange)
	}
	for _, ref := range advisory.References {
		fmt.Fprintf(b, "Reference: %s\n", ref)
	}
}

// truncate shortens s to at most n runes.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
