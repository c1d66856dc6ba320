// Package domain contains the core business types for advisory enrichment:
// partial records produced by source fetchers, the merged canonical advisory,
// the searchable index projection, and the pure functions that derive severity
// labels and weakness classifications. Types here have no infrastructure
// dependencies.
package domain
