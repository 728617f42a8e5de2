// Package model holds the types shared by the splitter, the importer, the
// storage backends and the upload orchestrator, and the structured error
// taxonomy they report through.
//
// Error kinds are stable. Callers should branch on Kind (IsKind, KindOf) or on
// Retryable rather than matching error strings.
package model
