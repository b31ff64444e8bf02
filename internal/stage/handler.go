// Package stage defines the contract every pipeline stage handler
// implements. The workflow manager looks up the handler for a document's
// next stage and runs exactly one stage per pass.
package stage

import (
	"context"

	"granth/internal/ledger"
)

// Handler performs one pipeline stage for one document. Execute mutates the
// document's stage artifacts (file paths, transliterated metadata, checksum)
// but never its status; the caller owns status transitions and persistence.
type Handler interface {
	// Stage returns the stage name this handler implements.
	Stage() string

	// Execute runs the stage against the document. A nil return means the
	// stage completed and the document may advance. Errors carry taxonomy
	// markers so the caller can decide between retry, attention, and abort.
	Execute(ctx context.Context, doc *ledger.Document) error

	// HealthCheck reports whether the handler's dependencies are usable.
	HealthCheck(ctx context.Context) Health
}
