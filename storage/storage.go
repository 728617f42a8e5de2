// Package storage defines where blocks go once a DAG is built.
//
// An upload needs two capabilities from a backend: asking whether a block is
// already stored, and submitting blocks that are not. Adapters live in
// subpackages and register themselves with storage/registry.
package storage

import (
	"context"

	"github.com/ipfs/go-cid"

	"nearfs.io/upload/model"
)

// Checker reports whether a block is already stored.
//
// Has returns (false, nil) for an absent block. A transport failure is an
// error, never a false.
type Checker interface {
	Has(ctx context.Context, id cid.Cid) (bool, error)
}

// Submitter stores blocks.
//
// Contract:
//   - Submit MUST be idempotent: re-submitting a stored block succeeds.
//   - Submit MUST reject a block whose data does not hash to its CID.
//   - A batch that exceeds the backend's size limits fails with
//     model.KindPayloadTooLarge and stores nothing.
type Submitter interface {
	Submit(ctx context.Context, blocks []model.Block) (Receipt, error)
}

// Backend is a Checker and Submitter over the same store.
type Backend interface {
	Checker
	Submitter
}

// Getter is implemented by backends that can read blocks back.
type Getter interface {
	Get(ctx context.Context, id cid.Cid) ([]byte, error)
}

// Receipt identifies one accepted submission.
type Receipt struct {
	// ID is the transaction hash or backend-specific submission id.
	ID   string
	CIDs []cid.Cid
}

// Join combines a Checker and a Submitter into a Backend.
func Join(c Checker, s Submitter) Backend {
	return joined{Checker: c, Submitter: s}
}

type joined struct {
	Checker
	Submitter
}
