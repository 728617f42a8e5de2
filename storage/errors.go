package storage

import (
	"errors"

	"nearfs.io/upload/model"
)

// Sentinels a block store wraps, so callers can match them with errors.Is
// whichever backend produced them.
var (
	// ErrNotFound is returned by Getter.Get for a block the store does not hold.
	ErrNotFound = errors.New("storage: block not stored")
	// ErrInvalidCID rejects an undefined or unparsable CID.
	ErrInvalidCID = errors.New("storage: invalid cid")
	// ErrCIDMismatch means bytes do not hash to the CID they were stored or
	// served under.
	ErrCIDMismatch = errors.New("storage: block does not match its cid")
	// ErrImmutable means different bytes already occupy the block's slot.
	ErrImmutable = errors.New("storage: a different block is already stored under this cid")
)

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsCorrupt reports whether err says block bytes and CID disagree, either in
// transit or at rest.
func IsCorrupt(err error) bool {
	return errors.Is(err, ErrCIDMismatch) || errors.Is(err, ErrImmutable) || model.IsKind(err, model.KindCIDMismatch)
}
