// Package near stores blocks on NEARFS: existence through an IPFS gateway
// that serves NEARFS, submission through fs_store transactions.
package near

import (
	"context"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"

	"nearfs.io/upload/cidutil"
	"nearfs.io/upload/model"
	"nearfs.io/upload/storage"
)

// Backend combines gateway existence checks with ledger submission.
// NEARFS indexes sha2-256 blocks only; other hashes are rejected up front.
type Backend struct {
	Checker storage.Checker
	Ledger  *Ledger
}

var _ storage.Backend = (*Backend)(nil)

func (b *Backend) Has(ctx context.Context, id cid.Cid) (bool, error) {
	if err := checkHash(id); err != nil {
		return false, err
	}
	return b.Checker.Has(ctx, id)
}

func (b *Backend) Submit(ctx context.Context, blocks []model.Block) (storage.Receipt, error) {
	for _, blk := range blocks {
		if err := checkHash(blk.CID); err != nil {
			return storage.Receipt{}, err
		}
		if err := cidutil.Verify(blk.CID, blk.Data); err != nil {
			return storage.Receipt{}, err
		}
	}
	return b.Ledger.Submit(ctx, blocks)
}

func checkHash(id cid.Cid) error {
	if !id.Defined() {
		return nil
	}
	if mh := id.Prefix().MhType; mh != multihash.SHA2_256 {
		return model.NewError(model.KindConfiguration, "NEARFS stores sha2-256 blocks only, got %s", multihash.Codes[mh]).WithCIDs(id)
	}
	return nil
}
