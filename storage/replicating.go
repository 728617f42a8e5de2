package storage

import (
	"context"
	"fmt"
	"strings"

	"nearfs.io/upload/model"
)

// NamedSubmitter associates a Submitter with a stable name for receipts and logs.
type NamedSubmitter struct {
	Name      string
	Submitter Submitter
}

// Replicating submits every batch to all of its submitters, in order.
//
// The first submitter is the primary: its errors are returned unchanged so
// the caller's retry and split logic applies to it. Once the primary has
// accepted a batch the batch is stored, so a failing mirror never fails the
// Submit. It is reported to OnMirrorError and marked in the receipt id,
// which otherwise lists every submitter's id.
type Replicating struct {
	Submitters []NamedSubmitter
	// OnMirrorError, if set, is called for each mirror that rejects a batch
	// the primary accepted.
	OnMirrorError func(name string, blocks []model.Block, err error)
}

var _ Submitter = Replicating{}

func (r Replicating) Submit(ctx context.Context, blocks []model.Block) (Receipt, error) {
	if len(r.Submitters) == 0 {
		return Receipt{}, model.NewError(model.KindConfiguration, "storage: Replicating has no submitters")
	}
	primary := r.Submitters[0]
	rc, err := primary.Submitter.Submit(ctx, blocks)
	if err != nil {
		return Receipt{}, err
	}
	ids := make([]string, 0, len(r.Submitters))
	ids = append(ids, fmt.Sprintf("%s=%s", primary.Name, rc.ID))
	for _, ns := range r.Submitters[1:] {
		mrc, err := ns.Submitter.Submit(ctx, blocks)
		if err != nil {
			if r.OnMirrorError != nil {
				r.OnMirrorError(ns.Name, blocks, err)
			}
			ids = append(ids, ns.Name+"=failed")
			continue
		}
		ids = append(ids, fmt.Sprintf("%s=%s", ns.Name, mrc.ID))
	}
	return Receipt{ID: strings.Join(ids, ","), CIDs: model.CIDs(blocks)}, nil
}
