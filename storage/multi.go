package storage

import (
	"context"

	"github.com/ipfs/go-cid"
	"go.uber.org/multierr"

	"nearfs.io/upload/model"
)

// MultiChecker asks several checkers in a fixed order.
//
// A block exists if any checker reports it. Errors are returned only when
// every checker failed, so one unreachable gateway does not stall an upload.
type MultiChecker struct {
	Checkers []Checker
}

func (m MultiChecker) Has(ctx context.Context, id cid.Cid) (bool, error) {
	if len(m.Checkers) == 0 {
		return false, model.NewError(model.KindConfiguration, "storage: MultiChecker has no checkers")
	}
	var (
		errs   error
		failed int
	)
	for _, c := range m.Checkers {
		ok, err := c.Has(ctx, id)
		if err != nil {
			errs = multierr.Append(errs, err)
			failed++
			continue
		}
		if ok {
			return true, nil
		}
	}
	if failed == len(m.Checkers) {
		if failed == 1 {
			return false, errs
		}
		return false, model.WrapError(model.KindNetwork, errs, "existence check failed on all %d checkers", failed).WithCIDs(id)
	}
	return false, nil
}
