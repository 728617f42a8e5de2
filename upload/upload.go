// Package upload moves a block set to a storage backend: it verifies the
// blocks, asks the backend which ones it already has, and submits the rest
// in bounded batches, children before parents.
package upload

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ipfs/go-cid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"nearfs.io/upload/cidutil"
	"nearfs.io/upload/importer"
	"nearfs.io/upload/model"
	"nearfs.io/upload/storage"
	"nearfs.io/upload/unixfs"
)

// Result summarizes an upload.
type Result struct {
	Root cid.Cid
	// Total is the number of distinct blocks in the DAG.
	Total int
	// Existing blocks were already stored and were skipped.
	Existing  int
	Submitted int
	Receipts  []storage.Receipt
}

// Run imports files and uploads the resulting DAG.
func Run(ctx context.Context, backend storage.Backend, files []model.File, opts Options) (*Result, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}
	imp, err := importer.Import(files, opts.Import)
	if err != nil {
		return nil, err
	}
	opts.Logger.Debugw("imported", "root", cidutil.String(imp.Root), "files", len(files), "blocks", len(imp.Blocks))
	return uploadBlocks(ctx, backend, imp.Root, imp.Blocks, opts)
}

// Blocks uploads a prepared block set whose root is root.
//
// On a submission failure the returned error is a KindUploadFailed
// *model.Error listing every block that was not submitted; the Result
// describes what did get through. Running again with the same blocks submits
// only what is still missing.
func Blocks(ctx context.Context, backend storage.Backend, root cid.Cid, blocks []model.Block, opts Options) (*Result, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}
	return uploadBlocks(ctx, backend, root, blocks, opts)
}

// uploadBlocks expects opts to have been through withDefaults exactly once.
func uploadBlocks(ctx context.Context, backend storage.Backend, root cid.Cid, blocks []model.Block, opts Options) (*Result, error) {
	if backend == nil {
		return nil, model.NewError(model.KindConfiguration, "upload: no backend")
	}
	blocks = dedupe(blocks)
	if err := consistent(opts.Import.Builder, root, blocks); err != nil {
		return nil, err
	}

	s := &session{backend: backend, opts: opts, log: opts.Logger}
	res := &Result{Root: root, Total: len(blocks)}

	pending, err := s.missing(ctx, blocks)
	if err != nil {
		return nil, err
	}
	res.Existing = len(blocks) - len(pending)
	if len(pending) == 0 {
		s.log.Infow("nothing to upload", "root", cidutil.String(root), "blocks", res.Total)
		return res, nil
	}

	plan, err := batches(pending, opts.MaxBatchBlocks, opts.MaxBatchBytes)
	if err != nil {
		return nil, err
	}
	s.total = len(pending)
	err = s.submitAll(ctx, plan)
	res.Submitted, res.Receipts = s.done, s.receipts
	s.log.Infow("upload finished", "root", cidutil.String(root), "blocks", res.Total,
		"existing", res.Existing, "submitted", res.Submitted, "transactions", len(res.Receipts))
	return res, err
}

func dedupe(blocks []model.Block) []model.Block {
	seen := make(map[string]struct{}, len(blocks))
	out := make([]model.Block, 0, len(blocks))
	for _, b := range blocks {
		k := b.CID.KeyString()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, b)
	}
	return out
}

// consistent checks every block against its CID before anything leaves the
// process.
func consistent(builder cidutil.Builder, root cid.Cid, blocks []model.Block) error {
	haveRoot := !root.Defined()
	for _, b := range blocks {
		if err := builder.Check(b.CID); err != nil {
			return err
		}
		if err := cidutil.Verify(b.CID, b.Data); err != nil {
			return err
		}
		if b.CID.Prefix().Codec == cidutil.DagPB {
			if _, err := unixfs.Decode(b.Data); err != nil {
				return model.WrapError(model.KindCIDMismatch, err, "block is not valid dag-pb").WithCIDs(b.CID)
			}
		}
		if b.CID.Equals(root) {
			haveRoot = true
		}
	}
	if !haveRoot {
		return model.NewError(model.KindCIDMismatch, "root is not among the blocks").WithCIDs(root)
	}
	return nil
}

type session struct {
	backend storage.Backend
	opts    Options
	log     *zap.SugaredLogger

	total    int
	done     int
	receipts []storage.Receipt
}

func (s *session) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.opts.RetryDelay
	b.MaxInterval = 32 * s.opts.RetryDelay
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(s.opts.RetryCount)), ctx)
}

// retry runs op until it succeeds, fails with a non-retryable error, or the
// retry budget runs out.
func (s *session) retry(ctx context.Context, what string, op func() error) error {
	return backoff.RetryNotify(func() error {
		err := op()
		if err != nil && !model.Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, s.backOff(ctx), func(err error, d time.Duration) {
		s.log.Debugw("retrying", "op", what, "err", err, "after", d)
	})
}

// missing returns the blocks the backend does not report as stored, in
// their original order.
func (s *session) missing(ctx context.Context, blocks []model.Block) ([]model.Block, error) {
	present := make([]bool, len(blocks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)
	for i := range blocks {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			var ok bool
			err := s.retry(gctx, "has", func() error {
				var err error
				ok, err = s.backend.Has(gctx, blocks[i].CID)
				return err
			})
			switch {
			case err == nil:
				present[i] = ok
			case gctx.Err() != nil:
				return gctx.Err()
			case model.Retryable(err):
				// Submitting a stored block again is harmless.
				s.log.Warnw("existence check failed, treating block as missing", "cid", cidutil.String(blocks[i].CID), "err", err)
			default:
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, model.WrapError(model.KindUploadFailed, ctxErr, "upload interrupted before submission").WithCIDs(model.CIDs(blocks)...)
		}
		return nil, err
	}

	var pending []model.Block
	for i, b := range blocks {
		if !present[i] {
			pending = append(pending, b)
		}
	}
	return pending, nil
}

// submitAll submits batches one at a time. A batch that fails for good is
// recorded and the next batch is still tried, unless the failure means no
// later batch can succeed either.
func (s *session) submitAll(ctx context.Context, plan [][]model.Block) error {
	var (
		errs     error
		unstored []cid.Cid
	)
	for i, batch := range plan {
		if err := ctx.Err(); err != nil {
			errs = multierr.Append(errs, err)
			unstored = appendRest(unstored, plan[i:])
			break
		}
		failed, err := s.submit(ctx, batch)
		if err == nil {
			continue
		}
		unstored = append(unstored, model.CIDs(failed)...)
		errs = multierr.Append(errs, err)
		if fatal(err) {
			unstored = appendRest(unstored, plan[i+1:])
			break
		}
		s.log.Warnw("batch failed, continuing", "batch", i, "blocks", len(failed), "err", err)
	}
	if errs == nil {
		return nil
	}
	return model.WrapError(model.KindUploadFailed, errs, "%d of %d blocks were not submitted", len(unstored), s.total).WithCIDs(unstored...)
}

// submit stores batch, halving it when the backend reports it too large.
// It returns the blocks that were not stored.
func (s *session) submit(ctx context.Context, batch []model.Block) ([]model.Block, error) {
	var rc storage.Receipt
	err := s.retry(ctx, "submit", func() error {
		var err error
		rc, err = s.backend.Submit(ctx, batch)
		return err
	})
	if err == nil {
		s.record(rc, batch)
		return nil, nil
	}
	if !model.IsKind(err, model.KindPayloadTooLarge) || len(batch) == 1 {
		return batch, err
	}

	mid := len(batch) / 2
	s.log.Debugw("batch too large, splitting", "blocks", len(batch), "halves", []int{mid, len(batch) - mid})
	left, lerr := s.submit(ctx, batch[:mid])
	if lerr != nil && fatal(lerr) {
		return append(left, batch[mid:]...), lerr
	}
	right, rerr := s.submit(ctx, batch[mid:])
	return append(left, right...), multierr.Append(lerr, rerr)
}

func (s *session) record(rc storage.Receipt, batch []model.Block) {
	s.done += len(batch)
	s.receipts = append(s.receipts, rc)
	var bytes int
	for _, b := range batch {
		bytes += b.Size()
	}
	s.log.Infow("submitted batch", "receipt", rc.ID, "blocks", len(batch), "bytes", bytes, "done", s.done, "total", s.total)
	if s.opts.OnProgress != nil {
		s.opts.OnProgress(s.done, s.total)
	}
}

// fatal reports whether err rules out every later submission too.
func fatal(err error) bool {
	for _, e := range multierr.Errors(err) {
		if errors.Is(e, context.Canceled) || errors.Is(e, context.DeadlineExceeded) {
			return true
		}
		switch model.KindOf(e) {
		case model.KindConfiguration, model.KindCIDMismatch:
			return true
		}
	}
	return false
}

func appendRest(ids []cid.Cid, plan [][]model.Block) []cid.Cid {
	for _, batch := range plan {
		ids = append(ids, model.CIDs(batch)...)
	}
	return ids
}
