package localfs

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/ipfs/go-cid"

	"nearfs.io/upload/cidutil"
	"nearfs.io/upload/model"
	"nearfs.io/upload/storage"
)

// Store is a local filesystem-backed block store.
//
// Blocks are stored immutably and keyed strictly by CID, one file per block
// under <root>/<cid[:2]>/<cid>. It never uses the network.
type Store struct {
	root string
}

var (
	_ storage.Backend = (*Store)(nil)
	_ storage.Getter  = (*Store)(nil)
)

// New constructs a filesystem store rooted at root. The directory will be created if needed.
func New(root string) (*Store, error) {
	if root == "" {
		return nil, model.NewError(model.KindConfiguration, "localfs: root directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, model.WrapError(model.KindConfiguration, err, "localfs: create %s", root)
	}
	return &Store{root: root}, nil
}

// Submit verifies and writes every block. Nothing is written unless all
// blocks hash to their CIDs.
func (s *Store) Submit(ctx context.Context, blocks []model.Block) (storage.Receipt, error) {
	for _, b := range blocks {
		if !b.CID.Defined() {
			return storage.Receipt{}, model.WrapError(model.KindCIDMismatch, storage.ErrInvalidCID, "localfs")
		}
		if err := cidutil.Verify(b.CID, b.Data); err != nil {
			return storage.Receipt{}, err
		}
	}
	for _, b := range blocks {
		if err := ctx.Err(); err != nil {
			return storage.Receipt{}, err
		}
		if err := s.put(b); err != nil {
			return storage.Receipt{}, err
		}
	}
	return storage.Receipt{ID: s.root, CIDs: model.CIDs(blocks)}, nil
}

func (s *Store) put(b model.Block) error {
	path := s.pathFor(b.CID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o444)
	if err != nil {
		if os.IsExist(err) {
			existing, rerr := os.ReadFile(path)
			if rerr != nil || !bytes.Equal(existing, b.Data) {
				// An unreadable or different file at this CID is never repaired.
				return model.WrapError(model.KindCIDMismatch, storage.ErrImmutable, "localfs").WithCIDs(b.CID)
			}
			return nil
		}
		return err
	}

	if _, err := f.Write(b.Data); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return err
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	b, err := os.ReadFile(s.pathFor(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	if err := cidutil.Verify(id, b); err != nil {
		return nil, storage.ErrCIDMismatch
	}
	return b, nil
}

func (s *Store) Has(ctx context.Context, id cid.Cid) (bool, error) {
	if !id.Defined() {
		return false, nil
	}
	_, err := os.Stat(s.pathFor(id))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func (s *Store) pathFor(id cid.Cid) string {
	str := cidutil.String(id)
	if len(str) < 2 {
		return filepath.Join(s.root, str)
	}
	return filepath.Join(s.root, str[:2], str)
}
