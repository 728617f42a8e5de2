// Package testkit holds conformance suites shared by storage adapter tests.
package testkit

import (
	"bytes"
	"context"
	"testing"

	"github.com/ipfs/go-cid"

	"nearfs.io/upload/cidutil"
	"nearfs.io/upload/model"
	"nearfs.io/upload/storage"
	"nearfs.io/upload/unixfs"
)

// NewBackend constructs a fresh, empty backend for a test.
// The returned backend MUST be isolated from other tests.
type NewBackend func(t *testing.T) storage.Backend

// Block returns a valid raw block holding data.
func Block(t *testing.T, data []byte) model.Block {
	t.Helper()
	id, err := cidutil.MustBuilder("").Raw(data)
	if err != nil {
		t.Fatalf("Raw failed: %v", err)
	}
	return model.Block{CID: id, Data: data}
}

// DirBlock returns a valid dag-pb directory block linking to children by index name.
func DirBlock(t *testing.T, children ...model.Block) model.Block {
	t.Helper()
	n := unixfs.Node{Data: unixfs.DirectoryData()}
	for i, c := range children {
		n.Links = append(n.Links, unixfs.Link{Hash: c.CID, Name: string(rune('a' + i)), Tsize: uint64(len(c.Data))})
	}
	enc := n.Encode()
	id, err := cidutil.MustBuilder("").DagPB(enc)
	if err != nil {
		t.Fatalf("DagPB failed: %v", err)
	}
	return model.Block{CID: id, Data: enc}
}

func RunBackendConformance(t *testing.T, newBackend NewBackend) {
	t.Helper()
	ctx := context.Background()

	t.Run("SubmitHasRoundTrip", func(t *testing.T) {
		b := newBackend(t)
		leaf := Block(t, []byte("hello, nearfs storage"))
		dir := DirBlock(t, leaf)

		for _, blk := range []model.Block{leaf, dir} {
			ok, err := b.Has(ctx, blk.CID)
			if err != nil {
				t.Fatalf("Has failed: %v", err)
			}
			if ok {
				t.Fatalf("Has returned true before Submit")
			}
		}

		rc, err := b.Submit(ctx, []model.Block{leaf, dir})
		if err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
		if len(rc.CIDs) != 2 || !rc.CIDs[0].Equals(leaf.CID) || !rc.CIDs[1].Equals(dir.CID) {
			t.Fatalf("receipt CIDs do not match the batch: %v", rc.CIDs)
		}

		for _, blk := range []model.Block{leaf, dir} {
			ok, err := b.Has(ctx, blk.CID)
			if err != nil {
				t.Fatalf("Has failed: %v", err)
			}
			if !ok {
				t.Fatalf("Has returned false after Submit for %s", blk.CID)
			}
		}

		if g, ok := b.(storage.Getter); ok {
			got, err := g.Get(ctx, leaf.CID)
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if !bytes.Equal(got, leaf.Data) {
				t.Fatalf("Get bytes mismatch")
			}
			if _, err := g.Get(ctx, Block(t, []byte("absent")).CID); !storage.IsNotFound(err) {
				t.Fatalf("Get missing: got err=%v want ErrNotFound", err)
			}
		}
	})

	t.Run("SubmitIdempotent", func(t *testing.T) {
		b := newBackend(t)
		blk := Block(t, []byte("same bytes"))
		if _, err := b.Submit(ctx, []model.Block{blk}); err != nil {
			t.Fatalf("Submit(1) failed: %v", err)
		}
		if _, err := b.Submit(ctx, []model.Block{blk}); err != nil {
			t.Fatalf("Submit(2) failed: %v", err)
		}
	})

	t.Run("RejectCIDMismatch", func(t *testing.T) {
		b := newBackend(t)
		good := Block(t, []byte("good"))
		bad := model.Block{CID: Block(t, []byte("claimed")).CID, Data: []byte("actual")}

		_, err := b.Submit(ctx, []model.Block{good, bad})
		if !model.IsKind(err, model.KindCIDMismatch) {
			t.Fatalf("Submit mismatch: got %v want KindCIDMismatch", err)
		}
		for _, id := range []cid.Cid{good.CID, bad.CID} {
			ok, err := b.Has(ctx, id)
			if err != nil {
				t.Fatalf("Has failed: %v", err)
			}
			if ok {
				t.Fatalf("rejected batch stored %s", id)
			}
		}
	})

	t.Run("RejectUndefCID", func(t *testing.T) {
		b := newBackend(t)
		var undef cid.Cid
		ok, err := b.Has(ctx, undef)
		if ok || err != nil {
			t.Fatalf("Has should be (false, nil) for undefined CID, got (%v, %v)", ok, err)
		}
		if _, err := b.Submit(ctx, []model.Block{{CID: undef, Data: []byte("x")}}); err == nil {
			t.Fatalf("Submit should fail for undefined CID")
		}
	})
}
