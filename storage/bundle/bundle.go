// Package bundle reads and writes block sets as CARv1 archives.
//
// A CAR holds exactly the blocks an upload would submit, so it can be handed
// to any IPFS tool (e.g. "ipfs dag import") or uploaded later.
package bundle

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/ipfs/go-cid"
	car "github.com/ipld/go-car"
	carutil "github.com/ipld/go-car/util"

	"nearfs.io/upload/cidutil"
	"nearfs.io/upload/model"
)

// WriteCAR writes a CARv1 archive with root as its only root, followed by
// blocks in the given order.
//
// The bytes are deterministic for a given root and block sequence.
func WriteCAR(w io.Writer, root cid.Cid, blocks []model.Block) error {
	if !root.Defined() {
		return model.NewError(model.KindCIDMismatch, "bundle: undefined root")
	}
	h := &car.CarHeader{Roots: []cid.Cid{root}, Version: 1}
	if err := car.WriteHeader(h, w); err != nil {
		return fmt.Errorf("bundle: write header: %w", err)
	}
	for _, b := range blocks {
		if err := carutil.LdWrite(w, b.CID.Bytes(), b.Data); err != nil {
			return fmt.Errorf("bundle: write %s: %w", b.CID, err)
		}
	}
	return nil
}

// Archive is the content of a CAR file.
type Archive struct {
	Roots  []cid.Cid
	Blocks []model.Block
}

// Root returns the single root of a, or an error if there is not exactly one.
func (a *Archive) Root() (cid.Cid, error) {
	if len(a.Roots) != 1 {
		return cid.Undef, model.NewError(model.KindConfiguration, "bundle: expected one root, found %d", len(a.Roots))
	}
	return a.Roots[0], nil
}

// ReadCAR reads a CARv1 archive. Every block is checked against its CID and
// duplicates are dropped, keeping first-seen order.
//
// Sections are read with carutil.ReadNode rather than CarReader.Next so that a
// block whose bytes do not hash to its CID is reported as KindCIDMismatch
// naming that CID.
func ReadCAR(r io.Reader) (*Archive, error) {
	br := bufio.NewReader(r)
	h, err := car.ReadHeader(br)
	if err != nil {
		return nil, model.WrapError(model.KindConfiguration, err, "bundle: read header")
	}
	if h.Version != 1 {
		return nil, model.NewError(model.KindConfiguration, "bundle: unsupported CAR version %d", h.Version)
	}
	a := &Archive{Roots: h.Roots}
	seen := make(map[string]struct{})
	for {
		id, data, err := carutil.ReadNode(br)
		if errors.Is(err, io.EOF) {
			return a, nil
		}
		if err != nil {
			return nil, model.WrapError(model.KindConfiguration, err, "bundle: read block")
		}
		if err := cidutil.Verify(id, data); err != nil {
			return nil, fmt.Errorf("bundle: %w", err)
		}
		if _, dup := seen[id.KeyString()]; dup {
			continue
		}
		seen[id.KeyString()] = struct{}{}
		a.Blocks = append(a.Blocks, model.Block{CID: id, Data: data})
	}
}
