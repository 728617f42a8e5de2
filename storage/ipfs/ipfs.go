package ipfs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multicodec"

	"nearfs.io/upload/cidutil"
	"nearfs.io/upload/model"
	"nearfs.io/upload/storage"
)

// Store is a block store backed by the local Kubo "ipfs" CLI.
//
// It operates on the local IPFS repo and never asks the network: stat runs
// with --offline. Every block put is checked against the CID Kubo reports,
// which doubles as an interop check of the local DAG encoder.
//
// This package is named "ipfs" for familiarity, but it does not embed a
// network client; it shells out to the local Kubo CLI.
type Store struct {
	bin string
	env []string
}

var (
	_ storage.Backend = (*Store)(nil)
	_ storage.Getter  = (*Store)(nil)
)

type Options struct {
	// Bin is the path to the ipfs binary. If empty, "ipfs" is used.
	Bin string
	// Env optionally overrides the command environment (e.g. to set IPFS_PATH).
	// If nil, the process environment is used.
	Env []string
}

func New(opts Options) *Store {
	bin := opts.Bin
	if bin == "" {
		bin = "ipfs"
	}
	return &Store{bin: bin, env: opts.Env}
}

func (s *Store) Has(ctx context.Context, id cid.Cid) (bool, error) {
	if !id.Defined() {
		return false, nil
	}
	_, err := s.run(ctx, nil, "--offline", "block", "stat", id.String())
	if err == nil {
		return true, nil
	}
	if isLikelyNotFound(err) {
		return false, nil
	}
	return false, model.WrapError(model.KindNetwork, err, "ipfs block stat").WithCIDs(id)
}

func (s *Store) Submit(ctx context.Context, blocks []model.Block) (storage.Receipt, error) {
	for _, b := range blocks {
		if !b.CID.Defined() {
			return storage.Receipt{}, model.WrapError(model.KindCIDMismatch, storage.ErrInvalidCID, "ipfs")
		}
		if err := cidutil.Verify(b.CID, b.Data); err != nil {
			return storage.Receipt{}, err
		}
	}
	for _, b := range blocks {
		if err := s.put(ctx, b); err != nil {
			return storage.Receipt{}, err
		}
	}
	return storage.Receipt{ID: "ipfs:" + s.bin, CIDs: model.CIDs(blocks)}, nil
}

func (s *Store) put(ctx context.Context, b model.Block) error {
	p := b.CID.Prefix()
	mh := multicodec.Code(p.MhType).String()

	// Store with explicit parameters so Kubo derives the same CID.
	out, err := s.run(ctx, b.Data,
		"block", "put",
		"--quiet",
		"--cid-codec="+cidutil.CodecName(p.Codec),
		"--mhtype="+mh,
		"/dev/stdin",
	)
	if err != nil {
		return model.WrapError(model.KindNetwork, err, "ipfs block put").WithCIDs(b.CID)
	}

	got, err := cid.Decode(strings.TrimSpace(string(out)))
	if err != nil {
		return model.WrapError(model.KindNetwork, err, "ipfs: unexpected block put output")
	}
	if !got.Equals(b.CID) {
		return model.WrapError(model.KindCIDMismatch, storage.ErrCIDMismatch, "ipfs stored %s", got).WithCIDs(b.CID)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	out, err := s.run(ctx, nil, "--offline", "block", "get", id.String())
	if err != nil {
		if isLikelyNotFound(err) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	if err := cidutil.Verify(id, out); err != nil {
		return nil, storage.ErrCIDMismatch
	}
	return out, nil
}

func (s *Store) run(ctx context.Context, stdin []byte, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, s.bin, args...)
	if s.env != nil {
		cmd.Env = s.env
	}
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	out, err := cmd.Output()
	if err == nil {
		return out, nil
	}

	var ee *exec.ExitError
	if errors.As(err, &ee) {
		msg := strings.TrimSpace(string(ee.Stderr))
		if msg == "" {
			return nil, fmt.Errorf("ipfs: %v", err)
		}
		return nil, fmt.Errorf("ipfs: %s", msg)
	}
	return nil, err
}

func isLikelyNotFound(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found") || strings.Contains(msg, "could not find")
}
