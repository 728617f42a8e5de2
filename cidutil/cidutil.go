package cidutil

import (
	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multibase"
	"github.com/multiformats/go-multicodec"
	"github.com/multiformats/go-multihash"

	"nearfs.io/upload/model"
)

// DefaultHash is the multihash function NEARFS and IPFS use for CIDv1.
const DefaultHash = "sha2-256"

const (
	// Raw is the multicodec for file data leaves.
	Raw = uint64(multicodec.Raw)
	// DagPB is the multicodec for UnixFS file and directory nodes.
	DagPB = uint64(multicodec.DagPb)
)

// Builder computes CIDv1 values for a fixed multihash function.
// The zero value is not usable; construct with NewBuilder.
type Builder struct {
	name   string
	mhType uint64
}

// NewBuilder returns a Builder hashing with the named multihash function
// (e.g. "sha2-256", "sha2-512", "blake2b-256"). An empty name selects DefaultHash.
func NewBuilder(hashName string) (Builder, error) {
	if hashName == "" {
		hashName = DefaultHash
	}
	code, ok := multihash.Names[hashName]
	if !ok {
		return Builder{}, model.NewError(model.KindConfiguration, "unknown hash function %q", hashName)
	}
	// Probe once so an unregistered hasher fails at configuration time rather
	// than on the first block.
	if _, err := multihash.Sum(nil, code, -1); err != nil {
		return Builder{}, model.WrapError(model.KindConfiguration, err, "unsupported hash function %q", hashName)
	}
	return Builder{name: hashName, mhType: code}, nil
}

// MustBuilder is like NewBuilder but panics on error.
func MustBuilder(hashName string) Builder {
	b, err := NewBuilder(hashName)
	if err != nil {
		panic(err)
	}
	return b
}

// HashName returns the multihash function name.
func (b Builder) HashName() string { return b.name }

// HashCode returns the multihash function code.
func (b Builder) HashCode() uint64 { return b.mhType }

// Sum returns the CIDv1 of data under codec.
func (b Builder) Sum(codec uint64, data []byte) (cid.Cid, error) {
	if b.name == "" {
		return cid.Undef, model.NewError(model.KindConfiguration, "cidutil: uninitialized builder")
	}
	sum, err := multihash.Sum(data, b.mhType, -1)
	if err != nil {
		return cid.Undef, model.WrapError(model.KindConfiguration, err, "hash with %s", b.name)
	}
	return cid.NewCidV1(codec, sum), nil
}

// Raw returns the CIDv1 of a raw leaf block.
func (b Builder) Raw(data []byte) (cid.Cid, error) { return b.Sum(Raw, data) }

// DagPB returns the CIDv1 of an encoded dag-pb node.
func (b Builder) DagPB(data []byte) (cid.Cid, error) { return b.Sum(DagPB, data) }

// Check verifies that id was produced by this builder: CIDv1, a raw or dag-pb
// codec, and the configured hash function.
func (b Builder) Check(id cid.Cid) error {
	if !id.Defined() {
		return model.NewError(model.KindCIDMismatch, "undefined cid")
	}
	p := id.Prefix()
	if p.Version != 1 {
		return model.NewError(model.KindCIDMismatch, "expected CIDv1, got v%d", p.Version).WithCIDs(id)
	}
	if p.Codec != Raw && p.Codec != DagPB {
		return model.NewError(model.KindCIDMismatch, "unexpected codec %s", CodecName(p.Codec)).WithCIDs(id)
	}
	if p.MhType != b.mhType {
		return model.NewError(model.KindCIDMismatch, "hashed with %s, expected %s",
			multicodec.Code(p.MhType).String(), b.name).WithCIDs(id)
	}
	return nil
}

// Verify recomputes the CID of data using id's prefix and reports a
// KindCIDMismatch error when they differ.
func Verify(id cid.Cid, data []byte) error {
	if !id.Defined() {
		return model.NewError(model.KindCIDMismatch, "undefined cid")
	}
	got, err := id.Prefix().Sum(data)
	if err != nil {
		return model.WrapError(model.KindCIDMismatch, err, "recompute %s", id)
	}
	if !got.Equals(id) {
		return model.NewError(model.KindCIDMismatch, "block data hashes to %s", got).WithCIDs(id)
	}
	return nil
}

// String renders id in base32, the CIDv1 default used by NEARFS and gateways.
func String(id cid.Cid) string {
	if id.Version() == 0 {
		return id.String()
	}
	s, err := id.StringOfBase(multibase.Base32)
	if err != nil {
		return id.String()
	}
	return s
}

// Parse decodes a CID string in any multibase.
func Parse(s string) (cid.Cid, error) {
	id, err := cid.Decode(s)
	if err != nil {
		return cid.Undef, model.WrapError(model.KindCIDMismatch, err, "invalid cid %q", s)
	}
	return id, nil
}

// CodecName returns the multicodec name of code, e.g. "raw" or "dag-pb".
func CodecName(code uint64) string {
	return multicodec.Code(code).String()
}
