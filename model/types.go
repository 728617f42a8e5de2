package model

import "github.com/ipfs/go-cid"

// File is one named input to an upload.
//
// Name may contain "/" separators; each separator introduces a directory level.
type File struct {
	Name    string
	Content []byte
}

// Block is an immutable, content-addressed unit of storage.
// Its identity is CID; Data must hash to CID under CID's prefix.
type Block struct {
	CID  cid.Cid
	Data []byte
}

// Size returns the number of data bytes in b.
func (b Block) Size() int { return len(b.Data) }

// CIDs returns the CIDs of blocks, in order.
func CIDs(blocks []Block) []cid.Cid {
	out := make([]cid.Cid, 0, len(blocks))
	for _, b := range blocks {
		out = append(out, b.CID)
	}
	return out
}
