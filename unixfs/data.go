package unixfs

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// DataType is the UnixFS node type stored in the dag-pb Data field.
type DataType uint64

const (
	TRaw       DataType = 0
	TDirectory DataType = 1
	TFile      DataType = 2
	TMetadata  DataType = 3
	TSymlink   DataType = 4
	THAMTShard DataType = 5
)

func (t DataType) String() string {
	switch t {
	case TRaw:
		return "raw"
	case TDirectory:
		return "directory"
	case TFile:
		return "file"
	case TMetadata:
		return "metadata"
	case TSymlink:
		return "symlink"
	case THAMTShard:
		return "hamt-shard"
	default:
		return fmt.Sprintf("unknown(%d)", uint64(t))
	}
}

const (
	dataType       protowire.Number = 1
	dataData       protowire.Number = 2
	dataFileSize   protowire.Number = 3
	dataBlockSizes protowire.Number = 4
)

var ErrMalformedData = errors.New("unixfs: malformed data")

// Data is the UnixFS protobuf carried in a dag-pb node's Data field.
type Data struct {
	Type       DataType
	Data       []byte
	FileSize   *uint64
	BlockSizes []uint64
}

// Encode returns the protobuf bytes of d, fields in number order and block
// sizes unpacked, as go-unixfs writes them.
func (d Data) Encode() []byte {
	var b []byte
	b = protowire.AppendTag(b, dataType, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(d.Type))
	if d.Data != nil {
		b = protowire.AppendTag(b, dataData, protowire.BytesType)
		b = protowire.AppendBytes(b, d.Data)
	}
	if d.FileSize != nil {
		b = protowire.AppendTag(b, dataFileSize, protowire.VarintType)
		b = protowire.AppendVarint(b, *d.FileSize)
	}
	for _, s := range d.BlockSizes {
		b = protowire.AppendTag(b, dataBlockSizes, protowire.VarintType)
		b = protowire.AppendVarint(b, s)
	}
	return b
}

// DecodeData parses UnixFS protobuf bytes. Unknown fields are skipped.
func DecodeData(b []byte) (Data, error) {
	var d Data
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Data{}, fmt.Errorf("%w: %v", ErrMalformedData, protowire.ParseError(n))
		}
		b = b[n:]
		switch {
		case num == dataType && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Data{}, fmt.Errorf("%w: type: %v", ErrMalformedData, protowire.ParseError(n))
			}
			d.Type = DataType(v)
			b = b[n:]
		case num == dataData && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return Data{}, fmt.Errorf("%w: data: %v", ErrMalformedData, protowire.ParseError(n))
			}
			d.Data = append([]byte{}, v...)
			b = b[n:]
		case num == dataFileSize && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Data{}, fmt.Errorf("%w: filesize: %v", ErrMalformedData, protowire.ParseError(n))
			}
			d.FileSize = &v
			b = b[n:]
		case num == dataBlockSizes && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return Data{}, fmt.Errorf("%w: blocksizes: %v", ErrMalformedData, protowire.ParseError(n))
			}
			d.BlockSizes = append(d.BlockSizes, v)
			b = b[n:]
		case num == dataBlockSizes && typ == protowire.BytesType:
			// packed encoding from other writers
			packed, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return Data{}, fmt.Errorf("%w: blocksizes: %v", ErrMalformedData, protowire.ParseError(n))
			}
			for len(packed) > 0 {
				v, m := protowire.ConsumeVarint(packed)
				if m < 0 {
					return Data{}, fmt.Errorf("%w: blocksizes: %v", ErrMalformedData, protowire.ParseError(m))
				}
				d.BlockSizes = append(d.BlockSizes, v)
				packed = packed[m:]
			}
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return Data{}, fmt.Errorf("%w: field %d: %v", ErrMalformedData, num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return d, nil
}

// FileData returns the UnixFS bytes for an internal file node whose children
// hold blockSizes bytes of content each.
func FileData(blockSizes []uint64) []byte {
	var total uint64
	for _, s := range blockSizes {
		total += s
	}
	return Data{Type: TFile, FileSize: &total, BlockSizes: blockSizes}.Encode()
}

// DirectoryData returns the UnixFS bytes for a basic directory node.
func DirectoryData() []byte {
	return Data{Type: TDirectory}.Encode()
}
