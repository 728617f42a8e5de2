// Package unixfs encodes and decodes the dag-pb nodes that describe UnixFS
// files and directories.
//
// Encoding is hand-rolled on protowire so that the output is the canonical
// dag-pb form byte for byte: links first, then data; within a link the hash,
// the name (always present, possibly empty) and the cumulative size.
// Decoding goes through go-codec-dagpb, which rejects non-canonical input.
package unixfs

import (
	"fmt"

	"github.com/ipfs/go-cid"
	dagpb "github.com/ipld/go-codec-dagpb"
	cidlink "github.com/ipld/go-ipld-prime/linking/cid"
	"google.golang.org/protobuf/encoding/protowire"
)

const (
	pbNodeData  protowire.Number = 1
	pbNodeLinks protowire.Number = 2

	pbLinkHash  protowire.Number = 1
	pbLinkName  protowire.Number = 2
	pbLinkTsize protowire.Number = 3
)

// Link is a named reference from a dag-pb node to a child block.
// Tsize is the cumulative size of the child's DAG.
type Link struct {
	Hash  cid.Cid
	Name  string
	Tsize uint64
}

// Node is a dag-pb node. A nil Data omits the data field entirely.
type Node struct {
	Links []Link
	Data  []byte
}

// Encode returns the canonical dag-pb bytes of n. Links are written in the
// order given; callers sort directory links before encoding.
func (n Node) Encode() []byte {
	var b []byte
	for _, l := range n.Links {
		b = protowire.AppendTag(b, pbNodeLinks, protowire.BytesType)
		b = protowire.AppendBytes(b, l.encode())
	}
	if n.Data != nil {
		b = protowire.AppendTag(b, pbNodeData, protowire.BytesType)
		b = protowire.AppendBytes(b, n.Data)
	}
	return b
}

func (l Link) encode() []byte {
	var b []byte
	b = protowire.AppendTag(b, pbLinkHash, protowire.BytesType)
	b = protowire.AppendBytes(b, l.Hash.Bytes())
	b = protowire.AppendTag(b, pbLinkName, protowire.BytesType)
	b = protowire.AppendString(b, l.Name)
	b = protowire.AppendTag(b, pbLinkTsize, protowire.VarintType)
	b = protowire.AppendVarint(b, l.Tsize)
	return b
}

// CumulativeSize returns the size a parent link records for a node whose
// encoding is encodedLen bytes long: the node itself plus everything below it.
func (n Node) CumulativeSize(encodedLen int) uint64 {
	total := uint64(encodedLen)
	for _, l := range n.Links {
		total += l.Tsize
	}
	return total
}

// Decode parses dag-pb bytes.
func Decode(b []byte) (Node, error) {
	nb := dagpb.Type.PBNode.NewBuilder()
	if err := dagpb.DecodeBytes(nb, b); err != nil {
		return Node{}, fmt.Errorf("unixfs: decode dag-pb: %w", err)
	}
	pn, ok := nb.Build().(dagpb.PBNode)
	if !ok {
		return Node{}, fmt.Errorf("unixfs: decode dag-pb: unexpected node type")
	}

	var out Node
	if pn.Data.Exists() {
		out.Data = pn.Data.Must().Bytes()
	}
	numLinks := pn.Links.Length()
	out.Links = make([]Link, 0, numLinks)
	for i := int64(0); i < numLinks; i++ {
		next := pn.Links.Lookup(i)
		link, ok := next.FieldHash().Link().(cidlink.Link)
		if !ok {
			return Node{}, fmt.Errorf("unixfs: link %d: not a cid link", i)
		}
		l := Link{Hash: link.Cid}
		if next.FieldName().Exists() {
			l.Name = next.FieldName().Must().String()
		}
		if next.FieldTsize().Exists() {
			sz := next.FieldTsize().Must().Int()
			if sz < 0 {
				return Node{}, fmt.Errorf("unixfs: link %d: negative size", i)
			}
			l.Tsize = uint64(sz)
		}
		out.Links = append(out.Links, l)
	}
	return out, nil
}

// Inspect decodes a dag-pb block and the UnixFS payload in its Data field.
func Inspect(b []byte) (Node, Data, error) {
	n, err := Decode(b)
	if err != nil {
		return Node{}, Data{}, err
	}
	if n.Data == nil {
		return n, Data{}, fmt.Errorf("%w: node has no data field", ErrMalformedData)
	}
	d, err := DecodeData(n.Data)
	if err != nil {
		return Node{}, Data{}, err
	}
	return n, d, nil
}
