package importer

import (
	"errors"
	"io"

	"github.com/ipfs/go-cid"

	"nearfs.io/upload/chunk"
	"nearfs.io/upload/model"
	"nearfs.io/upload/unixfs"
)

// dagNode is a built node as seen by its parent.
type dagNode struct {
	id       cid.Cid
	size     uint64 // cumulative DAG size
	fileSize uint64 // content bytes below this node
}

// file splits content into raw leaves and, when there is more than one,
// arranges them in Kubo's balanced layout: the tree grows one level at a time
// and every level is filled to MaxLinks before a new root is added on top.
func (b *dagBuilder) file(name string, content io.Reader) (Entry, error) {
	s, err := chunk.NewSplitter(content, b.opts.MaxBlockSize)
	if err != nil {
		return Entry{}, withName(err, name)
	}

	var leaves []dagNode
	for {
		c, err := s.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Entry{}, model.WrapError(model.KindConfiguration, err, "read content").WithName(name)
		}
		id, err := b.opts.Builder.Raw(c)
		if err != nil {
			return Entry{}, withName(err, name)
		}
		b.add(id, c)
		leaves = append(leaves, dagNode{id: id, size: uint64(len(c)), fileSize: uint64(len(c))})
	}

	l := &layout{b: b, leaves: leaves}
	root := l.leaf()
	for depth := 1; !l.done(); depth++ {
		parent := &fileNode{}
		parent.children = append(parent.children, root)
		root, err = l.fill(parent, depth)
		if err != nil {
			return Entry{}, withName(err, name)
		}
	}

	ids := make([]cid.Cid, 0, len(leaves))
	for _, lf := range leaves {
		ids = append(ids, lf.id)
	}
	return Entry{Name: name, CID: root.id, Size: root.size, FileSize: root.fileSize, Leaves: ids}, nil
}

type fileNode struct {
	children []dagNode
}

type layout struct {
	b      *dagBuilder
	leaves []dagNode
	next   int
}

func (l *layout) done() bool { return l.next >= len(l.leaves) }

func (l *layout) leaf() dagNode {
	n := l.leaves[l.next]
	l.next++
	return n
}

// fill adds children to node until it holds MaxLinks or the leaves run out.
// At depth 1 children are leaves; deeper, each child is itself a filled
// subtree of depth-1.
func (l *layout) fill(node *fileNode, depth int) (dagNode, error) {
	if node == nil {
		node = &fileNode{}
	}
	for len(node.children) < l.b.opts.MaxLinks && !l.done() {
		if depth == 1 {
			node.children = append(node.children, l.leaf())
			continue
		}
		child, err := l.fill(nil, depth-1)
		if err != nil {
			return dagNode{}, err
		}
		node.children = append(node.children, child)
	}
	return l.commit(node)
}

func (l *layout) commit(fn *fileNode) (dagNode, error) {
	links := make([]unixfs.Link, 0, len(fn.children))
	sizes := make([]uint64, 0, len(fn.children))
	var fileSize uint64
	for _, c := range fn.children {
		links = append(links, unixfs.Link{Hash: c.id, Tsize: c.size})
		sizes = append(sizes, c.fileSize)
		fileSize += c.fileSize
	}
	node := unixfs.Node{Links: links, Data: unixfs.FileData(sizes)}
	enc := node.Encode()
	id, err := l.b.opts.Builder.DagPB(enc)
	if err != nil {
		return dagNode{}, err
	}
	l.b.add(id, enc)
	return dagNode{id: id, size: node.CumulativeSize(len(enc)), fileSize: fileSize}, nil
}

func withName(err error, name string) error {
	var e *model.Error
	if errors.As(err, &e) && e.Name == "" && name != "" {
		cp := *e
		cp.Name = name
		return &cp
	}
	return err
}
