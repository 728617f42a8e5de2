// Package importer turns named file contents into a UnixFS DAG: raw leaf
// blocks, dag-pb file nodes for multi-block files, and dag-pb directory nodes.
//
// The output is deterministic. The same set of files, in any input order,
// produces the same root CID and the same block sequence.
package importer

import (
	"bytes"
	"io"

	"github.com/ipfs/go-cid"

	"nearfs.io/upload/chunk"
	"nearfs.io/upload/cidutil"
	"nearfs.io/upload/model"
	"nearfs.io/upload/unixfs"
)

// DefaultMaxLinks is the number of children per file node in the balanced
// layout, the value Kubo uses.
const DefaultMaxLinks = 174

// Options controls DAG construction.
type Options struct {
	// MaxBlockSize bounds raw leaf size. Zero means chunk.DefaultSize.
	MaxBlockSize int
	// MaxLinks bounds children per file node. Zero means DefaultMaxLinks.
	MaxLinks int
	// Builder computes CIDs. The zero value means sha2-256.
	Builder cidutil.Builder
	// NoWrap returns a lone top-level file's CID as the root instead of
	// wrapping it in a directory.
	NoWrap bool
}

func (o Options) withDefaults() (Options, error) {
	if o.MaxBlockSize == 0 {
		o.MaxBlockSize = chunk.DefaultSize
	}
	if o.MaxLinks == 0 {
		o.MaxLinks = DefaultMaxLinks
	}
	if o.MaxLinks < 2 {
		return o, model.NewError(model.KindConfiguration, "importer: max links must be at least 2, got %d", o.MaxLinks)
	}
	if o.Builder.HashName() == "" {
		b, err := cidutil.NewBuilder(cidutil.DefaultHash)
		if err != nil {
			return o, err
		}
		o.Builder = b
	}
	return o, nil
}

// Entry describes one imported file or directory.
type Entry struct {
	Name string
	CID  cid.Cid
	// Size is the cumulative DAG size recorded in the parent's link.
	Size uint64
	// FileSize is the number of content bytes (zero for directories).
	FileSize uint64
	// Leaves lists the raw leaf CIDs of a file, in content order.
	Leaves []cid.Cid
	Dir    bool
}

// Result is the full block set of an import.
type Result struct {
	Root cid.Cid
	Size uint64
	// Blocks holds every block of the DAG, deduplicated by CID, children
	// before parents; the root is last.
	Blocks []model.Block
	// Entries lists files and directories in traversal order.
	Entries []Entry
}

// Import builds the DAG for files. Names are validated and checked for
// duplicates before anything is hashed.
func Import(files []model.File, opts Options) (*Result, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}
	tree, err := buildTree(files)
	if err != nil {
		return nil, err
	}

	b := &dagBuilder{opts: opts, seen: make(map[string]struct{})}
	res := &Result{}

	if opts.NoWrap && len(tree.children) == 1 {
		for name, child := range tree.children {
			if child.file != nil {
				e, err := b.file(name, bytes.NewReader(child.file.Content))
				if err != nil {
					return nil, err
				}
				b.entries = append(b.entries, e)
				res.Root, res.Size = e.CID, e.Size
				res.Blocks, res.Entries = b.blocks, b.entries
				return res, nil
			}
		}
	}

	root, err := b.dir("", tree)
	if err != nil {
		return nil, err
	}
	res.Root, res.Size = root.CID, root.Size
	res.Blocks, res.Entries = b.blocks, b.entries
	return res, nil
}

// File builds the DAG of a single file's content and returns its entry
// with the blocks it needs.
func File(content io.Reader, opts Options) (Entry, []model.Block, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return Entry{}, nil, err
	}
	b := &dagBuilder{opts: opts, seen: make(map[string]struct{})}
	e, err := b.file("", content)
	if err != nil {
		return Entry{}, nil, err
	}
	return e, b.blocks, nil
}

type dagBuilder struct {
	opts    Options
	seen    map[string]struct{}
	blocks  []model.Block
	entries []Entry
}

func (b *dagBuilder) add(id cid.Cid, data []byte) {
	k := id.KeyString()
	if _, ok := b.seen[k]; ok {
		return
	}
	b.seen[k] = struct{}{}
	b.blocks = append(b.blocks, model.Block{CID: id, Data: data})
}

func (b *dagBuilder) dir(name string, d *treeNode) (Entry, error) {
	names := d.sortedNames()
	links := make([]unixfs.Link, 0, len(names))
	for _, childName := range names {
		child := d.children[childName]
		full := joinName(name, childName)
		var (
			e   Entry
			err error
		)
		if child.file != nil {
			e, err = b.file(full, bytes.NewReader(child.file.Content))
			if err == nil {
				b.entries = append(b.entries, e)
			}
		} else {
			e, err = b.dir(full, child)
		}
		if err != nil {
			return Entry{}, err
		}
		links = append(links, unixfs.Link{Hash: e.CID, Name: childName, Tsize: e.Size})
	}

	node := unixfs.Node{Links: links, Data: unixfs.DirectoryData()}
	enc := node.Encode()
	id, err := b.opts.Builder.DagPB(enc)
	if err != nil {
		return Entry{}, err
	}
	b.add(id, enc)
	e := Entry{Name: name, CID: id, Size: node.CumulativeSize(len(enc)), Dir: true}
	if name != "" {
		b.entries = append(b.entries, e)
	}
	return e, nil
}
