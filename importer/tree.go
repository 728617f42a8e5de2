package importer

import (
	"sort"
	"strings"

	"nearfs.io/upload/model"
)

// treeNode is a directory (children set) or a file (file set) in the
// namespace being imported.
type treeNode struct {
	file     *model.File
	children map[string]*treeNode
}

func newDir() *treeNode { return &treeNode{children: make(map[string]*treeNode)} }

// sortedNames returns child names in byte order, the order dag-pb requires
// for directory links.
func (n *treeNode) sortedNames() []string {
	names := make([]string, 0, len(n.children))
	for name := range n.children {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// buildTree validates every name and arranges files into directories.
// It fails on the first invalid or duplicate name, in input order.
func buildTree(files []model.File) (*treeNode, error) {
	root := newDir()
	for i := range files {
		f := &files[i]
		parts, err := SplitName(f.Name)
		if err != nil {
			return nil, err
		}
		dir := root
		for j, part := range parts[:len(parts)-1] {
			next, ok := dir.children[part]
			if !ok {
				next = newDir()
				dir.children[part] = next
			}
			if next.file != nil {
				return nil, model.NewError(model.KindDuplicateName,
					"%q is both a file and a directory", strings.Join(parts[:j+1], "/")).WithName(f.Name)
			}
			dir = next
		}
		leaf := parts[len(parts)-1]
		if existing, ok := dir.children[leaf]; ok {
			if existing.file == nil {
				return nil, model.NewError(model.KindDuplicateName, "name is already used by a directory").WithName(f.Name)
			}
			return nil, model.NewError(model.KindDuplicateName, "duplicate file name").WithName(f.Name)
		}
		dir.children[leaf] = &treeNode{file: f}
	}
	return root, nil
}

// SplitName validates a slash separated file name and returns its segments.
func SplitName(name string) ([]string, error) {
	if name == "" {
		return nil, model.NewError(model.KindInvalidName, "empty file name")
	}
	parts := strings.Split(name, "/")
	for _, p := range parts {
		switch p {
		case "":
			return nil, model.NewError(model.KindInvalidName, "empty path segment").WithName(name)
		case ".", "..":
			return nil, model.NewError(model.KindInvalidName, "relative path segment %q", p).WithName(name)
		}
	}
	return parts, nil
}

func joinName(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + "/" + name
}
