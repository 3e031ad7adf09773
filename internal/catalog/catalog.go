// Package catalog turns a flat folder listing into a hierarchy.
package catalog

import (
	"strings"

	"github.com/nhle/mail-export/internal/model"
	"github.com/nhle/mail-export/internal/session"
)

// RootName is the label of the synthetic root node.
const RootName = "Folders"

// Entry is one row of a flattened tree.
type Entry struct {
	Node  *model.FolderNode
	Depth int
}

// Build constructs the folder hierarchy from a LIST result. Parents are
// resolved after every folder is registered, so a child listed before
// its parent still lands under it. Folders whose parent was never
// listed attach to the root. Repeated paths produce a single node.
func Build(descriptors []session.FolderDescriptor) *model.FolderNode {
	root := &model.FolderNode{Name: RootName}

	registry := make(map[string]*model.FolderNode, len(descriptors))
	order := make([]*model.FolderNode, 0, len(descriptors))

	for _, d := range descriptors {
		if d.Name == "" {
			continue
		}
		path := canonicalPath(d)
		if _, seen := registry[path]; seen {
			continue
		}
		node := &model.FolderNode{
			Name:    lastSegment(path),
			Path:    path,
			Mailbox: d.Name,
		}
		registry[path] = node
		order = append(order, node)
	}

	for _, node := range order {
		parent := root
		if i := strings.LastIndex(node.Path, "/"); i > 0 {
			if p, ok := registry[node.Path[:i]]; ok {
				parent = p
			}
		}
		parent.AddChild(node)
	}

	return root
}

// Flatten lists every node below root depth first, children in listing
// order. Top-level folders have depth 0.
func Flatten(root *model.FolderNode) []Entry {
	var entries []Entry
	root.Walk(func(node *model.FolderNode, depth int) bool {
		if node != root {
			entries = append(entries, Entry{Node: node, Depth: depth - 1})
		}
		return true
	})
	return entries
}

func canonicalPath(d session.FolderDescriptor) string {
	if d.Delim == 0 || d.Delim == '/' {
		return d.Name
	}
	return strings.ReplaceAll(d.Name, string(d.Delim), "/")
}

func lastSegment(path string) string {
	if i := strings.LastIndex(path, "/"); i >= 0 && i < len(path)-1 {
		return path[i+1:]
	}
	return path
}
