package model

// FolderNode is one node of the folder hierarchy.
type FolderNode struct {
	// Name is the last path segment.
	Name string

	// Path is the full path with "/" as separator.
	Path string

	// Mailbox is the server-side name, with the server's own delimiter,
	// used to select the folder.
	Mailbox string

	Children []*FolderNode
}

// AddChild appends child and returns it.
func (n *FolderNode) AddChild(child *FolderNode) *FolderNode {
	n.Children = append(n.Children, child)
	return child
}

// Walk visits n and every descendant depth first. Returning false from
// fn skips the node's children.
func (n *FolderNode) Walk(fn func(node *FolderNode, depth int) bool) {
	n.walk(fn, 0)
}

func (n *FolderNode) walk(fn func(node *FolderNode, depth int) bool, depth int) {
	if !fn(n, depth) {
		return
	}
	for _, child := range n.Children {
		child.walk(fn, depth+1)
	}
}

// Find returns the node with the given path, or nil.
func (n *FolderNode) Find(path string) *FolderNode {
	var found *FolderNode
	n.Walk(func(node *FolderNode, _ int) bool {
		if found != nil {
			return false
		}
		if node.Path == path && node.Mailbox != "" {
			found = node
			return false
		}
		return true
	})
	return found
}

// Count returns the number of folders below n, excluding n itself.
func (n *FolderNode) Count() int {
	count := -1
	n.Walk(func(*FolderNode, int) bool {
		count++
		return true
	})
	return count
}
