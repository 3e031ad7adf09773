package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mail-export/internal/session"
)

func folders(delim rune, names ...string) []session.FolderDescriptor {
	out := make([]session.FolderDescriptor, len(names))
	for i, name := range names {
		out[i] = session.FolderDescriptor{Attrs: []string{`\HasNoChildren`}, Delim: delim, Name: name}
	}
	return out
}

func paths(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Node.Path
	}
	return out
}

func TestBuildNested(t *testing.T) {
	root := Build(folders('/', "INBOX", "Work", "Work/Projects", "Work/Projects/2024", "Archive"))

	assert.Equal(t, RootName, root.Name)
	assert.Empty(t, root.Path)
	require.Len(t, root.Children, 3)
	assert.Equal(t, "INBOX", root.Children[0].Name)
	assert.Equal(t, "Work", root.Children[1].Name)
	assert.Equal(t, "Archive", root.Children[2].Name)

	projects := root.Find("Work/Projects")
	require.NotNil(t, projects)
	assert.Equal(t, "Projects", projects.Name)
	require.Len(t, projects.Children, 1)
	assert.Equal(t, "2024", projects.Children[0].Name)
	assert.Equal(t, 5, root.Count())
}

func TestBuildOrderIndependent(t *testing.T) {
	root := Build(folders('/', "Work/Projects/2024", "Work/Projects", "Work"))

	require.Len(t, root.Children, 1)
	work := root.Children[0]
	assert.Equal(t, "Work", work.Path)
	require.Len(t, work.Children, 1)
	require.Len(t, work.Children[0].Children, 1)
	assert.Equal(t, "Work/Projects/2024", work.Children[0].Children[0].Path)
}

func TestBuildMissingParentAttachesToRoot(t *testing.T) {
	root := Build(folders('/', "INBOX", "Lists/golang"))

	require.Len(t, root.Children, 2)
	orphan := root.Children[1]
	assert.Equal(t, "golang", orphan.Name)
	assert.Equal(t, "Lists/golang", orphan.Path)
}

func TestBuildDuplicates(t *testing.T) {
	root := Build(folders('/', "INBOX", "Sent", "INBOX"))
	assert.Equal(t, 2, root.Count())
}

func TestBuildCanonicalizesDelimiter(t *testing.T) {
	root := Build(folders('.', "INBOX", "INBOX.Receipts", "INBOX.Receipts.2023"))

	node := root.Find("INBOX/Receipts/2023")
	require.NotNil(t, node)
	assert.Equal(t, "INBOX.Receipts.2023", node.Mailbox)
	assert.Equal(t, "2023", node.Name)
}

func TestBuildFlatNamespace(t *testing.T) {
	root := Build(folders(0, "INBOX", "a/b"))

	// With no delimiter, "/" is still treated as the path separator.
	assert.Equal(t, 2, root.Count())
	assert.NotNil(t, root.Find("a/b"))
}

func TestBuildEmpty(t *testing.T) {
	root := Build(nil)
	assert.Empty(t, root.Children)
	assert.Empty(t, Flatten(root))
}

func TestFlatten(t *testing.T) {
	root := Build(folders('/', "Work/Projects", "INBOX", "Work"))
	entries := Flatten(root)

	// Root children follow the order their nodes were listed in.
	assert.Equal(t, []string{"INBOX", "Work", "Work/Projects"}, paths(entries))
	assert.Equal(t, 0, entries[0].Depth)
	assert.Equal(t, 0, entries[1].Depth)
	assert.Equal(t, 1, entries[2].Depth)
}
