package sync

import (
	"github.com/nhle/mail-export/internal/export"
	"github.com/nhle/mail-export/internal/index"
	"github.com/nhle/mail-export/internal/model"
	"github.com/nhle/mail-export/internal/session"
)

// Kind identifies a command type. At most one command of each kind is
// pending or running at a time.
type Kind int

const (
	KindConnect Kind = iota
	KindListFolders
	KindLoadFolder
	KindPreview
	KindExport
	KindDisconnect
)

// String returns a short label for the kind.
func (k Kind) String() string {
	switch k {
	case KindConnect:
		return "connect"
	case KindListFolders:
		return "list folders"
	case KindLoadFolder:
		return "load folder"
	case KindPreview:
		return "preview"
	case KindExport:
		return "export"
	case KindDisconnect:
		return "disconnect"
	default:
		return "unknown"
	}
}

// Command is a unit of work executed against the session.
type Command interface {
	Kind() Kind
}

// ConnectCmd opens a session for Account, replacing any current one,
// and lists its folders.
type ConnectCmd struct {
	Account model.Account
}

// ListFoldersCmd lists the folders of the current session.
type ListFoldersCmd struct{}

// LoadFolderCmd loads the message headers of Folder.
type LoadFolderCmd struct {
	Folder string
}

// PreviewCmd fetches Message and extracts its text.
type PreviewCmd struct {
	Message model.EmailMessage
}

// ExportCmd runs an export. Concurrency above 1 opens that many extra
// sessions for the per-message fetches.
type ExportCmd struct {
	Request     export.Request
	Concurrency int
}

// DisconnectCmd closes the current session.
type DisconnectCmd struct{}

func (ConnectCmd) Kind() Kind     { return KindConnect }
func (ListFoldersCmd) Kind() Kind { return KindListFolders }
func (LoadFolderCmd) Kind() Kind  { return KindLoadFolder }
func (PreviewCmd) Kind() Kind     { return KindPreview }
func (ExportCmd) Kind() Kind      { return KindExport }
func (DisconnectCmd) Kind() Kind  { return KindDisconnect }

// resetsSession reports whether k replaces the session, which makes
// every other pending command meaningless.
func resetsSession(k Kind) bool {
	return k == KindConnect || k == KindDisconnect
}

// StatusMsg is a tea.Msg carrying a human-readable status line.
type StatusMsg struct {
	Text  string
	State model.SessionState
}

// ProgressMsg is a tea.Msg reporting progress of a long command.
type ProgressMsg struct {
	Kind  Kind
	Done  int
	Total int
	Label string
}

// Percent returns the completed fraction in [0, 1].
func (m ProgressMsg) Percent() float64 {
	if m.Total <= 0 {
		return 1
	}
	return float64(m.Done) / float64(m.Total)
}

// ConnectedMsg is a tea.Msg sent when a session has been opened.
type ConnectedMsg struct {
	Account model.Account
}

// FoldersMsg is a tea.Msg carrying the folder hierarchy.
type FoldersMsg struct {
	Root        *model.FolderNode
	Descriptors []session.FolderDescriptor
}

// FolderLoadedMsg is a tea.Msg sent when a folder has been loaded.
type FolderLoadedMsg struct {
	Result index.LoadResult
}

// PreviewMsg is a tea.Msg carrying a fetched message and its text.
type PreviewMsg struct {
	Message model.EmailMessage
	Raw     []byte
	Text    string
}

// ExportDoneMsg is a tea.Msg sent when an export has finished.
type ExportDoneMsg struct {
	Report export.Report
	Run    model.ExportRun
	Err    error
}

// FailedMsg is a tea.Msg sent when a command fails.
type FailedMsg struct {
	Kind Kind
	Err  error
}
