package model

// Header fallbacks used when a message omits the field.
const (
	NoSubject     = "No Subject"
	UnknownSender = "Unknown"
	UnknownDate   = "Unknown"
)

// MessageKey identifies a message across folders. UIDs are only unique
// within one folder.
type MessageKey struct {
	Folder string
	UID    string
}

// String renders the key as folder:uid.
func (k MessageKey) String() string {
	return k.Folder + ":" + k.UID
}

// EmailMessage is the indexed metadata of one message.
type EmailMessage struct {
	UID     string `json:"uid"`
	Subject string `json:"subject"`
	Sender  string `json:"from"`
	To      string `json:"to,omitempty"`

	// Date is the raw Date header as sent by the server.
	Date      string `json:"date"`
	SizeBytes int64  `json:"size"`
	Folder    string `json:"folder"`

	// RawContent is only populated after a full fetch.
	RawContent []byte `json:"-"`
}

// Key returns the folder-scoped identity of the message.
func (m EmailMessage) Key() MessageKey {
	return MessageKey{Folder: m.Folder, UID: m.UID}
}

// HasRaw reports whether the full message bytes have been fetched.
func (m EmailMessage) HasRaw() bool {
	return m.RawContent != nil
}
