package export

import (
	"errors"
	"fmt"

	"github.com/nhle/mail-export/internal/model"
)

// FilesystemError indicates that a destination could not be created or
// written.
type FilesystemError struct {
	Path   string
	Format string
	Cause  error
}

func (e *FilesystemError) Error() string {
	if e.Format != "" {
		return fmt.Sprintf("writing %s file %s: %v", e.Format, e.Path, e.Cause)
	}
	return fmt.Sprintf("creating %s: %v", e.Path, e.Cause)
}

func (e *FilesystemError) Unwrap() error { return e.Cause }

// IsFilesystemError reports whether err is a FilesystemError.
func IsFilesystemError(err error) bool {
	var fsErr *FilesystemError
	return errors.As(err, &fsErr)
}

// Failure records one problem during a run. Message is zero for
// failures that concern a whole file, such as emails.json.
type Failure struct {
	Message model.MessageKey
	Err     error
}

func (f Failure) Error() string {
	if f.Message == (model.MessageKey{}) {
		return f.Err.Error()
	}
	return fmt.Sprintf("message %s: %v", f.Message, f.Err)
}
