// Package index loads folder contents and tracks selection and
// filtering over the loaded messages.
package index

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/nhle/mail-export/internal/model"
	"github.com/nhle/mail-export/internal/session"
)

// progressEvery is how many messages are parsed between progress reports.
const progressEvery = 10

// HeaderSource is the subset of a protocol session needed to load a folder.
type HeaderSource interface {
	SelectFolder(ctx context.Context, name string) error
	SearchAll(ctx context.Context) ([]uint32, error)
	FetchHeaderSubset(ctx context.Context, seqNum uint32) (session.RawFetchResponse, error)
}

// ProgressFunc receives the number of processed and total messages.
type ProgressFunc func(done, total int)

// SkippedMessage records a message dropped because its response was
// malformed.
type SkippedMessage struct {
	SeqNum uint32
	Reason string
}

// LoadResult is the outcome of loading one folder.
type LoadResult struct {
	Folder   string
	Messages []model.EmailMessage
	Skipped  []SkippedMessage
}

// Loader fetches folder headers through a HeaderSource.
type Loader struct {
	src HeaderSource
	log zerolog.Logger
}

// NewLoader creates a Loader reading from src.
func NewLoader(src HeaderSource, log zerolog.Logger) *Loader {
	return &Loader{src: src, log: log}
}

// LoadFolder selects folder, searches all messages and fetches their
// header subset one by one, in server order. Select and search errors
// abort the load, as does the first failed fetch. Malformed responses
// are skipped and reported in the result.
func (l *Loader) LoadFolder(ctx context.Context, folder string, progress ProgressFunc) (LoadResult, error) {
	result := LoadResult{Folder: folder}

	if err := l.src.SelectFolder(ctx, folder); err != nil {
		return result, err
	}

	seqNums, err := l.src.SearchAll(ctx)
	if err != nil {
		return result, err
	}

	total := len(seqNums)
	result.Messages = make([]model.EmailMessage, 0, total)

	for i, seq := range seqNums {
		resp, err := l.src.FetchHeaderSubset(ctx, seq)
		if err != nil {
			return result, err
		}

		msg, err := ParseHeaderResponse(resp, folder)
		if err != nil {
			l.log.Warn().Err(err).Str("folder", folder).Uint32("seq", seq).Msg("skipping message")
			result.Skipped = append(result.Skipped, SkippedMessage{SeqNum: seq, Reason: err.Error()})
		} else {
			result.Messages = append(result.Messages, msg)
		}

		done := i + 1
		if progress != nil && (done%progressEvery == 0 || done == total) {
			progress(done, total)
		}
	}

	if total == 0 && progress != nil {
		progress(0, 0)
	}

	l.log.Info().
		Str("folder", folder).
		Int("loaded", len(result.Messages)).
		Int("skipped", len(result.Skipped)).
		Msg("folder loaded")

	return result, nil
}

// LoadFolder is a convenience wrapper around a Loader with no logging.
func LoadFolder(ctx context.Context, src HeaderSource, folder string, progress ProgressFunc) (LoadResult, error) {
	return NewLoader(src, zerolog.Nop()).LoadFolder(ctx, folder, progress)
}
