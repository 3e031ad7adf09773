package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mail-export/internal/model"
	"github.com/nhle/mail-export/internal/session"
)

func TestParseHeaderResponse(t *testing.T) {
	resp := session.RawFetchResponse{
		SeqNum:    3,
		UID:       42,
		Size:      2048,
		SizeKnown: true,
		Header: []byte("Subject: Invoice March\r\n" +
			"From: Billing <billing@example.com>\r\n" +
			"To: alice@example.com\r\n" +
			"Date: Tue, 5 Mar 2024 10:00:00 +0000\r\n\r\n"),
	}

	msg, err := ParseHeaderResponse(resp, "INBOX")
	require.NoError(t, err)
	assert.Equal(t, model.EmailMessage{
		UID:       "42",
		Subject:   "Invoice March",
		Sender:    "Billing <billing@example.com>",
		To:        "alice@example.com",
		Date:      "Tue, 5 Mar 2024 10:00:00 +0000",
		SizeBytes: 2048,
		Folder:    "INBOX",
	}, msg)
}

func TestParseHeaderResponseDefaults(t *testing.T) {
	resp := session.RawFetchResponse{SeqNum: 1, UID: 7, Size: 10, SizeKnown: true}

	msg, err := ParseHeaderResponse(resp, "Archive")
	require.NoError(t, err)
	assert.Equal(t, model.NoSubject, msg.Subject)
	assert.Equal(t, model.UnknownSender, msg.Sender)
	assert.Equal(t, model.UnknownDate, msg.Date)
	assert.Empty(t, msg.To)
}

func TestParseHeaderResponseEncodedWords(t *testing.T) {
	resp := session.RawFetchResponse{
		UID: 1, Size: 1, SizeKnown: true,
		Header: []byte("Subject: =?UTF-8?B?UmVjaG51bmcgZsO8ciBNw6Ryeg==?=\r\n" +
			"From: =?ISO-8859-1?Q?J=F6rg?= <jorg@example.de>"),
	}

	msg, err := ParseHeaderResponse(resp, "INBOX")
	require.NoError(t, err)
	assert.Equal(t, "Rechnung für März", msg.Subject)
	assert.Equal(t, "Jörg <jorg@example.de>", msg.Sender)
}

func TestParseHeaderResponseMalformed(t *testing.T) {
	tests := []struct {
		name string
		resp session.RawFetchResponse
		want string
	}{
		{"missing uid", session.RawFetchResponse{SeqNum: 4, Size: 1, SizeKnown: true}, "missing UID"},
		{"missing size", session.RawFetchResponse{SeqNum: 5, UID: 9}, "missing size"},
		{"negative size", session.RawFetchResponse{SeqNum: 6, UID: 9, Size: -1, SizeKnown: true}, "missing size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseHeaderResponse(tt.resp, "INBOX")
			require.Error(t, err)
			assert.True(t, IsMalformed(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
