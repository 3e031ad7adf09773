package exportform

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nhle/mail-export/internal/model"
)

func TestStartUsesDefaults(t *testing.T) {
	m := New(80, 24)
	m.Start(model.ExportConfig{
		Directory:         "out",
		Formats:           []string{"eml", "csv"},
		PreserveStructure: true,
		Concurrency:       4,
	}, 3)

	opts := m.options()
	assert.Equal(t, model.NewFormatSet(model.FormatEML, model.FormatCSV), opts.Formats)
	assert.Equal(t, "out", opts.Directory)
	assert.True(t, opts.PreserveStructure)
	assert.False(t, opts.SkipExisting)
	assert.Equal(t, 4, opts.Concurrency)
	assert.Equal(t, 3, m.selected)
}

func TestOptionsClampConcurrency(t *testing.T) {
	m := New(80, 24)
	m.Start(model.ExportConfig{Directory: "out", Formats: []string{"json"}}, 1)
	assert.Equal(t, 1, m.options().Concurrency)
}

func TestValidateFormats(t *testing.T) {
	assert.Error(t, validateFormats(nil))
	assert.Error(t, validateFormats([]string{"pdf"}))
	assert.NoError(t, validateFormats([]string{"mbox"}))
}
