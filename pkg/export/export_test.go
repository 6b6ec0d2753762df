package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleReport() Report {
	return Report{
		Title: "Appointments",
		Columns: []Column{
			{Key: "id", Header: "ID", Width: 60},
			{Key: "status", Header: "Status"},
		},
		Rows: []map[string]string{
			{"id": "a-1", "status": "approved"},
			{"id": "a-2", "status": "cancelled"},
		},
	}
}

func TestCSVRendererWritesHeaderAndRows(t *testing.T) {
	out, err := NewCSVRenderer().Render(sampleReport())
	require.NoError(t, err)
	assert.Equal(t, "ID,Status\na-1,approved\na-2,cancelled\n", string(out))
}

func TestPDFRendererProducesDocument(t *testing.T) {
	out, err := NewPDFRenderer().Render(sampleReport())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestRenderRequiresColumns(t *testing.T) {
	_, err := NewCSVRenderer().Render(Report{})
	assert.Error(t, err)
	_, err = NewPDFRenderer().Render(Report{})
	assert.Error(t, err)
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)

	f, err = ParseFormat("pdf")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", f.ContentType())

	_, err = ParseFormat("xlsx")
	assert.Error(t, err)
}

func TestTruncateLongValues(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 40))
	assert.Equal(t, "abcdefghi...", truncate("abcdefghijklmnopqrstuvwxyz", 20))
}
