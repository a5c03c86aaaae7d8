package textextract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract_PlainTypes(t *testing.T) {
	text, err := Extract(strings.NewReader("\xef\xbb\xbf# Title\nbody"), "markdown", "a.md")
	require.NoError(t, err)
	assert.Equal(t, "# Title\nbody", text)

	text, err = Extract(strings.NewReader("a,b\n1,2"), "sheet", "data.CSV")
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,2", text)

	text, err = Extract(strings.NewReader("bad\xffbyte\x00"), "text", "a.txt")
	require.NoError(t, err)
	assert.Equal(t, "bad�byte", text)
}

func TestExtract_Unsupported(t *testing.T) {
	_, err := Extract(strings.NewReader("x"), "sheet", "book.xlsx")
	assert.ErrorIs(t, err, ErrUnsupportedType)

	_, err = Extract(strings.NewReader("x"), "pptx", "deck.pptx")
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestExtract_EmptyPDF(t *testing.T) {
	text, err := Extract(strings.NewReader(""), "pdf", "empty.pdf")
	require.NoError(t, err)
	assert.Empty(t, text)

	_, err = Extract(strings.NewReader("not a pdf"), "pdf", "broken.pdf")
	assert.Error(t, err)
}
