package index

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_PlainText(t *testing.T) {
	text, err := Load(strings.NewReader("hello world"))
	require.NoError(t, err)
	assert.Equal(t, "hello world", text)
}

func TestLoad_Empty(t *testing.T) {
	_, err := Load(strings.NewReader(""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty")
}

func TestLoad_MalformedPDF(t *testing.T) {
	// PDF magic header with garbage behind it must fail, not be served
	// as raw text.
	_, err := Load(strings.NewReader("%PDF-1.7 not actually a pdf"))
	require.Error(t, err)
}
