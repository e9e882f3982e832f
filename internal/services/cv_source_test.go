package services

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCVTextSourceReadsPlainText(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "cv.txt")
	require.NoError(t, os.WriteFile(path, []byte("\n  Jane Doe  \n\n\tSenior Go Engineer\n\n"), 0o600))

	text, err := NewCVTextSource().ReadText(path)
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe\nSenior Go Engineer", text)
}

func TestCVTextSourceRejects(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	blank := filepath.Join(dir, "blank.txt")
	require.NoError(t, os.WriteFile(blank, []byte(" \n\n "), 0o600))
	big := filepath.Join(dir, "big.txt")
	require.NoError(t, os.WriteFile(big, []byte(strings.Repeat("x", 64)), 0o600))

	src := &cvTextSource{maxBytes: 32}

	tests := []struct {
		name string
		path string
	}{
		{name: "missing file", path: filepath.Join(dir, "nope.txt")},
		{name: "no text", path: blank},
		{name: "too large", path: big},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := src.ReadText(tt.path)
			require.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestCleanText(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"":                          "",
		"   ":                       "",
		"a\n\n\nb":                  "a\nb",
		"  lead\ttrail \n\n  x  \n": "lead\ttrail\nx",
	}
	for in, want := range tests {
		assert.Equal(t, want, CleanText(in), "input %q", in)
	}
}
