package blob

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSave(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFSStore(filepath.Join(dir, "attachments"))
	require.NoError(t, err)

	path, err := s.Save([]byte("%PDF-1.4 content"), "invoice.pdf")
	require.NoError(t, err)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 content", string(content))
	assert.True(t, strings.HasSuffix(path, "invoice.pdf"))
}

func TestSaveSanitizesName(t *testing.T) {
	s, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	path, err := s.Save([]byte("x"), "../../etc/pass wd$.pdf")
	require.NoError(t, err)

	base := filepath.Base(path)
	assert.NotContains(t, base, "/")
	assert.NotContains(t, base, " ")
	assert.NotContains(t, base, "$")
	assert.True(t, strings.HasSuffix(base, ".pdf"))
}

func TestSaveCollidingNames(t *testing.T) {
	s, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	p1, err := s.Save([]byte("one"), "invoice.pdf")
	require.NoError(t, err)
	p2, err := s.Save([]byte("two"), "invoice.pdf")
	require.NoError(t, err)

	assert.NotEqual(t, p1, p2)
}
