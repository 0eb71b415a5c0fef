package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsImageFile(t *testing.T) {
	assert.True(t, IsImageFile("photo.JPG"))
	assert.True(t, IsImageFile("/tmp/cards/scan.webp"))
	assert.False(t, IsImageFile("notes.txt"))
	assert.False(t, IsImageFile("noext"))
}

func TestCardFilename(t *testing.T) {
	got := CardFilename("/photos/my binder:page.png", "out", "set1_", 3, "WEBP")
	assert.Equal(t, filepath.Join("out", "set1_my_binder_page_card03.webp"), got)

	assert.Equal(t, filepath.Join("out", "image_card01.jpg"), CardFilename("...", "out", "", 1, ""))
}

func TestListImageFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	for _, name := range []string{"b.png", "a.jpg", "readme.md", filepath.Join("sub", "c.webp")} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}

	files, err := ListImageFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.jpg"),
		filepath.Join(dir, "b.png"),
		filepath.Join(dir, "sub", "c.webp"),
	}, files)

	assert.True(t, DirExists(dir))
	assert.False(t, FileExists(dir))
	assert.True(t, FileExists(files[0]))
}

func TestEnsureDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	require.NoError(t, EnsureDir(dir))
	require.NoError(t, EnsureDir(dir))
	assert.True(t, DirExists(dir))
}

func TestFormatFileSize(t *testing.T) {
	assert.Equal(t, "512 B", FormatFileSize(512))
	assert.Equal(t, "1.5 KB", FormatFileSize(1536))
	assert.Equal(t, "2.0 MB", FormatFileSize(2<<20))
}
