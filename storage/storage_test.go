package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsS3URI(t *testing.T) {
	assert.True(t, IsS3URI("s3://bucket/key"))
	assert.True(t, IsS3URI("s3://bucket/deep/prefix/key.model"))
	assert.False(t, IsS3URI("/local/path"))
	assert.False(t, IsS3URI("relative/path"))
	assert.False(t, IsS3URI("https://bucket/key"))
	assert.False(t, IsS3URI("s3://"))
}

func TestParseS3URI(t *testing.T) {
	bucket, key := ParseS3URI("s3://my-bucket/models/tokenizer.model")
	assert.Equal(t, "my-bucket", bucket)
	assert.Equal(t, "models/tokenizer.model", key)

	bucket, key = ParseS3URI("s3://my-bucket")
	assert.Equal(t, "my-bucket", bucket)
	assert.Equal(t, "", key)
}

func TestForPathSelectsLocal(t *testing.T) {
	backend, err := ForPath("/tmp/tokenizer.model")
	require.NoError(t, err)
	assert.False(t, backend.Remote())
}

func TestLocalExists(t *testing.T) {
	dir := t.TempDir()
	backend := LocalBackend{}

	exists, err := backend.Exists(filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.False(t, exists)

	present := filepath.Join(dir, "present")
	require.NoError(t, os.WriteFile(present, []byte("x"), 0644))
	exists, err = backend.Exists(present)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestLocalMakeDirs(t *testing.T) {
	dir := t.TempDir()
	backend := LocalBackend{}
	nested := filepath.Join(dir, "a", "b", "c")
	require.NoError(t, backend.MakeDirs(nested))
	stat, err := os.Stat(nested)
	require.NoError(t, err)
	assert.True(t, stat.IsDir())
	// Idempotent on an existing directory.
	assert.NoError(t, backend.MakeDirs(nested))
}

func TestLocalCopy(t *testing.T) {
	dir := t.TempDir()
	backend := LocalBackend{}
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	require.NoError(t, os.WriteFile(src, []byte("payload"), 0644))

	require.NoError(t, backend.Copy(src, dst, false))
	copied, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(copied))

	// Refuses to clobber without overwrite, replaces with it.
	assert.Error(t, backend.Copy(src, dst, false))
	require.NoError(t, os.WriteFile(src, []byte("updated"), 0644))
	require.NoError(t, backend.Copy(src, dst, true))
	copied, err = os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "updated", string(copied))
}

func TestLocalRenameSameDir(t *testing.T) {
	dir := t.TempDir()
	backend := LocalBackend{}
	src := filepath.Join(dir, "tok.rntmp")
	dst := filepath.Join(dir, "tok")
	require.NoError(t, os.WriteFile(src, []byte("model"), 0644))

	require.NoError(t, backend.Rename(src, dst, true))
	renamed, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "model", string(renamed))
	_, statErr := os.Stat(src)
	assert.True(t, os.IsNotExist(statErr))
}

func TestLocalRenameAcrossDirs(t *testing.T) {
	dir := t.TempDir()
	backend := LocalBackend{}
	srcDir := filepath.Join(dir, "staging")
	dstDir := filepath.Join(dir, "final")
	require.NoError(t, os.MkdirAll(srcDir, 0755))
	require.NoError(t, os.MkdirAll(dstDir, 0755))
	src := filepath.Join(srcDir, "tok.rntmp")
	dst := filepath.Join(dstDir, "tok")
	require.NoError(t, os.WriteFile(src, []byte("model"), 0644))

	require.NoError(t, backend.Rename(src, dst, true))
	renamed, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "model", string(renamed))
	_, statErr := os.Stat(src)
	assert.True(t, os.IsNotExist(statErr))
}

func TestLocalRenameCleansUpStagingOnFailure(t *testing.T) {
	dir := t.TempDir()
	backend := LocalBackend{}
	srcDir := filepath.Join(dir, "staging")
	require.NoError(t, os.MkdirAll(srcDir, 0755))
	src := filepath.Join(srcDir, "tok.rntmp")
	require.NoError(t, os.WriteFile(src, []byte("model"), 0644))

	// A non-empty directory at the destination makes the final rename
	// step fail after the intermediate copy has happened.
	dst := filepath.Join(dir, "tok")
	require.NoError(t, os.MkdirAll(dst, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dst, "occupant"),
		[]byte("x"), 0644))

	assert.Error(t, backend.Rename(src, dst, true))
	_, statErr := os.Stat(dst + ".staging")
	assert.True(t, os.IsNotExist(statErr))
	// The source is untouched on failure.
	content, err := os.ReadFile(src)
	require.NoError(t, err)
	assert.Equal(t, "model", string(content))
}

func TestLocalRenameNoOverwrite(t *testing.T) {
	dir := t.TempDir()
	backend := LocalBackend{}
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	require.NoError(t, os.WriteFile(src, []byte("new"), 0644))
	require.NoError(t, os.WriteFile(dst, []byte("old"), 0644))

	assert.Error(t, backend.Rename(src, dst, false))
	require.NoError(t, backend.Rename(src, dst, true))
	content, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "new", string(content))
}
