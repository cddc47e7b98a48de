package dependency

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sha(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func tarGz(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, content := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     name,
			Mode:     0o644,
			Size:     int64(len(content)),
			Typeflag: tar.TypeReg,
		}))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

// countingSource serves fixed bytes and counts fetches.
type countingSource struct {
	data   []byte
	calls  atomic.Int64
	unpack Unpacker
}

func (s *countingSource) Fetch(_ context.Context, w io.Writer) error {
	s.calls.Add(1)
	_, err := w.Write(s.data)
	return err
}

func (s *countingSource) Unpacker() Unpacker { return s.unpack }
func (s *countingSource) Describe() string   { return "counting" }

func TestLocalPathFetchesOnceAndVersionsByHash(t *testing.T) {
	dir := t.TempDir()
	src := &countingSource{data: []byte("hello")}
	h := NewFromSourceHelper(dir, map[string]Source{"greeting": src}, nil)
	ctx := context.Background()

	path, err := h.LocalPath(ctx, "greeting")
	require.NoError(t, err)
	again, err := h.LocalPath(ctx, "greeting")
	require.NoError(t, err)

	assert.Equal(t, path, again)
	assert.Equal(t, filepath.Join(dir, "greeting", sha([]byte("hello"))), path)
	assert.Equal(t, int64(1), src.calls.Load())
	assert.Equal(t, map[string]string{"greeting": sha([]byte("hello"))}, h.VersionsUsed())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestLocalPathReusesStoredVersionAcrossHelpers(t *testing.T) {
	dir := t.TempDir()
	first := &countingSource{data: []byte("v1")}
	_, err := NewFromSourceHelper(dir, map[string]Source{"d": first}, nil).LocalPath(context.Background(), "d")
	require.NoError(t, err)

	// The upstream data changed, but the stored version is reused.
	second := &countingSource{data: []byte("v2")}
	h := NewFromSourceHelper(dir, map[string]Source{"d": second}, nil)
	_, err = h.LocalPath(context.Background(), "d")
	require.NoError(t, err)

	assert.Equal(t, int64(0), second.calls.Load())
	assert.Equal(t, sha([]byte("v1")), h.VersionsUsed()["d"])
}

func TestLocalPathRequiredVersion(t *testing.T) {
	dir := t.TempDir()
	src := &countingSource{data: []byte("pinned")}
	_, err := NewFromSourceHelper(dir, map[string]Source{"d": src}, nil).LocalPath(context.Background(), "d")
	require.NoError(t, err)

	h := NewFromSourceHelper(dir, map[string]Source{"d": src}, map[string]string{"d": sha([]byte("pinned"))})
	_, err = h.LocalPath(context.Background(), "d")
	require.NoError(t, err)

	h = NewFromSourceHelper(dir, map[string]Source{"d": src}, map[string]string{"d": "missing"})
	_, err = h.LocalPath(context.Background(), "d")
	assert.Error(t, err)
	assert.Empty(t, h.VersionsUsed())
}

func TestLocalPathUnknownDependency(t *testing.T) {
	h := NewFromSourceHelper(t.TempDir(), nil, nil)
	_, err := h.LocalPath(context.Background(), "nope")
	assert.Error(t, err)
}

func TestLocalPathUnpacksTarGz(t *testing.T) {
	archive := tarGz(t, map[string]string{
		"questions.txt": "What is 1+1?\n",
		"answers.txt":   "2\n",
	})
	src := &countingSource{data: archive, unpack: TarUnpacker{}}
	h := NewFromSourceHelper(t.TempDir(), map[string]Source{"qa": src}, nil)

	path, err := h.LocalPath(context.Background(), "qa")
	require.NoError(t, err)
	assert.Equal(t, unpackedSuffix, filepath.Ext(path))

	data, err := os.ReadFile(filepath.Join(path, "answers.txt"))
	require.NoError(t, err)
	assert.Equal(t, "2\n", string(data))
}

func TestWebDataFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/data.txt" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("remote"))
	}))
	defer srv.Close()

	h := NewFromSourceHelper(t.TempDir(), map[string]Source{
		"ok":      WebData{URL: srv.URL + "/data.txt"},
		"missing": WebData{URL: srv.URL + "/nope"},
	}, nil)

	path, err := h.LocalPath(context.Background(), "ok")
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "remote", string(data))

	_, err = h.LocalPath(context.Background(), "missing")
	assert.Error(t, err)
}

func TestFSDataAndLocalData(t *testing.T) {
	local := filepath.Join(t.TempDir(), "local.txt")
	require.NoError(t, os.WriteFile(local, []byte("on disk"), 0o644))

	h := NewFromSourceHelper(t.TempDir(), map[string]Source{
		"embedded": FSData{FS: fstest.MapFS{"a.txt": {Data: []byte("in fs")}}, Path: "a.txt"},
		"local":    LocalData{Path: local},
	}, nil)

	for name, want := range map[string]string{"embedded": "in fs", "local": "on disk"} {
		path, err := h.LocalPath(context.Background(), name)
		require.NoError(t, err)
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, want, string(data))
	}
	assert.Len(t, h.VersionsUsed(), 2)
}

func TestZipUnpacker(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("nested/file.txt")
	require.NoError(t, err)
	_, err = w.Write([]byte("zipped"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	archive := filepath.Join(t.TempDir(), "a.zip")
	require.NoError(t, os.WriteFile(archive, buf.Bytes(), 0o644))
	dest := t.TempDir()
	require.NoError(t, ZipUnpacker{}.Unpack(archive, dest))

	data, err := os.ReadFile(filepath.Join(dest, "nested", "file.txt"))
	require.NoError(t, err)
	assert.Equal(t, "zipped", string(data))
}

func TestGzipUnpacker(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte("plain"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())

	archive := filepath.Join(t.TempDir(), "a.gz")
	require.NoError(t, os.WriteFile(archive, buf.Bytes(), 0o644))
	dest := t.TempDir()
	require.NoError(t, GzipUnpacker{Name: "out.txt"}.Unpack(archive, dest))

	data, err := os.ReadFile(filepath.Join(dest, "out.txt"))
	require.NoError(t, err)
	assert.Equal(t, "plain", string(data))
}

func TestTarUnpackerRejectsEscapingEntries(t *testing.T) {
	archive := filepath.Join(t.TempDir(), "evil.tar.gz")
	require.NoError(t, os.WriteFile(archive, tarGz(t, map[string]string{"../evil.txt": "x"}), 0o644))

	err := TarUnpacker{}.Unpack(archive, t.TempDir())
	assert.ErrorContains(t, err, "escapes destination")
}
