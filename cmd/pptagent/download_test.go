package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/pptagent/config"
)

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

type assetServer struct {
	*httptest.Server
	hits atomic.Int32
}

func newAssetServer(t *testing.T, files map[string][]byte) *assetServer {
	t.Helper()
	s := &assetServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		data, ok := files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(data)
	}))
	t.Cleanup(s.Close)
	return s
}

func newTestDownloader(dir string) *assetDownloader {
	return newAssetDownloader(config.AssetsConfig{
		Dir:         dir,
		Concurrency: 2,
		Timeout:     5 * time.Second,
	}, &http.Client{}, zap.NewNop())
}

func TestDownloadAll_FetchesAndVerifies(t *testing.T) {
	persona := []byte("You are Dia, a friendly presenter.")
	logo := []byte{0x89, 'P', 'N', 'G'}
	srv := newAssetServer(t, map[string][]byte{
		"/persona.txt":  persona,
		"/img/logo.png": logo,
	})
	dir := t.TempDir()
	d := newTestDownloader(dir)

	files := []config.AssetFile{
		{URL: srv.URL + "/persona.txt", SHA256: sha256Hex(persona)},
		{URL: srv.URL + "/img/logo.png", Path: "brand/logo.png"},
	}
	results, err := d.DownloadAll(context.Background(), files)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, filepath.Join(dir, "persona.txt"), results[0].Path)
	assert.Equal(t, assetDownloaded, results[0].Status)
	assert.Equal(t, filepath.Join(dir, "brand", "logo.png"), results[1].Path)

	got, err := os.ReadFile(filepath.Join(dir, "brand", "logo.png"))
	require.NoError(t, err)
	assert.Equal(t, logo, got)
}

func TestDownloadAll_SkipsVerifiedFiles(t *testing.T) {
	data := []byte("cached content")
	srv := newAssetServer(t, map[string][]byte{"/a.bin": data})
	dir := t.TempDir()
	d := newTestDownloader(dir)
	files := []config.AssetFile{{URL: srv.URL + "/a.bin", SHA256: sha256Hex(data)}}

	_, err := d.DownloadAll(context.Background(), files)
	require.NoError(t, err)
	results, err := d.DownloadAll(context.Background(), files)
	require.NoError(t, err)

	assert.Equal(t, assetCached, results[0].Status)
	assert.Equal(t, int32(1), srv.hits.Load())
}

func TestDownloadAll_ChecksumMismatchLeavesNoFile(t *testing.T) {
	srv := newAssetServer(t, map[string][]byte{"/model.bin": []byte("tampered")})
	dir := t.TempDir()
	d := newTestDownloader(dir)

	_, err := d.DownloadAll(context.Background(), []config.AssetFile{
		{URL: srv.URL + "/model.bin", SHA256: sha256Hex([]byte("original"))},
	})
	require.ErrorIs(t, err, ErrChecksumMismatch)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDownloadAll_Errors(t *testing.T) {
	srv := newAssetServer(t, map[string][]byte{})
	d := newTestDownloader(t.TempDir())

	_, err := d.DownloadAll(context.Background(), []config.AssetFile{{URL: srv.URL + "/missing.bin"}})
	assert.ErrorContains(t, err, "unexpected status 404")

	_, err = d.DownloadAll(context.Background(), []config.AssetFile{{URL: srv.URL + "/x", Path: "../escape.bin"}})
	assert.ErrorContains(t, err, "invalid asset path")
}

func TestDownloadAll_NoFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "never-created")
	results, err := newTestDownloader(dir).DownloadAll(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.NoDirExists(t, dir)
}
