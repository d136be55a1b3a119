package downloader

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sharefetch/internal"
)

// brokenReader returns data then fails
type brokenReader struct {
	data []byte
	err  error
	done bool
}

func (b *brokenReader) Read(p []byte) (int, error) {
	if b.done {
		return 0, b.err
	}
	b.done = true
	return copy(p, b.data), nil
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestDiskSaver_Save(t *testing.T) {
	dir := t.TempDir()
	saver := NewDiskSaver(dir, true)

	err := saver.Save(context.Background(), "report.pdf", strings.NewReader("hello"), 5)
	require.NoError(t, err)

	got, err := os.ReadFile(filepath.Join(dir, "report.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
	assert.Equal(t, filepath.Join(dir, "report.pdf"), saver.LastSaved())
	assert.Equal(t, []string{"report.pdf"}, listDir(t, dir))
}

func TestDiskSaver_UnknownSize(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, NewDiskSaver(dir, true).Save(context.Background(), "a.bin", strings.NewReader("abc"), -1))

	got, err := os.ReadFile(filepath.Join(dir, "a.bin"))
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}

func TestDiskSaver_NameCollisions(t *testing.T) {
	dir := t.TempDir()
	saver := NewDiskSaver(dir, true)

	for i := 0; i < 3; i++ {
		require.NoError(t, saver.Save(context.Background(), "report.pdf", strings.NewReader("x"), 1))
	}
	assert.ElementsMatch(t, []string{"report.pdf", "report (1).pdf", "report (2).pdf"}, listDir(t, dir))
}

func TestDiskSaver_ConcurrentSaves(t *testing.T) {
	dir := t.TempDir()
	saver := NewDiskSaver(dir, true)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, saver.Save(context.Background(), "same.txt", strings.NewReader("data"), 4))
		}()
	}
	wg.Wait()

	assert.Len(t, listDir(t, dir), 8)
}

func TestDiskSaver_UnsafeNames(t *testing.T) {
	tests := map[string]string{
		"../../etc/passwd":   "passwd",
		`..\..\boot.ini`:     "boot.ini",
		"/abs/path/file.txt": "file.txt",
		"..":                 "file",
		"":                   "file",
		"tab\tname.txt":      "tabname.txt",
	}

	for in, want := range tests {
		t.Run(want, func(t *testing.T) {
			dir := t.TempDir()
			require.NoError(t, NewDiskSaver(dir, true).Save(context.Background(), in, strings.NewReader("x"), 1))
			assert.Equal(t, []string{want}, listDir(t, dir))
		})
	}
}

func TestDiskSaver_StreamFailureLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	streamErr := internal.NewConnectionError(0, "download", errors.New("connection reset"))

	err := NewDiskSaver(dir, true).Save(context.Background(), "big.iso", &brokenReader{data: []byte("partial"), err: streamErr}, 100)
	require.Error(t, err)
	assert.True(t, internal.IsErrorType(err, internal.ErrConnection))
	assert.Empty(t, listDir(t, dir))
}

func TestDiskSaver_ShortBody(t *testing.T) {
	dir := t.TempDir()

	err := NewDiskSaver(dir, true).Save(context.Background(), "short.bin", strings.NewReader("abc"), 10)
	require.Error(t, err)
	assert.True(t, internal.IsErrorType(err, internal.ErrConnection))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Empty(t, listDir(t, dir))
}

func TestDiskSaver_Cancelled(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewDiskSaver(dir, true).Save(ctx, "x.bin", strings.NewReader("abc"), 3)
	require.Error(t, err)
	assert.True(t, internal.IsErrorType(err, internal.ErrConnection))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, listDir(t, dir))
}

func TestDiskSaver_LocalFailure(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	done := make(chan error, 1)
	go func() {
		done <- NewDiskSaver(blocker, true).Save(context.Background(), "a.txt", strings.NewReader("abc"), 3)
	}()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.True(t, internal.IsErrorType(err, internal.ErrSaveFailed))
		assert.ErrorIs(t, err, syscall.ENOTDIR)
	case <-time.After(5 * time.Second):
		t.Fatal("Save did not return for an output directory that is a regular file")
	}
	assert.Equal(t, []string{"not-a-dir"}, listDir(t, dir))
}

func TestDiskSaver_ProgressOutput(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer

	saver := NewDiskSaver(dir, false).WithProgressOutput(&out).WithRateLimit(1 << 20)
	require.NoError(t, saver.Save(context.Background(), "p.txt", strings.NewReader("progress"), 8))

	assert.Contains(t, out.String(), "Saved to: "+filepath.Join(dir, "p.txt"))
	assert.Contains(t, out.String(), "Total size: 8 Bytes")
}
