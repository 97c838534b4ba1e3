package scrub

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/pdfscrub/internal/pdftest"
	"github.com/wudi/pdfscrub/observability"
)

func TestOutputPath(t *testing.T) {
	cases := map[string]string{
		"a/report.pdf": "a/report.clean.pdf",
		"a/report.PDF": "a/report.clean.PDF",
		"report":       "report.clean.pdf",
		"x.y.pdf":      "x.y.clean.pdf",
	}
	for in, want := range cases {
		assert.Equal(t, filepath.FromSlash(want), OutputPath(filepath.FromSlash(in), DefaultSuffix), in)
	}
}

func TestRedactFiles(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.pdf")
	bad := filepath.Join(dir, "bad.pdf")
	missing := filepath.Join(dir, "missing.pdf")
	require.NoError(t, os.WriteFile(good, annotatedPDF(), 0o644))
	require.NoError(t, os.WriteFile(bad, []byte("garbage"), 0o644))

	var logs bytes.Buffer
	logger := observability.NewSlogLogger(slog.New(slog.NewTextHandler(&logs, nil)))
	s := New(Options{Logger: logger})

	results, err := s.RedactFiles(context.Background(), []string{good, bad, missing}, BatchOptions{Workers: 2})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.NoError(t, results[0].Err)
	assert.Equal(t, filepath.Join(dir, "good.clean.pdf"), results[0].Output)
	written, err := os.ReadFile(results[0].Output)
	require.NoError(t, err)
	assert.Equal(t, results[0].Result.Output, written)

	var decErr *DecodeError
	assert.ErrorAs(t, results[1].Err, &decErr)
	assert.NoFileExists(t, filepath.Join(dir, "bad.clean.pdf"))
	assert.ErrorIs(t, results[2].Err, os.ErrNotExist)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 3, "no temporary files may remain")

	assert.Contains(t, logs.String(), "redacted")
	assert.Contains(t, logs.String(), "redaction failed")
}

func TestRedactFilesDryRun(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "doc.pdf")
	require.NoError(t, os.WriteFile(in, annotatedPDF(), 0o644))

	results, err := New(Options{}).RedactFiles(context.Background(), []string{in}, BatchOptions{DryRun: true, Suffix: "-x"})
	require.NoError(t, err)
	require.NoError(t, results[0].Err)
	assert.NotEmpty(t, results[0].Result.Deletions)
	assert.Equal(t, filepath.Join(dir, "doc-x.pdf"), results[0].Output)
	assert.NoFileExists(t, results[0].Output)
}

func TestRedactFilesCancelled(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "doc.pdf")
	require.NoError(t, os.WriteFile(in, annotatedPDF(), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	results, err := New(Options{}).RedactFiles(ctx, []string{in}, BatchOptions{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, results[0].Err, context.Canceled)
	assert.NoFileExists(t, filepath.Join(dir, "doc.clean.pdf"))
}

func TestWriteAtomicFailureLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "sub")
	require.NoError(t, os.Mkdir(target, 0o755))
	// Renaming a file over a directory fails.
	require.Error(t, writeAtomic(target, []byte("data")))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestRedactFilesSurvivesHostileInput(t *testing.T) {
	dir := t.TempDir()
	hostile := filepath.Join(dir, "hostile.pdf")
	good := filepath.Join(dir, "good.pdf")
	b := pdftest.New().
		Object(1, "<< /Type /Catalog /Pages 2 0 R >>").
		Compressed(5, 2, "<< /Type /Pages /Count 0 >>").
		Trailer("/Root 1 0 R /Size 4611686018427387904")
	b.XRefStream = true
	data := bytes.Replace(b.Bytes(), []byte("/Type /ObjStm /N 1"), []byte("/Type/ObjStm/N 999"), 1)
	require.NoError(t, os.WriteFile(hostile, data, 0o644))
	require.NoError(t, os.WriteFile(good, annotatedPDF(), 0o644))

	results, err := New(Options{Strict: true}).RedactFiles(context.Background(), []string{hostile, good}, BatchOptions{Workers: 2})
	require.NoError(t, err)
	var decErr *DecodeError
	assert.ErrorAs(t, results[0].Err, &decErr)
	assert.NoError(t, results[1].Err)
	assert.FileExists(t, filepath.Join(dir, "good.clean.pdf"))
}
