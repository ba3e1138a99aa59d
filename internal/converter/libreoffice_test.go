package converter

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fakeSoffice = `#!/bin/sh
out=""
in=""
while [ $# -gt 0 ]; do
  case "$1" in
    --outdir) out="$2"; shift ;;
  esac
  in="$1"
  shift
done
base=$(basename "$in")
printf '%%PDF-1.4 converted' > "$out/${base%.*}.pdf"
`

func writeScript(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "soffice")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o755))
	return p
}

func TestToPDF(t *testing.T) {
	lo := NewLibreOffice(writeScript(t, fakeSoffice), 1, 5*time.Second)
	require.True(t, lo.Available())

	pdf, err := lo.ToPDF(context.Background(), []byte("PK fake docx"), "Week 2.docx")
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 converted", string(pdf))
}

func TestToPDFFailure(t *testing.T) {
	lo := NewLibreOffice(writeScript(t, "#!/bin/sh\necho boom >&2\nexit 3\n"), 1, 5*time.Second)
	_, err := lo.ToPDF(context.Background(), []byte("x"), "a.doc")
	assert.ErrorContains(t, err, "boom")
}

func TestToPDFUnavailable(t *testing.T) {
	lo := NewLibreOffice(filepath.Join(t.TempDir(), "missing-soffice"), 1, time.Second)
	_, err := lo.ToPDF(context.Background(), []byte("x"), "a.doc")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestCleanupTemps(t *testing.T) {
	dir := t.TempDir()
	old := time.Now().Add(-2 * time.Hour)

	staleDir := filepath.Join(dir, WorkDirPrefix+"stale")
	require.NoError(t, os.MkdirAll(filepath.Join(staleDir, "profile"), 0o755))
	require.NoError(t, os.Chtimes(staleDir, old, old))

	staleFile := filepath.Join(dir, "quizdoc-1.pdf")
	require.NoError(t, os.WriteFile(staleFile, []byte("%PDF"), 0o600))
	require.NoError(t, os.Chtimes(staleFile, old, old))

	fresh := filepath.Join(dir, WorkDirPrefix+"fresh")
	require.NoError(t, os.MkdirAll(fresh, 0o755))

	other := filepath.Join(dir, "unrelated.pdf")
	require.NoError(t, os.WriteFile(other, []byte("x"), 0o600))
	require.NoError(t, os.Chtimes(other, old, old))

	assert.Equal(t, 2, CleanupTemps(dir, time.Hour, WorkDirPrefix, "quizdoc-"))
	assert.NoDirExists(t, staleDir)
	assert.NoFileExists(t, staleFile)
	assert.DirExists(t, fresh)
	assert.FileExists(t, other)
}
