// Package converter turns office documents into PDF with a headless LibreOffice.
package converter

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ErrUnavailable is returned when the LibreOffice binary cannot be found.
var ErrUnavailable = errors.New("libreoffice not available")

// LibreOffice runs one soffice process per conversion, bounded by maxWorkers.
type LibreOffice struct {
	binary    string
	timeout   time.Duration
	semaphore chan struct{}
}

func NewLibreOffice(binary string, maxWorkers int, timeout time.Duration) *LibreOffice {
	if binary == "" {
		binary = "libreoffice"
	}
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	if timeout <= 0 {
		timeout = 180 * time.Second
	}
	return &LibreOffice{binary: binary, timeout: timeout, semaphore: make(chan struct{}, maxWorkers)}
}

// Available reports whether the binary is on PATH (or is an existing path).
func (l *LibreOffice) Available() bool {
	_, err := exec.LookPath(l.binary)
	return err == nil
}

// ToPDF converts data (named name, used for the extension) and returns the PDF bytes.
func (l *LibreOffice) ToPDF(ctx context.Context, data []byte, name string) ([]byte, error) {
	if !l.Available() {
		return nil, ErrUnavailable
	}

	select {
	case l.semaphore <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-l.semaphore }()

	startTime := time.Now()
	workDir := filepath.Join(os.TempDir(), WorkDirPrefix+uuid.NewString())
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	ext := strings.ToLower(filepath.Ext(name))
	input := filepath.Join(workDir, "input"+ext)
	if err := os.WriteFile(input, data, 0o600); err != nil {
		return nil, fmt.Errorf("write input: %w", err)
	}
	profileDir := filepath.Join(workDir, "profile")

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, l.binary,
		fmt.Sprintf("-env:UserInstallation=file://%s", profileDir),
		"--headless",
		"--convert-to", "pdf",
		"--outdir", workDir,
		input,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("conversion timeout after %v", l.timeout)
		}
		return nil, fmt.Errorf("conversion failed: %w: %s", err, strings.TrimSpace(string(out)))
	}

	pdf, err := os.ReadFile(filepath.Join(workDir, "input.pdf"))
	if err != nil {
		return nil, fmt.Errorf("output file not created: %w", err)
	}
	log.Info().Str("file", name).Dur("duration", time.Since(startTime)).Msg("conversion successful")
	return pdf, nil
}
