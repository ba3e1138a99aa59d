package converter

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// WorkDirPrefix names the per-conversion directories ToPDF creates.
const WorkDirPrefix = "quizconv_"

// CleanupTemps removes entries in dir whose name starts with one of prefixes and that are
// older than maxAge. Conversions killed mid-way leave these behind. It returns the number
// of entries removed.
func CleanupTemps(dir string, maxAge time.Duration, prefixes ...string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		log.Warn().Err(err).Str("dir", dir).Msg("temp cleanup skipped")
		return 0
	}
	now := time.Now()
	removed := 0
	for _, e := range entries {
		if !hasAnyPrefix(e.Name(), prefixes) {
			continue
		}
		info, err := e.Info()
		if err != nil || now.Sub(info.ModTime()) < maxAge {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err == nil {
			removed++
		}
	}
	if removed > 0 {
		log.Info().Int("removed", removed).Str("dir", dir).Msg("removed stale temp files")
	}
	return removed
}

func hasAnyPrefix(name string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}
