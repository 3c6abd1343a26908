package poster

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"posterpro/common"
)

// Cleaner removes request files from the upload directory
type Cleaner struct {
	Dir             string
	Enabled         bool
	KeepFinalOutput bool
	log             zerolog.Logger
}

func NewCleaner(dir string, enabled, keepFinal bool, logger zerolog.Logger) *Cleaner {
	return &Cleaner{
		Dir:             dir,
		Enabled:         enabled,
		KeepFinalOutput: keepFinal,
		log:             logger.With().Str("component", "cleanup").Logger(),
	}
}

// IsFinalOutput reports whether path is a generated poster
func IsFinalOutput(path string) bool {
	return common.HasExt(path, ".pptx") && strings.Contains(filepath.Base(path), "_academic_")
}

// Remove deletes paths when cleanup is enabled. Generated posters are kept
// when keepFinal is set.
func (c *Cleaner) Remove(paths []string, keepFinal bool) int {
	if !c.Enabled {
		return 0
	}
	removed := 0
	for _, p := range paths {
		if p == "" {
			continue
		}
		if keepFinal && IsFinalOutput(p) {
			c.log.Debug().Str("file", filepath.Base(p)).Msg("keeping final output")
			continue
		}
		if err := os.Remove(p); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				c.log.Warn().Err(err).Str("file", p).Msg("could not delete file")
			}
			continue
		}
		removed++
		c.log.Debug().Str("file", filepath.Base(p)).Msg("cleaned up")
	}
	return removed
}

// CleanupResult reports a sweep of the upload directory
type CleanupResult struct {
	FilesBefore  int `json:"files_before"`
	FilesAfter   int `json:"files_after"`
	FilesRemoved int `json:"files_removed"`
}

// CleanupStatus describes the upload directory
type CleanupStatus struct {
	AutoCleanup     bool     `json:"auto_cleanup_enabled"`
	KeepFinalOutput bool     `json:"keep_final_output"`
	FilesCount      int      `json:"files_count"`
	TotalSizeMB     float64  `json:"total_size_mb"`
	Files           []string `json:"files"`
}

func (c *Cleaner) files() ([]os.FileInfo, error) {
	entries, err := os.ReadDir(c.Dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, common.IOError("read upload dir", err)
	}
	var out []os.FileInfo
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if fi, err := e.Info(); err == nil {
			out = append(out, fi)
		}
	}
	return out, nil
}

// Sweep deletes upload files last modified before the start of the day
// days-1 days ago, so days=1 removes everything older than today.
// Nothing is removed when cleanup is disabled.
func (c *Cleaner) Sweep(days int, now time.Time) (*CleanupResult, error) {
	files, err := c.files()
	if err != nil {
		return nil, err
	}
	res := &CleanupResult{FilesBefore: len(files), FilesAfter: len(files)}
	if !c.Enabled {
		return res, nil
	}
	if days < 1 {
		days = 1
	}
	y, m, d := now.Date()
	cutoff := time.Date(y, m, d, 0, 0, 0, 0, now.Location()).AddDate(0, 0, -(days - 1))

	for _, fi := range files {
		if !fi.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(c.Dir, fi.Name())); err != nil {
			c.log.Warn().Err(err).Str("file", fi.Name()).Msg("could not delete old file")
			continue
		}
		res.FilesRemoved++
	}
	res.FilesAfter = res.FilesBefore - res.FilesRemoved
	c.log.Info().Int("removed", res.FilesRemoved).Time("cutoff", cutoff).Msg("upload sweep finished")
	return res, nil
}

// Status lists at most ten upload files with the directory totals
func (c *Cleaner) Status() (*CleanupStatus, error) {
	files, err := c.files()
	if err != nil {
		return nil, err
	}
	st := &CleanupStatus{
		AutoCleanup:     c.Enabled,
		KeepFinalOutput: c.KeepFinalOutput,
		FilesCount:      len(files),
		Files:           []string{},
	}
	var total int64
	names := make([]string, 0, len(files))
	for _, fi := range files {
		total += fi.Size()
		names = append(names, fi.Name())
	}
	sort.Strings(names)
	if len(names) > 10 {
		names = names[:10]
	}
	st.Files = append(st.Files, names...)
	st.TotalSizeMB = math.Round(float64(total)/(1024*1024)*100) / 100
	return st, nil
}
