package common

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._ -]+`)

// SanitizeFilename strips directories and characters that are unsafe in a
// stored file name. It returns "" when nothing usable remains.
func SanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = unsafeName.ReplaceAllString(name, "_")
	name = strings.TrimSpace(name)
	if name == "." || name == ".." || strings.Trim(name, "._ ") == "" {
		return ""
	}
	return name
}

// PosterFileName builds <pdf base>_academic_<timestamp>.pptx
func PosterFileName(pdfName string, now time.Time) string {
	base := strings.TrimSuffix(filepath.Base(pdfName), filepath.Ext(pdfName))
	base = SanitizeFilename(base)
	if base == "" {
		base = "poster"
	}
	return base + "_academic_" + now.Format("20060102_150405") + ".pptx"
}

// HasExt reports whether name has one of the extensions, case-insensitively
func HasExt(name string, exts ...string) bool {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	for _, e := range exts {
		if ext == strings.TrimPrefix(strings.ToLower(e), ".") {
			return true
		}
	}
	return false
}

// MinImageBytes is the smallest figure upload accepted
const MinImageBytes = 1024

// ValidateImage checks a figure upload is between MinImageBytes and
// maxBytes and decodes as PNG or JPEG.
func ValidateImage(path string, maxBytes int64) error {
	fi, err := os.Stat(path)
	if err != nil {
		return IOError("stat image", err)
	}
	if fi.Size() < MinImageBytes {
		return ValidationError(fmt.Sprintf("Image file is too small (%d bytes). Minimum size is 1KB.", fi.Size()), ErrInvalidUpload)
	}
	if maxBytes > 0 && fi.Size() > maxBytes {
		return ValidationError(fmt.Sprintf("Image file is too large (%dMB). Maximum size is %dMB.", fi.Size()>>20, maxBytes>>20), ErrInvalidUpload)
	}
	f, err := os.Open(path)
	if err != nil {
		return IOError("open image", err)
	}
	defer f.Close()
	if _, format, err := image.DecodeConfig(f); err != nil || (format != "png" && format != "jpeg") {
		return ValidationError("Image must be a readable PNG or JPEG", ErrInvalidUpload)
	}
	return nil
}
