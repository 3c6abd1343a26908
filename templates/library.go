// Package templates manages the poster template library: the tiered
// folders of .pptx files, their previews, per-template font styles and
// the shape inventory of each template.
package templates

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"unicode"

	"posterpro/common"
)

// Tier is the library folder a template lives in
type Tier string

const (
	TierAvailable  Tier = "available"
	TierComingSoon Tier = "coming_soon"
	TierPremium    Tier = "premium"
)

// Tiers lists the library folders in search order
var Tiers = []Tier{TierAvailable, TierComingSoon, TierPremium}

// ArchiveDirName is created next to the library root
const ArchiveDirName = "Template Archive"

var previewExts = []string{".png", ".jpg", ".jpeg"}

// ParseTier accepts a tier name, defaulting to available
func ParseTier(s string) (Tier, error) {
	if s == "" {
		return TierAvailable, nil
	}
	for _, t := range Tiers {
		if strings.EqualFold(string(t), s) {
			return t, nil
		}
	}
	return "", common.ValidationError(fmt.Sprintf("unknown template tier %q", s), common.ErrInvalidUpload)
}

// Info describes one template in the library
type Info struct {
	Filename     string  `json:"filename"`
	Name         string  `json:"name"`
	Tier         Tier    `json:"folder"`
	Size         int64   `json:"size"`
	SizeMB       float64 `json:"size_mb"`
	Preview      string  `json:"preview,omitempty"`
	IsPremium    bool    `json:"is_premium"`
	IsComingSoon bool    `json:"is_coming_soon"`
	IsNew        bool    `json:"is_new"`
	HasStyle     bool    `json:"has_style"`
}

// Library is a folder-tiered template store
type Library struct {
	Root            string
	DefaultTemplate string

	catalog   *Catalog
	inventory *Inventory
	mu        sync.RWMutex
}

func NewLibrary(root, defaultTemplate string, catalog *Catalog, inventory *Inventory) *Library {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	if inventory == nil {
		inventory = NewInventory(DefaultInventorySize)
	}
	return &Library{
		Root:            root,
		DefaultTemplate: defaultTemplate,
		catalog:         catalog,
		inventory:       inventory,
	}
}

// Catalog returns the style and description catalog
func (l *Library) Catalog() *Catalog {
	return l.catalog
}

// Init creates the tier folders
func (l *Library) Init() error {
	for _, t := range Tiers {
		if err := os.MkdirAll(filepath.Join(l.Root, string(t)), 0755); err != nil {
			return common.IOError("create template library", err)
		}
	}
	return nil
}

// DisplayName turns "blue_template" into "Blue Template". Every letter
// that follows a non-letter is upper-cased, the rest lower-cased.
func DisplayName(base string) string {
	words := strings.Fields(strings.ReplaceAll(base, "_", " "))
	var sb strings.Builder
	for i, w := range words {
		if i > 0 {
			sb.WriteByte(' ')
		}
		prevLetter := false
		for _, r := range w {
			if unicode.IsLetter(r) {
				if prevLetter {
					r = unicode.ToLower(r)
				} else {
					r = unicode.ToUpper(r)
				}
			}
			prevLetter = unicode.IsLetter(r)
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// cleanName rejects names that would escape a library folder
func cleanName(filename string) (string, error) {
	name := common.SanitizeFilename(filename)
	if name == "" || name != filename {
		return "", common.ValidationError(fmt.Sprintf("invalid template filename %q", filename), common.ErrInvalidUpload)
	}
	return name, nil
}

func (l *Library) tierDir(t Tier) string {
	return filepath.Join(l.Root, string(t))
}

// List returns every template in the library sorted by display name
func (l *Library) List() ([]Info, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Info
	for _, tier := range Tiers {
		entries, err := os.ReadDir(l.tierDir(tier))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, common.IOError("read template library", err)
		}
		for _, e := range entries {
			if e.IsDir() || !common.HasExt(e.Name(), ".pptx") {
				continue
			}
			fi, err := e.Info()
			if err != nil {
				continue
			}
			out = append(out, l.info(tier, e.Name(), fi.Size()))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Filename < out[j].Filename
	})
	return out, nil
}

func (l *Library) info(tier Tier, filename string, size int64) Info {
	base := strings.TrimSuffix(filename, filepath.Ext(filename))
	name := DisplayName(base)
	return Info{
		Filename:     filename,
		Name:         name,
		Tier:         tier,
		Size:         size,
		SizeMB:       math.Round(float64(size)/(1024*1024)*100) / 100,
		Preview:      l.previewName(tier, base),
		IsPremium:    tier == TierPremium || l.catalog.IsPremium(name),
		IsComingSoon: tier == TierComingSoon || l.catalog.IsComingSoon(name),
		IsNew:        l.catalog.IsNew(name),
		HasStyle:     l.catalog.HasStyle(name),
	}
}

// previewName prefers a manual preview over the generated one
func (l *Library) previewName(tier Tier, base string) string {
	dir := l.tierDir(tier)
	for _, ext := range previewExts {
		candidate := base + "_manual_preview" + ext
		if fileExists(filepath.Join(dir, candidate)) {
			return candidate
		}
	}
	if candidate := base + "_preview.png"; fileExists(filepath.Join(dir, candidate)) {
		return candidate
	}
	return ""
}

func fileExists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && !fi.IsDir()
}

// Find returns the path and tier of a template, searching tiers in order
func (l *Library) Find(filename string) (string, Tier, error) {
	name, err := cleanName(filename)
	if err != nil {
		return "", "", err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, tier := range Tiers {
		path := filepath.Join(l.tierDir(tier), name)
		if fileExists(path) {
			return path, tier, nil
		}
	}
	return "", "", common.TemplateError(fmt.Sprintf("template %q not found in library", filename), common.ErrTemplateNotFound)
}

// Resolve picks the template for a request. An empty or "default"
// selection uses the default template.
func (l *Library) Resolve(selected string) (string, error) {
	if selected == "" || selected == "default" {
		if !fileExists(l.DefaultTemplate) {
			return "", common.TemplateError("no template selected and default template not found", common.ErrTemplateNotFound)
		}
		return l.DefaultTemplate, nil
	}
	path, _, err := l.Find(selected)
	return path, err
}

// Save writes a template into a tier folder, replacing any file of the
// same name.
func (l *Library) Save(filename string, r io.Reader, tier Tier) (string, error) {
	name, err := cleanName(filename)
	if err != nil {
		return "", err
	}
	if !common.HasExt(name, ".pptx") {
		return "", common.ValidationError("template file must have .pptx extension", common.ErrInvalidUpload)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return name, writeFile(filepath.Join(l.tierDir(tier), name), r)
}

// SavePreview stores a manual preview next to the template
func (l *Library) SavePreview(templateName, previewFilename string, r io.Reader, tier Tier) (string, error) {
	ext := strings.ToLower(filepath.Ext(previewFilename))
	if !common.HasExt(ext, previewExts...) {
		return "", common.ValidationError("preview image must be PNG or JPG", common.ErrInvalidUpload)
	}
	name, err := cleanName(templateName)
	if err != nil {
		return "", err
	}
	preview := strings.TrimSuffix(name, filepath.Ext(name)) + "_manual_preview" + ext
	l.mu.Lock()
	defer l.mu.Unlock()
	return preview, writeFile(filepath.Join(l.tierDir(tier), preview), r)
}

func writeFile(path string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return common.IOError("create template folder", err)
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return common.IOError("create template file", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(tmp)
		return common.IOError("write template file", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return common.IOError("close template file", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return common.IOError("store template file", err)
	}
	return nil
}

// Archive moves a template and its previews to the archive folder and
// returns the names of the moved files.
func (l *Library) Archive(filename string) ([]string, error) {
	if filename == "default" {
		return nil, common.ValidationError("cannot delete default template", common.ErrInvalidUpload)
	}
	path, tier, err := l.Find(filename)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	archive := filepath.Join(filepath.Dir(filepath.Clean(l.Root)), ArchiveDirName)
	if err := os.MkdirAll(archive, 0755); err != nil {
		return nil, common.IOError("create archive folder", err)
	}
	if err := moveFile(path, filepath.Join(archive, filename)); err != nil {
		return nil, common.IOError("archive template", err)
	}
	moved := []string{filename}

	base := strings.TrimSuffix(filename, filepath.Ext(filename))
	for _, ext := range previewExts {
		for _, preview := range []string{base + "_preview" + ext, base + "_manual_preview" + ext} {
			src := filepath.Join(l.tierDir(tier), preview)
			if !fileExists(src) {
				continue
			}
			if err := moveFile(src, filepath.Join(archive, preview)); err != nil {
				common.Log.Warn().Err(err).Str("file", preview).Msg("failed to archive preview")
				continue
			}
			moved = append(moved, preview)
		}
	}
	l.inventory.Forget(path)
	common.Log.Info().Str("template", filename).Str("tier", string(tier)).Strs("files", moved).Msg("template archived")
	return moved, nil
}

// moveFile renames, copying across filesystems when rename cannot
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	if err := writeFile(dst, in); err != nil {
		return err
	}
	return os.Remove(src)
}

// Preview resolves a preview image path. filename may be the preview
// itself or the template whose manual preview is wanted.
func (l *Library) Preview(filename string) (string, error) {
	name, err := cleanName(filename)
	if err != nil {
		return "", err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	base := strings.TrimSuffix(name, filepath.Ext(name))
	for _, tier := range Tiers {
		dir := l.tierDir(tier)
		if common.HasExt(name, previewExts...) && fileExists(filepath.Join(dir, name)) {
			return filepath.Join(dir, name), nil
		}
		for _, ext := range previewExts {
			candidate := filepath.Join(dir, base+"_manual_preview"+ext)
			if fileExists(candidate) {
				return candidate, nil
			}
		}
	}
	return "", common.TemplateError("preview not found", common.ErrTemplateNotFound)
}

// Shapes lists the shape names of a library template's first slide
func (l *Library) Shapes(filename string) ([]string, error) {
	path, _, err := l.Find(filename)
	if err != nil {
		return nil, err
	}
	return l.inventory.Shapes(path)
}

// Inventory exposes the shape cache shared with the poster mapper
func (l *Library) Inventory() *Inventory {
	return l.inventory
}
