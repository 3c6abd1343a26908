package templates

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"posterpro/common"
	"posterpro/pptx"
)

const DefaultInventorySize = 64

type inventoryEntry struct {
	modTime time.Time
	size    int64
	names   []string
}

// Inventory caches the first-slide shape names of template files. An entry
// is stale once the file's modification time or size changes.
type Inventory struct {
	cache *lru.Cache[string, inventoryEntry]
}

func NewInventory(size int) *Inventory {
	if size <= 0 {
		size = DefaultInventorySize
	}
	cache, err := lru.New[string, inventoryEntry](size)
	if err != nil {
		// only fails for a non-positive size
		panic(err)
	}
	return &Inventory{cache: cache}
}

func inventoryKey(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}

// Shapes returns the shape names of the first slide of the template at path
func (inv *Inventory) Shapes(path string) ([]string, error) {
	fi, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, common.TemplateError("template file missing", common.ErrTemplateNotFound)
	}
	if err != nil {
		return nil, common.TemplateError("stat template", err)
	}
	key := inventoryKey(path)
	if e, ok := inv.cache.Get(key); ok && e.modTime.Equal(fi.ModTime()) && e.size == fi.Size() {
		return append([]string(nil), e.names...), nil
	}

	doc, err := pptx.Open(path)
	if err != nil {
		return nil, common.TemplateError("open template", err)
	}
	slide, err := doc.Slide(0)
	if err != nil {
		return nil, common.TemplateError("read template slide", err)
	}
	names := slide.ShapeNames()
	inv.cache.Add(key, inventoryEntry{modTime: fi.ModTime(), size: fi.Size(), names: names})
	return append([]string(nil), names...), nil
}

// Forget drops the cached entry for path
func (inv *Inventory) Forget(path string) {
	inv.cache.Remove(inventoryKey(path))
}

// Len is the number of cached templates
func (inv *Inventory) Len() int {
	return inv.cache.Len()
}
