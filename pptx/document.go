// Package pptx edits PowerPoint documents in place: finding named shapes,
// replacing their text, inserting pictures and sizing fonts to fit.
package pptx

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/beevik/etree"
)

const (
	relTypeImage = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/image"

	contentTypesPart = "[Content_Types].xml"
	presentationPart = "ppt/presentation.xml"
)

var ErrNoSlides = errors.New("presentation has no slides")

// Document is an opened .pptx package. Parts that were parsed are written
// back from their trees on Save; all other entries are copied unchanged.
type Document struct {
	names  []string
	data   map[string][]byte
	parsed map[string]*etree.Document
}

// Open reads a .pptx file
func Open(filename string) (*Document, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read presentation: %w", err)
	}
	return OpenBytes(data)
}

// OpenBytes reads a .pptx package held in memory
func OpenBytes(data []byte) (*Document, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open presentation: %w", err)
	}

	doc := &Document{
		data:   make(map[string][]byte, len(zr.File)),
		parsed: make(map[string]*etree.Document),
	}
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", f.Name, err)
		}
		b, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f.Name, err)
		}
		doc.names = append(doc.names, f.Name)
		doc.data[f.Name] = b
	}
	if _, ok := doc.data[contentTypesPart]; !ok {
		return nil, fmt.Errorf("open presentation: missing %s", contentTypesPart)
	}
	return doc, nil
}

// Has reports whether the package contains the named entry
func (d *Document) Has(name string) bool {
	_, ok := d.data[name]
	return ok
}

// Part returns the parsed XML tree of an entry, parsing it on first use
func (d *Document) Part(name string) (*etree.Document, error) {
	if n, ok := d.parsed[name]; ok {
		return n, nil
	}
	b, ok := d.data[name]
	if !ok {
		return nil, fmt.Errorf("part %s not found", name)
	}
	tree, err := parsePart(b)
	if err != nil {
		return nil, fmt.Errorf("part %s: %w", name, err)
	}
	d.parsed[name] = tree
	return tree, nil
}

// PutRaw adds or replaces a binary entry
func (d *Document) PutRaw(name string, data []byte) {
	if _, ok := d.data[name]; !ok {
		d.names = append(d.names, name)
	}
	d.data[name] = data
	delete(d.parsed, name)
}

// PutPart adds or replaces an XML entry
func (d *Document) PutPart(name string, tree *etree.Document) {
	if _, ok := d.data[name]; !ok {
		d.names = append(d.names, name)
		d.data[name] = nil
	}
	d.parsed[name] = tree
}

// Write serializes the package
func (d *Document) Write(w io.Writer) error {
	zw := zip.NewWriter(w)
	for _, name := range d.names {
		data := d.data[name]
		if tree, ok := d.parsed[name]; ok {
			b, err := tree.WriteToBytes()
			if err != nil {
				return fmt.Errorf("serialize %s: %w", name, err)
			}
			data = b
		}
		method := zip.Deflate
		if strings.HasPrefix(name, "ppt/media/") {
			method = zip.Store
		}
		fw, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: method})
		if err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
		if _, err := fw.Write(data); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}
	return zw.Close()
}

// Save writes the package to filename. The file only appears once it is
// complete; a failed save leaves nothing behind.
func (d *Document) Save(filename string) error {
	tmp, err := os.CreateTemp(filepath.Dir(filename), ".pptx-*")
	if err != nil {
		return fmt.Errorf("save presentation: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := d.Write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0644); err != nil {
		tmp.Close()
		return fmt.Errorf("save presentation: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("save presentation: %w", err)
	}
	if err := os.Rename(tmp.Name(), filename); err != nil {
		return fmt.Errorf("save presentation: %w", err)
	}
	return nil
}

// Bytes returns the serialized package
func (d *Document) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := d.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var slideFile = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

// SlidePaths returns slide part names in presentation order. Packages
// without a slide list fall back to numeric file order.
func (d *Document) SlidePaths() ([]string, error) {
	if d.Has(presentationPart) && d.Has(relsPath(presentationPart)) {
		pres, err := d.Part(presentationPart)
		if err != nil {
			return nil, err
		}
		rels, err := d.relationships(presentationPart)
		if err != nil {
			return nil, err
		}
		var paths []string
		if lst := pres.Root().SelectElement("p:sldIdLst"); lst != nil {
			for _, id := range lst.SelectElements("p:sldId") {
				rid := id.SelectAttrValue("r:id", "")
				if target, ok := rels.target(rid); ok {
					paths = append(paths, resolveTarget(presentationPart, target))
				}
			}
		}
		if len(paths) > 0 {
			return paths, nil
		}
	}

	type numbered struct {
		n    int
		name string
	}
	var found []numbered
	for _, name := range d.names {
		if m := slideFile.FindStringSubmatch(name); m != nil {
			n, _ := strconv.Atoi(m[1])
			found = append(found, numbered{n, name})
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].n < found[j].n })
	paths := make([]string, len(found))
	for i, f := range found {
		paths[i] = f.name
	}
	return paths, nil
}

// Slide opens the slide at index i (zero based)
func (d *Document) Slide(i int) (*Slide, error) {
	paths, err := d.SlidePaths()
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, ErrNoSlides
	}
	if i < 0 || i >= len(paths) {
		return nil, fmt.Errorf("slide %d out of range (have %d)", i, len(paths))
	}
	tree, err := d.Part(paths[i])
	if err != nil {
		return nil, err
	}
	root := tree.Root()
	spTree := root.FindElement("p:cSld/p:spTree")
	if spTree == nil {
		return nil, fmt.Errorf("%s: missing shape tree", paths[i])
	}
	return &Slide{doc: d, path: paths[i], root: root, tree: spTree}, nil
}

// addMedia stores image bytes under ppt/media and registers the extension's
// content type. It returns the part name.
func (d *Document) addMedia(ext string, data []byte) (string, error) {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if ext == "jpg" {
		ext = "jpeg"
	}
	ctype, ok := imageContentTypes[ext]
	if !ok {
		return "", fmt.Errorf("unsupported image type %q", ext)
	}
	if err := d.ensureDefaultContentType(ext, ctype); err != nil {
		return "", err
	}

	for i := 1; ; i++ {
		name := fmt.Sprintf("ppt/media/image%d.%s", i, ext)
		if !d.Has(name) {
			d.PutRaw(name, data)
			return name, nil
		}
	}
}

var imageContentTypes = map[string]string{
	"png":  "image/png",
	"jpeg": "image/jpeg",
}

func (d *Document) ensureDefaultContentType(ext, ctype string) error {
	tree, err := d.Part(contentTypesPart)
	if err != nil {
		return err
	}
	types := tree.Root()
	for _, def := range types.SelectElements("Default") {
		if strings.EqualFold(def.SelectAttrValue("Extension", ""), ext) {
			return nil
		}
	}
	types.InsertChildAt(0, newElement("Default", "Extension", ext, "ContentType", ctype))
	return nil
}

type relationships struct {
	root *etree.Element
}

func relsPath(partName string) string {
	dir, file := path.Split(partName)
	return dir + "_rels/" + file + ".rels"
}

const relsNamespace = "http://schemas.openxmlformats.org/package/2006/relationships"

func (d *Document) relationships(partName string) (*relationships, error) {
	name := relsPath(partName)
	if !d.Has(name) {
		tree := etree.NewDocument()
		tree.CreateProcInst("xml", `version="1.0" encoding="UTF-8" standalone="yes"`)
		tree.CreateElement("Relationships").CreateAttr("xmlns", relsNamespace)
		d.PutPart(name, tree)
	}
	tree, err := d.Part(name)
	if err != nil {
		return nil, err
	}
	return &relationships{root: tree.Root()}, nil
}

func (r *relationships) target(id string) (string, bool) {
	for _, rel := range r.root.SelectElements("Relationship") {
		if rel.SelectAttrValue("Id", "") == id {
			return attrValue(rel, "Target")
		}
	}
	return "", false
}

func (r *relationships) add(relType, target string) string {
	used := make(map[string]bool)
	for _, rel := range r.root.SelectElements("Relationship") {
		used[rel.SelectAttrValue("Id", "")] = true
	}
	id := ""
	for i := 1; ; i++ {
		id = "rId" + strconv.Itoa(i)
		if !used[id] {
			break
		}
	}
	r.root.AddChild(newElement("Relationship", "Id", id, "Type", relType, "Target", target))
	return id
}

// resolveTarget turns a relationship target into a package part name
func resolveTarget(source, target string) string {
	if strings.HasPrefix(target, "/") {
		return strings.TrimPrefix(target, "/")
	}
	return path.Clean(path.Join(path.Dir(source), target))
}

// relativeTarget is the inverse of resolveTarget for two part names
func relativeTarget(source, partName string) string {
	from := strings.Split(path.Dir(source), "/")
	to := strings.Split(partName, "/")
	i := 0
	for i < len(from) && i < len(to)-1 && from[i] == to[i] {
		i++
	}
	var parts []string
	for j := i; j < len(from); j++ {
		parts = append(parts, "..")
	}
	parts = append(parts, to[i:]...)
	return strings.Join(parts, "/")
}
