package pptx

import (
	"strconv"
	"strings"

	"github.com/beevik/etree"
)

// EMUPerPoint converts between English Metric Units and points
const EMUPerPoint = 12700

// Default text insets in EMU, used when a:bodyPr does not set them
const (
	defaultInsetLR = 91440
	defaultInsetTB = 45720
)

// Slide is one slide of an opened Document
type Slide struct {
	doc  *Document
	path string
	root *etree.Element
	tree *etree.Element // p:spTree
}

// Path returns the slide's part name
func (s *Slide) Path() string {
	return s.path
}

// Shape is a shape element on a slide, possibly nested in a group
type Shape struct {
	slide  *Slide
	node   *etree.Element
	parent *etree.Element
}

// Box is a shape frame in EMU
type Box struct {
	X, Y, Width, Height int64
}

var shapeKinds = map[string]bool{
	"sp":           true,
	"pic":          true,
	"grpSp":        true,
	"graphicFrame": true,
	"cxnSp":        true,
}

// Shapes returns every shape on the slide, descending into groups. Group
// shapes are listed before their members.
func (s *Slide) Shapes() []*Shape {
	var out []*Shape
	var visit func(parent *etree.Element)
	visit = func(parent *etree.Element) {
		for _, c := range parent.ChildElements() {
			if c.Space != "p" || !shapeKinds[c.Tag] {
				continue
			}
			out = append(out, &Shape{slide: s, node: c, parent: parent})
			if c.Tag == "grpSp" {
				visit(c)
			}
		}
	}
	visit(s.tree)
	return out
}

// FindShape returns the first shape whose name matches case-insensitively
func (s *Slide) FindShape(name string) *Shape {
	for _, sh := range s.Shapes() {
		if strings.EqualFold(sh.Name(), name) {
			return sh
		}
	}
	return nil
}

// ShapeNames lists the names of every shape on the slide
func (s *Slide) ShapeNames() []string {
	var names []string
	for _, sh := range s.Shapes() {
		if n := sh.Name(); n != "" {
			names = append(names, n)
		}
	}
	return names
}

// Texts returns shape name to text for every shape carrying a text body
func (s *Slide) Texts() map[string]string {
	out := make(map[string]string)
	for _, sh := range s.Shapes() {
		if sh.HasTextBody() {
			out[sh.Name()] = sh.Text()
		}
	}
	return out
}

func (s *Slide) nextShapeID() int {
	maxID := 0
	for _, n := range s.root.FindElements(".//p:cNvPr") {
		if id, err := strconv.Atoi(n.SelectAttrValue("id", "")); err == nil && id > maxID {
			maxID = id
		}
	}
	return maxID + 1
}

// Kind is the element name of the shape ("sp", "pic", "grpSp", ...)
func (sh *Shape) Kind() string {
	return sh.node.Tag
}

func (sh *Shape) cNvPr() *etree.Element {
	for _, c := range sh.node.ChildElements() {
		if strings.HasPrefix(c.Tag, "nv") && strings.HasSuffix(c.Tag, "Pr") {
			return c.SelectElement("p:cNvPr")
		}
	}
	return nil
}

// Name returns the shape name shown in the selection pane
func (sh *Shape) Name() string {
	v, _ := attrValue(sh.cNvPr(), "name")
	return v
}

// ID returns the shape id, or 0 when absent
func (sh *Shape) ID() int {
	v, _ := attrValue(sh.cNvPr(), "id")
	id, _ := strconv.Atoi(v)
	return id
}

func (sh *Shape) xfrm() *etree.Element {
	switch sh.node.Tag {
	case "graphicFrame":
		return sh.node.SelectElement("p:xfrm")
	case "grpSp":
		return sh.node.FindElement("p:grpSpPr/a:xfrm")
	default:
		return sh.node.FindElement("p:spPr/a:xfrm")
	}
}

// Box returns the shape frame. Shapes that inherit their position from a
// layout placeholder have none.
func (sh *Shape) Box() (Box, bool) {
	x := sh.xfrm()
	off, ext := find(x, "a:off"), find(x, "a:ext")
	if off == nil || ext == nil {
		return Box{}, false
	}
	return Box{
		X:      attrInt(off, "x"),
		Y:      attrInt(off, "y"),
		Width:  attrInt(ext, "cx"),
		Height: attrInt(ext, "cy"),
	}, true
}

// TextArea returns the usable text width and height in points, after
// subtracting the body insets.
func (sh *Shape) TextArea() (float64, float64, bool) {
	box, ok := sh.Box()
	if !ok {
		return 0, 0, false
	}
	l, r := int64(defaultInsetLR), int64(defaultInsetLR)
	t, b := int64(defaultInsetTB), int64(defaultInsetTB)
	if body := sh.node.FindElement("p:txBody/a:bodyPr"); body != nil {
		l = attrIntDefault(body, "lIns", l)
		r = attrIntDefault(body, "rIns", r)
		t = attrIntDefault(body, "tIns", t)
		b = attrIntDefault(body, "bIns", b)
	}
	w := float64(box.Width-l-r) / EMUPerPoint
	h := float64(box.Height-t-b) / EMUPerPoint
	if w <= 0 || h <= 0 {
		return 0, 0, false
	}
	return w, h, true
}

// HasTextBody reports whether the shape holds editable text
func (sh *Shape) HasTextBody() bool {
	return sh.node.SelectElement("p:txBody") != nil
}

// Remove detaches the shape from its parent
func (sh *Shape) Remove() {
	sh.parent.RemoveChild(sh.node)
}

func attrInt(n *etree.Element, name string) int64 {
	return attrIntDefault(n, name, 0)
}

func attrIntDefault(n *etree.Element, name string, def int64) int64 {
	v, ok := attrValue(n, name)
	if !ok {
		return def
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return i
}
