package pptx

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"strconv"

	"github.com/beevik/etree"
)

const relationshipsNamespace = "http://schemas.openxmlformats.org/officeDocument/2006/relationships"

// FitBox scales an image of w×h pixels into box, keeping the aspect ratio,
// and centres it.
func FitBox(box Box, w, h int) Box {
	if w <= 0 || h <= 0 || box.Width <= 0 || box.Height <= 0 {
		return box
	}
	sx := float64(box.Width) / float64(w)
	sy := float64(box.Height) / float64(h)
	scale := sx
	if sy < sx {
		scale = sy
	}
	fw := int64(float64(w) * scale)
	fh := int64(float64(h) * scale)
	return Box{
		X:      box.X + (box.Width-fw)/2,
		Y:      box.Y + (box.Height-fh)/2,
		Width:  fw,
		Height: fh,
	}
}

// ReplaceWithPicture puts an image where placeholder sits, scaled to fit
// its frame, and removes the placeholder. ext is "png", "jpg" or "jpeg".
func (s *Slide) ReplaceWithPicture(placeholder *Shape, data []byte, ext string) (*Shape, error) {
	box, ok := placeholder.Box()
	if !ok {
		return nil, fmt.Errorf("shape %q has no frame", placeholder.Name())
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	media, err := s.doc.addMedia(ext, data)
	if err != nil {
		return nil, err
	}
	rels, err := s.doc.relationships(s.path)
	if err != nil {
		return nil, err
	}
	rid := rels.add(relTypeImage, relativeTarget(s.path, media))

	if s.root.SelectAttr("xmlns:r") == nil {
		s.root.CreateAttr("xmlns:r", relationshipsNamespace)
	}

	id := s.nextShapeID()
	fit := FitBox(box, cfg.Width, cfg.Height)

	pic := etree.NewElement("p:pic")
	nv := pic.CreateElement("p:nvPicPr")
	nv.AddChild(newElement("p:cNvPr", "id", strconv.Itoa(id), "name", "Picture "+strconv.Itoa(id-1)))
	nv.CreateElement("p:cNvPicPr").CreateElement("a:picLocks").CreateAttr("noChangeAspect", "1")
	nv.CreateElement("p:nvPr")

	fill := pic.CreateElement("p:blipFill")
	fill.CreateElement("a:blip").CreateAttr("r:embed", rid)
	fill.CreateElement("a:stretch").CreateElement("a:fillRect")

	spPr := pic.CreateElement("p:spPr")
	xfrm := spPr.CreateElement("a:xfrm")
	xfrm.AddChild(newElement("a:off", "x", strconv.FormatInt(fit.X, 10), "y", strconv.FormatInt(fit.Y, 10)))
	xfrm.AddChild(newElement("a:ext", "cx", strconv.FormatInt(fit.Width, 10), "cy", strconv.FormatInt(fit.Height, 10)))
	geom := newElement("a:prstGeom", "prst", "rect")
	geom.CreateElement("a:avLst")
	spPr.AddChild(geom)

	parent := placeholder.parent
	idx := placeholder.node.Index()
	parent.RemoveChild(placeholder.node)
	parent.InsertChildAt(idx, pic)
	return &Shape{slide: s, node: pic, parent: parent}, nil
}

// MediaTarget returns the package part an inserted picture refers to
func (sh *Shape) MediaTarget() (string, bool) {
	rid, ok := attrValue(sh.node.FindElement("p:blipFill/a:blip"), "r:embed")
	if !ok {
		return "", false
	}
	rels, err := sh.slide.doc.relationships(sh.slide.path)
	if err != nil {
		return "", false
	}
	target, ok := rels.target(rid)
	if !ok {
		return "", false
	}
	return resolveTarget(sh.slide.path, target), true
}
