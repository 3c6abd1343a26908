// Package pptxtest builds small single-slide presentations for tests.
package pptxtest

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// Shape describes one rectangle on the generated slide. Shapes that share a
// Group name are wrapped in a group shape of that name.
type Shape struct {
	Name  string
	Text  string
	Group string
	X, Y  int64
	W, H  int64
}

const (
	nsA = "http://schemas.openxmlformats.org/drawingml/2006/main"
	nsR = "http://schemas.openxmlformats.org/officeDocument/2006/relationships"
	nsP = "http://schemas.openxmlformats.org/presentationml/2006/main"
)

// Build returns the bytes of a one-slide .pptx holding shapes
func Build(shapes []Shape) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	files := []struct{ name, body string }{
		{"[Content_Types].xml", contentTypes},
		{"_rels/.rels", rootRels},
		{"ppt/presentation.xml", presentation},
		{"ppt/_rels/presentation.xml.rels", presentationRels},
		{"ppt/slides/slide1.xml", slideXML(shapes)},
		{"ppt/slides/_rels/slide1.xml.rels", emptyRels},
	}
	for _, f := range files {
		w, err := zw.Create(f.name)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write([]byte(f.body)); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write builds the presentation into dir/name and returns its path
func Write(t testing.TB, dir, name string, shapes []Shape) string {
	t.Helper()
	data, err := Build(shapes)
	if err != nil {
		t.Fatalf("build pptx: %v", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write pptx: %v", err)
	}
	return path
}

// PosterShapes is a typical poster layout using the standard shape names
func PosterShapes() []Shape {
	return []Shape{
		{Name: "HeadlineBox", X: 0, Y: 0, W: 9144000, H: 457200},
		{Name: "TitleBox", Text: "Title", X: 0, Y: 457200, W: 9144000, H: 914400},
		{Name: "AuthorBox", Text: "Authors", X: 0, Y: 1371600, W: 9144000, H: 304800},
		{Name: "AffiliationBox", Text: "Affiliations", X: 0, Y: 1676400, W: 9144000, H: 304800},
		{Name: "IntroductionBox", Group: "LeftColumn", X: 0, Y: 2133600, W: 3048000, H: 2286000},
		{Name: "MethodsBox", Group: "LeftColumn", X: 0, Y: 4419600, W: 3048000, H: 2286000},
		{Name: "ResultsBox", X: 3048000, Y: 2133600, W: 3048000, H: 4572000},
		{Name: "ConclusionBox", X: 6096000, Y: 2133600, W: 3048000, H: 2286000},
		{Name: "ReferencesBox", X: 6096000, Y: 4419600, W: 3048000, H: 1524000},
		{Name: "Fig1PlaceholderLarge", X: 3048000, Y: 6705600, W: 3048000, H: 1524000},
		{Name: "FigureDesc1", X: 3048000, Y: 8229600, W: 3048000, H: 304800},
		{Name: "Fig2PlaceholderLarge", X: 6096000, Y: 6705600, W: 3048000, H: 1524000},
	}
}

func slideXML(shapes []Shape) string {
	var body bytes.Buffer
	id := 2
	groups := map[string]*bytes.Buffer{}
	var order []string

	for _, s := range shapes {
		sp := shapeXML(id, s)
		id++
		if s.Group == "" {
			body.WriteString(sp)
			continue
		}
		g, ok := groups[s.Group]
		if !ok {
			g = &bytes.Buffer{}
			groups[s.Group] = g
			order = append(order, s.Group)
		}
		g.WriteString(sp)
	}
	for _, name := range order {
		fmt.Fprintf(&body, `<p:grpSp><p:nvGrpSpPr><p:cNvPr id="%d" name="%s"/><p:cNvGrpSpPr/><p:nvPr/></p:nvGrpSpPr>`+
			`<p:grpSpPr><a:xfrm><a:off x="0" y="0"/><a:ext cx="0" cy="0"/><a:chOff x="0" y="0"/><a:chExt cx="0" cy="0"/></a:xfrm></p:grpSpPr>%s</p:grpSp>`,
			id, escape(name), groups[name].String())
		id++
	}

	return `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n" +
		`<p:sld xmlns:a="` + nsA + `" xmlns:r="` + nsR + `" xmlns:p="` + nsP + `"><p:cSld><p:spTree>` +
		`<p:nvGrpSpPr><p:cNvPr id="1" name=""/><p:cNvGrpSpPr/><p:nvPr/></p:nvGrpSpPr><p:grpSpPr/>` +
		body.String() +
		`</p:spTree></p:cSld></p:sld>`
}

func shapeXML(id int, s Shape) string {
	para := `<a:p><a:endParaRPr lang="en-US" sz="2000"/></a:p>`
	if s.Text != "" {
		para = `<a:p><a:r><a:rPr lang="en-US" sz="2000"><a:latin typeface="Arial"/></a:rPr><a:t>` + escape(s.Text) + `</a:t></a:r></a:p>`
	}
	return fmt.Sprintf(`<p:sp><p:nvSpPr><p:cNvPr id="%d" name="%s"/><p:cNvSpPr txBox="1"/><p:nvPr/></p:nvSpPr>`+
		`<p:spPr><a:xfrm><a:off x="%d" y="%d"/><a:ext cx="%d" cy="%d"/></a:xfrm><a:prstGeom prst="rect"><a:avLst/></a:prstGeom></p:spPr>`+
		`<p:txBody><a:bodyPr wrap="square"><a:normAutofit fontScale="62500"/></a:bodyPr><a:lstStyle/>%s</p:txBody></p:sp>`,
		id, escape(s.Name), s.X, s.Y, s.W, s.H, para)
}

func escape(s string) string {
	var b bytes.Buffer
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}

const contentTypes = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">` +
	`<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>` +
	`<Default Extension="xml" ContentType="application/xml"/>` +
	`<Override PartName="/ppt/presentation.xml" ContentType="application/vnd.openxmlformats-officedocument.presentationml.presentation.main+xml"/>` +
	`<Override PartName="/ppt/slides/slide1.xml" ContentType="application/vnd.openxmlformats-officedocument.presentationml.slide+xml"/>` +
	`</Types>`

const rootRels = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">` +
	`<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="ppt/presentation.xml"/>` +
	`</Relationships>`

const presentation = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<p:presentation xmlns:a="` + nsA + `" xmlns:r="` + nsR + `" xmlns:p="` + nsP + `">` +
	`<p:sldIdLst><p:sldId id="256" r:id="rId2"/></p:sldIdLst>` +
	`<p:sldSz cx="9144000" cy="9144000"/><p:notesSz cx="6858000" cy="9144000"/>` +
	`</p:presentation>`

const presentationRels = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">` +
	`<Relationship Id="rId2" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/slide" Target="slides/slide1.xml"/>` +
	`</Relationships>`

const emptyRels = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"></Relationships>`
