package pptx

import (
	"errors"
	"sort"
	"strconv"
	"strings"

	"github.com/beevik/etree"
)

var ErrNoTextBody = errors.New("shape cannot hold text")

// RunStyle overrides character properties. Zero values keep whatever the
// template shape already uses.
type RunStyle struct {
	SizePt float64
	Bold   *bool
	Italic *bool
	Font   string
	Color  string // RRGGBB
}

// Merge returns s with the non-zero fields of o applied on top
func (s RunStyle) Merge(o RunStyle) RunStyle {
	if o.SizePt > 0 {
		s.SizePt = o.SizePt
	}
	if o.Bold != nil {
		s.Bold = o.Bold
	}
	if o.Italic != nil {
		s.Italic = o.Italic
	}
	if o.Font != "" {
		s.Font = o.Font
	}
	if o.Color != "" {
		s.Color = o.Color
	}
	return s
}

// Run is a span of text with its own style overrides
type Run struct {
	Text  string
	Style RunStyle
}

// Paragraph is one line of runs
type Paragraph struct {
	Runs []Run
}

// Text returns the plain text of the shape, paragraphs separated by "\n"
func (sh *Shape) Text() string {
	body := sh.node.SelectElement("p:txBody")
	if body == nil {
		return ""
	}
	var lines []string
	for _, p := range body.SelectElements("a:p") {
		var sb strings.Builder
		for _, c := range p.ChildElements() {
			if c.Space != "a" {
				continue
			}
			switch c.Tag {
			case "r", "fld":
				sb.WriteString(textOf(c.SelectElement("a:t")))
			case "br":
				sb.WriteString("\n")
			}
		}
		lines = append(lines, sb.String())
	}
	return strings.Join(lines, "\n")
}

// Runs returns every text run of the shape with the properties written on
// the run itself. Inherited properties are not resolved.
func (sh *Shape) Runs() []Run {
	var out []Run
	for _, r := range sh.node.FindElements("p:txBody/a:p/a:r") {
		out = append(out, Run{Text: textOf(r.SelectElement("a:t")), Style: readRunStyle(r.SelectElement("a:rPr"))})
	}
	return out
}

func readRunStyle(rPr *etree.Element) RunStyle {
	var st RunStyle
	if rPr == nil {
		return st
	}
	if n, err := strconv.Atoi(rPr.SelectAttrValue("sz", "")); err == nil {
		st.SizePt = float64(n) / 100
	}
	if v, ok := attrValue(rPr, "b"); ok {
		b := v == "1" || v == "true"
		st.Bold = &b
	}
	if v, ok := attrValue(rPr, "i"); ok {
		i := v == "1" || v == "true"
		st.Italic = &i
	}
	st.Color, _ = attrValue(rPr.FindElement("a:solidFill/a:srgbClr"), "val")
	st.Font, _ = attrValue(rPr.SelectElement("a:latin"), "typeface")
	return st
}

// SetText replaces the shape text, one paragraph per line
func (sh *Shape) SetText(text string, style RunStyle, align string) error {
	return sh.SetParagraphs(PlainParagraphs(text), style, align)
}

// PlainParagraphs splits text into single-run paragraphs. Empty text yields
// no paragraphs.
func PlainParagraphs(text string) []Paragraph {
	if text == "" {
		return nil
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var paras []Paragraph
	for _, line := range strings.Split(text, "\n") {
		paras = append(paras, Paragraph{Runs: []Run{{Text: line}}})
	}
	return paras
}

// SetParagraphs replaces the shape text. The first paragraph and run
// properties found in the shape are kept as the base for every new
// paragraph and run; base then each run's style are applied on top. align
// is one of "l", "ctr", "r", "just" or "" to keep the template alignment.
func (sh *Shape) SetParagraphs(paras []Paragraph, base RunStyle, align string) error {
	body := sh.node.SelectElement("p:txBody")
	if body == nil {
		if sh.node.Tag != "sp" {
			return ErrNoTextBody
		}
		body = sh.node.CreateElement("p:txBody")
		body.CreateElement("a:bodyPr")
		body.CreateElement("a:lstStyle")
	}

	var pPr, rPr, endPr *etree.Element
	if first := body.SelectElement("a:p"); first != nil {
		pPr = first.SelectElement("a:pPr")
		endPr = first.SelectElement("a:endParaRPr")
		rPr = first.FindElement("a:r/a:rPr")
	}
	if rPr == nil && endPr != nil {
		rPr = endPr.Copy()
		rPr.Tag = "rPr"
	}

	for _, p := range body.SelectElements("a:p") {
		body.RemoveChild(p)
	}
	if len(paras) == 0 {
		paras = []Paragraph{{}}
	}

	for _, para := range paras {
		p := body.CreateElement("a:p")
		if pPr != nil || align != "" {
			pp := newElement("a:pPr")
			if pPr != nil {
				pp = pPr.Copy()
			}
			if align != "" {
				pp.CreateAttr("algn", align)
			}
			p.AddChild(pp)
		}
		for _, run := range para.Runs {
			if run.Text == "" {
				continue
			}
			rp := newElement("a:rPr", "lang", "en-US", "dirty", "0")
			if rPr != nil {
				rp = rPr.Copy()
			}
			applyRunStyle(rp, base.Merge(run.Style))
			r := p.CreateElement("a:r")
			r.AddChild(rp)
			r.CreateElement("a:t").SetText(run.Text)
		}
		if endPr != nil {
			ep := endPr.Copy()
			applyRunStyle(ep, base)
			p.AddChild(ep)
		}
	}

	if base.SizePt > 0 {
		if auto := body.FindElement("a:bodyPr/a:normAutofit"); auto != nil {
			auto.RemoveAttr("fontScale")
			auto.RemoveAttr("lnSpcReduction")
		}
	}
	return nil
}

var fillNames = map[string]bool{
	"noFill": true, "solidFill": true, "gradFill": true,
	"blipFill": true, "pattFill": true, "grpFill": true,
}

func applyRunStyle(rPr *etree.Element, st RunStyle) {
	if st.SizePt > 0 {
		rPr.CreateAttr("sz", strconv.Itoa(int(st.SizePt*100+0.5)))
	}
	if st.Bold != nil {
		rPr.CreateAttr("b", boolAttr(*st.Bold))
	}
	if st.Italic != nil {
		rPr.CreateAttr("i", boolAttr(*st.Italic))
	}
	if st.Color != "" {
		for _, c := range rPr.ChildElements() {
			if c.Space == "a" && fillNames[c.Tag] {
				rPr.RemoveChild(c)
			}
		}
		rPr.CreateElement("a:solidFill").CreateElement("a:srgbClr").
			CreateAttr("val", strings.ToUpper(strings.TrimPrefix(st.Color, "#")))
	}
	if st.Font != "" {
		if latin := rPr.SelectElement("a:latin"); latin != nil {
			latin.CreateAttr("typeface", st.Font)
		} else {
			rPr.CreateElement("a:latin").CreateAttr("typeface", st.Font)
		}
	}
	sortRunProperties(rPr)
}

func boolAttr(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// a:rPr children must follow the schema sequence or PowerPoint refuses
// the file.
var runPropertyRank = map[string]int{
	"ln":             0,
	"noFill":         1,
	"solidFill":      1,
	"gradFill":       1,
	"blipFill":       1,
	"pattFill":       1,
	"grpFill":        1,
	"effectLst":      2,
	"effectDag":      2,
	"highlight":      3,
	"uLnTx":          4,
	"uLn":            4,
	"uFillTx":        5,
	"uFill":          5,
	"latin":          6,
	"ea":             7,
	"cs":             8,
	"sym":            9,
	"hlinkClick":     10,
	"hlinkMouseOver": 11,
	"rtl":            12,
	"extLst":         13,
}

func sortRunProperties(rPr *etree.Element) {
	rank := func(e *etree.Element) int {
		if r, ok := runPropertyRank[e.Tag]; ok {
			return r
		}
		return len(runPropertyRank)
	}
	kids := rPr.ChildElements()
	sort.SliceStable(kids, func(i, j int) bool {
		return rank(kids[i]) < rank(kids[j])
	})
	// re-adding moves each element to the end, leaving them in rank order
	for _, k := range kids {
		rPr.AddChild(k)
	}
}
