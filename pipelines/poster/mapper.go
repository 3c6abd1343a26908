package poster

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"posterpro/common"
	"posterpro/pptx"
	"posterpro/templates"
)

const (
	// HighlightColor colours *emphasised* headline words
	HighlightColor = "FF8C00"
	// HeadlineColor is used for the rest of the headline when the
	// template style has no colour
	HeadlineColor = "FFFFFF"
)

type textSlot struct {
	shape   string
	aliases []string
	field   common.Field
}

// textSlots is the static shape name to field table
var textSlots = []textSlot{
	{"HeadlineBox", []string{"headline_box"}, common.FieldHeadline},
	{"TitleBox", []string{"title_box"}, common.FieldTitle},
	{"SubtitleBox", []string{"subtitle_box"}, common.FieldSubtitle},
	{"AuthorBox", []string{"author_box", "authors_box"}, common.FieldAuthors},
	{"AffiliationBox", []string{"affiliation_box", "affiliations_box"}, common.FieldAffiliations},
	{"AbstractBox", []string{"abstract_box"}, common.FieldAbstract},
	{"IntroductionBox", []string{"introduction_box", "intro_box"}, common.FieldIntroduction},
	{"ObjectiveBox", []string{"objective_box", "objectives_box"}, common.FieldObjective},
	{"MethodsBox", []string{"methods_box", "methodology_box"}, common.FieldMethods},
	{"ResultsBox", []string{"results_box"}, common.FieldResults},
	{"DiscussionBox", []string{"discussion_box"}, common.FieldDiscussion},
	{"ConclusionBox", []string{"conclusion_box", "conclusions_box"}, common.FieldConclusions},
	{"ReferencesBox", []string{"references_box"}, common.FieldReferences},
}

// figureSlots are the picture placeholders, in figure order
var figureSlots = [common.MaxFigures][2]string{
	{"Fig1PlaceholderLarge", "fig1_box"},
	{"Fig2PlaceholderLarge", "fig2_box"},
	{"Fig3PlaceholderSmall", "fig3_box"},
	{"Fig4PlaceholderSmall", "fig4_box"},
}

// ShapeNameFor returns the canonical shape name of a field
func ShapeNameFor(f common.Field) (string, bool) {
	for _, s := range textSlots {
		if s.field == f {
			return s.shape, true
		}
	}
	return "", false
}

// Figure is one user supplied or detected image and its caption
type Figure struct {
	Data        []byte
	Ext         string
	Description string
	Source      string
}

// MappingReport records what the mapper did with each field and figure
type MappingReport struct {
	Filled         []string `json:"filled"`
	Cleared        []string `json:"cleared"`
	Dropped        []string `json:"dropped"`
	Figures        []string `json:"figures"`
	SkippedFigures []string `json:"skipped_figures"`
	Captions       []string `json:"captions"`
}

// Mapper writes ExtractedContent into the named shapes of a slide
type Mapper struct {
	Style   templates.TemplateStyle
	Fit     pptx.FitConfig
	Metrics *common.Metrics
	log     zerolog.Logger
}

func NewMapper(style templates.TemplateStyle, fit pptx.FitConfig, metrics *common.Metrics, logger zerolog.Logger) (*Mapper, error) {
	if err := fit.Validate(); err != nil {
		return nil, common.ConfigError("invalid font fit configuration", err)
	}
	if metrics == nil {
		metrics = common.NopMetrics()
	}
	return &Mapper{
		Style:   style,
		Fit:     fit,
		Metrics: metrics,
		log:     logger.With().Str("component", "mapper").Logger(),
	}, nil
}

func findShape(slide *pptx.Slide, name string, aliases ...string) *pptx.Shape {
	if sh := slide.FindShape(name); sh != nil {
		return sh
	}
	for _, a := range aliases {
		if sh := slide.FindShape(a); sh != nil {
			return sh
		}
	}
	return nil
}

// Map fills the slide. Fields without a shape are dropped and shapes
// without a field keep the template text; neither is an error.
func (m *Mapper) Map(slide *pptx.Slide, content *common.ExtractedContent, figures []Figure) *MappingReport {
	report := &MappingReport{}
	if content == nil {
		content = &common.ExtractedContent{}
	}

	for _, slot := range textSlots {
		text := strings.TrimSpace(content.Get(slot.field))
		shape := findShape(slide, slot.shape, slot.aliases...)
		if shape == nil {
			if text != "" {
				report.Dropped = append(report.Dropped, string(slot.field))
				m.Metrics.FieldsDropped.Inc()
				m.log.Info().Str("field", string(slot.field)).Str("shape", slot.shape).Msg("no shape for field, dropped")
			}
			continue
		}
		if err := m.fillText(shape, slot.field, text, content.Title); err != nil {
			m.log.Warn().Err(err).Str("shape", shape.Name()).Msg("cannot write text into shape")
			continue
		}
		if text == "" {
			report.Cleared = append(report.Cleared, shape.Name())
		} else {
			report.Filled = append(report.Filled, shape.Name())
		}
	}

	for i := 0; i < len(figures) && i < common.MaxFigures; i++ {
		m.placeFigure(slide, i, figures[i], report)
		m.placeCaption(slide, i, figures[i].Description, report)
	}
	return report
}

func (m *Mapper) fillText(shape *pptx.Shape, field common.Field, text, title string) error {
	section := templates.SectionFor(field)
	font := m.Style.Font(section)
	style := font.RunStyle()
	style.SizePt = m.size(shape, section, text, title)

	if field == common.FieldHeadline {
		return shape.SetParagraphs(HeadlineParagraphs(text, style.Color), style, font.Align())
	}
	return shape.SetParagraphs(pptx.PlainParagraphs(text), style, font.Align())
}

// size is the section's tier size, reduced by the fit estimate when the
// shape box is known. Zero keeps the template size.
func (m *Mapper) size(shape *pptx.Shape, section templates.Section, text, title string) float64 {
	tier := m.Style.SizeFor(section, text, title)
	if text == "" {
		return tier
	}
	w, h, ok := shape.TextArea()
	if !ok {
		return tier
	}
	return m.Fit.Ladder(tier).Fit(w, h, text)
}

var emphasis = regexp.MustCompile(`\*[^*]+\*`)

// HeadlineParagraphs splits "*word*" spans into highlight runs. Other text
// uses color, or HeadlineColor when color is empty.
func HeadlineParagraphs(text, color string) []pptx.Paragraph {
	if text == "" {
		return nil
	}
	if color == "" {
		color = HeadlineColor
	}
	var paras []pptx.Paragraph
	for _, line := range strings.Split(text, "\n") {
		var runs []pptx.Run
		last := 0
		for _, loc := range emphasis.FindAllStringIndex(line, -1) {
			if loc[0] > last {
				runs = append(runs, pptx.Run{Text: line[last:loc[0]], Style: pptx.RunStyle{Color: color}})
			}
			runs = append(runs, pptx.Run{Text: line[loc[0]+1 : loc[1]-1], Style: pptx.RunStyle{Color: HighlightColor}})
			last = loc[1]
		}
		if last < len(line) || len(runs) == 0 {
			runs = append(runs, pptx.Run{Text: line[last:], Style: pptx.RunStyle{Color: color}})
		}
		paras = append(paras, pptx.Paragraph{Runs: runs})
	}
	return paras
}

func (m *Mapper) placeFigure(slide *pptx.Slide, i int, fig Figure, report *MappingReport) {
	if len(fig.Data) == 0 {
		return
	}
	slot := figureSlots[i]
	label := fmt.Sprintf("figure %d", i+1)
	placeholder := findShape(slide, slot[0], slot[1])
	if placeholder == nil {
		report.SkippedFigures = append(report.SkippedFigures, label)
		m.log.Info().Str("placeholder", slot[0]).Msg("placeholder not found, figure skipped")
		return
	}
	pic, err := slide.ReplaceWithPicture(placeholder, fig.Data, fig.Ext)
	if err != nil {
		report.SkippedFigures = append(report.SkippedFigures, label)
		m.log.Warn().Err(err).Str("placeholder", slot[0]).Str("source", fig.Source).Msg("failed to insert figure")
		return
	}
	report.Figures = append(report.Figures, slot[0])
	m.log.Debug().Str("placeholder", slot[0]).Str("picture", pic.Name()).Msg("figure inserted")
}

// placeCaption writes "Figure N: " in bold followed by the description
func (m *Mapper) placeCaption(slide *pptx.Slide, i int, desc string, report *MappingReport) {
	desc = strings.TrimSpace(desc)
	if desc == "" {
		return
	}
	name := fmt.Sprintf("FigureDesc%d", i+1)
	shape := slide.FindShape(name)
	if shape == nil {
		m.log.Debug().Str("shape", name).Msg("no caption shape")
		return
	}

	font := m.Style.Font(templates.SectionFigureDesc)
	style := font.RunStyle()
	prefix := fmt.Sprintf("Figure %d: ", i+1)
	style.SizePt = m.size(shape, templates.SectionFigureDesc, prefix+desc, "")

	bold, regular := true, false
	para := pptx.Paragraph{Runs: []pptx.Run{
		{Text: prefix, Style: pptx.RunStyle{Bold: &bold}},
		{Text: desc, Style: pptx.RunStyle{Bold: &regular}},
	}}
	if err := shape.SetParagraphs([]pptx.Paragraph{para}, style, font.Align()); err != nil {
		m.log.Warn().Err(err).Str("shape", name).Msg("cannot write caption")
		return
	}
	report.Captions = append(report.Captions, name)
}

// Populate opens templatePath, maps content and figures onto its first
// slide and writes the result to outputPath.
func (m *Mapper) Populate(templatePath, outputPath string, content *common.ExtractedContent, figures []Figure) (*MappingReport, error) {
	doc, err := pptx.Open(templatePath)
	if err != nil {
		return nil, common.TemplateError("open template", err)
	}
	slide, err := doc.Slide(0)
	if err != nil {
		return nil, common.TemplateError("read template slide", err)
	}
	report := m.Map(slide, content, figures)
	if err := doc.Save(outputPath); err != nil {
		return nil, common.IOError("save poster", err)
	}
	return report, nil
}
