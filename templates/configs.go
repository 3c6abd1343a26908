package templates

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"posterpro/common"
	"posterpro/pptx"
)

//go:embed template_configs.yaml
var builtinCatalog []byte

// Section groups poster fields that share font settings
type Section string

const (
	SectionHeadline     Section = "headline"
	SectionTitle        Section = "title"
	SectionSubtitle     Section = "subtitle"
	SectionAuthors      Section = "authors"
	SectionAffiliations Section = "affiliations"
	SectionMainBody     Section = "main_body"
	SectionReferences   Section = "references"
	SectionFigureDesc   Section = "figure_desc"
)

// SectionFor maps a content field onto its section
func SectionFor(f common.Field) Section {
	switch f {
	case common.FieldHeadline:
		return SectionHeadline
	case common.FieldTitle:
		return SectionTitle
	case common.FieldSubtitle:
		return SectionSubtitle
	case common.FieldAuthors:
		return SectionAuthors
	case common.FieldAffiliations:
		return SectionAffiliations
	case common.FieldReferences:
		return SectionReferences
	default:
		return SectionMainBody
	}
}

// FontSettings is the look of one section
type FontSettings struct {
	Color     string  `yaml:"font_color" json:"font_color"`
	Family    string  `yaml:"font_family" json:"font_family"`
	Bold      bool    `yaml:"bold" json:"bold"`
	Italic    bool    `yaml:"italic" json:"italic"`
	Alignment string  `yaml:"alignment" json:"alignment"`
	Size      float64 `yaml:"font_size,omitempty" json:"font_size,omitempty"`
}

// RunStyle converts the settings to a pptx run override
func (f FontSettings) RunStyle() pptx.RunStyle {
	bold, italic := f.Bold, f.Italic
	return pptx.RunStyle{
		SizePt: f.Size,
		Bold:   &bold,
		Italic: &italic,
		Font:   f.Family,
		Color:  strings.TrimPrefix(strings.TrimSpace(f.Color), "#"),
	}
}

// Align converts the alignment name to its DrawingML value
func (f FontSettings) Align() string {
	switch strings.ToLower(strings.TrimSpace(f.Alignment)) {
	case "center", "centre", "middle":
		return "ctr"
	case "right":
		return "r"
	case "justify":
		return "just"
	case "left":
		return "l"
	default:
		return ""
	}
}

// SizeTiers picks a size from text length. Title uses 80/120 character
// boundaries, other sections 80/160/250. Subtitle derives from the title
// size through Ratio and MinSize.
type SizeTiers struct {
	Short     float64 `yaml:"short" json:"short,omitempty"`
	Medium    float64 `yaml:"medium" json:"medium,omitempty"`
	Long      float64 `yaml:"long" json:"long,omitempty"`
	ExtraLong float64 `yaml:"extra_long" json:"extra_long,omitempty"`
	Ratio     float64 `yaml:"ratio" json:"ratio,omitempty"`
	MinSize   float64 `yaml:"min_size" json:"min_size,omitempty"`
}

func firstPositive(vals ...float64) float64 {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}

// TitleSize returns the tier size for a title of n characters
func (t SizeTiers) TitleSize(n int) float64 {
	switch {
	case n > 120:
		return firstPositive(t.Long, t.Medium, t.Short)
	case n > 80:
		return firstPositive(t.Medium, t.Short)
	default:
		return t.Short
	}
}

// SubtitleSize scales the title size, rounded, never below MinSize
func (t SizeTiers) SubtitleSize(titleSize float64) float64 {
	ratio := t.Ratio
	if ratio <= 0 {
		ratio = 0.6
	}
	size := float64(int(titleSize*ratio + 0.5))
	if size < t.MinSize {
		return t.MinSize
	}
	return size
}

// TextSize returns the tier size for n characters. A missing extra-long
// tier falls back to long.
func (t SizeTiers) TextSize(n int) float64 {
	switch {
	case n <= 80:
		return t.Short
	case n <= 160:
		return firstPositive(t.Medium, t.Short)
	case n <= 250:
		return firstPositive(t.Long, t.Medium, t.Short)
	default:
		return firstPositive(t.ExtraLong, t.Long, t.Medium, t.Short)
	}
}

// TemplateStyle holds per-section fonts and size tiers of one template
type TemplateStyle struct {
	Sections map[Section]FontSettings `yaml:"sections" json:"sections"`
	Sizes    map[Section]SizeTiers    `yaml:"sizes" json:"sizes"`
}

// Description helps users choose a template
type Description struct {
	Title       string   `yaml:"title" json:"title"`
	Description string   `yaml:"description" json:"description"`
	ChooseIf    []string `yaml:"choose_if" json:"choose_if"`
	IdealFor    string   `yaml:"ideal_for" json:"ideal_for"`
}

// Catalog is the template configuration: styles, descriptions and the
// premium, new and coming-soon name lists. The premium and coming-soon
// lists can change at runtime and are guarded by mu.
type Catalog struct {
	mu sync.RWMutex

	Premium      []string                 `yaml:"premium"`
	New          []string                 `yaml:"new"`
	ComingSoon   []string                 `yaml:"coming_soon"`
	Defaults     TemplateStyle            `yaml:"defaults"`
	Templates    map[string]TemplateStyle `yaml:"templates"`
	Descriptions map[string]Description   `yaml:"descriptions"`
}

// LoadCatalog reads path when it exists, otherwise the built-in catalog.
// An empty path always uses the built-in catalog.
func LoadCatalog(path string) (*Catalog, error) {
	data := builtinCatalog
	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case err == nil:
			data = b
		case errors.Is(err, os.ErrNotExist):
			common.Log.Debug().Str("path", path).Msg("template config not found, using built-in catalog")
		default:
			return nil, common.TemplateError("read template config", err)
		}
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes a YAML catalog
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, common.TemplateError("parse template config", err)
	}
	for name, style := range c.Templates {
		for section, tiers := range style.Sizes {
			if tiers.Short < 0 || tiers.Medium < 0 || tiers.Long < 0 || tiers.ExtraLong < 0 || tiers.Ratio < 0 {
				return nil, common.TemplateError(fmt.Sprintf("template %q section %s has a negative size", name, section), nil)
			}
		}
	}
	return &c, nil
}

// DefaultCatalog returns the built-in catalog
func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(builtinCatalog)
	if err != nil {
		panic(err)
	}
	return c
}

// TemplateName derives the catalog key from a template filename:
// "blue_template.pptx" and "Blue Template.pptx" both become "Blue Template".
func TemplateName(filename string) string {
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	return DisplayName(base)
}

func (c *Catalog) lookupKey(name string) string {
	for _, candidate := range []string{name, TemplateName(name)} {
		for key := range c.Templates {
			if strings.EqualFold(key, candidate) {
				return key
			}
		}
	}
	return ""
}

// Style returns the style for a template filename or name. Sections and
// size tables the template leaves out come from the defaults.
func (c *Catalog) Style(name string) TemplateStyle {
	out := TemplateStyle{
		Sections: map[Section]FontSettings{},
		Sizes:    map[Section]SizeTiers{},
	}
	for k, v := range c.Defaults.Sections {
		out.Sections[k] = v
	}
	for k, v := range c.Defaults.Sizes {
		out.Sizes[k] = v
	}
	if key := c.lookupKey(name); key != "" {
		style := c.Templates[key]
		for k, v := range style.Sections {
			out.Sections[k] = v
		}
		for k, v := range style.Sizes {
			out.Sizes[k] = v
		}
	}
	return out
}

// HasStyle reports whether the catalog has a dedicated style for name
func (c *Catalog) HasStyle(name string) bool {
	return c.lookupKey(name) != ""
}

// Font returns the settings for a section, falling back to main body
func (s TemplateStyle) Font(section Section) FontSettings {
	if f, ok := s.Sections[section]; ok {
		return f
	}
	return s.Sections[SectionMainBody]
}

// SizeFor picks the size of text in a section. A font_size set on the
// section always wins. Otherwise titles and the author-like sections use
// their length tiers, subtitles derive from the tier size of title and
// everything else uses the main body short tier.
func (s TemplateStyle) SizeFor(section Section, text, title string) float64 {
	if size := s.Font(section).Size; size > 0 {
		return size
	}
	n := utf8.RuneCountInString(text)
	switch section {
	case SectionHeadline:
		return 0
	case SectionTitle:
		return s.Sizes[SectionTitle].TitleSize(n)
	case SectionSubtitle:
		titleSize := s.Sizes[SectionTitle].TitleSize(utf8.RuneCountInString(title))
		return s.Sizes[SectionSubtitle].SubtitleSize(titleSize)
	case SectionAuthors, SectionAffiliations, SectionReferences:
		if tiers, ok := s.Sizes[section]; ok {
			return tiers.TextSize(n)
		}
		return s.Sizes[SectionAuthors].TextSize(n)
	default:
		return s.Sizes[SectionMainBody].Short
	}
}

func containsFold(list []string, name string) bool {
	for _, item := range list {
		if strings.EqualFold(item, name) {
			return true
		}
	}
	return false
}

// IsPremium reports whether the named template is premium
func (c *Catalog) IsPremium(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return containsFold(c.Premium, name)
}

// IsComingSoon reports whether the named template is not yet released
func (c *Catalog) IsComingSoon(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return containsFold(c.ComingSoon, name)
}

// PremiumTemplates returns a copy of the premium list
func (c *Catalog) PremiumTemplates() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string{}, c.Premium...)
}

// ComingSoonTemplates returns a copy of the coming-soon list
func (c *Catalog) ComingSoonTemplates() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string{}, c.ComingSoon...)
}

// AddPremium marks name as premium. It returns false when it already is.
func (c *Catalog) AddPremium(name string) bool {
	return c.addTo(&c.Premium, name)
}

// RemovePremium drops name from the premium list. It returns false when
// name was not listed.
func (c *Catalog) RemovePremium(name string) bool {
	return c.removeFrom(&c.Premium, name)
}

// AddComingSoon marks name as coming soon. It returns false when it
// already is.
func (c *Catalog) AddComingSoon(name string) bool {
	return c.addTo(&c.ComingSoon, name)
}

// RemoveComingSoon drops name from the coming-soon list
func (c *Catalog) RemoveComingSoon(name string) bool {
	return c.removeFrom(&c.ComingSoon, name)
}

func (c *Catalog) addTo(list *[]string, name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if containsFold(*list, name) {
		return false
	}
	*list = append(*list, name)
	return true
}

func (c *Catalog) removeFrom(list *[]string, name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, item := range *list {
		if strings.EqualFold(item, name) {
			*list = append((*list)[:i:i], (*list)[i+1:]...)
			return true
		}
	}
	return false
}

// IsNew reports whether the named template is flagged as new
func (c *Catalog) IsNew(name string) bool {
	return containsFold(c.New, name)
}

// Description returns the description for a template filename or name
func (c *Catalog) Description(name string) (Description, bool) {
	for _, candidate := range []string{name, TemplateName(name)} {
		for key, d := range c.Descriptions {
			if strings.EqualFold(key, candidate) {
				return d, true
			}
		}
	}
	return Description{}, false
}
