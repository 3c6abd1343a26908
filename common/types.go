package common

import "strings"

// Field identifies one member of ExtractedContent
type Field string

const (
	FieldHeadline     Field = "headline"
	FieldTitle        Field = "title"
	FieldSubtitle     Field = "subtitle"
	FieldAuthors      Field = "authors"
	FieldAffiliations Field = "affiliations"
	FieldAbstract     Field = "abstract"
	FieldIntroduction Field = "Introduction"
	FieldObjective    Field = "Objective"
	FieldMethods      Field = "Methods"
	FieldResults      Field = "Results"
	FieldDiscussion   Field = "Discussion"
	FieldConclusions  Field = "Conclusions"
	FieldReferences   Field = "References"
)

// Fields returns every field in poster reading order
func Fields() []Field {
	return []Field{
		FieldHeadline, FieldTitle, FieldSubtitle, FieldAuthors, FieldAffiliations,
		FieldAbstract, FieldIntroduction, FieldObjective, FieldMethods, FieldResults,
		FieldDiscussion, FieldConclusions, FieldReferences,
	}
}

// ParseField matches a field name case-insensitively
func ParseField(name string) (Field, bool) {
	for _, f := range Fields() {
		if strings.EqualFold(string(f), strings.TrimSpace(name)) {
			return f, true
		}
	}
	return "", false
}

// ExtractedContent holds the structured poster text returned by the model.
// JSON keys match the keys the model is asked to produce.
type ExtractedContent struct {
	Headline     string `json:"headline"`
	Title        string `json:"title"`
	Subtitle     string `json:"subtitle"`
	Authors      string `json:"authors"`
	Affiliations string `json:"affiliations"`
	Abstract     string `json:"abstract,omitempty"`
	Introduction string `json:"Introduction"`
	Objective    string `json:"Objective"`
	Methods      string `json:"Methods"`
	Results      string `json:"Results"`
	Discussion   string `json:"Discussion"`
	Conclusions  string `json:"Conclusions"`
	References   string `json:"References"`
}

// Get returns the value of a field, or "" for an unknown one
func (c *ExtractedContent) Get(f Field) string {
	if c == nil {
		return ""
	}
	switch f {
	case FieldHeadline:
		return c.Headline
	case FieldTitle:
		return c.Title
	case FieldSubtitle:
		return c.Subtitle
	case FieldAuthors:
		return c.Authors
	case FieldAffiliations:
		return c.Affiliations
	case FieldAbstract:
		return c.Abstract
	case FieldIntroduction:
		return c.Introduction
	case FieldObjective:
		return c.Objective
	case FieldMethods:
		return c.Methods
	case FieldResults:
		return c.Results
	case FieldDiscussion:
		return c.Discussion
	case FieldConclusions:
		return c.Conclusions
	case FieldReferences:
		return c.References
	}
	return ""
}

// Set assigns a field value; unknown fields are ignored
func (c *ExtractedContent) Set(f Field, v string) {
	switch f {
	case FieldHeadline:
		c.Headline = v
	case FieldTitle:
		c.Title = v
	case FieldSubtitle:
		c.Subtitle = v
	case FieldAuthors:
		c.Authors = v
	case FieldAffiliations:
		c.Affiliations = v
	case FieldAbstract:
		c.Abstract = v
	case FieldIntroduction:
		c.Introduction = v
	case FieldObjective:
		c.Objective = v
	case FieldMethods:
		c.Methods = v
	case FieldResults:
		c.Results = v
	case FieldDiscussion:
		c.Discussion = v
	case FieldConclusions:
		c.Conclusions = v
	case FieldReferences:
		c.References = v
	}
}

// IsEmpty reports whether every field is blank
func (c *ExtractedContent) IsEmpty() bool {
	for _, f := range Fields() {
		if strings.TrimSpace(c.Get(f)) != "" {
			return false
		}
	}
	return true
}

// PosterRequest is one run of the poster pipeline
type PosterRequest struct {
	PDFPath            string
	OutputDir          string
	OutputName         string
	TemplatePath       string
	Provider           string
	Figures            []string // up to four image paths, "" for an empty slot
	FigureDescriptions []string
	UseDummy           bool
	AutoFigures        bool
}

// MaxFigures is the number of figure slots a template can carry
const MaxFigures = 4
