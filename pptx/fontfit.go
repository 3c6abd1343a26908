package pptx

import (
	"errors"
	"math"
	"unicode/utf8"
)

// FitConfig selects a font size for a text box. Candidates are tried from
// largest to smallest; the estimate assumes every glyph is AvgCharWidth em
// wide and every line is LineSpacing em tall.
type FitConfig struct {
	Candidates   []float64
	AvgCharWidth float64
	LineSpacing  float64
}

// DefaultFitConfig returns the 24..10 pt ladder
func DefaultFitConfig() FitConfig {
	return FitConfig{
		Candidates:   []float64{24, 20, 18, 16, 14, 12, 10},
		AvgCharWidth: 0.5,
		LineSpacing:  1.2,
	}
}

// Validate checks the candidate list is non-empty and strictly descending
func (c FitConfig) Validate() error {
	if len(c.Candidates) == 0 {
		return errors.New("font fit: no candidate sizes")
	}
	for i, s := range c.Candidates {
		if s <= 0 {
			return errors.New("font fit: sizes must be positive")
		}
		if i > 0 && s >= c.Candidates[i-1] {
			return errors.New("font fit: sizes must be strictly descending")
		}
	}
	if c.AvgCharWidth <= 0 || c.LineSpacing <= 0 {
		return errors.New("font fit: character width and line spacing must be positive")
	}
	return nil
}

// CappedAt drops candidates above limit. When every candidate is larger the
// smallest one is kept so the list never empties.
func (c FitConfig) CappedAt(limit float64) FitConfig {
	var kept []float64
	for _, s := range c.Candidates {
		if s <= limit {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 && len(c.Candidates) > 0 {
		kept = []float64{c.Candidates[len(c.Candidates)-1]}
	}
	c.Candidates = kept
	return c
}

// Ladder is CappedAt(top) with top itself tried first, so a section whose
// preferred size is larger than every candidate still gets it when the
// text fits.
func (c FitConfig) Ladder(top float64) FitConfig {
	if top <= 0 {
		return c
	}
	capped := c.CappedAt(top)
	if len(capped.Candidates) > 0 && capped.Candidates[0] == top {
		return capped
	}
	kept := []float64{top}
	for _, s := range capped.Candidates {
		if s < top {
			kept = append(kept, s)
		}
	}
	capped.Candidates = kept
	return capped
}

// Fit returns the largest candidate whose estimated rendering of text fits
// a width×height point box, or the smallest candidate when none does.
func (c FitConfig) Fit(width, height float64, text string) float64 {
	for _, size := range c.Candidates {
		if c.EstimateHeight(width, size, text) <= height {
			return size
		}
	}
	return c.Candidates[len(c.Candidates)-1]
}

// EstimateHeight is the rendered height of text at size inside width. It
// depends only on the character count, line breaks included, so longer
// text never estimates shorter than shorter text.
func (c FitConfig) EstimateHeight(width, size float64, text string) float64 {
	perLine := max(1, int(math.Floor(width/(c.AvgCharWidth*size))))
	n := utf8.RuneCountInString(text)
	lines := max(1, (n+perLine-1)/perLine)
	return float64(lines) * size * c.LineSpacing
}
