// Package poster turns a research PDF into a filled PowerPoint poster:
// text extraction, AI content requests, figure detection and the mapping
// of content onto template shapes.
package poster

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"posterpro/ai"
	"posterpro/common"
	"posterpro/pptx"
	"posterpro/templates"
)

const (
	ModeLive  = "live"
	ModeDummy = "dummy"
)

// Archiver stores a finished poster somewhere durable
type Archiver interface {
	Archive(ctx context.Context, path string) (string, error)
}

// Pipeline runs the PDF to poster workflow
type Pipeline struct {
	Requester *ai.Requester
	Library   *templates.Library
	Extractor *ImageExtractor
	Archiver  Archiver
	Fit       pptx.FitConfig
	Metrics   *common.Metrics

	log zerolog.Logger
	now func() time.Time
}

func NewPipeline(requester *ai.Requester, library *templates.Library, metrics *common.Metrics, logger zerolog.Logger) *Pipeline {
	if metrics == nil {
		metrics = common.NopMetrics()
	}
	return &Pipeline{
		Requester: requester,
		Library:   library,
		Fit:       pptx.DefaultFitConfig(),
		Metrics:   metrics,
		log:       logger.With().Str("component", "pipeline").Logger(),
		now:       time.Now,
	}
}

// Result is what one pipeline run produced
type Result struct {
	OutputPath string                   `json:"-"`
	Filename   string                   `json:"filename"`
	Content    *common.ExtractedContent `json:"extracted_data"`
	Mode       string                   `json:"mode_used"`
	Provider   string                   `json:"ai_provider,omitempty"`
	Report     *MappingReport           `json:"mapping"`
	ArchiveURL string                   `json:"archive_url,omitempty"`
}

// Run executes the workflow for one request
func (p *Pipeline) Run(ctx context.Context, req common.PosterRequest) (*Result, error) {
	if err := os.MkdirAll(req.OutputDir, 0755); err != nil {
		return nil, common.IOError("failed to create output dir", err)
	}
	if req.TemplatePath == "" {
		path, err := p.Library.Resolve("")
		if err != nil {
			return nil, err
		}
		req.TemplatePath = path
	}
	log := p.log.With().Str("pdf", filepath.Base(req.PDFPath)).Str("template", filepath.Base(req.TemplatePath)).Logger()
	log.Info().Bool("dummy", req.UseDummy).Msg("starting poster pipeline")

	// 1. Open the PDF when its text or pages are needed
	var pdf *common.PDFProcessor
	needPDF := !req.UseDummy || (req.AutoFigures && p.Extractor != nil)
	if needPDF {
		log.Info().Msg("step 1: processing PDF")
		var err error
		pdf, err = common.NewPDFProcessor(req.PDFPath)
		if err != nil {
			return nil, err
		}
		defer pdf.Close()
	}

	// 2. Poster content, from the model or the stored dummy data
	res := &Result{Mode: ModeLive}
	if req.UseDummy {
		log.Info().Msg("step 2: loading dummy content")
		content, err := p.Requester.LoadDummy()
		if err != nil {
			return nil, err
		}
		res.Content, res.Mode = content, ModeDummy
	} else {
		text, err := pdf.ExtractText()
		if err != nil {
			return nil, common.ExtractionError("text extraction failed", fmt.Errorf("%v: %w", err, common.ErrExtractionFailed))
		}
		log.Info().Int("pages", pdf.NumPages).Int("chars", len(text)).Msg("step 2: requesting poster content")
		content, provider, err := p.Requester.Extract(ctx, []string{text}, req.Provider)
		if err != nil {
			return nil, err
		}
		res.Content, res.Provider = content, provider
	}
	log.Info().Str("title", res.Content.Title).Msg("poster content ready")

	// 3. Figures: uploads first, detected crops fill the gaps
	figures, err := loadFigures(req.Figures, req.FigureDescriptions)
	if err != nil {
		return nil, err
	}
	if req.AutoFigures && p.Extractor != nil && pdf != nil {
		log.Info().Msg("step 3: detecting figures")
		detections, err := p.Extractor.Detect(ctx, pdf)
		if err != nil {
			log.Warn().Err(err).Msg("figure detection failed, continuing without")
		} else {
			figures = FillFigures(figures, detections)
		}
	}

	// 4. Map onto the template
	log.Info().Msg("step 4: filling template")
	style := p.Library.Catalog().Style(req.TemplatePath)
	mapper, err := NewMapper(style, p.Fit, p.Metrics, log)
	if err != nil {
		return nil, err
	}
	name := req.OutputName
	if name == "" {
		name = common.PosterFileName(req.PDFPath, p.now())
	}
	out := filepath.Join(req.OutputDir, name)
	report, err := mapper.Populate(req.TemplatePath, out, res.Content, figures)
	if err != nil {
		return nil, err
	}
	res.OutputPath, res.Filename, res.Report = out, name, report
	p.Metrics.PostersGenerated.WithLabelValues(res.Mode).Inc()

	if p.Archiver != nil {
		url, err := p.Archiver.Archive(ctx, out)
		if err != nil {
			log.Warn().Err(err).Msg("poster archive upload failed")
		} else {
			res.ArchiveURL = url
		}
	}

	log.Info().
		Str("output", name).
		Strs("filled", report.Filled).
		Strs("dropped", report.Dropped).
		Int("figures", len(report.Figures)).
		Msg("poster pipeline complete")
	return res, nil
}

// loadFigures reads figure files into slots. A missing path leaves the
// slot empty; a path that cannot be read is an error.
func loadFigures(paths, descriptions []string) ([]Figure, error) {
	figures := make([]Figure, common.MaxFigures)
	for i := range figures {
		if i < len(descriptions) {
			figures[i].Description = strings.TrimSpace(descriptions[i])
		}
		if i >= len(paths) || paths[i] == "" {
			continue
		}
		data, err := os.ReadFile(paths[i])
		if err != nil {
			return nil, common.IOError(fmt.Sprintf("read figure %d", i+1), err)
		}
		figures[i].Data = data
		figures[i].Ext = strings.TrimPrefix(strings.ToLower(filepath.Ext(paths[i])), ".")
		figures[i].Source = filepath.Base(paths[i])
	}
	return figures, nil
}
