package common

import (
	"fmt"
	"image"
	"strings"
	"sync"

	"github.com/gen2brain/go-fitz"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// PDFProcessor handles PDF operations
type PDFProcessor struct {
	Path     string
	Doc      *SafeDocument
	NumPages int
}

// SafeDocument wraps fitz.Document with a mutex for thread safety
type SafeDocument struct {
	doc *fitz.Document
	mu  sync.Mutex
}

// PDFInfo is what upload validation learns about a file
type PDFInfo struct {
	PageCount int
	Encrypted bool
}

// NewPDFProcessor opens a PDF for reading
func NewPDFProcessor(path string) (*PDFProcessor, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, ExtractionError("error opening PDF", err)
	}

	return &PDFProcessor{
		Path:     path,
		Doc:      &SafeDocument{doc: doc},
		NumPages: doc.NumPage(),
	}, nil
}

// Close cleans up resources
func (p *PDFProcessor) Close() {
	if p.Doc != nil && p.Doc.doc != nil {
		p.Doc.doc.Close()
	}
}

// ExtractPages returns the raw text of every page, in order
func (p *PDFProcessor) ExtractPages() ([]string, error) {
	pages := make([]string, 0, p.NumPages)
	for i := 0; i < p.NumPages; i++ {
		text, err := p.ExtractTextByPage(i)
		if err != nil {
			return nil, err
		}
		pages = append(pages, text)
	}
	return pages, nil
}

// ExtractText returns the text of every page, one newline after each
func (p *PDFProcessor) ExtractText() (string, error) {
	pages, err := p.ExtractPages()
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, text := range pages {
		sb.WriteString(text)
		sb.WriteByte('\n')
	}
	return sb.String(), nil
}

// ExtractTextByPage extracts text from a specific page
func (p *PDFProcessor) ExtractTextByPage(pageNum int) (string, error) {
	p.Doc.mu.Lock()
	defer p.Doc.mu.Unlock()

	if pageNum < 0 || pageNum >= p.NumPages {
		return "", fmt.Errorf("page number %d out of range", pageNum)
	}
	text, err := p.Doc.doc.Text(pageNum)
	if err != nil {
		return "", fmt.Errorf("error extracting text from page %d: %w", pageNum, err)
	}
	return text, nil
}

// Image renders a page at the default resolution
func (s *SafeDocument) Image(pageNum int) (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Image(pageNum)
}

// ImagePNG returns a page as PNG bytes
func (s *SafeDocument) ImagePNG(pageNum int, dpi float64) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.ImagePNG(pageNum, dpi)
}

// ValidatePDF checks the file structure with pdfcpu and reports its page
// count. A file that fails validation is an invalid upload.
func ValidatePDF(path string) (*PDFInfo, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	if err := api.ValidateFile(path, conf); err != nil {
		return nil, ValidationError("not a valid PDF", fmt.Errorf("%w: %v", ErrInvalidUpload, err))
	}

	pdfCtx, err := api.ReadContextFile(path)
	if err != nil {
		return nil, ValidationError("failed to read PDF context", fmt.Errorf("%w: %v", ErrInvalidUpload, err))
	}
	if pdfCtx.PageCount == 0 {
		return nil, ValidationError("PDF has no pages", ErrInvalidUpload)
	}

	return &PDFInfo{
		PageCount: pdfCtx.PageCount,
		Encrypted: pdfCtx.Encrypt != nil,
	}, nil
}
