package poster

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"runtime"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	ort "github.com/yalue/onnxruntime_go"
	"gocv.io/x/gocv"
	"golang.org/x/sync/errgroup"

	"posterpro/common"
)

const (
	inputSize = 1024
	anchors   = 21504
	channels  = 15
	cropDPI   = 300
)

// ImageExtractor finds Pictures and Tables on PDF pages with a DocLayNet
// YOLO model. One extractor is shared by all requests.
type ImageExtractor struct {
	ModelPath     string
	ConfThreshold float32
	NMSThreshold  float32
	MinBoxSize    int
	Workers       int
	session       *ort.DynamicAdvancedSession
	log           zerolog.Logger
}

// Detection is one cropped region
type Detection struct {
	Page  int
	Label string
	Box   image.Rectangle
	PNG   []byte
}

// DefaultONNXLibrary is where the shared runtime is usually installed
func DefaultONNXLibrary() string {
	if runtime.GOOS == "linux" {
		return "/usr/lib/libonnxruntime.so"
	}
	return "/opt/homebrew/lib/libonnxruntime.dylib"
}

// NewImageExtractor loads the ONNX runtime and the model
func NewImageExtractor(modelPath, libPath string, logger zerolog.Logger) (*ImageExtractor, error) {
	if libPath == "" {
		libPath = DefaultONNXLibrary()
	}
	ort.SetSharedLibraryPath(libPath)
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, common.ConfigError("failed to initialize ONNX Runtime", err)
	}

	session, err := ort.NewDynamicAdvancedSession(modelPath,
		[]string{"images"}, []string{"output0"}, nil)
	if err != nil {
		ort.DestroyEnvironment()
		return nil, common.ConfigError("failed to create ONNX session", err)
	}

	return &ImageExtractor{
		ModelPath:     modelPath,
		ConfThreshold: defaultConfThreshold,
		NMSThreshold:  defaultNMSThreshold,
		MinBoxSize:    defaultMinBoxSize,
		Workers:       runtime.NumCPU(),
		session:       session,
		log:           logger.With().Str("component", "figures").Logger(),
	}, nil
}

// Close cleans up resources
func (e *ImageExtractor) Close() {
	if e.session != nil {
		e.session.Destroy()
	}
	ort.DestroyEnvironment()
}

// Detect returns Picture and Table crops of every page, ordered by page
// and then top to bottom. Pages that fail are logged and skipped.
func (e *ImageExtractor) Detect(ctx context.Context, pdf *common.PDFProcessor) ([]Detection, error) {
	var (
		mu  sync.Mutex
		all []Detection
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, e.Workers))
	for page := 0; page < pdf.NumPages; page++ {
		page := page
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			found, err := e.processPage(pdf, page)
			if err != nil {
				e.log.Warn().Err(err).Int("page", page).Msg("figure detection failed on page")
				return nil
			}
			mu.Lock()
			all = append(all, found...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(all, func(i, j int) bool {
		if all[i].Page != all[j].Page {
			return all[i].Page < all[j].Page
		}
		if all[i].Box.Min.Y != all[j].Box.Min.Y {
			return all[i].Box.Min.Y < all[j].Box.Min.Y
		}
		return all[i].Box.Min.X < all[j].Box.Min.X
	})
	e.log.Info().Int("pages", pdf.NumPages).Int("found", len(all)).Msg("figure detection finished")
	return all, nil
}

func (e *ImageExtractor) processPage(pdf *common.PDFProcessor, pageNum int) ([]Detection, error) {
	img, err := pdf.Doc.Image(pageNum)
	if err != nil {
		return nil, fmt.Errorf("render page: %w", err)
	}

	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("convert page: %w", err)
	}
	defer mat.Close()

	// Letterbox to the square model input
	originalW, originalH := mat.Cols(), mat.Rows()
	lb := newLetterbox(originalW, originalH, inputSize)
	newW := int(float64(originalW) * lb.scale)
	newH := int(float64(originalH) * lb.scale)

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(mat, &resized, image.Pt(newW, newH), 0, 0, gocv.InterpolationLinear)

	canvas := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(114, 114, 114, 0), inputSize, inputSize, gocv.MatTypeCV8UC3)
	defer canvas.Close()

	roi := canvas.Region(image.Rect(lb.dx, lb.dy, lb.dx+newW, lb.dy+newH))
	resized.CopyTo(&roi)
	roi.Close()

	planes := gocv.Split(canvas)
	defer func() {
		for _, p := range planes {
			p.Close()
		}
	}()

	inputData := make([]float32, 3*inputSize*inputSize)
	for c := 0; c < 3; c++ {
		fMat := gocv.NewMat()
		planes[c].ConvertTo(&fMat, gocv.MatTypeCV32F)
		fMat.MultiplyFloat(1.0 / 255.0)
		data, err := fMat.DataPtrFloat32()
		if err != nil {
			fMat.Close()
			return nil, fmt.Errorf("read tensor plane: %w", err)
		}
		copy(inputData[c*inputSize*inputSize:], data)
		fMat.Close()
	}

	inputTensor, err := ort.NewTensor(ort.NewShape(1, 3, inputSize, inputSize), inputData)
	if err != nil {
		return nil, fmt.Errorf("input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	outputTensor, err := ort.NewTensor(ort.NewShape(1, channels, anchors), make([]float32, channels*anchors))
	if err != nil {
		return nil, fmt.Errorf("output tensor: %w", err)
	}
	defer outputTensor.Destroy()

	if err := e.session.Run([]ort.Value{inputTensor}, []ort.Value{outputTensor}); err != nil {
		return nil, fmt.Errorf("inference: %w", err)
	}

	hits := decodeLayout(outputTensor.GetData(), anchors, lb, e.ConfThreshold)
	if len(hits.boxes) == 0 {
		return nil, nil
	}
	indices := gocv.NMSBoxes(hits.boxes, hits.scores, e.ConfThreshold, e.NMSThreshold)

	var hiRes image.Image
	var out []Detection
	for _, idx := range indices {
		label, box := hits.labels[idx], hits.boxes[idx]
		if label != "Picture" && label != "Table" {
			continue
		}
		if box.Dx() < e.MinBoxSize || box.Dy() < e.MinBoxSize {
			continue
		}

		if hiRes == nil {
			raw, err := pdf.Doc.ImagePNG(pageNum, cropDPI)
			if err != nil {
				return nil, fmt.Errorf("render page at %d dpi: %w", cropDPI, err)
			}
			if hiRes, err = png.Decode(bytes.NewReader(raw)); err != nil {
				return nil, fmt.Errorf("decode page render: %w", err)
			}
		}

		bounds := hiRes.Bounds()
		sx := float64(bounds.Dx()) / float64(originalW)
		sy := float64(bounds.Dy()) / float64(originalH)
		crop, err := cropPNG(hiRes, image.Rect(
			int(float64(box.Min.X)*sx), int(float64(box.Min.Y)*sy),
			int(float64(box.Max.X)*sx), int(float64(box.Max.Y)*sy),
		))
		if err != nil {
			continue
		}
		out = append(out, Detection{Page: pageNum, Label: label, Box: box, PNG: crop})
	}
	return out, nil
}

// FillFigures puts detections into the empty figure slots in order. The
// result always has MaxFigures entries; user figures are never replaced.
func FillFigures(figures []Figure, detections []Detection) []Figure {
	out := make([]Figure, common.MaxFigures)
	copy(out, figures)
	next := 0
	for i := range out {
		if len(out[i].Data) > 0 {
			continue
		}
		if next >= len(detections) {
			break
		}
		d := detections[next]
		next++
		out[i].Data = d.PNG
		out[i].Ext = "png"
		out[i].Source = fmt.Sprintf("auto:p%d:%s", d.Page+1, d.Label)
	}
	return out
}
