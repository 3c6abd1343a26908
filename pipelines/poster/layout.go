package poster

import (
	"bytes"
	"image"
	"image/draw"
	"image/png"
)

// DocLayNet classes in model output order
var layoutClasses = []string{
	"Caption", "Footnote", "Formula", "List-item", "Page-footer",
	"Page-header", "Picture", "Section-header", "Table", "Text", "Title",
}

const (
	defaultConfThreshold = 0.30
	defaultNMSThreshold  = 0.45
	defaultMinBoxSize    = 30
)

// letterbox maps model input coordinates back onto the rendered page
type letterbox struct {
	scale  float64
	dx, dy int
}

func newLetterbox(w, h, size int) letterbox {
	scale := float64(size) / float64(max(w, h))
	return letterbox{
		scale: scale,
		dx:    (size - int(float64(w)*scale)) / 2,
		dy:    (size - int(float64(h)*scale)) / 2,
	}
}

// pageRect converts a centre/size box from model space to page pixels,
// clamping the top-left corner at the page origin.
func (l letterbox) pageRect(cx, cy, w, h float32) image.Rectangle {
	s := float32(l.scale)
	cx = (cx - float32(l.dx)) / s
	cy = (cy - float32(l.dy)) / s
	w, h = w/s, h/s
	x0 := max(cx-w/2, 0)
	y0 := max(cy-h/2, 0)
	return image.Rect(int(x0), int(y0), int(cx+w/2), int(cy+h/2))
}

// layoutHits is the decoded model output before NMS
type layoutHits struct {
	boxes  []image.Rectangle
	labels []string
	scores []float32
}

// decodeLayout reads the [4+classes, anchors] output tensor and keeps
// anchors whose best class score is above conf.
func decodeLayout(data []float32, anchors int, lb letterbox, conf float32) layoutHits {
	var hits layoutHits
	rows := 4 + len(layoutClasses)
	if anchors <= 0 || len(data) < rows*anchors {
		return hits
	}
	at := func(row, j int) float32 { return data[row*anchors+j] }

	for j := 0; j < anchors; j++ {
		best, class := float32(0), -1
		for c := range layoutClasses {
			if score := at(4+c, j); score > best {
				best, class = score, c
			}
		}
		if class < 0 || best <= conf {
			continue
		}
		hits.boxes = append(hits.boxes, lb.pageRect(at(0, j), at(1, j), at(2, j), at(3, j)))
		hits.labels = append(hits.labels, layoutClasses[class])
		hits.scores = append(hits.scores, best)
	}
	return hits
}

// cropPNG encodes the part of img inside r. An r outside img gives a
// 1x1 image.
func cropPNG(img image.Image, r image.Rectangle) ([]byte, error) {
	r = r.Intersect(img.Bounds())
	var crop image.Image
	if r.Empty() {
		crop = image.NewRGBA(image.Rect(0, 0, 1, 1))
	} else if si, ok := img.(interface {
		SubImage(image.Rectangle) image.Image
	}); ok {
		crop = si.SubImage(r)
	} else {
		dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
		draw.Draw(dst, dst.Bounds(), img, r.Min, draw.Src)
		crop = dst
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, crop); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
