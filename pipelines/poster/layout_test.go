package poster

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLetterbox(t *testing.T) {
	lb := newLetterbox(2048, 1024, 1024)
	assert.Equal(t, 0.5, lb.scale)
	assert.Equal(t, 0, lb.dx)
	assert.Equal(t, 256, lb.dy)

	// a box centred in model space lands centred on the page
	r := lb.pageRect(512, 512, 100, 50)
	assert.Equal(t, image.Rect(924, 462, 1124, 562), r)
}

func TestDecodeLayout(t *testing.T) {
	const anchors = 3
	rows := 4 + len(layoutClasses)
	data := make([]float32, rows*anchors)
	set := func(row, j int, v float32) { data[row*anchors+j] = v }

	// anchor 0: a confident Picture
	set(0, 0, 50)
	set(1, 0, 50)
	set(2, 0, 20)
	set(3, 0, 10)
	set(4+6, 0, 0.9)
	set(4+9, 0, 0.2)
	// anchor 1: below threshold
	set(4+8, 1, 0.1)
	// anchor 2: a Table clipped at the origin
	set(0, 2, 5)
	set(1, 2, 5)
	set(2, 2, 20)
	set(3, 2, 20)
	set(4+8, 2, 0.6)

	hits := decodeLayout(data, anchors, letterbox{scale: 1}, 0.3)
	require.Len(t, hits.boxes, 2)
	assert.Equal(t, []string{"Picture", "Table"}, hits.labels)
	assert.Equal(t, []float32{0.9, 0.6}, hits.scores)
	assert.Equal(t, image.Rect(40, 45, 60, 55), hits.boxes[0])
	assert.Equal(t, image.Rect(0, 0, 15, 15), hits.boxes[1])
}

func TestDecodeLayoutShortTensor(t *testing.T) {
	hits := decodeLayout(make([]float32, 10), 5, letterbox{scale: 1}, 0.3)
	assert.Empty(t, hits.boxes)
}

func TestCropPNG(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 40, 20))
	img.Set(10, 5, color.RGBA{R: 255, A: 255})

	data, err := cropPNG(img, image.Rect(10, 5, 30, 15))
	require.NoError(t, err)
	out, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 20, out.Bounds().Dx())
	assert.Equal(t, 10, out.Bounds().Dy())
	r, _, _, _ := out.At(out.Bounds().Min.X, out.Bounds().Min.Y).RGBA()
	assert.Equal(t, uint32(0xffff), r)

	data, err = cropPNG(img, image.Rect(100, 100, 120, 120))
	require.NoError(t, err)
	out, err = png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 1, out.Bounds().Dx())
}
