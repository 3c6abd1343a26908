package common

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"typed", ValidationError("bad", nil), KindValidation},
		{"wrapped typed", fmt.Errorf("outer: %w", TemplateError("x", nil)), KindTemplate},
		{"sentinel", fmt.Errorf("call: %w", ErrNotConfigured), KindConfig},
		{"extraction sentinel", ErrExtractionFailed, KindExtraction},
		{"plain", errors.New("boom"), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestErrorUnwrap(t *testing.T) {
	err := ExtractionError("provider failed", ErrExtractionFailed)
	assert.ErrorIs(t, err, ErrExtractionFailed)
	assert.Contains(t, err.Error(), "[extraction] provider failed")
}

func TestExtractedContentGetSet(t *testing.T) {
	var c ExtractedContent
	assert.True(t, c.IsEmpty())

	for _, f := range Fields() {
		c.Set(f, "v-"+string(f))
	}
	for _, f := range Fields() {
		assert.Equal(t, "v-"+string(f), c.Get(f))
	}
	assert.False(t, c.IsEmpty())
	assert.Equal(t, "", c.Get(Field("unknown")))

	var nilContent *ExtractedContent
	assert.Equal(t, "", nilContent.Get(FieldTitle))
}

func TestParseField(t *testing.T) {
	f, ok := ParseField("INTRODUCTION")
	require.True(t, ok)
	assert.Equal(t, FieldIntroduction, f)

	_, ok = ParseField("Acknowledgements")
	assert.False(t, ok)
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("DEFAULT_AI_PROVIDER", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("LOG_FORMAT", "")
	t.Setenv("ADMIN_EMAIL", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.DefaultProvider)
	assert.Equal(t, int64(500), cfg.MaxContentMB)
	assert.True(t, cfg.AutoCleanupUploads)
	assert.False(t, cfg.HasAnyProvider())
	assert.False(t, cfg.SMTPConfigured())
	assert.Equal(t, int64(500<<20), cfg.MaxContentBytes())
}

func TestLoadConfigRejectsUnknownProvider(t *testing.T) {
	t.Setenv("DEFAULT_AI_PROVIDER", "mystery")
	_, err := LoadConfig()
	require.Error(t, err)
	assert.Equal(t, KindConfig, KindOf(err))
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("DEFAULT_AI_PROVIDER", "Anthropic")
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")
	t.Setenv("USE_DUMMY_DATA", "yes")
	t.Setenv("MAX_FIGURE_MB", "not-a-number")
	t.Setenv("GMAIL_EMAIL", "bot@example.com")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "anthropic", cfg.DefaultProvider)
	assert.True(t, cfg.UseDummyData)
	assert.Equal(t, int64(50), cfg.MaxFigureMB)
	assert.Equal(t, "bot@example.com", cfg.SMTPUsername)
	assert.True(t, cfg.HasAnyProvider())
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "paper.pdf", SanitizeFilename("../../paper.pdf"))
	assert.Equal(t, "my_file.pptx", SanitizeFilename(`C:\tmp\my$file.pptx`))
	assert.Equal(t, "", SanitizeFilename(".."))
	assert.Equal(t, "", SanitizeFilename("/"))
}

func TestPosterFileName(t *testing.T) {
	now := time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)
	assert.Equal(t, "study_academic_20240309_140507.pptx", PosterFileName("uploads/study.pdf", now))
	assert.Equal(t, "poster_academic_20240309_140507.pptx", PosterFileName(".pdf", now))
}

func TestHasExt(t *testing.T) {
	assert.True(t, HasExt("Figure.PNG", "png", "jpg"))
	assert.True(t, HasExt("a.jpeg", ".jpeg"))
	assert.False(t, HasExt("a.gif", "png", "jpg", "jpeg"))
}

func TestMustNewMetricsReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	a := MustNewMetrics(reg)
	b := MustNewMetrics(reg)
	assert.Same(t, a.PostersGenerated, b.PostersGenerated)
}

func noisePNG(t *testing.T, size int) []byte {
	t.Helper()
	rng := rand.New(rand.NewSource(1))
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for x := 0; x < size; x++ {
		for y := 0; y < size; y++ {
			img.Set(x, y, color.RGBA{R: uint8(rng.Intn(256)), G: uint8(rng.Intn(256)), B: uint8(rng.Intn(256)), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestValidateImage(t *testing.T) {
	dir := t.TempDir()
	write := func(name string, data []byte) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, data, 0644))
		return p
	}

	good := write("good.png", noisePNG(t, 64))
	assert.NoError(t, ValidateImage(good, 10<<20))

	err := ValidateImage(good, 1024)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")

	err = ValidateImage(write("tiny.png", []byte("x")), 10<<20)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidUpload)
	assert.Contains(t, err.Error(), "too small")

	err = ValidateImage(write("fake.png", bytes.Repeat([]byte("not an image "), 200)), 10<<20)
	require.Error(t, err)
	assert.Equal(t, KindValidation, KindOf(err))

	err = ValidateImage(filepath.Join(dir, "missing.png"), 10<<20)
	assert.Equal(t, KindIO, KindOf(err))
}
