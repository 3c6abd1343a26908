package templates

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"posterpro/common"
	"posterpro/pptx/pptxtest"
)

func newTestLibrary(t *testing.T) (*Library, string) {
	t.Helper()
	base := t.TempDir()
	root := filepath.Join(base, "template_library")
	lib := NewLibrary(root, filepath.Join(base, "default_template.pptx"), nil, nil)
	require.NoError(t, lib.Init())
	return lib, base
}

func writeTestFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Blue Template", DisplayName("blue_template"))
	assert.Equal(t, "Clean 5-Panel Flow Template", DisplayName("clean 5-panel flow template"))
	assert.Equal(t, "Personal Blue Basic", DisplayName("PERSONAL_BLUE_BASIC"))
	assert.Equal(t, "Blue Template", TemplateName("/lib/available/blue_template.pptx"))
}

func TestLibraryListTiersAndPreviews(t *testing.T) {
	lib, _ := newTestLibrary(t)
	writeTestFile(t, filepath.Join(lib.Root, "available", "green_template.pptx"), "x")
	writeTestFile(t, filepath.Join(lib.Root, "available", "green_template_preview.png"), "p")
	writeTestFile(t, filepath.Join(lib.Root, "available", "blue_template.pptx"), "xx")
	writeTestFile(t, filepath.Join(lib.Root, "available", "blue_template_preview.png"), "p")
	writeTestFile(t, filepath.Join(lib.Root, "available", "blue_template_manual_preview.jpg"), "m")
	writeTestFile(t, filepath.Join(lib.Root, "premium", "playground_template.pptx"), "x")
	writeTestFile(t, filepath.Join(lib.Root, "coming_soon", "grey_classic.pptx"), "x")
	writeTestFile(t, filepath.Join(lib.Root, "available", "notes.txt"), "ignored")

	list, err := lib.List()
	require.NoError(t, err)
	require.Len(t, list, 4)

	names := make([]string, len(list))
	for i, info := range list {
		names[i] = info.Name
	}
	assert.Equal(t, []string{"Blue Template", "Green Template", "Grey Classic", "Playground Template"}, names)

	blue := list[0]
	assert.Equal(t, "blue_template_manual_preview.jpg", blue.Preview)
	assert.Equal(t, TierAvailable, blue.Tier)
	assert.Equal(t, int64(2), blue.Size)
	assert.True(t, blue.HasStyle)
	assert.False(t, blue.IsPremium)

	assert.Equal(t, "green_template_preview.png", list[1].Preview)
	assert.True(t, list[2].IsComingSoon)
	assert.True(t, list[3].IsPremium)
}

func TestLibraryListMissingRoot(t *testing.T) {
	lib := NewLibrary(filepath.Join(t.TempDir(), "missing"), "", nil, nil)
	list, err := lib.List()
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestLibraryFindAndResolve(t *testing.T) {
	lib, base := newTestLibrary(t)
	writeTestFile(t, filepath.Join(lib.Root, "premium", "p.pptx"), "x")

	path, tier, err := lib.Find("p.pptx")
	require.NoError(t, err)
	assert.Equal(t, TierPremium, tier)
	assert.Equal(t, filepath.Join(lib.Root, "premium", "p.pptx"), path)

	_, _, err = lib.Find("missing.pptx")
	assert.ErrorIs(t, err, common.ErrTemplateNotFound)

	_, _, err = lib.Find("../secrets.pptx")
	assert.ErrorIs(t, err, common.ErrInvalidUpload)

	_, err = lib.Resolve("")
	assert.ErrorIs(t, err, common.ErrTemplateNotFound)

	writeTestFile(t, filepath.Join(base, "default_template.pptx"), "d")
	path, err = lib.Resolve("default")
	require.NoError(t, err)
	assert.Equal(t, lib.DefaultTemplate, path)

	path, err = lib.Resolve("p.pptx")
	require.NoError(t, err)
	assert.Contains(t, path, "premium")
}

func TestLibrarySaveAndPreview(t *testing.T) {
	lib, _ := newTestLibrary(t)

	name, err := lib.Save("My Poster.pptx", strings.NewReader("deck"), TierAvailable)
	require.NoError(t, err)
	assert.Equal(t, "My Poster.pptx", name)

	_, err = lib.Save("notes.txt", strings.NewReader("x"), TierAvailable)
	assert.ErrorIs(t, err, common.ErrInvalidUpload)

	preview, err := lib.SavePreview(name, "shot.JPG", strings.NewReader("img"), TierAvailable)
	require.NoError(t, err)
	assert.Equal(t, "My Poster_manual_preview.jpg", preview)

	_, err = lib.SavePreview(name, "shot.gif", strings.NewReader("img"), TierAvailable)
	assert.ErrorIs(t, err, common.ErrInvalidUpload)

	path, err := lib.Preview(name)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(lib.Root, "available", preview), path)

	path, err = lib.Preview(preview)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(lib.Root, "available", preview), path)

	_, err = lib.Preview("other.pptx")
	assert.ErrorIs(t, err, common.ErrTemplateNotFound)
}

func TestLibraryArchive(t *testing.T) {
	lib, base := newTestLibrary(t)
	writeTestFile(t, filepath.Join(lib.Root, "coming_soon", "t.pptx"), "x")
	writeTestFile(t, filepath.Join(lib.Root, "coming_soon", "t_preview.png"), "p")
	writeTestFile(t, filepath.Join(lib.Root, "coming_soon", "t_manual_preview.png"), "m")

	_, err := lib.Archive("default")
	assert.ErrorIs(t, err, common.ErrInvalidUpload)

	moved, err := lib.Archive("t.pptx")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"t.pptx", "t_preview.png", "t_manual_preview.png"}, moved)

	archive := filepath.Join(base, ArchiveDirName)
	for _, f := range moved {
		assert.FileExists(t, filepath.Join(archive, f))
		assert.NoFileExists(t, filepath.Join(lib.Root, "coming_soon", f))
	}

	_, err = lib.Archive("t.pptx")
	assert.ErrorIs(t, err, common.ErrTemplateNotFound)
}

func TestParseTier(t *testing.T) {
	tier, err := ParseTier("")
	require.NoError(t, err)
	assert.Equal(t, TierAvailable, tier)

	tier, err = ParseTier("Premium")
	require.NoError(t, err)
	assert.Equal(t, TierPremium, tier)

	_, err = ParseTier("archive")
	assert.Error(t, err)
}

func TestInventoryCachesAndInvalidates(t *testing.T) {
	dir := t.TempDir()
	path := pptxtest.Write(t, dir, "deck.pptx", []pptxtest.Shape{
		{Name: "TitleBox", Text: "T", W: 100, H: 100},
	})

	inv := NewInventory(4)
	names, err := inv.Shapes(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"TitleBox"}, names)
	assert.Equal(t, 1, inv.Len())

	// mutating the returned slice must not touch the cache
	names[0] = "changed"
	again, err := inv.Shapes(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"TitleBox"}, again)

	pptxtest.Write(t, dir, "deck.pptx", []pptxtest.Shape{
		{Name: "TitleBox", Text: "T", W: 100, H: 100},
		{Name: "AuthorBox", Text: "A", W: 100, H: 100},
	})
	later := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, later, later))

	names, err = inv.Shapes(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"TitleBox", "AuthorBox"}, names)

	inv.Forget(path)
	assert.Equal(t, 0, inv.Len())

	_, err = inv.Shapes(filepath.Join(dir, "missing.pptx"))
	assert.ErrorIs(t, err, common.ErrTemplateNotFound)
}

func TestCatalogBuiltin(t *testing.T) {
	c, err := LoadCatalog("")
	require.NoError(t, err)

	assert.True(t, c.IsPremium("Playground Template"))
	assert.True(t, c.IsComingSoon("grey classic"))
	assert.True(t, c.IsNew("Personal Blue Basic"))
	assert.False(t, c.IsNew("Blue Template"))

	d, ok := c.Description("blue_template.pptx")
	require.True(t, ok)
	assert.Equal(t, "Professional Blue Template", d.Title)
	assert.Len(t, d.ChooseIf, 4)

	_, ok = c.Description("nope")
	assert.False(t, ok)
}

func TestCatalogMissingFileFallsBack(t *testing.T) {
	c, err := LoadCatalog(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.True(t, c.HasStyle("Green Template"))
}

func TestCatalogFileOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "configs.yaml")
	writeTestFile(t, path, `
premium: [Gold]
defaults:
  sections:
    main_body: {font_color: "#111111", font_family: Arial, alignment: justify}
  sizes:
    main_body: {short: 20}
templates:
  Gold:
    sections:
      title: {font_color: "#FFD700", font_family: Georgia, bold: true, alignment: center}
`)
	c, err := LoadCatalog(path)
	require.NoError(t, err)
	assert.True(t, c.IsPremium("gold"))

	style := c.Style("gold.pptx")
	assert.Equal(t, "Georgia", style.Font(SectionTitle).Family)
	assert.Equal(t, "ctr", style.Font(SectionTitle).Align())
	// sections the template omits come from defaults
	assert.Equal(t, "Arial", style.Font(SectionReferences).Family)
	assert.Equal(t, "just", style.Font(SectionMainBody).Align())
	assert.Equal(t, 20.0, style.SizeFor(SectionMainBody, "body", ""))
}

func TestParseCatalogRejects(t *testing.T) {
	_, err := ParseCatalog([]byte("templates: [unclosed"))
	assert.Equal(t, common.KindTemplate, common.KindOf(err))

	_, err = ParseCatalog([]byte("templates:\n  Bad:\n    sizes:\n      title: {short: -1}\n"))
	assert.Error(t, err)
}

func TestStyleSizeTiers(t *testing.T) {
	c := DefaultCatalog()
	style := c.Style("Blue Template")

	assert.Equal(t, 48.0, style.SizeFor(SectionTitle, strings.Repeat("t", 80), ""))
	assert.Equal(t, 38.0, style.SizeFor(SectionTitle, strings.Repeat("t", 81), ""))
	assert.Equal(t, 34.0, style.SizeFor(SectionTitle, strings.Repeat("t", 121), ""))

	// 48 * 0.6 rounds to 29, raised to the 32 minimum
	assert.Equal(t, 32.0, style.SizeFor(SectionSubtitle, "sub", "short title"))

	assert.Equal(t, 18.0, style.SizeFor(SectionAuthors, strings.Repeat("a", 80), ""))
	assert.Equal(t, 16.0, style.SizeFor(SectionAuthors, strings.Repeat("a", 160), ""))
	assert.Equal(t, 13.0, style.SizeFor(SectionAuthors, strings.Repeat("a", 250), ""))
	assert.Equal(t, 11.0, style.SizeFor(SectionAuthors, strings.Repeat("a", 251), ""))

	assert.Equal(t, 18.0, style.SizeFor(SectionMainBody, strings.Repeat("b", 2000), ""))
}

func TestStyleFixedSizesAndFallbacks(t *testing.T) {
	c := DefaultCatalog()

	impact := c.Style("headline_impact_template.pptx")
	assert.Equal(t, 125.0, impact.SizeFor(SectionHeadline, "Big *news*", ""))
	assert.Equal(t, 32.0, impact.SizeFor(SectionMainBody, "x", ""))
	assert.Equal(t, 32.0, impact.SizeFor(SectionFigureDesc, "x", ""))
	assert.Equal(t, 24.0, impact.SizeFor(SectionReferences, strings.Repeat("r", 400), ""))

	// Green has no extra-long tier; long is used instead
	green := c.Style("Green Template")
	assert.Equal(t, 36.0, green.SizeFor(SectionAuthors, strings.Repeat("a", 300), ""))
	assert.Equal(t, 64.0, green.SizeFor(SectionSubtitle, "s", "short"))

	unknown := c.Style("Never Seen")
	assert.Equal(t, "Futura", unknown.Font(SectionTitle).Family)
	assert.Equal(t, 48.0, unknown.SizeFor(SectionTitle, "short", ""))
}

func TestFontSettingsRunStyle(t *testing.T) {
	f := FontSettings{Color: "#05bbd6", Family: "Aptos", Bold: true, Alignment: "middle"}
	rs := f.RunStyle()
	assert.Equal(t, "05bbd6", rs.Color)
	assert.Equal(t, "Aptos", rs.Font)
	require.NotNil(t, rs.Bold)
	assert.True(t, *rs.Bold)
	require.NotNil(t, rs.Italic)
	assert.False(t, *rs.Italic)
	assert.Equal(t, "ctr", f.Align())
	assert.Equal(t, "", FontSettings{}.Align())
}

func TestSectionFor(t *testing.T) {
	assert.Equal(t, SectionTitle, SectionFor(common.FieldTitle))
	assert.Equal(t, SectionReferences, SectionFor(common.FieldReferences))
	assert.Equal(t, SectionMainBody, SectionFor(common.FieldMethods))
	assert.Equal(t, SectionHeadline, SectionFor(common.FieldHeadline))
}

func TestCatalogListEdits(t *testing.T) {
	c := DefaultCatalog()

	assert.False(t, c.AddPremium("playground template"))
	assert.True(t, c.AddPremium("Aurora"))
	assert.True(t, c.IsPremium("aurora"))
	assert.True(t, c.RemovePremium("AURORA"))
	assert.False(t, c.RemovePremium("Aurora"))
	assert.False(t, c.IsPremium("Aurora"))

	assert.True(t, c.AddComingSoon("Aurora"))
	assert.False(t, c.AddComingSoon("Aurora"))
	assert.True(t, c.IsComingSoon("Aurora"))
	assert.True(t, c.RemoveComingSoon("Aurora"))

	// callers get copies
	list := c.PremiumTemplates()
	list[0] = "changed"
	assert.NotEqual(t, "changed", c.PremiumTemplates()[0])
}

func TestCatalogListEditsConcurrent(t *testing.T) {
	c := DefaultCatalog()
	before := len(c.ComingSoonTemplates())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			name := fmt.Sprintf("Draft %d", i)
			c.AddComingSoon(name)
			_ = c.IsComingSoon(name)
			_ = c.ComingSoonTemplates()
		}()
	}
	wg.Wait()
	assert.Len(t, c.ComingSoonTemplates(), before+20)
}
