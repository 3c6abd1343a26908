package ai

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"posterpro/common"
)

type fakeProvider struct {
	name  string
	reply string
	err   error

	mu      sync.Mutex
	calls   int
	prompts []string
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Generate(_ context.Context, _, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.prompts = append(f.prompts, prompt)
	return f.reply, f.err
}

const goodReply = `{"headline": "*Faster* protein folding", "title": "Folding at Scale", "authors": "A. Author, B. Author",
"affiliations": "1 Univ", "subtitle": "We fold faster", "Introduction": "Intro.", "Objective": "Aim.",
"Methods": "• One\n• Two", "Results": "Better.", "Discussion": "Meaning.", "Conclusions": "Done.", "References": "Ref A, Ref B."}`

func newTestRequester(providers map[string]Provider, dummy *DummyStore) *Requester {
	logger := zerolog.Nop()
	return NewRequester(providers, RequesterOptions{
		MaxPromptTokens:   1000,
		RequestsPerMinute: 60000,
		Truncator:         HeuristicTruncator(),
		Dummy:             dummy,
		Logger:            &logger,
	})
}

func TestParseResponseJSON(t *testing.T) {
	c, err := ParseResponse(goodReply)
	require.NoError(t, err)
	assert.Equal(t, "Folding at Scale", c.Title)
	assert.Equal(t, "• One\n• Two", c.Methods)
	assert.Equal(t, "Ref A, Ref B", c.References)
}

func TestParseResponseStripsFencesAndWrapperProse(t *testing.T) {
	raw := "```json\nHere's the structured content: {\"title\": \"T\", \"Results\": \"R\"}\n```"
	c, err := ParseResponse(raw)
	require.NoError(t, err)
	assert.Equal(t, "T", c.Title)
	assert.Equal(t, "R", c.Results)
	assert.Equal(t, MissingReferences, c.References)
}

func TestParseResponseRepairsMalformedJSON(t *testing.T) {
	raw := "{'title': 'Single quoted', \"Methods\": \"line one\nline two\", \"Results\": \"ok\",}"
	c, err := ParseResponse(raw)
	require.NoError(t, err)
	assert.Equal(t, "Single quoted", c.Title)
	assert.Contains(t, c.Methods, "line one")
}

func TestParseResponseCaseInsensitiveKeysAndAliases(t *testing.T) {
	c, err := ParseResponse(`{"TITLE": "t", "methodology": ["step 1", "step 2"], "Conclusion": "c", "sample_size": 40}`)
	require.NoError(t, err)
	assert.Equal(t, "t", c.Title)
	assert.Equal(t, "step 1\nstep 2", c.Methods)
	assert.Equal(t, "c", c.Conclusions)
}

func TestParseResponseExactKeyWinsOverAlias(t *testing.T) {
	c, err := ParseResponse(`{"Methods": "exact", "methodology": "alias"}`)
	require.NoError(t, err)
	assert.Equal(t, "exact", c.Methods)
}

func TestParseResponseSectionFormat(t *testing.T) {
	raw := `TITLE: Sparse Attention
AUTHORS: C. Writer
INTRODUCTION:
- Transformers are slow
- Attention is quadratic
RESULTS:
* 2x speedup
REFERENCES:
`
	c, err := ParseResponse(raw)
	require.NoError(t, err)
	assert.Equal(t, "Sparse Attention", c.Title)
	assert.Equal(t, "C. Writer", c.Authors)
	assert.Equal(t, "• Transformers are slow\n• Attention is quadratic", c.Introduction)
	assert.Equal(t, "• 2x speedup", c.Results)
	assert.Equal(t, MissingReferences, c.References)
}

func TestParseResponseFailures(t *testing.T) {
	for _, raw := range []string{"", "```json\n```", `{"unrelated": "x"}`, "I cannot help with that."} {
		_, err := ParseResponse(raw)
		assert.ErrorIs(t, err, common.ErrExtractionFailed, "input %q", raw)
	}
}

func TestCleanReferences(t *testing.T) {
	assert.Equal(t, MissingReferences, CleanReferences("  "))
	assert.Equal(t, MissingReferences, CleanReferences("[Reference details not found]."))
	assert.Equal(t, "Smith 2020, Doe 2021", CleanReferences("Smith 2020 , Doe 2021;"))
}

func TestExtractWithoutProvidersFailsBeforeNetwork(t *testing.T) {
	r := newTestRequester(nil, nil)
	_, _, err := r.Extract(context.Background(), []string{"text"}, ProviderOpenAI)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrNotConfigured)
	assert.Equal(t, common.KindConfig, common.KindOf(err))
}

func TestExtractUsesPreferredProvider(t *testing.T) {
	openai := &fakeProvider{name: ProviderOpenAI, reply: goodReply}
	claude := &fakeProvider{name: ProviderAnthropic, reply: goodReply}
	r := newTestRequester(map[string]Provider{ProviderOpenAI: openai, ProviderAnthropic: claude}, nil)

	c, used, err := r.Extract(context.Background(), []string{"page one", "page two"}, ProviderAnthropic)
	require.NoError(t, err)
	assert.Equal(t, ProviderAnthropic, used)
	assert.Equal(t, "Folding at Scale", c.Title)
	assert.Equal(t, 0, openai.calls)
	require.Equal(t, 1, claude.calls)
	assert.Contains(t, claude.prompts[0], "page one\npage two")
}

func TestExtractFallsBackOnce(t *testing.T) {
	openai := &fakeProvider{name: ProviderOpenAI, err: errors.New("503")}
	claude := &fakeProvider{name: ProviderAnthropic, reply: "not json and no headers"}
	gemini := &fakeProvider{name: ProviderGemini, reply: goodReply}
	r := newTestRequester(map[string]Provider{
		ProviderOpenAI: openai, ProviderAnthropic: claude, ProviderGemini: gemini,
	}, nil)

	_, _, err := r.Extract(context.Background(), []string{"text"}, ProviderOpenAI)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrExtractionFailed)
	assert.Equal(t, 1, openai.calls)
	assert.Equal(t, 1, claude.calls)
	assert.Equal(t, 0, gemini.calls, "only one fallback attempt is allowed")
}

func TestExtractUnknownPreferredUsesFirstConfigured(t *testing.T) {
	gemini := &fakeProvider{name: ProviderGemini, reply: goodReply}
	r := newTestRequester(map[string]Provider{ProviderGemini: gemini}, nil)

	_, used, err := r.Extract(context.Background(), []string{"text"}, ProviderOpenAI)
	require.NoError(t, err)
	assert.Equal(t, ProviderGemini, used)
}

func TestExtractEmptyTextFails(t *testing.T) {
	p := &fakeProvider{name: ProviderOpenAI, reply: goodReply}
	r := newTestRequester(map[string]Provider{ProviderOpenAI: p}, nil)
	_, _, err := r.Extract(context.Background(), []string{"  ", "\n"}, "")
	assert.ErrorIs(t, err, common.ErrExtractionFailed)
	assert.Equal(t, 0, p.calls)
}

func TestExtractTruncatesManuscript(t *testing.T) {
	p := &fakeProvider{name: ProviderOpenAI, reply: goodReply}
	r := newTestRequester(map[string]Provider{ProviderOpenAI: p}, nil)
	long := strings.Repeat("a", 10000)

	_, _, err := r.Extract(context.Background(), []string{long}, "")
	require.NoError(t, err)
	assert.NotContains(t, p.prompts[0], strings.Repeat("a", 4001))
	assert.Contains(t, p.prompts[0], strings.Repeat("a", 4000))
}

func TestExtractSavesDummyData(t *testing.T) {
	store := NewDummyStore(filepath.Join(t.TempDir(), "dummy.json"))
	p := &fakeProvider{name: ProviderOpenAI, reply: goodReply}
	r := newTestRequester(map[string]Provider{ProviderOpenAI: p}, store)

	_, _, err := r.Extract(context.Background(), []string{"text"}, "")
	require.NoError(t, err)

	loaded, err := r.LoadDummy()
	require.NoError(t, err)
	assert.Equal(t, "Folding at Scale", loaded.Title)

	st := r.DummyStatus()
	assert.True(t, st.Available)
	assert.Contains(t, st.Fields, "title")
	assert.Equal(t, "Folding at Scale", st.Preview["title"])
}

func TestDummyStoreMissingFile(t *testing.T) {
	store := NewDummyStore(filepath.Join(t.TempDir(), "none.json"))
	_, err := store.Load()
	assert.ErrorIs(t, err, common.ErrExtractionFailed)
	assert.False(t, store.Status().Available)
}

func TestDummyStoreReadsLegacyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dummy_api_response.json")
	legacy := `{"timestamp": "2024-05-01T10:11:12.123456", "data": {"title": "Legacy", "Results": "` +
		strings.Repeat("r", 150) + `"}}`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0644))

	store := NewDummyStore(path)
	c, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "Legacy", c.Title)

	st := store.Status()
	assert.Equal(t, "2024-05-01T10:11:12.123456", st.Timestamp)
	assert.Equal(t, strings.Repeat("r", 100)+"...", st.Preview["Results"])
}

func TestDummyStoreSaveWritesTimestamp(t *testing.T) {
	store := NewDummyStore(filepath.Join(t.TempDir(), "sub", "d.json"))
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, store.Save(&common.ExtractedContent{Title: "X"}, now))
	assert.Equal(t, "2025-01-02T03:04:05Z", store.Status().Timestamp)
}

func TestHeuristicTruncator(t *testing.T) {
	tr := HeuristicTruncator()
	out, cut := tr.Truncate("abcdefghij", 2)
	assert.True(t, cut)
	assert.Equal(t, "abcdefgh", out)

	out, cut = tr.Truncate("abc", 2)
	assert.False(t, cut)
	assert.Equal(t, "abc", out)
	assert.Equal(t, 3, tr.Count("abcdefghij"))
}

func TestNormalizeProvider(t *testing.T) {
	p, ok := NormalizeProvider(" Claude ")
	require.True(t, ok)
	assert.Equal(t, ProviderAnthropic, p)
	_, ok = NormalizeProvider("llama")
	assert.False(t, ok)
}

func TestBuildPromptContainsKeysAndManuscript(t *testing.T) {
	p := BuildPrompt("MANUSCRIPT BODY")
	for _, f := range []string{"headline", "title", "authors", "affiliations", "subtitle", "Introduction",
		"Objective", "Methods", "Results", "Discussion", "Conclusions", "References"} {
		assert.Contains(t, p, `"`+f+`"`)
	}
	assert.True(t, strings.HasSuffix(p, "MANUSCRIPT BODY"))
}

func TestLiveGemini(t *testing.T) {
	key := os.Getenv("GEMINI_API_KEY")
	if key == "" || os.Getenv("POSTERPRO_LIVE_TESTS") == "" {
		t.Skip("Skipping live provider test: GEMINI_API_KEY or POSTERPRO_LIVE_TESTS missing")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	g, err := NewGeminiClient(ctx, key, "", 0.4, 2048)
	require.NoError(t, err)
	defer g.Close()

	r := newTestRequester(map[string]Provider{ProviderGemini: g}, nil)
	c, _, err := r.Extract(ctx, []string{"Title: A study of test fixtures. We measured flakiness in 40 suites and halved it."}, ProviderGemini)
	require.NoError(t, err)
	assert.NotEmpty(t, c.Title)
}
