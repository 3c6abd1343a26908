package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"posterpro/common"
)

// Requester sends manuscript text to a provider and parses the reply. When
// the chosen provider fails it tries one other configured provider.
type Requester struct {
	providers map[string]Provider
	dummy     *DummyStore
	truncator *Truncator
	limiter   *rate.Limiter
	maxTokens int
	metrics   *common.Metrics
	log       zerolog.Logger
	now       func() time.Time
}

// RequesterOptions configures a Requester. Zero values pick defaults.
type RequesterOptions struct {
	MaxPromptTokens   int
	RequestsPerMinute float64
	Truncator         *Truncator
	Dummy             *DummyStore
	Metrics           *common.Metrics
	Logger            *zerolog.Logger
}

func NewRequester(providers map[string]Provider, opts RequesterOptions) *Requester {
	if opts.MaxPromptTokens <= 0 {
		opts.MaxPromptTokens = 8000
	}
	if opts.RequestsPerMinute <= 0 {
		opts.RequestsPerMinute = 30
	}
	if opts.Truncator == nil {
		opts.Truncator = NewTruncator()
	}
	if opts.Metrics == nil {
		opts.Metrics = common.NopMetrics()
	}
	logger := common.Log
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	if providers == nil {
		providers = map[string]Provider{}
	}

	return &Requester{
		providers: providers,
		dummy:     opts.Dummy,
		truncator: opts.Truncator,
		limiter:   rate.NewLimiter(rate.Limit(opts.RequestsPerMinute/60), 2),
		maxTokens: opts.MaxPromptTokens,
		metrics:   opts.Metrics,
		log:       logger.With().Str("component", "ai").Logger(),
		now:       time.Now,
	}
}

// Available lists configured providers in fallback order
func (r *Requester) Available() []string {
	var out []string
	for _, name := range ProviderOrder {
		if _, ok := r.providers[name]; ok {
			out = append(out, name)
		}
	}
	return out
}

// HasProvider reports whether name has a configured client
func (r *Requester) HasProvider(name string) bool {
	_, ok := r.providers[name]
	return ok
}

// attemptOrder is the preferred provider (or the first configured one)
// followed by at most one fallback.
func (r *Requester) attemptOrder(preferred string) []string {
	avail := r.Available()
	if len(avail) == 0 {
		return nil
	}
	first := avail[0]
	if r.HasProvider(preferred) {
		first = preferred
	} else if preferred != "" {
		r.log.Warn().Str("requested", preferred).Str("using", first).Msg("requested provider not configured")
	}
	order := []string{first}
	for _, name := range avail {
		if name != first {
			order = append(order, name)
			break
		}
	}
	return order
}

// Extract builds the prompt from page texts and returns parsed content and
// the provider that produced it.
func (r *Requester) Extract(ctx context.Context, pages []string, preferred string) (*common.ExtractedContent, string, error) {
	order := r.attemptOrder(preferred)
	if len(order) == 0 {
		return nil, "", common.ConfigError("set OPENAI_API_KEY, ANTHROPIC_API_KEY or GEMINI_API_KEY", common.ErrNotConfigured)
	}

	manuscript := strings.TrimSpace(strings.Join(pages, "\n"))
	if manuscript == "" {
		return nil, "", common.ExtractionError("no text extracted from PDF", common.ErrExtractionFailed)
	}
	manuscript, cut := r.truncator.Truncate(manuscript, r.maxTokens)
	if cut {
		r.log.Info().Int("max_tokens", r.maxTokens).Msg("manuscript truncated to token budget")
	}
	prompt := BuildPrompt(manuscript)

	var lastErr error
	for _, name := range order {
		content, err := r.try(ctx, name, prompt)
		if err == nil {
			if r.dummy != nil {
				if err := r.dummy.Save(content, r.now()); err != nil {
					r.log.Warn().Err(err).Msg("failed to save dummy data")
				}
			}
			return content, name, nil
		}
		if ctx.Err() != nil {
			return nil, name, common.ExtractionError("request cancelled", fmt.Errorf("%v: %w", ctx.Err(), common.ErrExtractionFailed))
		}
		r.log.Warn().Err(err).Str("provider", name).Msg("provider attempt failed")
		lastErr = err
	}
	return nil, order[len(order)-1], common.ExtractionError("all provider attempts failed", fmt.Errorf("%v: %w", lastErr, common.ErrExtractionFailed))
}

func (r *Requester) try(ctx context.Context, name, prompt string) (*common.ExtractedContent, error) {
	provider := r.providers[name]
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	start := time.Now()
	r.log.Info().Str("provider", name).Int("prompt_chars", len(prompt)).Msg("requesting poster content")
	raw, err := provider.Generate(ctx, SystemInstruction, prompt)
	r.metrics.ProviderLatency.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		r.metrics.ExtractionFailure.WithLabelValues(name).Inc()
		return nil, err
	}

	content, err := ParseResponse(raw)
	if err != nil {
		r.metrics.ExtractionFailure.WithLabelValues(name).Inc()
		return nil, err
	}
	r.log.Info().Str("provider", name).Str("title", content.Title).Dur("took", time.Since(start)).Msg("poster content received")
	return content, nil
}

// LoadDummy returns the stored dummy content
func (r *Requester) LoadDummy() (*common.ExtractedContent, error) {
	if r.dummy == nil {
		return nil, common.ExtractionError("dummy data is not configured", common.ErrExtractionFailed)
	}
	return r.dummy.Load()
}

// DummyStatus describes the stored dummy content
func (r *Requester) DummyStatus() DummyStatus {
	if r.dummy == nil {
		return DummyStatus{Message: "No dummy data file found"}
	}
	return r.dummy.Status()
}
