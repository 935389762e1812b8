// Package agent runs the question-answering pipeline: rewrite the user's
// question into a search query and filters, retrieve fused product
// candidates, and stream an answer grounded in the top sources.
//
// The three stages run sequentially, each under its own call timeout.
// Failures of the model, embedder or datastore are returned wrapped in
// [ErrExternalCall]; an empty retrieval is not an error.
package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/shopai-go/internal/budget"
	"github.com/54b3r/shopai-go/internal/extract"
	"github.com/54b3r/shopai-go/internal/filter"
	"github.com/54b3r/shopai-go/internal/logging"
	"github.com/54b3r/shopai-go/internal/rag"
)

// ErrExternalCall wraps a failed or timed-out call to the chat model, the
// embedder or the datastore.
var ErrExternalCall = errors.New("agent: external call failed")

// DefaultSourceLimit is the number of fused results placed in the prompt.
const DefaultSourceLimit = 5

// Pipeline stage names reported to an Observer.
const (
	StageExtract    = "extract"
	StageRetrieve   = "retrieve"
	StageSynthesize = "synthesize"
)

// Extractor rewrites a user question into a search query and filters.
// *extract.Extractor satisfies it.
type Extractor interface {
	Extract(ctx context.Context, userQuery string) (extract.Query, error)
}

// Retriever returns the fused ranking for a search query.
// *rag.HybridRetriever satisfies it.
type Retriever interface {
	Retrieve(ctx context.Context, searchQuery string, filters []filter.SearchFilter) ([]rag.FusedResult, error)
}

// Observer receives the duration and outcome of each pipeline stage.
type Observer interface {
	ObserveStage(stage string, d time.Duration, err error)
}

// Config holds the dependencies required to construct an Assistant.
type Config struct {
	// Extractor performs the query-rewrite call. Required.
	Extractor Extractor
	// Retriever runs hybrid retrieval. Required.
	Retriever Retriever
	// ChatModel streams the final answer. Required.
	ChatModel model.BaseChatModel
	// CallTimeout bounds the synthesis call. Zero leaves it to ctx.
	CallTimeout time.Duration
	// SourceLimit is how many results go into the prompt.
	// Defaults to DefaultSourceLimit if zero.
	SourceLimit int
	// MaxContextTokens is the estimated budget for the synthesis prompt.
	// Lowest-ranked sources are dropped to fit. Defaults to
	// budget.DefaultMaxContextTokens if zero.
	MaxContextTokens int
	// Observer is optional.
	Observer Observer
}

// Assistant answers product questions from the catalog.
// It holds no per-query state and is safe for concurrent use.
type Assistant struct {
	extractor        Extractor
	retriever        Retriever
	chat             model.BaseChatModel
	callTimeout      time.Duration
	sourceLimit      int
	maxContextTokens int
	observer         Observer
}

// New constructs an Assistant from the provided Config.
func New(cfg *Config) (*Assistant, error) {
	if cfg == nil {
		return nil, fmt.Errorf("agent: config must not be nil")
	}
	if cfg.Extractor == nil {
		return nil, fmt.Errorf("agent: Extractor must not be nil")
	}
	if cfg.Retriever == nil {
		return nil, fmt.Errorf("agent: Retriever must not be nil")
	}
	if cfg.ChatModel == nil {
		return nil, fmt.Errorf("agent: ChatModel must not be nil")
	}
	limit := cfg.SourceLimit
	if limit <= 0 {
		limit = DefaultSourceLimit
	}
	maxCtx := cfg.MaxContextTokens
	if maxCtx <= 0 {
		maxCtx = budget.DefaultMaxContextTokens
	}
	return &Assistant{
		extractor:        cfg.Extractor,
		retriever:        cfg.Retriever,
		chat:             cfg.ChatModel,
		callTimeout:      cfg.CallTimeout,
		sourceLimit:      limit,
		maxContextTokens: maxCtx,
		observer:         cfg.Observer,
	}, nil
}

// SearchOptions adjust a single Search call.
type SearchOptions struct {
	// SkipExtraction searches with the raw user query and no filters.
	SkipExtraction bool
}

// SearchResult is the outcome of extraction plus retrieval.
type SearchResult struct {
	// SearchQuery is the text that was embedded and matched.
	SearchQuery string `json:"search_query"`
	// Filters are the validated filters that restricted the candidates.
	Filters []filter.SearchFilter `json:"filters"`
	// Fallback is true when the tool arguments could not be decoded.
	Fallback bool `json:"fallback,omitempty"`
	// Results is the fused ranking, best first.
	Results []rag.FusedResult `json:"results"`
}

// Answer is the outcome of a full Query.
type Answer struct {
	SearchQuery string                `json:"search_query"`
	Filters     []filter.SearchFilter `json:"filters"`
	// Sources are the results that were placed in the prompt.
	Sources []rag.FusedResult `json:"sources"`
	// Text is the full streamed answer.
	Text string `json:"text"`
	// Citations are the bracketed product ids found in Text.
	Citations []int64 `json:"citations"`
}

// Search runs extraction (unless skipped) and retrieval.
func (a *Assistant) Search(ctx context.Context, userQuery string, opts SearchOptions) (*SearchResult, error) {
	logger := logging.FromContext(ctx)

	q := extract.Query{SearchQuery: userQuery}
	if !opts.SkipExtraction {
		start := time.Now()
		var err error
		q, err = a.extractor.Extract(ctx, userQuery)
		a.observe(StageExtract, start, err)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrExternalCall, err)
		}
	}
	logger.DebugContext(ctx, "agent: search query",
		slog.String("search_query", q.SearchQuery),
		slog.Any("filters", filterStrings(q.Filters)),
		slog.Bool("fallback", q.Fallback),
	)

	start := time.Now()
	results, err := a.retriever.Retrieve(ctx, q.SearchQuery, q.Filters)
	a.observe(StageRetrieve, start, err)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExternalCall, err)
	}
	if results == nil {
		results = []rag.FusedResult{}
	}
	filters := q.Filters
	if filters == nil {
		filters = []filter.SearchFilter{}
	}
	return &SearchResult{
		SearchQuery: q.SearchQuery,
		Filters:     filters,
		Fallback:    q.Fallback,
		Results:     results,
	}, nil
}

// Query runs the full pipeline and streams the answer to w as it arrives.
func (a *Assistant) Query(ctx context.Context, userQuery string, w io.Writer) (*Answer, error) {
	sr, err := a.Search(ctx, userQuery, SearchOptions{})
	if err != nil {
		return nil, err
	}
	return a.Synthesize(ctx, userQuery, sr, w)
}

// Sources returns the leading results that go into the prompt.
func (a *Assistant) Sources(sr *SearchResult) []rag.FusedResult {
	if len(sr.Results) <= a.sourceLimit {
		return sr.Results
	}
	return sr.Results[:a.sourceLimit]
}

// Messages builds the synthesis prompt for userQuery over sources, dropping
// the lowest-ranked sources if the prompt would exceed the token budget.
// It returns the messages and the sources actually included.
func (a *Assistant) Messages(ctx context.Context, userQuery string, sources []rag.FusedResult) ([]*schema.Message, []rag.FusedResult) {
	formatted := make([]string, len(sources))
	for i, s := range sources {
		formatted[i] = FormatSource(s)
	}

	fixed := []*schema.Message{
		schema.SystemMessage(SystemPrompt),
		schema.UserMessage(BuildUserPrompt(userQuery, "")),
	}
	kept := budget.TrimSources(fixed, formatted, a.maxContextTokens)
	if dropped := len(formatted) - len(kept); dropped > 0 {
		logging.FromContext(ctx).WarnContext(ctx, "budget: dropped sources to fit context window",
			slog.Int("dropped", dropped),
			slog.Int("retained", len(kept)),
			slog.Int("max_tokens", a.maxContextTokens),
		)
	}

	sources = sources[:len(kept)]
	return []*schema.Message{
		schema.SystemMessage(SystemPrompt),
		schema.UserMessage(BuildUserPrompt(userQuery, FormatSources(sources))),
	}, sources
}

// Prompt is a synthesis prompt and the sources placed in it.
type Prompt struct {
	Messages []*schema.Message
	// Sources are the results in the prompt, after budget trimming.
	Sources []rag.FusedResult
}

// Prepare builds the synthesis prompt for userQuery over the leading
// results of sr. Callers that announce sources before the answer streams
// should announce Prompt.Sources.
func (a *Assistant) Prepare(ctx context.Context, userQuery string, sr *SearchResult) *Prompt {
	msgs, sources := a.Messages(ctx, userQuery, a.Sources(sr))
	return &Prompt{Messages: msgs, Sources: sources}
}

// Synthesize streams an answer for userQuery grounded in the top results of
// sr. With no results the prompt carries an empty source block and the
// model is instructed to say it does not know.
func (a *Assistant) Synthesize(ctx context.Context, userQuery string, sr *SearchResult, w io.Writer) (*Answer, error) {
	return a.Respond(ctx, sr, a.Prepare(ctx, userQuery, sr), w)
}

// Respond streams the model's answer to p into w and collects citations.
func (a *Assistant) Respond(ctx context.Context, sr *SearchResult, p *Prompt, w io.Writer) (*Answer, error) {
	logger := logging.FromContext(ctx)
	sources := p.Sources

	start := time.Now()
	text, err := a.stream(ctx, p.Messages, w)
	a.observe(StageSynthesize, start, err)
	if err != nil {
		return nil, err
	}

	cites := Citations(text)
	if unknown := unknownCitations(cites, sources); len(unknown) > 0 {
		logger.WarnContext(ctx, "agent: answer cites products not in sources",
			slog.Any("unknown", unknown),
		)
	}
	logger.DebugContext(ctx, "agent: answer complete",
		slog.Int("sources", len(sources)),
		slog.Any("citations", cites),
		slog.Int("chars", len(text)),
	)

	return &Answer{
		SearchQuery: sr.SearchQuery,
		Filters:     sr.Filters,
		Sources:     sources,
		Text:        text,
		Citations:   cites,
	}, nil
}

// stream runs the synthesis call at temperature 0, copying each chunk to w
// and returning the accumulated text.
func (a *Assistant) stream(ctx context.Context, msgs []*schema.Message, w io.Writer) (string, error) {
	if a.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.callTimeout)
		defer cancel()
	}

	sr, err := a.chat.Stream(ctx, msgs, model.WithTemperature(0))
	if err != nil {
		return "", fmt.Errorf("%w: synthesize: %w", ErrExternalCall, err)
	}
	defer sr.Close()

	var buf strings.Builder
	for {
		msg, err := sr.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return buf.String(), fmt.Errorf("%w: synthesize: receive: %w", ErrExternalCall, err)
		}
		if msg == nil || msg.Content == "" {
			continue
		}
		buf.WriteString(msg.Content)
		if _, err := io.WriteString(w, msg.Content); err != nil {
			return buf.String(), fmt.Errorf("agent: write: %w", err)
		}
	}
	return buf.String(), nil
}

func (a *Assistant) observe(stage string, start time.Time, err error) {
	if a.observer != nil {
		a.observer.ObserveStage(stage, time.Since(start), err)
	}
}

func filterStrings(filters []filter.SearchFilter) []string {
	out := make([]string, len(filters))
	for i, f := range filters {
		out[i] = f.String()
	}
	return out
}
