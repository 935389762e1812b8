package agent

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/shopai-go/internal/budget"
	"github.com/54b3r/shopai-go/internal/extract"
	"github.com/54b3r/shopai-go/internal/filter"
	"github.com/54b3r/shopai-go/internal/rag"
)

// ---------------------------------------------------------------------------
// fakes
// ---------------------------------------------------------------------------

type fakeExtractor struct {
	q     extract.Query
	err   error
	calls int
}

func (f *fakeExtractor) Extract(_ context.Context, userQuery string) (extract.Query, error) {
	f.calls++
	if f.err != nil {
		return extract.Query{}, f.err
	}
	if f.q.SearchQuery == "" {
		return extract.Query{SearchQuery: userQuery}, nil
	}
	return f.q, nil
}

type fakeRetriever struct {
	results    []rag.FusedResult
	err        error
	gotQuery   string
	gotFilters []filter.SearchFilter
}

func (f *fakeRetriever) Retrieve(_ context.Context, q string, filters []filter.SearchFilter) ([]rag.FusedResult, error) {
	f.gotQuery = q
	f.gotFilters = filters
	return f.results, f.err
}

type fakeChat struct {
	chunks  []string
	err     error
	delay   time.Duration
	gotMsgs []*schema.Message
	gotTemp *float32
}

func (f *fakeChat) Generate(context.Context, []*schema.Message, ...model.Option) (*schema.Message, error) {
	return nil, errors.New("not used")
}

func (f *fakeChat) Stream(ctx context.Context, msgs []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	f.gotMsgs = msgs
	f.gotTemp = model.GetCommonOptions(nil, opts...).Temperature
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	out := make([]*schema.Message, len(f.chunks))
	for i, c := range f.chunks {
		out[i] = schema.AssistantMessage(c, nil)
	}
	return schema.StreamReaderFromArray(out), nil
}

type recordingObserver struct{ stages []string }

func (r *recordingObserver) ObserveStage(stage string, _ time.Duration, _ error) {
	r.stages = append(r.stages, stage)
}

func results(ids ...int64) []rag.FusedResult {
	out := make([]rag.FusedResult, len(ids))
	for i, id := range ids {
		out[i] = rag.FusedResult{ProductID: id, Name: "Product", Description: "Desc", Price: 10, Brand: "Acme"}
	}
	return out
}

func newAssistant(t *testing.T, ex Extractor, rt Retriever, chat model.BaseChatModel, mut ...func(*Config)) *Assistant {
	t.Helper()
	cfg := &Config{Extractor: ex, Retriever: rt, ChatModel: chat}
	for _, m := range mut {
		m(cfg)
	}
	a, err := New(cfg)
	require.NoError(t, err)
	return a
}

// ---------------------------------------------------------------------------
// prompt formatting
// ---------------------------------------------------------------------------

func TestFormatSources(t *testing.T) {
	t.Parallel()

	got := FormatSources([]rag.FusedResult{
		{ProductID: 3, Name: "Trail Runner", Description: "Grippy shoe", Price: 89.5},
		{ProductID: 12, Name: "Rain Shell", Description: "Waterproof", Price: 120},
	})
	assert.Equal(t,
		"[3]: Name: Trail Runner Description: Grippy shoe Price:89.50\n\n"+
			"[12]: Name: Rain Shell Description: Waterproof Price:120.00\n\n",
		got)
	assert.Empty(t, FormatSources(nil))
}

func TestBuildUserPrompt(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "shoes?\nSources:\n[1]: x\n\n", BuildUserPrompt("shoes?", "[1]: x\n\n"))
	assert.Equal(t, "shoes?\nSources:\n", BuildUserPrompt("shoes?", ""))
}

func TestCitations(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []int64{27, 51}, Citations("Try [27][51] or again [27]."))
	assert.Nil(t, Citations("no citations here"))
	assert.Equal(t, []int64{4}, Citations("[4, 5] is not a citation but [4] is"))
}

// ---------------------------------------------------------------------------
// Query
// ---------------------------------------------------------------------------

func TestQuery_HappyPath(t *testing.T) {
	t.Parallel()

	f, err := filter.New(filter.ColumnPrice, filter.OpLt, filter.Number(100))
	require.NoError(t, err)
	ex := &fakeExtractor{q: extract.Query{SearchQuery: "climbing gear", Filters: []filter.SearchFilter{f}}}
	rt := &fakeRetriever{results: results(9, 8, 7, 6, 5, 4, 3)}
	chat := &fakeChat{chunks: []string{"Try the harness ", "[9] and rope [8]."}}
	obs := &recordingObserver{}
	a := newAssistant(t, ex, rt, chat, func(c *Config) { c.Observer = obs })

	var out bytes.Buffer
	ans, err := a.Query(context.Background(), "climbing gear under $100", &out)
	require.NoError(t, err)

	assert.Equal(t, "Try the harness [9] and rope [8].", out.String())
	assert.Equal(t, out.String(), ans.Text)
	assert.Equal(t, []int64{9, 8}, ans.Citations)
	assert.Len(t, ans.Sources, DefaultSourceLimit)
	assert.Equal(t, "climbing gear", rt.gotQuery)
	assert.Equal(t, []filter.SearchFilter{f}, rt.gotFilters)
	assert.Equal(t, []string{StageExtract, StageRetrieve, StageSynthesize}, obs.stages)

	require.Len(t, chat.gotMsgs, 2)
	assert.Equal(t, SystemPrompt, chat.gotMsgs[0].Content)
	user := chat.gotMsgs[1].Content
	assert.True(t, strings.HasPrefix(user, "climbing gear under $100\nSources:\n[9]: Name: Product"))
	assert.NotContains(t, user, "[4]:", "only the top sources are sent")
	require.NotNil(t, chat.gotTemp)
	assert.Equal(t, float32(0), *chat.gotTemp)
}

func TestQuery_EmptyRetrieval(t *testing.T) {
	t.Parallel()

	chat := &fakeChat{chunks: []string{"I don't know."}}
	a := newAssistant(t, &fakeExtractor{}, &fakeRetriever{}, chat)

	var out bytes.Buffer
	ans, err := a.Query(context.Background(), "unicorn saddles", &out)
	require.NoError(t, err)
	assert.Empty(t, ans.Sources)
	assert.Equal(t, "unicorn saddles\nSources:\n", chat.gotMsgs[1].Content)
}

func TestQuery_ExternalFailures(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	cases := []struct {
		name string
		ex   *fakeExtractor
		rt   *fakeRetriever
		chat *fakeChat
	}{
		{"extract", &fakeExtractor{err: boom}, &fakeRetriever{}, &fakeChat{}},
		{"retrieve", &fakeExtractor{}, &fakeRetriever{err: boom}, &fakeChat{}},
		{"synthesize", &fakeExtractor{}, &fakeRetriever{}, &fakeChat{err: boom}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			a := newAssistant(t, tc.ex, tc.rt, tc.chat)
			_, err := a.Query(context.Background(), "q", &bytes.Buffer{})
			assert.ErrorIs(t, err, ErrExternalCall)
			assert.ErrorIs(t, err, boom)
		})
	}
}

func TestQuery_SynthesisTimeout(t *testing.T) {
	t.Parallel()

	chat := &fakeChat{delay: time.Second, chunks: []string{"late"}}
	a := newAssistant(t, &fakeExtractor{}, &fakeRetriever{}, chat, func(c *Config) {
		c.CallTimeout = 10 * time.Millisecond
	})

	_, err := a.Query(context.Background(), "q", &bytes.Buffer{})
	assert.ErrorIs(t, err, ErrExternalCall)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSearch_SkipExtraction(t *testing.T) {
	t.Parallel()

	ex := &fakeExtractor{}
	rt := &fakeRetriever{results: results(1)}
	a := newAssistant(t, ex, rt, &fakeChat{})

	sr, err := a.Search(context.Background(), "raw text", SearchOptions{SkipExtraction: true})
	require.NoError(t, err)
	assert.Zero(t, ex.calls)
	assert.Equal(t, "raw text", rt.gotQuery)
	assert.Empty(t, rt.gotFilters)
	assert.NotNil(t, sr.Filters)
	assert.Len(t, sr.Results, 1)
}

func TestMessages_BudgetDropsLowestRanked(t *testing.T) {
	t.Parallel()

	src := results(1, 2)
	src[0].Description = strings.Repeat("a", 40)
	src[1].Description = strings.Repeat("b", 400)

	// Room for the fixed prompt and the first source only.
	fixed := budget.EstimateMessages([]*schema.Message{
		schema.SystemMessage(SystemPrompt),
		schema.UserMessage(BuildUserPrompt("q", "")),
	})
	limit := fixed + budget.Estimate(FormatSource(src[0])) + 10

	a := newAssistant(t, &fakeExtractor{}, &fakeRetriever{}, &fakeChat{}, func(c *Config) {
		c.MaxContextTokens = limit
	})

	msgs, kept := a.Messages(context.Background(), "q", src)
	require.Len(t, kept, 1)
	assert.Equal(t, int64(1), kept[0].ProductID)
	assert.NotContains(t, msgs[1].Content, "[2]:")
}

func TestPrepare_SourcesMatchPrompt(t *testing.T) {
	t.Parallel()

	src := results(1, 2, 3)
	src[1].Description = strings.Repeat("b", 400)
	src[2].Description = strings.Repeat("c", 400)

	fixed := budget.EstimateMessages([]*schema.Message{
		schema.SystemMessage(SystemPrompt),
		schema.UserMessage(BuildUserPrompt("q", "")),
	})
	limit := fixed + budget.Estimate(FormatSource(src[0])) + 10

	a := newAssistant(t, &fakeExtractor{}, &fakeRetriever{}, &fakeChat{}, func(c *Config) {
		c.MaxContextTokens = limit
	})

	p := a.Prepare(context.Background(), "q", &SearchResult{Results: src})
	require.Len(t, p.Sources, 1)
	assert.Equal(t, BuildUserPrompt("q", FormatSources(p.Sources)), p.Messages[1].Content)
}

func TestNew_RequiresDependencies(t *testing.T) {
	t.Parallel()

	_, err := New(&Config{Retriever: &fakeRetriever{}, ChatModel: &fakeChat{}})
	assert.Error(t, err)
	_, err = New(&Config{Extractor: &fakeExtractor{}, ChatModel: &fakeChat{}})
	assert.Error(t, err)
	_, err = New(&Config{Extractor: &fakeExtractor{}, Retriever: &fakeRetriever{}})
	assert.Error(t, err)
	_, err = New(nil)
	assert.Error(t, err)
}
