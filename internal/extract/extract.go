// Package extract turns the user's question into a search query and a set of
// structured filters by asking the chat model to call search_database.
//
// The model response is collapsed exactly once into a [Result], which is
// either a [ToolInvocation] or [PlainText]. [FromResponse] is a pure
// transform over that result and never fails: malformed tool arguments fall
// back to the raw user query with no filters.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/shopai-go/internal/filter"
	"github.com/54b3r/shopai-go/internal/logging"
	"github.com/54b3r/shopai-go/internal/tools"
)

// Result is the model response resolved at the boundary.
type Result interface {
	isResult()
}

// ToolInvocation is a search_database call with its raw JSON arguments.
type ToolInvocation struct {
	Arguments string
}

// PlainText is a response with no search_database call.
type PlainText struct {
	Text string
}

func (ToolInvocation) isResult() {}
func (PlainText) isResult()      {}

// Resolve classifies msg. Tool calls naming a function other than
// search_database are ignored; when the model makes several matching calls
// the last one wins.
func Resolve(msg *schema.Message) Result {
	if msg == nil {
		return PlainText{}
	}
	for i := len(msg.ToolCalls) - 1; i >= 0; i-- {
		if tc := msg.ToolCalls[i]; tc.Function.Name == tools.SearchDatabaseName {
			return ToolInvocation{Arguments: tc.Function.Arguments}
		}
	}
	return PlainText{Text: msg.Content}
}

// Query is the normalized output of extraction.
type Query struct {
	// SearchQuery is the text used for embedding and full-text ranking.
	SearchQuery string
	// Filters are the validated filters, combined with AND.
	Filters []filter.SearchFilter
	// Fallback is set when tool arguments could not be decoded and the raw
	// user query was used instead.
	Fallback bool
	// Skipped lists filter arguments that were present but unusable.
	Skipped []string
}

// FromResponse resolves msg and normalizes it against userQuery.
func FromResponse(msg *schema.Message, userQuery string) Query {
	switch r := Resolve(msg).(type) {
	case ToolInvocation:
		args, err := tools.DecodeArguments(r.Arguments)
		if err != nil {
			return Query{SearchQuery: userQuery, Fallback: true, Skipped: []string{err.Error()}}
		}
		q := Query{SearchQuery: strings.TrimSpace(args.SearchQuery)}
		if q.SearchQuery == "" {
			q.SearchQuery = userQuery
		}
		q.Filters, q.Skipped = args.Filters()
		return q
	case PlainText:
		text := strings.TrimSpace(r.Text)
		if text == "" {
			return Query{SearchQuery: userQuery}
		}
		return Query{SearchQuery: text}
	default:
		return Query{SearchQuery: userQuery}
	}
}

// Extractor performs the query-rewrite chat call.
type Extractor struct {
	model   model.ToolCallingChatModel
	timeout time.Duration
}

// New binds the search_database tool to m. timeout bounds each call; zero
// means the caller's context alone bounds it.
func New(ctx context.Context, m model.ToolCallingChatModel, timeout time.Duration) (*Extractor, error) {
	if m == nil {
		return nil, fmt.Errorf("extract: model must not be nil")
	}
	info, err := tools.NewSearchDatabaseTool().Info(ctx)
	if err != nil {
		return nil, fmt.Errorf("extract: tool info: %w", err)
	}
	bound, err := m.WithTools([]*schema.ToolInfo{info})
	if err != nil {
		return nil, fmt.Errorf("extract: bind tools: %w", err)
	}
	return &Extractor{model: bound, timeout: timeout}, nil
}

// Messages returns the chat input for userQuery.
func Messages(userQuery string) []*schema.Message {
	return []*schema.Message{
		schema.SystemMessage(QueryPrompt),
		schema.UserMessage(userQuery),
	}
}

// Extract asks the model to rewrite userQuery. Only a failed or timed-out
// model call is an error.
func (e *Extractor) Extract(ctx context.Context, userQuery string) (Query, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	logger := logging.FromContext(ctx)
	start := time.Now()
	resp, err := e.model.Generate(ctx, Messages(userQuery), model.WithTemperature(0))
	if err != nil {
		return Query{}, fmt.Errorf("extract: generate: %w", err)
	}

	q := FromResponse(resp, userQuery)
	if q.Fallback {
		logger.Warn("extract: malformed tool arguments, using raw query",
			slog.Any("reasons", q.Skipped))
	} else if len(q.Skipped) > 0 {
		logger.Warn("extract: dropped unusable filters", slog.Any("reasons", q.Skipped))
	}
	where, _ := filter.BuildClauses(q.Filters)
	logger.Debug("extract: query rewritten",
		slog.String("search_query", q.SearchQuery),
		slog.String("filters", where),
		slog.Duration("duration", time.Since(start)),
	)
	return q, nil
}
