package agent

import (
	"context"
	"errors"
	"time"

	"atlas-api/pkg/market"
	"atlas-api/pkg/market/indicators"
	"atlas-api/pkg/response"
	"atlas-api/pkg/signals"
)

// ErrRunNotFound is returned by run stores when no run matches.
var ErrRunNotFound = errors.New("agent: run not found")

// Status is the outcome reported for a run.
type Status string

const (
	StatusAnalyzing Status = "ANALYZING"
	StatusProposing Status = "PROPOSING"
	StatusCompleted Status = "COMPLETED"
	StatusError     Status = "ERROR"
)

// Stage marks how far a run progressed. Stages only move forward.
type Stage string

const (
	StageReceived         Stage = "RECEIVED"
	StageSymbolExtracted  Stage = "SYMBOL_EXTRACTED"
	StageDataFetched      Stage = "DATA_FETCHED"
	StageSignalsComputed  Stage = "SIGNALS_COMPUTED"
	StageReasoningInvoked Stage = "REASONING_INVOKED"
	StageParsed           Stage = "PARSED"
)

// Tool names recorded in the trace.
const (
	ToolGetMarketData     = "get_market_data"
	ToolAnalyzeTechnicals = "analyze_technicals"
)

// ToolCall records one tool invocation. Records are appended, never edited.
type ToolCall struct {
	Tool       string    `json:"tool"`
	Symbol     string    `json:"symbol"`
	DataSource string    `json:"data_source"`
	Timestamp  time.Time `json:"timestamp"`
	CacheHit   bool      `json:"cache_hit"`
	Result     any       `json:"result"`
	DurationMs int64     `json:"duration_ms"`
}

// MarketDataResult is the payload of a get_market_data call.
type MarketDataResult struct {
	CurrentPrice  float64             `json:"current_price"`
	ChangePercent float64             `json:"change_percent"`
	Volume        int64               `json:"volume"`
	Indicators    market.Indicators   `json:"indicators"`
	PriceHistory  market.PriceHistory `json:"price_history"`
	Provenance    market.Provenance   `json:"provenance"`
}

// ToolError is the payload of a failed tool call.
type ToolError struct {
	Error string `json:"error"`
}

// RawTrace keeps the verbatim exchange for audit.
type RawTrace struct {
	UserIntent       string     `json:"user_intent"`
	AgentResponse    string     `json:"agent_response"`
	ToolCalls        []ToolCall `json:"tool_calls"`
	ProcessingTimeMs int64      `json:"processing_time_ms"`
}

// Result is what a caller receives from Run. It is always well formed.
type Result struct {
	RunID         string             `json:"run_id"`
	UserID        string             `json:"user_id"`
	Status        Status             `json:"status"`
	Reasoning     signals.Reasoning  `json:"reasoning"`
	Proposal      *response.Proposal `json:"proposal,omitempty"`
	EvidenceLinks []string           `json:"evidence_links"`
	ToolsCalled   []ToolCall         `json:"tools_called"`
	RawTrace      RawTrace           `json:"raw_trace"`
	Error         string             `json:"error,omitempty"`

	Stages       []Stage           `json:"stages"`
	Provenance   market.Provenance `json:"provenance,omitempty"`
	PromptDigest string            `json:"prompt_digest,omitempty"`
	StartedAt    time.Time         `json:"started_at"`
}

// Run is the persisted audit record of one orchestration. It is written once.
type Run struct {
	RunID         string             `json:"run_id"`
	UserID        string             `json:"user_id"`
	Timestamp     time.Time          `json:"timestamp"`
	UserIntent    string             `json:"user_intent"`
	Status        Status             `json:"agent_status"`
	ToolsCalled   []ToolCall         `json:"tools_called"`
	Reasoning     signals.Reasoning  `json:"reasoning"`
	Proposal      *response.Proposal `json:"proposal,omitempty"`
	EvidenceLinks []string           `json:"evidence_links"`
	AgentResponse string             `json:"agent_response"`
	Error         string             `json:"error,omitempty"`
	DurationMs    int64              `json:"duration_ms"`
	PromptDigest  string             `json:"prompt_digest,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
}

// ToRun converts r into its persisted form.
func (r *Result) ToRun(createdAt time.Time) *Run {
	return &Run{
		RunID:         r.RunID,
		UserID:        r.UserID,
		Timestamp:     r.StartedAt,
		UserIntent:    r.RawTrace.UserIntent,
		Status:        r.Status,
		ToolsCalled:   r.ToolsCalled,
		Reasoning:     r.Reasoning,
		Proposal:      r.Proposal,
		EvidenceLinks: r.EvidenceLinks,
		AgentResponse: r.RawTrace.AgentResponse,
		Error:         r.Error,
		DurationMs:    r.RawTrace.ProcessingTimeMs,
		PromptDigest:  r.PromptDigest,
		CreatedAt:     createdAt,
	}
}

// HasProposal reports whether the run produced an actionable proposal.
func (r *Run) HasProposal() bool { return r != nil && r.Proposal != nil }

// Recorder persists finished runs.
type Recorder interface {
	RecordRun(ctx context.Context, run *Run) error
}

type noopRecorder struct{}

func (noopRecorder) RecordRun(context.Context, *Run) error { return nil }

// MarketFetcher returns a snapshot for a symbol. A nil snapshot means the
// data could not be produced at all.
type MarketFetcher interface {
	Fetch(ctx context.Context, symbol string) *market.Snapshot
}

// Stats summarises stored runs.
type Stats struct {
	TotalRuns         int64   `json:"total_runs"`
	RunsWithProposals int64   `json:"runs_with_proposals"`
	AvgConfidence     float64 `json:"avg_confidence"`
	UniqueUsers       int64   `json:"unique_users"`
}

// Summarize computes Stats over runs stamped at or after since; a zero since
// takes every run. AvgConfidence covers runs that carry a proposal and is
// rounded to two decimals.
func Summarize(runs []*Run, since time.Time) Stats {
	var (
		st    Stats
		sum   float64
		users = make(map[string]struct{})
	)
	for _, r := range runs {
		if r == nil || (!since.IsZero() && r.Timestamp.Before(since)) {
			continue
		}
		st.TotalRuns++
		users[r.UserID] = struct{}{}
		if r.HasProposal() {
			st.RunsWithProposals++
			sum += r.Proposal.Confidence
		}
	}
	st.UniqueUsers = int64(len(users))
	if st.RunsWithProposals > 0 {
		st.AvgConfidence = indicators.Round2(sum / float64(st.RunsWithProposals))
	}
	return st
}
