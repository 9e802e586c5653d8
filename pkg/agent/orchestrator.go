package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/zeromicro/go-zero/core/logx"

	"atlas-api/pkg/intent"
	"atlas-api/pkg/llm"
	"atlas-api/pkg/market"
	"atlas-api/pkg/prompt"
	"atlas-api/pkg/response"
	"atlas-api/pkg/signals"
)

const (
	noSymbolError = "No symbol found in user intent"
	noSymbolReply = "Error: Could not identify a stock symbol in your request. Please include a ticker symbol (e.g., NVDA, AAPL)."
)

var errNoSymbol = errors.New(noSymbolError)

// Orchestrator drives one user intent through symbol extraction, market
// data, signal interpretation, the reasoning backend and reply parsing.
// It holds no per-run state and is safe for concurrent use.
type Orchestrator struct {
	cfg      *Config
	fetcher  MarketFetcher
	backend  llm.Backend
	recorder Recorder
	now      func() time.Time
	newID    func() string

	system  string
	priming string
	context *prompt.Template
}

// Option customises Orchestrator construction.
type Option func(*Orchestrator)

// WithRecorder persists every finished run, successful or not.
func WithRecorder(recorder Recorder) Option {
	return func(o *Orchestrator) {
		if recorder == nil {
			o.recorder = noopRecorder{}
			return
		}
		o.recorder = recorder
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithIDGenerator overrides run id generation.
func WithIDGenerator(gen func() string) Option {
	return func(o *Orchestrator) {
		if gen != nil {
			o.newID = gen
		}
	}
}

// NewOrchestrator wires the collaborators. A nil cfg uses DefaultConfig.
func NewOrchestrator(cfg *Config, fetcher MarketFetcher, backend llm.Backend, opts ...Option) (*Orchestrator, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg = cfg.withDefaults()
	if fetcher == nil {
		return nil, errors.New("agent: market fetcher is required")
	}
	if backend == nil {
		return nil, errors.New("agent: reasoning backend is required")
	}

	system, err := renderStatic(cfg.Prompts.System, prompt.SystemTemplate)
	if err != nil {
		return nil, err
	}
	priming, err := renderStatic(cfg.Prompts.Priming, prompt.PrimingTemplate)
	if err != nil {
		return nil, err
	}
	contextTmpl, err := prompt.Load(cfg.Prompts.Context, prompt.ContextTemplate)
	if err != nil {
		return nil, fmt.Errorf("agent: load context template: %w", err)
	}

	o := &Orchestrator{
		cfg:      cfg,
		fetcher:  fetcher,
		backend:  backend,
		recorder: noopRecorder{},
		now:      time.Now,
		newID:    uuid.NewString,
		system:   system,
		priming:  priming,
		context:  contextTmpl,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

func renderStatic(path, name string) (string, error) {
	tmpl, err := prompt.Load(path, name)
	if err != nil {
		return "", fmt.Errorf("agent: load %s: %w", name, err)
	}
	out, err := tmpl.Render(nil)
	if err != nil {
		return "", fmt.Errorf("agent: render %s: %w", name, err)
	}
	return out, nil
}

// contextData feeds the model context template.
type contextData struct {
	UserIntent string
	Symbol     string
	Snapshot   *market.Snapshot
	Reasoning  signals.Reasoning
}

// Run processes one intent. An empty runID gets a fresh one. The returned
// result is never nil; every failure, including a panic in a collaborator,
// is reported as StatusError with the trace gathered up to that point.
func (o *Orchestrator) Run(ctx context.Context, userID, userIntent, runID string) (res *Result) {
	if runID == "" {
		runID = o.newID()
	}
	start := o.now()
	res = &Result{
		RunID:         runID,
		UserID:        userID,
		Status:        StatusAnalyzing,
		Reasoning:     signals.Empty(),
		EvidenceLinks: []string{},
		ToolsCalled:   []ToolCall{},
		RawTrace:      RawTrace{UserIntent: userIntent},
		Stages:        []Stage{StageReceived},
		StartedAt:     start,
	}
	logger := logx.WithContext(ctx).WithFields(logx.Field("run_id", runID))
	logger.Infow("agent: run started", logx.Field("user_id", userID), logx.Field("intent", userIntent))

	defer func() {
		if r := recover(); r != nil {
			fail(res, fmt.Errorf("agent: unexpected panic: %v", r))
		}
		res.RawTrace.ToolCalls = res.ToolsCalled
		res.RawTrace.ProcessingTimeMs = o.now().Sub(start).Milliseconds()
		if res.Status == StatusError {
			logger.Errorw("agent: run failed",
				logx.Field("error", res.Error),
				logx.Field("tools_called", len(res.ToolsCalled)),
				logx.Field("duration_ms", res.RawTrace.ProcessingTimeMs))
		} else {
			logger.Infow("agent: run finished",
				logx.Field("status", string(res.Status)),
				logx.Field("duration_ms", res.RawTrace.ProcessingTimeMs))
		}
		o.record(ctx, res)
	}()

	if err := o.execute(ctx, res, logger); err != nil {
		fail(res, err)
	}
	return res
}

func (o *Orchestrator) execute(ctx context.Context, res *Result, logger logx.Logger) error {
	symbol, ok := intent.ExtractSymbol(res.RawTrace.UserIntent)
	if !ok {
		res.RawTrace.AgentResponse = noSymbolReply
		return errNoSymbol
	}
	res.advance(StageSymbolExtracted)
	res.EvidenceLinks = append(res.EvidenceLinks, o.cfg.EvidenceLink(symbol))
	logger.Infow("agent: symbol identified", logx.Field("symbol", symbol))

	snap := o.marketData(ctx, res, symbol)
	if snap == nil {
		return fmt.Errorf("market data fetch failed: %w", market.ErrDataUnavailable)
	}
	res.advance(StageDataFetched)
	res.Provenance = snap.Provenance
	if snap.IsSynthetic() {
		logger.Sloww("agent: continuing with synthetic market data", logx.Field("symbol", symbol))
	}

	reasoning := o.technicals(res, symbol, snap)
	res.advance(StageSignalsComputed)

	msg, err := o.context.Render(contextData{
		UserIntent: res.RawTrace.UserIntent,
		Symbol:     symbol,
		Snapshot:   snap,
		Reasoning:  reasoning,
	})
	if err != nil {
		return fmt.Errorf("agent: render model context: %w", err)
	}
	res.PromptDigest = prompt.Digest([]byte(o.system + o.priming + msg))

	res.advance(StageReasoningInvoked)
	reply, err := o.reason(ctx, msg, logger)
	if err != nil {
		return err
	}
	res.RawTrace.AgentResponse = reply

	decision := response.Parse(reply, snap, reasoning)
	res.advance(StageParsed)
	res.Reasoning = decision.Reasoning
	res.Proposal = decision.Proposal
	res.Status = StatusProposing
	if decision.Proposal != nil {
		res.Status = StatusCompleted
	}
	return nil
}

// marketData runs the get_market_data tool and records it.
func (o *Orchestrator) marketData(ctx context.Context, res *Result, symbol string) *market.Snapshot {
	started := o.now()
	snap := o.fetcher.Fetch(ctx, symbol)
	call := ToolCall{
		Tool:       ToolGetMarketData,
		Symbol:     symbol,
		DataSource: o.cfg.DataSource,
		Timestamp:  started,
		DurationMs: o.now().Sub(started).Milliseconds(),
	}
	if snap == nil {
		call.Result = ToolError{Error: market.ErrDataUnavailable.Error()}
	} else {
		call.CacheHit = snap.CacheHit
		call.Result = MarketDataResult{
			CurrentPrice:  snap.CurrentPrice,
			ChangePercent: snap.ChangePercent,
			Volume:        snap.Volume,
			Indicators:    snap.Indicators,
			PriceHistory:  snap.PriceHistory,
			Provenance:    snap.Provenance,
		}
	}
	res.ToolsCalled = append(res.ToolsCalled, call)
	return snap
}

// technicals runs the analyze_technicals tool over the snapshot already
// fetched for this run.
func (o *Orchestrator) technicals(res *Result, symbol string, snap *market.Snapshot) signals.Reasoning {
	started := o.now()
	reasoning := signals.Interpret(snap)
	res.ToolsCalled = append(res.ToolsCalled, ToolCall{
		Tool:       ToolAnalyzeTechnicals,
		Symbol:     symbol,
		DataSource: o.cfg.DataSource,
		Timestamp:  started,
		CacheHit:   snap.CacheHit,
		Result:     reasoning,
		DurationMs: o.now().Sub(started).Milliseconds(),
	})
	return reasoning
}

func (o *Orchestrator) reason(ctx context.Context, msg string, logger logx.Logger) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.cfg.ReasoningTimeout)
	defer cancel()

	started := o.now()
	reply, err := o.backend.Generate(callCtx, o.system, o.priming, msg)
	elapsed := o.now().Sub(started).Milliseconds()
	if err != nil {
		return "", fmt.Errorf("reasoning backend: %w", err)
	}
	logger.Infow("agent: reasoning reply received",
		logx.Field("duration_ms", elapsed),
		logx.Field("reply_chars", len(reply)))
	return reply, nil
}

func (o *Orchestrator) record(ctx context.Context, res *Result) {
	recCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.RecordTimeout)
	defer cancel()
	if err := o.recorder.RecordRun(recCtx, res.ToRun(o.now())); err != nil {
		logx.WithContext(ctx).Errorw("agent: record run failed",
			logx.Field("run_id", res.RunID),
			logx.Field("error", err.Error()))
	}
}

func (r *Result) advance(s Stage) { r.Stages = append(r.Stages, s) }

// fail turns r into an error result. Tool calls, evidence links and the raw
// reply gathered so far stay in place.
func fail(r *Result, err error) {
	r.Status = StatusError
	r.Error = err.Error()
	r.Reasoning = signals.Empty()
	r.Proposal = nil
}
