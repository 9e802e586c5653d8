// Package trace stores agent runs in Postgres and keeps small Redis pointers
// for the latest run per user and the aggregate statistics.
package trace

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/stores/redis"

	cachekeys "atlas-api/internal/cache"
	"atlas-api/internal/model"
	"atlas-api/pkg/agent"
	"atlas-api/pkg/market/indicators"
	"atlas-api/pkg/response"
	"atlas-api/pkg/signals"
)

const defaultListLimit = 50

// ErrNotFound is returned when no run matches.
var ErrNotFound = agent.ErrRunNotFound

// Service persists agent runs. Runs are immutable once written.
type Service struct {
	runs  model.AgentRunsModel
	redis *redis.Redis
	ttl   cachekeys.TTLSet
}

// Config enumerates dependencies required to persist runs.
type Config struct {
	Runs  model.AgentRunsModel
	Redis *redis.Redis
	TTL   cachekeys.TTLSet
}

// NewService wires a run store. Returns nil when the model is missing.
func NewService(cfg Config) *Service {
	if cfg.Runs == nil {
		return nil
	}
	return &Service{runs: cfg.Runs, redis: cfg.Redis, ttl: cfg.TTL}
}

// RecordRun implements agent.Recorder.
func (s *Service) RecordRun(ctx context.Context, run *agent.Run) error {
	if run == nil || strings.TrimSpace(run.RunID) == "" {
		return errors.New("trace: run id is required")
	}
	row, err := toRow(run)
	if err != nil {
		return err
	}
	if _, err := s.runs.Insert(ctx, row); err != nil {
		return fmt.Errorf("trace: insert run %s: %w", run.RunID, err)
	}
	s.cacheLatest(ctx, run.UserID, run.RunID)
	s.invalidateStats(ctx)
	return nil
}

// FindByRunID loads one run.
func (s *Service) FindByRunID(ctx context.Context, runID string) (*agent.Run, error) {
	row, err := s.runs.FindOne(ctx, runID)
	if errors.Is(err, model.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("trace: find run %s: %w", runID, err)
	}
	return fromRow(row)
}

// ListByUser returns the user's runs, newest first. limit <= 0 means 50.
func (s *Service) ListByUser(ctx context.Context, userID string, limit int) ([]*agent.Run, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := s.runs.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("trace: list runs user=%s: %w", userID, err)
	}
	out := make([]*agent.Run, 0, len(rows))
	for _, row := range rows {
		run, err := fromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, nil
}

// LatestByUser returns the user's most recent run.
func (s *Service) LatestByUser(ctx context.Context, userID string) (*agent.Run, error) {
	if id := s.latestPointer(ctx, userID); id != "" {
		run, err := s.FindByRunID(ctx, id)
		if err == nil {
			return run, nil
		}
		logx.WithContext(ctx).Errorf("trace: stale latest pointer user=%s run=%s err=%v", userID, id, err)
	}
	runs, err := s.ListByUser(ctx, userID, 1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, ErrNotFound
	}
	s.cacheLatest(ctx, userID, runs[0].RunID)
	return runs[0], nil
}

// Stats summarises the runs stored at or after since; zero means all. Only
// the all-time figures are cached.
func (s *Service) Stats(ctx context.Context, since time.Time) (agent.Stats, error) {
	allTime := since.IsZero()
	if allTime {
		if st, ok := s.cachedStats(ctx); ok {
			return st, nil
		}
	}
	row, err := s.runs.Stats(ctx, since)
	if err != nil {
		return agent.Stats{}, fmt.Errorf("trace: stats: %w", err)
	}
	st := agent.Stats{
		TotalRuns:         row.TotalRuns,
		RunsWithProposals: row.RunsWithProposals,
		UniqueUsers:       row.UniqueUsers,
	}
	if row.AvgConfidence.Valid {
		st.AvgConfidence = indicators.Round2(row.AvgConfidence.Float64)
	}
	if allTime {
		s.cacheStats(ctx, st)
	}
	return st, nil
}

func (s *Service) latestPointer(ctx context.Context, userID string) string {
	if s.redis == nil {
		return ""
	}
	key := cachekeys.LatestRunKey(userID)
	id, err := s.redis.GetCtx(ctx, key)
	if err != nil {
		logx.WithContext(ctx).Errorf("trace: get key=%s err=%v", key, err)
		return ""
	}
	return id
}

func (s *Service) cacheLatest(ctx context.Context, userID, runID string) {
	if s.redis == nil {
		return
	}
	seconds := int(cachekeys.LatestRunTTL(s.ttl).Seconds())
	if seconds <= 0 {
		return
	}
	key := cachekeys.LatestRunKey(userID)
	if err := s.redis.SetexCtx(ctx, key, runID, seconds); err != nil {
		logx.WithContext(ctx).Errorf("trace: set key=%s err=%v", key, err)
	}
}

func (s *Service) cachedStats(ctx context.Context) (agent.Stats, bool) {
	if s.redis == nil {
		return agent.Stats{}, false
	}
	key := cachekeys.RunStatsKey()
	raw, err := s.redis.GetCtx(ctx, key)
	if err != nil || raw == "" {
		return agent.Stats{}, false
	}
	var st agent.Stats
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return agent.Stats{}, false
	}
	return st, true
}

func (s *Service) cacheStats(ctx context.Context, st agent.Stats) {
	if s.redis == nil {
		return
	}
	seconds := int(cachekeys.RunStatsTTL(s.ttl).Seconds())
	if seconds <= 0 {
		return
	}
	payload, _ := json.Marshal(st)
	key := cachekeys.RunStatsKey()
	if err := s.redis.SetexCtx(ctx, key, string(payload), seconds); err != nil {
		logx.WithContext(ctx).Errorf("trace: set key=%s err=%v", key, err)
	}
}

func (s *Service) invalidateStats(ctx context.Context) {
	if s.redis == nil {
		return
	}
	if _, err := s.redis.DelCtx(ctx, cachekeys.RunStatsKey()); err != nil {
		logx.WithContext(ctx).Errorf("trace: del stats err=%v", err)
	}
}

func toRow(run *agent.Run) (*model.AgentRuns, error) {
	tools := run.ToolsCalled
	if tools == nil {
		tools = []agent.ToolCall{}
	}
	toolsJSON, err := json.Marshal(tools)
	if err != nil {
		return nil, fmt.Errorf("trace: encode tools %s: %w", run.RunID, err)
	}
	reasoning, err := json.Marshal(run.Reasoning)
	if err != nil {
		return nil, fmt.Errorf("trace: encode reasoning %s: %w", run.RunID, err)
	}
	links := run.EvidenceLinks
	if links == nil {
		links = []string{}
	}
	linksJSON, err := json.Marshal(links)
	if err != nil {
		return nil, fmt.Errorf("trace: encode evidence %s: %w", run.RunID, err)
	}
	row := &model.AgentRuns{
		RunId:         run.RunID,
		UserId:        run.UserID,
		Ts:            run.Timestamp.UTC(),
		UserIntent:    run.UserIntent,
		AgentStatus:   string(run.Status),
		ToolsCalled:   string(toolsJSON),
		Reasoning:     string(reasoning),
		EvidenceLinks: string(linksJSON),
		AgentResponse: run.AgentResponse,
		DurationMs:    run.DurationMs,
		PromptDigest:  run.PromptDigest,
		CreatedAt:     run.CreatedAt.UTC(),
	}
	if run.Proposal != nil {
		proposal, err := json.Marshal(run.Proposal)
		if err != nil {
			return nil, fmt.Errorf("trace: encode proposal %s: %w", run.RunID, err)
		}
		row.Proposal = sql.NullString{String: string(proposal), Valid: true}
		row.Confidence = sql.NullFloat64{Float64: run.Proposal.Confidence, Valid: true}
	}
	if run.Error != "" {
		row.Error = sql.NullString{String: run.Error, Valid: true}
	}
	return row, nil
}

func fromRow(row *model.AgentRuns) (*agent.Run, error) {
	run := &agent.Run{
		RunID:         row.RunId,
		UserID:        row.UserId,
		Timestamp:     row.Ts,
		UserIntent:    row.UserIntent,
		Status:        agent.Status(row.AgentStatus),
		AgentResponse: row.AgentResponse,
		DurationMs:    row.DurationMs,
		PromptDigest:  row.PromptDigest,
		CreatedAt:     row.CreatedAt,
		Reasoning:     signals.Empty(),
		ToolsCalled:   []agent.ToolCall{},
		EvidenceLinks: []string{},
	}
	if row.Error.Valid {
		run.Error = row.Error.String
	}
	if err := decodeJSON(row.ToolsCalled, &run.ToolsCalled); err != nil {
		return nil, fmt.Errorf("trace: decode tools %s: %w", row.RunId, err)
	}
	if err := decodeJSON(row.Reasoning, &run.Reasoning); err != nil {
		return nil, fmt.Errorf("trace: decode reasoning %s: %w", row.RunId, err)
	}
	if err := decodeJSON(row.EvidenceLinks, &run.EvidenceLinks); err != nil {
		return nil, fmt.Errorf("trace: decode evidence %s: %w", row.RunId, err)
	}
	if row.Proposal.Valid && row.Proposal.String != "" {
		var p response.Proposal
		if err := json.Unmarshal([]byte(row.Proposal.String), &p); err != nil {
			return nil, fmt.Errorf("trace: decode proposal %s: %w", row.RunId, err)
		}
		run.Proposal = &p
	}
	return run, nil
}

func decodeJSON(raw string, v any) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return json.Unmarshal([]byte(raw), v)
}
