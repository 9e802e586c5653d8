package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"atlas-api/internal/svc"
	"atlas-api/pkg/agent"
	"atlas-api/pkg/approval"
)

var errUsage = errors.New("invalid usage")

type command func(ctx context.Context, s *svc.ServiceContext, args []string, out io.Writer) error

var commands = map[string]command{
	"analyze": analyzeCmd,
	"approve": approveCmd,
	"reject":  rejectCmd,
	"orders":  ordersCmd,
	"trace":   traceCmd,
	"runs":    runsCmd,
	"stats":   statsCmd,
}

func run(ctx context.Context, s *svc.ServiceContext, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, ok := commands[args[0]]
	if !ok {
		return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
	}
	return cmd(ctx, s, args[1:], out)
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	return nil
}

func required(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%w: -%s is required", errUsage, name)
	}
	return nil
}

func analyzeCmd(ctx context.Context, s *svc.ServiceContext, args []string, out io.Writer) error {
	fs := newFlagSet("analyze")
	user := fs.String("user", "", "user id")
	intent := fs.String("intent", "", "trading question")
	runID := fs.String("run", "", "run id (generated when empty)")
	propose := fs.Bool("propose", false, "create a pending order from the proposal")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if err := required("user", *user); err != nil {
		return err
	}
	if err := required("intent", *intent); err != nil {
		return err
	}
	if *runID == "" {
		*runID = uuid.NewString()
	}

	res := s.Orchestrator.Run(ctx, *user, *intent, *runID)
	payload := map[string]any{"result": res}
	if *propose && res.Proposal != nil {
		order, err := s.Approvals.ProposeFromResult(ctx, res)
		switch {
		case errors.Is(err, approval.ErrNoProposal):
		case err != nil:
			return err
		default:
			payload["order"] = orderView(order)
		}
	}
	return writeJSON(out, payload)
}

func approveCmd(ctx context.Context, s *svc.ServiceContext, args []string, out io.Writer) error {
	fs := newFlagSet("approve")
	user := fs.String("user", "", "user id")
	orderID := fs.String("order", "", "order id")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if err := required("user", *user); err != nil {
		return err
	}
	if err := required("order", *orderID); err != nil {
		return err
	}
	if !s.Durable() {
		return svc.ErrNoDatabase
	}
	order, err := s.Approvals.Approve(ctx, *orderID, *user)
	if err != nil {
		return err
	}
	return writeJSON(out, orderView(order))
}

func rejectCmd(ctx context.Context, s *svc.ServiceContext, args []string, out io.Writer) error {
	fs := newFlagSet("reject")
	user := fs.String("user", "", "user id")
	orderID := fs.String("order", "", "order id")
	reason := fs.String("reason", "", "why the order was rejected")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if err := required("user", *user); err != nil {
		return err
	}
	if err := required("order", *orderID); err != nil {
		return err
	}
	if !s.Durable() {
		return svc.ErrNoDatabase
	}
	order, err := s.Approvals.Reject(ctx, *orderID, *user, *reason)
	if err != nil {
		return err
	}
	return writeJSON(out, orderView(order))
}

func ordersCmd(ctx context.Context, s *svc.ServiceContext, args []string, out io.Writer) error {
	fs := newFlagSet("orders")
	user := fs.String("user", "", "user id")
	limit := fs.Int("limit", 0, "max orders")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if err := required("user", *user); err != nil {
		return err
	}
	orders, err := s.Approvals.Orders(ctx, *user, *limit)
	if err != nil {
		return err
	}
	views := make([]map[string]any, 0, len(orders))
	for _, o := range orders {
		views = append(views, orderView(o))
	}
	return writeJSON(out, views)
}

func traceCmd(ctx context.Context, s *svc.ServiceContext, args []string, out io.Writer) error {
	fs := newFlagSet("trace")
	runID := fs.String("run", "", "run id")
	user := fs.String("user", "", "owner id, shows the latest run")
	viewer := fs.String("viewer", "", "viewer id (defaults to the owner)")
	role := fs.String("role", string(approval.RoleTrader), "viewer role")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	var (
		run *agent.Run
		err error
	)
	switch {
	case *runID != "":
		run, err = s.Traces.FindByRunID(ctx, *runID)
	case *user != "":
		run, err = s.Traces.LatestByUser(ctx, *user)
	default:
		return fmt.Errorf("%w: -run or -user is required", errUsage)
	}
	if err != nil {
		return err
	}

	v := approval.Viewer{UserID: *viewer, Role: approval.Role(*role)}
	if v.UserID == "" {
		v.UserID = *user
	}
	if !approval.CanViewTrace(run, v) {
		return approval.ErrForbidden
	}
	return writeJSON(out, run)
}

func runsCmd(ctx context.Context, s *svc.ServiceContext, args []string, out io.Writer) error {
	fs := newFlagSet("runs")
	user := fs.String("user", "", "user id")
	limit := fs.Int("limit", 0, "max runs")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if err := required("user", *user); err != nil {
		return err
	}
	runs, err := s.Traces.ListByUser(ctx, *user, *limit)
	if err != nil {
		return err
	}
	return writeJSON(out, runs)
}

func statsCmd(ctx context.Context, s *svc.ServiceContext, args []string, out io.Writer) error {
	fs := newFlagSet("stats")
	sinceFlag := fs.String("since", "", "RFC3339 time or lookback duration such as 24h")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	since, err := parseSince(*sinceFlag, time.Now())
	if err != nil {
		return err
	}
	st, err := s.Traces.Stats(ctx, since)
	if err != nil {
		return err
	}
	return writeJSON(out, st)
}

// parseSince accepts an RFC3339 timestamp or a positive lookback duration
// measured from now. Empty means all time.
func parseSince(v string, now time.Time) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return time.Time{}, fmt.Errorf("%w: -since %q is neither RFC3339 nor a positive duration", errUsage, v)
	}
	return now.Add(-d), nil
}

func orderView(o *approval.Order) map[string]any {
	view := map[string]any{
		"id":           o.ID,
		"user_id":      o.UserID,
		"agent_run_id": o.RunID,
		"symbol":       o.Symbol,
		"side":         o.Side,
		"quantity":     o.Quantity,
		"order_type":   o.OrderType,
		"limit_price":  o.LimitPrice.StringFixed(2),
		"stop_price":   o.StopPrice.StringFixed(2),
		"target_price": o.TargetPrice.StringFixed(2),
		"notional":     o.Notional().StringFixed(2),
		"confidence":   o.Confidence,
		"status":       o.Status,
		"environment":  o.Environment,
		"created_at":   o.CreatedAt,
	}
	if o.RejectedReason != "" {
		view["rejected_reason"] = o.RejectedReason
	}
	if o.ApprovedAt != nil {
		view["approved_by"] = o.ApprovedBy
		view["approved_at"] = o.ApprovedAt
	}
	return view
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
