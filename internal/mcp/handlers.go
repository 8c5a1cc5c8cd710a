package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/nvandessel/simreplay/internal/chart"
	"github.com/nvandessel/simreplay/internal/engine"
	"github.com/nvandessel/simreplay/internal/export"
	"github.com/nvandessel/simreplay/internal/pathutil"
	"github.com/nvandessel/simreplay/internal/ratelimit"
	"github.com/nvandessel/simreplay/internal/replay"
	"github.com/nvandessel/simreplay/internal/sanitize"
	"github.com/nvandessel/simreplay/internal/session"
	"github.com/nvandessel/simreplay/internal/store"
)

const (
	recentRunsURI     = "simreplay://runs/recent"
	recentRunsLimit   = 10
	defaultListLimit  = 20
	resourceMediaType = "text/markdown"
)

// registerTools registers all simreplay MCP tools with the server.
func (s *Server) registerTools() {
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        ratelimit.ToolReplayRun,
		Description: "Replay one agent's logged expert actions through the simulator and check every step against the log",
	}, s.handleReplayRun)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        ratelimit.ToolReplayHistory,
		Description: "List stored replay runs, or show one run and its failing step",
	}, s.handleReplayHistory)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        ratelimit.ToolTrajectoryDecode,
		Description: "Decode an agent's expert trajectory (positions, velocities, headings, actions) from a scenario",
	}, s.handleTrajectoryDecode)
}

// registerResources registers the recent-runs resource.
func (s *Server) registerResources() {
	s.server.AddResource(&sdk.Resource{
		URI:         recentRunsURI,
		Name:        "simreplay-recent-runs",
		Description: "The most recent replay runs and whether they stayed consistent with their logs.",
		MIMEType:    resourceMediaType,
	}, s.handleRecentRunsResource)
}

// engineConfig returns the configured engine settings with the tool's data
// path and horizon applied. Caller-supplied paths must lie inside s.roots.
func (s *Server) engineConfig(dataPath string, horizon int) (engine.Config, error) {
	cfg := s.app.Engine
	if dataPath != "" {
		p, err := pathutil.Confine(dataPath, s.roots...)
		if err != nil {
			return cfg, fmt.Errorf("data path rejected: %w", err)
		}
		cfg.DataPath = p
	}
	if cfg.DataPath == "" {
		return cfg, fmt.Errorf("no data path given and none configured")
	}
	if horizon != 0 {
		cfg.Horizon = horizon
	}
	return cfg, nil
}

// outputPath confines an optional output file to s.roots.
func (s *Server) outputPath(kind, path string) (string, error) {
	if path == "" {
		return "", nil
	}
	p, err := pathutil.Confine(path, s.roots...)
	if err != nil {
		return "", fmt.Errorf("%s path rejected: %w", kind, err)
	}
	return p, nil
}

// handleReplayRun implements the replay_run tool.
func (s *Server) handleReplayRun(ctx context.Context, req *sdk.CallToolRequest, args ReplayRunInput) (_ *sdk.CallToolResult, _ ReplayRunOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool(ratelimit.ToolReplayRun, start, retErr, sanitizeToolParams(map[string]any{
			"data_path":   args.DataPath,
			"world":       args.World,
			"agent":       args.Agent,
			"horizon":     args.Horizon,
			"export_path": args.ExportPath,
			"plot_path":   args.PlotPath,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, ratelimit.ToolReplayRun); err != nil {
		return nil, ReplayRunOutput{}, err
	}

	cfg, err := s.engineConfig(args.DataPath, args.Horizon)
	if err != nil {
		return nil, ReplayRunOutput{}, err
	}
	tol := s.app.Replay.Tolerances.OrDefault()
	if args.Tolerance < 0 {
		return nil, ReplayRunOutput{}, fmt.Errorf("tolerance must be non-negative, got %v", args.Tolerance)
	}
	if args.Tolerance > 0 {
		tol = replay.Tolerances{Position: args.Tolerance, Heading: args.Tolerance, Speed: args.Tolerance}
	}
	exportPath, err := s.outputPath("export", args.ExportPath)
	if err != nil {
		return nil, ReplayRunOutput{}, err
	}
	plotPath, err := s.outputPath("plot", args.PlotPath)
	if err != nil {
		return nil, ReplayRunOutput{}, err
	}

	out, err := session.Run(ctx, session.Options{
		Engine:     cfg,
		World:      args.World,
		Agent:      args.Agent,
		Tolerances: tol,
		Logger:     s.logger,
		Store:      s.store,
	})
	if err != nil {
		return nil, ReplayRunOutput{}, fmt.Errorf("replay failed: %w", err)
	}
	if errors.Is(out.Err, context.Canceled) || errors.Is(out.Err, context.DeadlineExceeded) {
		return nil, ReplayRunOutput{}, out.Err
	}

	rep := out.Report
	result := ReplayRunOutput{
		RunID:      rep.ID,
		Scenario:   rep.Scenario,
		Status:     string(rep.Status),
		Consistent: out.Err == nil,
		Steps:      rep.Steps,
		Horizon:    rep.Horizon,
		Max:        rep.Max,
		Error:      sanitize.Text(rep.Error),
		Mismatches: replay.MismatchFields(out.Err),
	}
	records := out.Result.Records

	if exportPath != "" {
		meta := export.Meta{RunID: rep.ID, Scenario: rep.Scenario, World: rep.World, Agent: rep.Agent, Horizon: rep.Horizon}
		if err := export.WriteFile(exportPath, meta, records); err != nil {
			return nil, ReplayRunOutput{}, fmt.Errorf("export failed: %w", err)
		}
		result.ExportPath = exportPath
	}
	if plotPath != "" {
		title := fmt.Sprintf("%s world %d agent %d", rep.Scenario, rep.World, rep.Agent)
		if err := chart.Deviations(records, tol, title, plotPath); err != nil {
			return nil, ReplayRunOutput{}, fmt.Errorf("plot failed: %w", err)
		}
		result.PlotPath = plotPath
	}

	result.Message = summarize(rep, out.Err)
	return nil, result, nil
}

// summarize describes a run in one line. Scenario names and error text come
// from data files, so the result is sanitized.
func summarize(rep *store.RunReport, runErr error) string {
	name := sanitize.Cell(rep.Scenario)
	if runErr == nil {
		return fmt.Sprintf("%s: consistent over %d steps", name, rep.Steps)
	}
	var mm *replay.MismatchError
	if errors.As(runErr, &mm) {
		return fmt.Sprintf("%s: mismatch at step %d (%s)", name, mm.Index,
			strings.Join(replay.MismatchFields(runErr), ", "))
	}
	return sanitize.Text(fmt.Sprintf("%s: %s after %d steps: %v", name, rep.Status, rep.Steps, runErr))
}

// handleReplayHistory implements the replay_history tool.
func (s *Server) handleReplayHistory(ctx context.Context, req *sdk.CallToolRequest, args ReplayHistoryInput) (_ *sdk.CallToolResult, _ ReplayHistoryOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool(ratelimit.ToolReplayHistory, start, retErr, sanitizeToolParams(map[string]any{
			"id":       args.ID,
			"scenario": args.Scenario,
			"status":   args.Status,
			"limit":    args.Limit,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, ratelimit.ToolReplayHistory); err != nil {
		return nil, ReplayHistoryOutput{}, err
	}

	if args.ID != "" {
		rep, err := s.store.GetRun(ctx, args.ID)
		if err != nil {
			return nil, ReplayHistoryOutput{}, fmt.Errorf("failed to load run: %w", err)
		}
		if rep == nil {
			return nil, ReplayHistoryOutput{}, fmt.Errorf("run not found: %s", args.ID)
		}
		out := ReplayHistoryOutput{Runs: []RunSummary{summary(rep)}, Count: 1}
		if rep.Status != store.StatusConsistent && len(rep.Records) > 0 {
			last := rep.Records[len(rep.Records)-1]
			out.Failure = &last
		}
		return nil, out, nil
	}

	limit := args.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	runs, err := s.store.ListRuns(ctx, store.RunFilter{
		Scenario: args.Scenario,
		Status:   store.Status(args.Status),
		Limit:    limit,
	})
	if err != nil {
		return nil, ReplayHistoryOutput{}, fmt.Errorf("failed to list runs: %w", err)
	}
	out := ReplayHistoryOutput{Runs: make([]RunSummary, 0, len(runs))}
	for i := range runs {
		out.Runs = append(out.Runs, summary(&runs[i]))
	}
	out.Count = len(out.Runs)
	return nil, out, nil
}

func summary(r *store.RunReport) RunSummary {
	return RunSummary{
		ID:        r.ID,
		Scenario:  r.Scenario,
		World:     r.World,
		Agent:     r.Agent,
		Steps:     r.Steps,
		Status:    string(r.Status),
		Error:     sanitize.Text(r.Error),
		Max:       r.Max,
		StartedAt: r.StartedAt.Format(time.RFC3339),
	}
}

// handleTrajectoryDecode implements the trajectory_decode tool.
func (s *Server) handleTrajectoryDecode(ctx context.Context, req *sdk.CallToolRequest, args TrajectoryDecodeInput) (_ *sdk.CallToolResult, _ TrajectoryDecodeOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool(ratelimit.ToolTrajectoryDecode, start, retErr, sanitizeToolParams(map[string]any{
			"data_path": args.DataPath,
			"world":     args.World,
			"agent":     args.Agent,
			"from":      args.From,
			"to":        args.To,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, ratelimit.ToolTrajectoryDecode); err != nil {
		return nil, TrajectoryDecodeOutput{}, err
	}

	cfg, err := s.engineConfig(args.DataPath, 0)
	if err != nil {
		return nil, TrajectoryDecodeOutput{}, err
	}
	to := args.To
	if to == 0 {
		to = cfg.Horizon - 1
	}
	if args.From < 0 || args.From > to || to >= cfg.Horizon {
		return nil, TrajectoryDecodeOutput{}, fmt.Errorf("step range [%d,%d] outside [0,%d)", args.From, to, cfg.Horizon)
	}

	tr, name, err := session.Expert(cfg, args.World, args.Agent, s.logger)
	if err != nil {
		return nil, TrajectoryDecodeOutput{}, err
	}

	out := TrajectoryDecodeOutput{
		Scenario: name,
		Horizon:  cfg.Horizon,
		Steps:    make([]TrajectoryRow, 0, to-args.From+1),
	}
	for t := args.From; t <= to; t++ {
		out.Steps = append(out.Steps, TrajectoryRow{
			Index:    t,
			Position: tr.Position(t),
			Velocity: tr.Velocity(t),
			Speed:    tr.Speed(t),
			Heading:  tr.Heading(t),
			Action:   tr.Action(t),
		})
	}
	return nil, out, nil
}

// handleRecentRunsResource renders the latest runs as a markdown table.
func (s *Server) handleRecentRunsResource(ctx context.Context, req *sdk.ReadResourceRequest) (*sdk.ReadResourceResult, error) {
	runs, err := s.store.ListRuns(ctx, store.RunFilter{Limit: recentRunsLimit})
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("# Recent Replays\n\n")
	if len(runs) == 0 {
		sb.WriteString("No runs recorded yet. Start one with `replay_run`.\n")
	} else {
		sb.WriteString("| ID | Scenario | World/Agent | Steps | Status |\n")
		sb.WriteString("|---|---|---|---|---|\n")
		for _, r := range runs {
			fmt.Fprintf(&sb, "| %s | %s | %d/%d | %d | %s |\n",
				r.ID, sanitize.Cell(r.Scenario), r.World, r.Agent, r.Steps, r.Status)
		}
	}

	return &sdk.ReadResourceResult{
		Contents: []*sdk.ResourceContents{
			{
				URI:      recentRunsURI,
				MIMEType: resourceMediaType,
				Text:     sb.String(),
			},
		},
	}, nil
}
