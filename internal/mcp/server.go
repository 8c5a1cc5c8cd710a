// Package mcp provides an MCP (Model Context Protocol) server for simreplay.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/nvandessel/simreplay/internal/config"
	"github.com/nvandessel/simreplay/internal/logging"
	"github.com/nvandessel/simreplay/internal/pathutil"
	"github.com/nvandessel/simreplay/internal/ratelimit"
	"github.com/nvandessel/simreplay/internal/store"
)

// Server wraps the MCP SDK server and exposes replay tools.
type Server struct {
	server       *sdk.Server
	store        store.RunStore
	app          *config.Config
	logger       *slog.Logger
	auditLogger  *AuditLogger
	toolLimiters ratelimit.ToolLimiters
	// roots are the directories tools may read scenarios from and write
	// exports and plots to.
	roots []string
}

// Config holds server configuration.
type Config struct {
	Name    string // Server name (e.g., "simreplay")
	Version string // Server version
	// App is the loaded simreplay configuration; nil means config.Default().
	App *config.Config
}

// NewServer creates a new MCP server with the replay tools registered.
func NewServer(cfg *Config) (*Server, error) {
	app := cfg.App
	if app == nil {
		app = config.Default()
	}

	runs, err := store.Open(app.Store.Backend, app.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open run store: %w", err)
	}

	mcpServer := sdk.NewServer(&sdk.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, nil)

	home := config.HomeDir()
	s := &Server{
		server:       mcpServer,
		store:        runs,
		app:          app,
		logger:       logging.NewLogger(app.Logging.Level, os.Stderr),
		auditLogger:  NewAuditLogger(home),
		toolLimiters: ratelimit.NewToolLimiters(),
		roots:        pathutil.DataRoots(app.Engine.DataPath, home),
	}

	s.registerTools()
	s.registerResources()

	return s, nil
}

// Run starts the MCP server over stdio transport.
// This blocks until the client disconnects or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	notifySignals(sigChan)
	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	return s.server.Run(ctx, &sdk.StdioTransport{})
}

// Close releases the run store and audit log.
func (s *Server) Close() error {
	auditErr := s.auditLogger.Close()
	if err := s.store.Close(); err != nil {
		return err
	}
	return auditErr
}
