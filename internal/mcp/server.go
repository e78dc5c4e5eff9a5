package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/timedilation/internal/config"
	"github.com/nvandessel/timedilation/internal/ratelimit"
	"github.com/nvandessel/timedilation/internal/store"
)

// Server wraps the MCP SDK server and provides tdsim-specific functionality.
type Server struct {
	server       *sdk.Server
	base         *config.TdsimConfig
	logger       *slog.Logger
	auditLogger  *AuditLogger
	toolLimiters ratelimit.ToolLimiters

	mu   sync.Mutex
	last *store.MemoryStore // tables of the most recent tdsim_simulate call
}

// Config holds server configuration.
type Config struct {
	Name    string // Server name (e.g., "tdsim")
	Version string // Server version

	// Base supplies every parameter a tool call does not override.
	// nil means config.Default().
	Base *config.TdsimConfig

	// AuditDir receives audit.jsonl; empty disables the audit log.
	AuditDir string

	Logger *slog.Logger
}

// NewServer creates a new MCP server with tdsim tools.
func NewServer(cfg *Config) (*Server, error) {
	base := cfg.Base
	if base == nil {
		base = config.Default()
	}
	if err := base.Validate(); err != nil {
		return nil, fmt.Errorf("invalid base configuration: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	mcpServer := sdk.NewServer(&sdk.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, &sdk.ServerOptions{
		InitializedHandler: func(ctx context.Context, req *sdk.InitializedRequest) {
			logger.Debug("mcp client initialized")
		},
	})

	s := &Server{
		server:       mcpServer,
		base:         base,
		logger:       logger,
		auditLogger:  NewAuditLogger(cfg.AuditDir),
		toolLimiters: ratelimit.NewToolLimiters(),
		last:         store.NewMemoryStore(),
	}

	if err := s.registerTools(); err != nil {
		s.auditLogger.Close()
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}
	if err := s.registerResources(); err != nil {
		s.auditLogger.Close()
		return nil, fmt.Errorf("failed to register resources: %w", err)
	}

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

	err := s.server.Run(ctx, &sdk.StdioTransport{})

	s.Close()
	return err
}

// Close releases the audit log.
func (s *Server) Close() error {
	return s.auditLogger.Close()
}
