// Package mcp exposes report computation and the patient store as MCP tools.
package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/oscillometry-report-server/internal/domain"
	"github.com/oscillometry-report-server/internal/service"
)

// Server represents the oscillometry report MCP server
type Server struct {
	config    domain.MCPConfig
	precision int
	mcpServer *mcp.Server
	store     domain.PatientStore
	engine    *service.DerivationEngine
	logger    *logrus.Logger
}

// NewServer creates a new MCP server instance. store may be nil, in which case only
// compute_report is registered.
func NewServer(cfg domain.MCPConfig, defaultPrecision int, store domain.PatientStore, engine *service.DerivationEngine, logger *logrus.Logger) (*Server, error) {
	if engine == nil {
		return nil, fmt.Errorf("derivation engine is required")
	}

	name, version := cfg.ServerName, cfg.ServerVersion
	if name == "" {
		name = "oscillometry-report"
	}
	if version == "" {
		version = "v1.0.0"
	}

	server := &Server{
		config:    cfg,
		precision: defaultPrecision,
		mcpServer: mcp.NewServer(&mcp.Implementation{Name: name, Version: version}, nil),
		store:     store,
		engine:    engine,
		logger:    logger,
	}

	server.registerTools()
	return server, nil
}

// Start runs the server over stdio until ctx is cancelled or the client disconnects
func (s *Server) Start(ctx context.Context) error {
	if s.config.Transport != "" && s.config.Transport != "stdio" {
		s.logger.WithField("transport", s.config.Transport).Warn("Unsupported MCP transport, using stdio")
	}
	s.logger.Info("Starting oscillometry report MCP server...")

	if err := s.mcpServer.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("MCP server failed: %w", err)
	}
	return nil
}

// registerTools registers the report tools with the MCP SDK
func (s *Server) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolComputeReport,
		Description: "Compute the impulse oscillometry report table and conclusions from raw cell values (F..M columns, rows 6-13).",
	}, s.handleComputeReport)
	registered := 1

	if s.store != nil {
		mcp.AddTool(s.mcpServer, &mcp.Tool{
			Name:        ToolListPatients,
			Description: "List stored patients as id and report name.",
		}, s.handleListPatients)
		mcp.AddTool(s.mcpServer, &mcp.Tool{
			Name:        ToolGetPatientReport,
			Description: "Compute the report of a stored patient, including the saved conclusion texts.",
		}, s.handleGetPatientReport)
		registered += 2
	}

	s.logger.WithField("tool_count", registered).Info("Registered MCP tools")
}
