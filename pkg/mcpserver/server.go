// Package mcpserver exposes a sandbox as MCP tools over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/tfsandbox/tfsandbox/pkg/sandbox"
	"github.com/tfsandbox/tfsandbox/pkg/workspace"
)

// Tool names.
const (
	ToolResetStore = "files_reset_store"
	ToolLoadStub   = "files_load_stub"
	ToolSetFiles   = "files_set_files"
	ToolGetFiles   = "files_get_files"
	ToolApplyDiff  = "files_apply_diff"
	ToolLintOnly   = "terraform_lint_only"
)

// Server wires sandbox operations to MCP tools.
type Server struct {
	sb     *sandbox.Sandbox
	logger zerolog.Logger
	mcp    *server.MCPServer
	tools  []string
}

// New creates the MCP server and registers every tool.
func New(sb *sandbox.Sandbox, version string, logger zerolog.Logger) *Server {
	s := &Server{
		sb:     sb,
		logger: logger.With().Str("component", "mcp").Logger(),
		mcp: server.NewMCPServer(
			"tfsandbox",
			version,
			server.WithToolCapabilities(true),
			server.WithRecovery(),
			server.WithInstructions(instructions),
		),
	}

	fileItems := mcp.Items(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path":    map[string]any{"type": "string", "description": "Workspace-relative path"},
			"content": map[string]any{"type": "string", "description": "Full file content"},
		},
		"required": []string{"path", "content"},
	})
	changeItems := mcp.Items(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path":  map[string]any{"type": "string", "description": "Workspace-relative path"},
			"patch": map[string]any{"type": "string", "description": "Unified diff for that path"},
		},
		"required": []string{"path", "patch"},
	})

	s.add(mcp.NewTool(ToolResetStore,
		mcp.WithDescription("Delete every file in the workspace."),
	), s.handleReset)
	s.add(mcp.NewTool(ToolLoadStub,
		mcp.WithDescription("Seed the workspace with a minimal main.tf and return it."),
	), s.handleLoadStub)
	s.add(mcp.NewTool(ToolSetFiles,
		mcp.WithDescription("Create or overwrite files. Paths must stay inside the workspace."),
		mcp.WithArray("files", mcp.Required(), mcp.Description("Files to write"), fileItems),
	), s.handleSetFiles)
	s.add(mcp.NewTool(ToolGetFiles,
		mcp.WithDescription("Return every workspace file sorted by path."),
	), s.handleGetFiles)
	s.add(mcp.NewTool(ToolApplyDiff,
		mcp.WithDescription("Apply unified diffs, then run terraform fmt, init, validate and tflint. "+
			"Formatting fixes are written back. Returns the validation report with change accounting."),
		mcp.WithArray("changes", mcp.Required(), mcp.Description("Patches in application order"), changeItems),
	), s.handleApplyDiff)
	s.add(mcp.NewTool(ToolLintOnly,
		mcp.WithDescription("Run terraform fmt -check, init, validate and tflint without modifying files."),
	), s.handleLintOnly)

	return s
}

const instructions = `Terraform sandbox. Write files with files_set_files or edit them with files_apply_diff, ` +
	`then read the returned status: "ok" means formatting, validation and lint passed. ` +
	`A PATCH_CONTEXT_MISMATCH error means the patch was written against stale content; fetch the files and regenerate it.`

func (s *Server) add(tool mcp.Tool, h server.ToolHandlerFunc) {
	s.tools = append(s.tools, tool.Name)
	s.mcp.AddTool(tool, h)
}

// MCPServer returns the underlying MCP server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// Tools returns the registered tool names in registration order.
func (s *Server) Tools() []string {
	return append([]string(nil), s.tools...)
}

// Serve speaks MCP over in and out until ctx is done or in is closed.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(log.New(s.logger, "", 0))
	s.logger.Info().Strs("tools", s.tools).Msg("serving MCP over stdio")
	return stdio.Listen(ctx, in, out)
}

type setFilesArgs struct {
	Files []workspace.FileEntry `json:"files"`
}

type applyDiffArgs struct {
	Changes []sandbox.DiffChange `json:"changes"`
}

// applyDiffResult carries the report together with a reconciliation error.
type applyDiffResult struct {
	*sandbox.ApplyReport
	Error *sandbox.SandboxError `json:"error,omitempty"`
}

func (s *Server) handleReset(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := s.sb.Reset(ctx)
	return s.respond(ToolResetStore, res, err)
}

func (s *Server) handleLoadStub(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := s.sb.LoadStub(ctx)
	return s.respond(ToolLoadStub, res, err)
}

func (s *Server) handleSetFiles(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args setFilesArgs
	if err := bindArguments(req, &args); err != nil {
		return s.respond(ToolSetFiles, nil, err)
	}
	res, err := s.sb.SetFiles(ctx, args.Files)
	return s.respond(ToolSetFiles, res, err)
}

func (s *Server) handleGetFiles(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := s.sb.GetFiles(ctx)
	return s.respond(ToolGetFiles, res, err)
}

func (s *Server) handleApplyDiff(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args applyDiffArgs
	if err := bindArguments(req, &args); err != nil {
		return s.respond(ToolApplyDiff, nil, err)
	}

	rep, err := s.sb.ApplyDiff(ctx, args.Changes)
	var se *sandbox.SandboxError
	if rep != nil && errors.As(err, &se) {
		s.logger.Warn().Err(err).Str("tool", ToolApplyDiff).Msg("tool failed")
		return jsonResult(applyDiffResult{ApplyReport: rep, Error: se}, true)
	}
	return s.respond(ToolApplyDiff, rep, err)
}

func (s *Server) handleLintOnly(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rep, err := s.sb.ValidateOnly(ctx)
	return s.respond(ToolLintOnly, rep, err)
}

// respond renders v as JSON text, or err as a tool error. Errors never fail
// the JSON-RPC call itself.
func (s *Server) respond(tool string, v any, err error) (*mcp.CallToolResult, error) {
	if err == nil {
		return jsonResult(v, false)
	}

	s.logger.Warn().Err(err).Str("tool", tool).Msg("tool failed")
	var se *sandbox.SandboxError
	if errors.As(err, &se) {
		return jsonResult(map[string]any{"error": se}, true)
	}
	return mcp.NewToolResultError(err.Error()), nil
}

func jsonResult(v any, isError bool) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	res := mcp.NewToolResultText(string(data))
	res.IsError = isError
	return res, nil
}

// bindArguments decodes the tool arguments into v.
func bindArguments(req mcp.CallToolRequest, v any) error {
	data, err := json.Marshal(req.Params.Arguments)
	if err != nil {
		return sandbox.NewValidationError("invalid arguments", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return sandbox.NewValidationError("invalid arguments", err)
	}
	return nil
}
