// Package mcpserver exposes the analysis pipeline as MCP tools, over stdio
// or mounted on the dashboard over streamable HTTP.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/alexis-pagnon/green-optimizer/internal/common"
	"github.com/alexis-pagnon/green-optimizer/internal/dashboard"
	"github.com/alexis-pagnon/green-optimizer/models"
	dbpkg "github.com/alexis-pagnon/green-optimizer/pkg/db"
)

// Version is reported to MCP clients.
const Version = "1.0.0"

// Tools serves the MCP tools. Analyzer is required.
type Tools struct {
	Analyzer       dashboard.Analyzer
	History        dashboard.History
	RequestOptions []models.RequestOption
	Logger         *slog.Logger
}

// NewServer builds an MCP server with every tool registered.
func (t *Tools) NewServer() *mcp.Server {
	srv := mcp.NewServer(&mcp.Implementation{Name: "green-optimizer", Version: Version}, nil)
	t.Register(srv)
	return srv
}

// Register adds the tools to srv.
func (t *Tools) Register(srv *mcp.Server) {
	if t.Logger == nil {
		t.Logger = slog.Default()
	}
	t.registerAnalyzeTool(srv)
	t.registerModelsTool(srv)
	t.registerHistoryTool(srv)
	t.registerInvalidateTool(srv)
}

// ServeStdio runs the server on stdin/stdout until ctx is done or the client leaves.
func (t *Tools) ServeStdio(ctx context.Context) error {
	t.Logger.Info("mcp server starting", "transport", "stdio")
	if err := t.NewServer().Run(ctx, &mcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("failed to serve mcp: %w", err)
	}
	return nil
}

// HTTPHandler serves the tools over streamable HTTP, sharing one server.
func (t *Tools) HTTPHandler() http.Handler {
	srv := t.NewServer()
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return srv }, nil)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// registerTool decodes the arguments into a fresh T, runs fn and returns
// its result as JSON text. Failures become tool errors, never protocol errors.
func registerTool[T any](srv *mcp.Server, tool *mcp.Tool, logger *slog.Logger, fn func(context.Context, *T) (any, error)) {
	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args T
		if raw := req.Params.Arguments; len(raw) > 0 {
			if err := json.Unmarshal(raw, &args); err != nil {
				var res mcp.CallToolResult
				res.SetError(fmt.Errorf("invalid arguments: %w", err))
				return &res, nil
			}
		}

		resp, err := fn(ctx, &args)
		if err != nil {
			logger.Warn("mcp tool failed", "tool", tool.Name, "error", err)
			var res mcp.CallToolResult
			res.SetError(err)
			return &res, nil
		}

		data, err := json.Marshal(resp)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(fmt.Errorf("marshal: %w", err))
			return &res, nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
		}, nil
	})
}

func (t *Tools) request(rawURL string) (models.AnalysisRequest, error) {
	cleaned, err := common.SanitizeAndValidateURL(rawURL)
	if err != nil {
		return models.AnalysisRequest{}, fmt.Errorf("%w: %v", models.ErrInvalidURL, err)
	}
	return models.NewAnalysisRequest(cleaned, t.RequestOptions...)
}

// --- analyze ---

type analyzeArgs struct {
	URL   string `json:"url"`
	Fresh bool   `json:"fresh,omitempty"`
}

func (t *Tools) registerAnalyzeTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "green_analyze",
		Description: "Analyze the environmental footprint of a web page. Returns the snapshot, score and recommendations.",
		InputSchema: inputSchema(map[string]any{
			"url":   map[string]any{"type": "string", "description": "Absolute http(s) URL of the page"},
			"fresh": map[string]any{"type": "boolean", "description": "Ignore any cached result (default: false)"},
		}, []string{"url"}),
	}
	registerTool(srv, tool, t.Logger, func(ctx context.Context, a *analyzeArgs) (any, error) {
		req, err := t.request(a.URL)
		if err != nil {
			return nil, err
		}
		if a.Fresh {
			if err := t.Analyzer.Invalidate(ctx, req.URL); err != nil {
				return nil, err
			}
		}
		return t.Analyzer.Analyze(ctx, req)
	})
}

// --- models ---

func (t *Tools) registerModelsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "green_models",
		Description: "List the supported scoring model versions and the one in use.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}
	registerTool(srv, tool, t.Logger, func(_ context.Context, _ *struct{}) (any, error) {
		return map[string]any{
			"current":  t.Analyzer.ModelVersion(),
			"versions": t.Analyzer.Versions(),
		}, nil
	})
}

// --- history ---

type historyArgs struct {
	URL          string `json:"url,omitempty"`
	ModelVersion string `json:"model_version,omitempty"`
	Limit        int    `json:"limit,omitempty"`
}

func (t *Tools) registerHistoryTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "green_history",
		Description: "List stored analyses, newest first.",
		InputSchema: inputSchema(map[string]any{
			"url":           map[string]any{"type": "string", "description": "Only analyses of this URL"},
			"model_version": map[string]any{"type": "string", "description": "Only analyses scored with this model"},
			"limit":         map[string]any{"type": "integer", "description": "Max results (default 20)"},
		}, nil),
	}
	registerTool(srv, tool, t.Logger, func(ctx context.Context, a *historyArgs) (any, error) {
		if t.History == nil {
			return []dbpkg.AnalysisSummary{}, nil
		}
		if a.Limit <= 0 {
			a.Limit = 20
		}
		list, err := t.History.ListAnalyses(ctx, dbpkg.HistoryFilter{URL: a.URL, ModelVersion: a.ModelVersion, Limit: a.Limit})
		if err != nil {
			return nil, err
		}
		if list == nil {
			list = []dbpkg.AnalysisSummary{}
		}
		return list, nil
	})
}

// --- invalidate ---

type invalidateArgs struct {
	URL string `json:"url"`
}

func (t *Tools) registerInvalidateTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "green_invalidate",
		Description: "Drop the cached and stored result for a URL so the next analysis captures it again.",
		InputSchema: inputSchema(map[string]any{
			"url": map[string]any{"type": "string", "description": "URL to invalidate"},
		}, []string{"url"}),
	}
	registerTool(srv, tool, t.Logger, func(ctx context.Context, a *invalidateArgs) (any, error) {
		req, err := t.request(a.URL)
		if err != nil {
			return nil, err
		}
		if err := t.Analyzer.Invalidate(ctx, req.URL); err != nil {
			return nil, err
		}
		return map[string]string{"status": "ok", "url": req.URL}, nil
	})
}
