// Package mcpserver exposes the query surface (internal/query) as MCP
// tools over stdio, grounded on the teacher's internal/mcp server:
// jsonschema-go input schemas, mcp.Tool/AddTool registration, and
// JSON-text CallToolResult responses.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/standardbeagle/scopegraph/internal/query"
	"github.com/standardbeagle/scopegraph/internal/scope"
	"github.com/standardbeagle/scopegraph/internal/version"
)

// Server wraps an mcp.Server bound to a query.Reader (typically an
// *internal/pipeline.Repository).
type Server struct {
	reader query.Reader
	server *mcp.Server
}

// New creates a Server over reader and registers every tool.
func New(reader query.Reader) *Server {
	s := &Server{
		reader: reader,
		server: mcp.NewServer(&mcp.Implementation{
			Name:    "scopegraph-mcp-server",
			Version: version.Version,
		}, nil),
	}
	s.registerTools()
	return s
}

// Run serves tool calls over stdio until ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) registerTools() {
	s.server.AddTool(&mcp.Tool{
		Name:        "find_scope",
		Description: "Return the innermost scope (namespace, type, method, property, or block) containing a source location.",
		InputSchema: locationSchema(),
	}, s.handleFindScope)

	s.server.AddTool(&mcp.Tool{
		Name:        "find_enclosing_type",
		Description: "Return the nearest enclosing TypeDefinition containing a source location.",
		InputSchema: locationSchema(),
	}, s.handleFindEnclosingType)

	s.server.AddTool(&mcp.Tool{
		Name:        "find_method_calls",
		Description: "Return the method calls reachable from the scope containing a source location, ordered nearest-first.",
		InputSchema: locationSchema(),
	}, s.handleFindMethodCalls)
}

func locationSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"file_path":    {Type: "string", Description: "Source file path as recorded on the graph"},
			"start_line":   {Type: "integer", Description: "1-based line number"},
			"start_column": {Type: "integer", Description: "0-based column, optional"},
		},
		Required: []string{"file_path", "start_line"},
	}
}

type locationParams struct {
	FilePath    string `json:"file_path"`
	StartLine   int    `json:"start_line"`
	StartColumn int    `json:"start_column"`
}

func parseLocation(req *mcp.CallToolRequest) (scope.Location, error) {
	var p locationParams
	if err := json.Unmarshal(req.Params.Arguments, &p); err != nil {
		return scope.Location{}, fmt.Errorf("invalid parameters: %w", err)
	}
	return scope.Location{FilePath: p.FilePath, StartLine: p.StartLine, StartColumn: p.StartColumn}, nil
}

func jsonResult(data any) (*mcp.CallToolResult, error) {
	content, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal response: %w", err)
	}
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: string(content)}}}, nil
}

func errorResult(op string, err error) (*mcp.CallToolResult, error) {
	content, _ := json.Marshal(map[string]any{"success": false, "operation": op, "error": err.Error()})
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: string(content)}}}, nil
}

func (s *Server) handleFindScope(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	loc, err := parseLocation(req)
	if err != nil {
		return errorResult("find_scope", err)
	}
	found, err := query.FindScope(ctx, s.reader, loc)
	if err != nil {
		return errorResult("find_scope", err)
	}
	return jsonResult(scopeSummary(found))
}

func (s *Server) handleFindEnclosingType(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	loc, err := parseLocation(req)
	if err != nil {
		return errorResult("find_enclosing_type", err)
	}
	found, err := query.FindScopeOfKind[scope.TypeDef](ctx, s.reader, loc)
	if err != nil {
		return errorResult("find_enclosing_type", err)
	}
	return jsonResult(scopeSummary(found))
}

func (s *Server) handleFindMethodCalls(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	loc, err := parseLocation(req)
	if err != nil {
		return errorResult("find_method_calls", err)
	}
	calls, err := query.FindMethodCalls(ctx, s.reader, loc)
	if err != nil {
		return errorResult("find_method_calls", err)
	}
	out := make([]map[string]any, 0, len(calls))
	for _, c := range calls {
		out = append(out, map[string]any{
			"text":        c.Text,
			"target_hint": c.ResolvedTargetHint,
			"file_path":   c.Location.FilePath,
			"start_line":  c.Location.StartLine,
		})
	}
	return jsonResult(map[string]any{"calls": out})
}

func scopeSummary(s *scope.Scope) map[string]any {
	if s == nil {
		return nil
	}
	loc := s.PrimaryLocation()
	return map[string]any{
		"kind":       s.Kind.String(),
		"qualified":  s.Qualified,
		"signature":  s.Signature,
		"file_path":  loc.FilePath,
		"start_line": loc.StartLine,
	}
}
