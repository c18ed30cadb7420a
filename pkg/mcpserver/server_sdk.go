//go:build mcp

package mcpserver

import (
	"context"
	"encoding/json"

	"github.com/google/jsonschema-go/jsonschema"
	mcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/wilhg/scout/pkg/tool"
)

// Server exposes the analysis tool registry over MCP so external agent
// hosts can call scout tools directly.
type Server struct {
	srv *mcp.Server
}

type Option func(*Server)

func New(_ context.Context, opts ...Option) (*Server, error) {
	s := &Server{
		srv: mcp.NewServer(&mcp.Implementation{Name: "scout", Version: "1.0.0"}, nil),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ExportRegistry registers every tool in reg with the MCP server. Calls
// route through SafeInvoke, so the scope allowlist and schema guards apply
// to MCP callers exactly as they do to the engine.
func (s *Server) ExportRegistry(reg *tool.Registry, allowed map[string]bool, scope string) error {
	var outer error
	reg.Range(func(name string, t tool.Tool) {
		if outer != nil {
			return
		}
		d := t.Describe()
		var in, out jsonschema.Schema
		if err := json.Unmarshal(d.InputSchema, &in); err != nil {
			outer = err
			return
		}
		if err := json.Unmarshal(d.OutputSchema, &out); err != nil {
			outer = err
			return
		}
		s.srv.AddTool(&mcp.Tool{
			Name:         d.Name,
			Description:  d.Description,
			InputSchema:  &in,
			OutputSchema: &out,
		}, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var args map[string]any
			if len(req.Params.Arguments) > 0 {
				if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
					return nil, err
				}
			}
			res, err := reg.SafeInvoke(ctx, d.Name, args, allowed, scope, nil)
			if err != nil {
				return nil, err
			}
			text, err := json.Marshal(res)
			if err != nil {
				return nil, err
			}
			return &mcp.CallToolResult{
				Content:           []mcp.Content{&mcp.TextContent{Text: string(text)}},
				StructuredContent: res,
			}, nil
		})
	})
	return outer
}

// Serve runs the server over stdio until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	return s.srv.Run(ctx, &mcp.StdioTransport{})
}
