package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/sugarbuddy/guard"
	"github.com/hazyhaar/sugarbuddy/idgen"
	"github.com/hazyhaar/sugarbuddy/kit"
	"github.com/hazyhaar/sugarbuddy/markdown"
)

type snapshotReq struct {
	UserID string `json:"user_id"`
}

type renderReq struct {
	Text string `json:"text"`
}

// RegisterMCP adds the dashboard tools to srv.
func (d *Dashboard) RegisterMCP(srv *mcp.Server) {
	d.registerSnapshotTool(srv)
	d.registerRenderTool(srv)
}

// MCPHandler serves the dashboard tools over streamable HTTP.
func (d *Dashboard) MCPHandler() http.Handler {
	srv := mcp.NewServer(&mcp.Implementation{Name: "sugarbuddy", Version: "1.0.0"}, nil)
	d.RegisterMCP(srv)
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return srv }, nil)
}

func (d *Dashboard) registerSnapshotTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "sugarbuddy_snapshot",
		Description: "Resolve a user's six health records (profile, smalltalk, health record, two-week diet, recent events, habits) and derived views.",
		InputSchema: kit.InputSchema(map[string]any{
			"user_id": map[string]any{"type": "string", "description": "User id; defaults to the dashboard's default user"},
		}, nil),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*snapshotReq)
		if r.UserID == "" {
			r.UserID = d.cfg.DefaultUserID
		}
		if err := guard.ValidateIdentifier(r.UserID); err != nil {
			return nil, err
		}
		return d.Snapshot(ctx, r.UserID), nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r snapshotReq
		if len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
				return nil, err
			}
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	mw := d.toolChain(tool.Name, kit.WithUser(func(req any) string { return req.(*snapshotReq).UserID }))
	kit.RegisterMCPTool(srv, tool, mw(endpoint), decode)
}

func (d *Dashboard) registerRenderTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "sugarbuddy_render_markdown",
		Description: "Render chat Markdown (headings, quotes, lists, bold, code, links) to the sanitized HTML the dashboard shows.",
		InputSchema: kit.InputSchema(map[string]any{
			"text": map[string]any{"type": "string", "description": "Markdown source"},
		}, []string{"text"}),
	}

	endpoint := func(_ context.Context, req any) (any, error) {
		r := req.(*renderReq)
		if r.Text == "" {
			return nil, errors.New("text is required")
		}
		return map[string]string{"html": d.sanitize(markdown.Render(r.Text))}, nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r renderReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, d.toolChain(tool.Name)(endpoint), decode)
}

// toolChain stamps a request id, applies extra, and logs every call.
func (d *Dashboard) toolChain(name string, extra ...kit.Middleware) kit.Middleware {
	mws := append([]kit.Middleware{kit.EnsureRequestID(idgen.RequestID)}, extra...)
	return kit.Chain(append(mws, kit.Logging(d.logger, name))...)
}
