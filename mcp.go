package domresolve

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/domresolve/kit"
	"github.com/hazyhaar/domresolve/selctx"
	"github.com/hazyhaar/domresolve/tabs"
)

// RegisterMCP registers the session's tools on an MCP server.
func (s *Session) RegisterMCP(srv *mcp.Server) {
	s.registerResolveTool(srv)
	s.registerSetContextTool(srv)
	s.registerNavigateTool(srv)
	s.registerContentChangeTool(srv)
	s.registerInvalidateTool(srv)
	s.registerStatsTool(srv)
	s.registerListTabsTool(srv)
	s.registerRegisterTabTool(srv)
	s.registerActivateTabTool(srv)
}

// inputSchema builds a JSON Schema object with type "object".
func inputSchema(properties map[string]any, required []string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// --- resolve ---

type resolveRequest struct {
	Selector string `json:"selector"`
	HTML     string `json:"html"`
}

func (s *Session) registerResolveTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "domresolve_resolve",
		Description: "Resolve a named semantic selector against an HTML document under the current context. Returns the element, strategy used and confidence.",
		InputSchema: inputSchema(map[string]any{
			"selector": map[string]any{"type": "string", "description": "Selector name as defined in the loaded set"},
			"html":     map[string]any{"type": "string", "description": "Raw HTML document to resolve against"},
		}, []string{"selector", "html"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*resolveRequest)
		res, err := s.ResolveHTML(ctx, r.Selector, r.HTML)
		if err != nil {
			return nil, err
		}
		return res, nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r resolveRequest
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- set_context ---

type setContextRequest struct {
	Primary   string `json:"primary"`
	Secondary string `json:"secondary,omitempty"`
	Tertiary  string `json:"tertiary,omitempty"`
	DOMState  string `json:"dom_state,omitempty"`
	TabID     string `json:"tab_id,omitempty"`
}

func (s *Session) registerSetContextTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "domresolve_set_context",
		Description: "Switch the current navigation context. Invalid combinations are rejected; the matching cache invalidation fires on accept.",
		InputSchema: inputSchema(map[string]any{
			"primary":   map[string]any{"type": "string", "enum": []any{"navigation", "extraction", "authentication", "settings"}, "description": "Primary context"},
			"secondary": map[string]any{"type": "string", "description": "Secondary context (e.g. match_list, main_menu)"},
			"tertiary":  map[string]any{"type": "string", "description": "Tertiary context (e.g. q1, full_game)"},
			"dom_state": map[string]any{"type": "string", "enum": []any{"unknown", "live", "scheduled", "finished"}, "description": "Observed DOM state"},
			"tab_id":    map[string]any{"type": "string", "description": "Owning tab ID"},
		}, []string{"primary"}),
	}

	endpoint := func(_ context.Context, req any) (any, error) {
		r := req.(*setContextRequest)
		if err := s.SetContext(r.Primary, r.Secondary, r.Tertiary, selctx.DOMState(r.DOMState), r.TabID); err != nil {
			return nil, err
		}
		return s.contexts.Current(), nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r setContextRequest
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- navigate ---

type navigateRequest struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
	HTML  string `json:"html,omitempty"`
}

func (s *Session) registerNavigateTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "domresolve_navigate",
		Description: "Detect the context for a page from URL, title and content, and switch to it. Returns the detection with its confidence.",
		InputSchema: inputSchema(map[string]any{
			"url":   map[string]any{"type": "string", "description": "Page URL"},
			"title": map[string]any{"type": "string", "description": "Page title"},
			"html":  map[string]any{"type": "string", "description": "Raw HTML for DOM state classification"},
		}, []string{"url"}),
	}

	endpoint := func(_ context.Context, req any) (any, error) {
		r := req.(*navigateRequest)
		det, err := s.Navigate(r.URL, r.Title, r.HTML)
		if err != nil {
			return nil, err
		}
		return det, nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r navigateRequest
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- content_change ---

func (s *Session) registerContentChangeTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "domresolve_content_change",
		Description: "Report observed content churn (score update, clock tick) so predictive invalidation can evict related contexts.",
		InputSchema: inputSchema(map[string]any{
			"hint": map[string]any{"type": "string", "description": "What changed (e.g. 'score updated', 'odds moved')"},
		}, []string{"hint"}),
	}

	type changeReq struct {
		Hint string `json:"hint"`
	}

	endpoint := func(_ context.Context, req any) (any, error) {
		r := req.(*changeReq)
		evicted := s.ReportContentChange(r.Hint)
		return map[string]any{"evicted": len(evicted), "keys": evicted}, nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r changeReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- invalidate ---

func (s *Session) registerInvalidateTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "domresolve_invalidate",
		Description: "Manually evict every cache entry containing the fragment, and drop the matching loaded selector sets.",
		InputSchema: inputSchema(map[string]any{
			"fragment": map[string]any{"type": "string", "description": "Key fragment to match (e.g. a context path or 'tab:<id>')"},
		}, []string{"fragment"}),
	}

	type invReq struct {
		Fragment string `json:"fragment"`
	}

	endpoint := func(_ context.Context, req any) (any, error) {
		r := req.(*invReq)
		evicted := s.Invalidate(r.Fragment)
		return map[string]any{"evicted": len(evicted), "keys": evicted}, nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r invReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- stats ---

func (s *Session) registerStatsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "domresolve_stats",
		Description: "Get session statistics: cache counters, per-strategy success rates, current context, tab and pending-eviction counts.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(_ context.Context, _ any) (any, error) {
		return s.Stats(), nil
	}

	decode := func(_ *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{Request: nil}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- tabs ---

func (s *Session) registerListTabsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "domresolve_tabs",
		Description: "List registered tabs with their contexts and activity.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(_ context.Context, _ any) (any, error) {
		return s.tabs.Tabs(), nil
	}

	decode := func(_ *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{Request: nil}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- register_tab ---

type registerTabRequest struct {
	ID    string `json:"id,omitempty"`
	Type  string `json:"type"`
	URL   string `json:"url,omitempty"`
	Title string `json:"title,omitempty"`
}

func (s *Session) registerRegisterTabTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "domresolve_register_tab",
		Description: "Register a browser tab. An empty id gets a generated one.",
		InputSchema: inputSchema(map[string]any{
			"id":    map[string]any{"type": "string", "description": "Tab ID (optional)"},
			"type":  map[string]any{"type": "string", "enum": []any{"content", "navigation", "settings", "modal", "filter"}, "description": "Tab type"},
			"url":   map[string]any{"type": "string", "description": "Tab URL"},
			"title": map[string]any{"type": "string", "description": "Tab title"},
		}, []string{"type"}),
	}

	endpoint := func(_ context.Context, req any) (any, error) {
		r := req.(*registerTabRequest)
		return s.tabs.Register(r.ID, tabs.Type(r.Type), r.URL, r.Title)
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r registerTabRequest
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- activate_tab ---

type activateTabRequest struct {
	TabID string `json:"tab_id"`
	Force bool   `json:"force,omitempty"`
}

func (s *Session) registerActivateTabTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "domresolve_activate_tab",
		Description: "Activate a tab and return its selector set. Activation rules and the modal block apply unless force is set.",
		InputSchema: inputSchema(map[string]any{
			"tab_id": map[string]any{"type": "string", "description": "Tab to activate"},
			"force":  map[string]any{"type": "boolean", "description": "Bypass the modal block"},
		}, []string{"tab_id"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*activateTabRequest)
		set, err := s.tabs.Activate(ctx, r.TabID, r.Force)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"path":      set.Path,
			"dom_state": set.DOMState,
			"selectors": set.Names(),
			"fallback":  set.Fallback,
			"warnings":  set.Warnings,
		}, nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r activateTabRequest
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		ctx := func(ctx context.Context) context.Context {
			return kit.WithTabID(ctx, r.TabID)
		}
		return &kit.MCPDecodeResult{Request: &r, EnrichCtx: ctx}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}
