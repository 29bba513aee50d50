package trend

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/trendradar/kit"
)

// RegisterMCP registers all trend tools on an MCP server.
func (svc *Service) RegisterMCP(srv *mcp.Server) {
	svc.registerLatestNews(srv)
	svc.registerNewsByDate(srv)
	svc.registerTrendingTopics(srv)
	svc.registerKeywordStats(srv)
	svc.registerReport(srv)
	svc.registerExportCSV(srv)
	svc.registerSystemStatus(srv)
}

func tagMCP(ctx context.Context) context.Context {
	return kit.WithTransport(ctx, "mcp")
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

func (svc *Service) registerLatestNews(srv *mcp.Server) {
	type req struct {
		Limit int `json:"limit"`
	}

	tool := &mcp.Tool{
		Name:        "trend_latest_news",
		Description: "Titles of the most recent polling cycle, in rank order",
		InputSchema: inputSchema(map[string]any{
			"limit": map[string]any{"type": "integer", "description": "Max titles to return"},
		}, nil),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		return svc.LatestNews(ctx, p.Limit)
	}

	decode := func(r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var p req
		if err := json.Unmarshal(r.Params.Arguments, &p); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &p, EnrichCtx: tagMCP}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

func (svc *Service) registerNewsByDate(srv *mcp.Server) {
	type req struct {
		Day       string   `json:"day"`
		SourceIDs []string `json:"source_ids"`
		Limit     int      `json:"limit"`
	}

	tool := &mcp.Tool{
		Name:        "trend_news_by_date",
		Description: "All titles observed on a day (YYYY-MM-DD), optionally filtered by source",
		InputSchema: inputSchema(map[string]any{
			"day":        map[string]any{"type": "string", "description": "Day as YYYY-MM-DD, empty for today"},
			"source_ids": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"limit":      map[string]any{"type": "integer"},
		}, nil),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		return svc.NewsByDate(ctx, p.Day, p.SourceIDs, p.Limit)
	}

	decode := func(r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var p req
		if err := json.Unmarshal(r.Params.Arguments, &p); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &p, EnrichCtx: tagMCP}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

func (svc *Service) registerTrendingTopics(srv *mcp.Server) {
	type req struct {
		Day   string `json:"day"`
		Limit int    `json:"limit"`
	}

	tool := &mcp.Tool{
		Name:        "trend_trending_topics",
		Description: "Top keyword buckets for a day, sorted by match count",
		InputSchema: inputSchema(map[string]any{
			"day":   map[string]any{"type": "string", "description": "Day as YYYY-MM-DD, empty for today"},
			"limit": map[string]any{"type": "integer"},
		}, nil),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		return svc.TrendingTopics(ctx, p.Day, p.Limit)
	}

	decode := func(r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var p req
		if err := json.Unmarshal(r.Params.Arguments, &p); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &p, EnrichCtx: tagMCP}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

func (svc *Service) registerKeywordStats(srv *mcp.Server) {
	type req struct {
		Day string `json:"day"`
	}

	tool := &mcp.Tool{
		Name:        "trend_keyword_stats",
		Description: "Full keyword bucket statistics for a day, including per-title rank history",
		InputSchema: inputSchema(map[string]any{
			"day": map[string]any{"type": "string", "description": "Day as YYYY-MM-DD, empty for today"},
		}, nil),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		return svc.KeywordStats(ctx, p.Day)
	}

	decode := func(r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var p req
		if err := json.Unmarshal(r.Params.Arguments, &p); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &p, EnrichCtx: tagMCP}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

func (svc *Service) registerReport(srv *mcp.Server) {
	type req struct {
		Day  string `json:"day"`
		Mode string `json:"mode"`
	}

	tool := &mcp.Tool{
		Name:        "trend_report",
		Description: "Build a full trend report (modes: daily, incremental, current)",
		InputSchema: inputSchema(map[string]any{
			"day":  map[string]any{"type": "string", "description": "Day as YYYY-MM-DD, empty for today"},
			"mode": map[string]any{"type": "string", "description": "daily, incremental, or current"},
		}, nil),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		mode := ReportMode(p.Mode)
		if p.Mode == "" {
			mode = ModeDaily
		}
		return svc.BuildReport(ctx, p.Day, mode)
	}

	decode := func(r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var p req
		if err := json.Unmarshal(r.Params.Arguments, &p); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &p, EnrichCtx: tagMCP}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

func (svc *Service) registerExportCSV(srv *mcp.Server) {
	type req struct {
		FromDay string `json:"from_day"`
		ToDay   string `json:"to_day"`
		Limit   int    `json:"limit"`
	}

	tool := &mcp.Tool{
		Name:        "trend_export_csv",
		Description: "Export observation history for a day range as CSV text",
		InputSchema: inputSchema(map[string]any{
			"from_day": map[string]any{"type": "string", "description": "Start day, empty for today"},
			"to_day":   map[string]any{"type": "string", "description": "End day, empty for today"},
			"limit":    map[string]any{"type": "integer"},
		}, nil),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		var buf bytes.Buffer
		if err := svc.ExportCSV(ctx, &buf, p.FromDay, p.ToDay, nil, p.Limit); err != nil {
			return nil, err
		}
		return buf.String(), nil
	}

	decode := func(r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var p req
		if err := json.Unmarshal(r.Params.Arguments, &p); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &p, EnrichCtx: tagMCP}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

func (svc *Service) registerSystemStatus(srv *mcp.Server) {
	type req struct{}

	tool := &mcp.Tool{
		Name:        "trend_system_status",
		Description: "Aggregate counters, last report, and active configuration",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(ctx context.Context, _ any) (any, error) {
		return svc.SystemStatus(ctx)
	}

	decode := func(r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var p req
		if len(r.Params.Arguments) > 0 {
			if err := json.Unmarshal(r.Params.Arguments, &p); err != nil {
				return nil, err
			}
		}
		return &kit.MCPDecodeResult{Request: &p, EnrichCtx: tagMCP}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}
