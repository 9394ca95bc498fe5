package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/moodtrack/internal/pipeline"
	"github.com/kalambet/moodtrack/internal/storage"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store    *storage.Store
	Analyzer *pipeline.Analyzer
}

// NewMCPServer creates an MCP server with all moodtrack tools and resources registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"moodtrack",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("moodtrack: daily mood journal with lifestyle correlations, clustering and next-day mood prediction."),
		server.WithRecovery(),
	)

	// Tools
	s.AddTool(
		mcp.NewTool("log_mood",
			mcp.WithDescription("Record one day's mood (1-10) and lifestyle metrics. One entry per date."),
			mcp.WithString("date", mcp.Description("Day in YYYY-MM-DD (default today, UTC)")),
			mcp.WithNumber("mood", mcp.Description("Mood from 1 (worst) to 10 (best)"), mcp.Required()),
			mcp.WithNumber("sleep_hours", mcp.Description("Hours slept")),
			mcp.WithNumber("steps", mcp.Description("Step count")),
			mcp.WithNumber("workouts", mcp.Description("Workout minutes")),
			mcp.WithNumber("caffeine", mcp.Description("Caffeine in mg")),
			mcp.WithNumber("meals", mcp.Description("Number of meals")),
			mcp.WithNumber("work_hours", mcp.Description("Hours worked")),
			mcp.WithNumber("screen_time", mcp.Description("Screen time in minutes")),
			mcp.WithString("journal", mcp.Description("Free-text note")),
			mcp.WithArray("tags", mcp.Description("Optional tags"), mcp.WithStringItems()),
		),
		mcpLogMood(deps),
	)

	s.AddTool(
		mcp.NewTool("predict_mood",
			mcp.WithDescription("Predict tomorrow's mood from the most recent entry."),
			mcp.WithString("date", mcp.Description("Accepted for compatibility; the latest entry is always used")),
		),
		mcpPredictMood(deps),
	)

	s.AddTool(
		mcp.NewTool("mood_clusters",
			mcp.WithDescription("Group logged days into named clusters (high-energy, balanced, low-energy, ...)."),
		),
		mcpMoodClusters(deps),
	)

	s.AddTool(
		mcp.NewTool("mood_insights",
			mcp.WithDescription("Summarise which lifestyle factors move mood and suggest up to three changes."),
		),
		mcpMoodInsights(deps),
	)

	s.AddTool(
		mcp.NewTool("retrain_models",
			mcp.WithDescription("Retrain the clustering and prediction models on all logged days."),
		),
		mcpRetrainModels(deps),
	)

	// Resources
	s.AddResource(
		mcp.NewResource(
			"mood://summary",
			"Mood Summary",
			mcp.WithResourceDescription("Average mood, correlations and period averages over all entries"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceSummary(deps),
	)

	return s
}

func mcpLogMood(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		mood, err := req.RequireFloat("mood")
		if err != nil {
			return mcpError("mood is required"), nil
		}

		in := EntryRequest{
			Date:       req.GetString("date", time.Now().UTC().Format(storage.DateLayout)),
			Mood:       int(mood),
			SleepHours: req.GetFloat("sleep_hours", 0),
			Steps:      req.GetInt("steps", 0),
			Workouts:   req.GetInt("workouts", 0),
			Caffeine:   req.GetInt("caffeine", 0),
			Meals:      req.GetInt("meals", 0),
			WorkHours:  req.GetFloat("work_hours", 0),
			ScreenTime: req.GetInt("screen_time", 0),
			Journal:    req.GetString("journal", ""),
			Tags:       req.GetStringSlice("tags", nil),
		}
		if mood != float64(in.Mood) {
			return mcpError("mood must be a whole number between 1 and 10"), nil
		}
		e, err := in.Entry()
		if err != nil {
			return mcpError(err.Error()), nil
		}

		created, err := deps.Store.CreateEntry(ctx, e)
		if errors.Is(err, storage.ErrDuplicateDate) {
			return mcpError(fmt.Sprintf("an entry for %s already exists", e.DateString())), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to save: %v", err)), nil
		}

		return mcpText(fmt.Sprintf("Logged mood %d for %s (entry %d)", created.Mood, created.DateString(), created.ID)), nil
	}
}

func mcpPredictMood(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var asOf *time.Time
		if s := req.GetString("date", ""); s != "" {
			d, err := storage.ParseDate(s)
			if err != nil {
				return mcpError("date must be YYYY-MM-DD"), nil
			}
			asOf = &d
		}
		p, err := deps.Analyzer.Predict(ctx, asOf)
		if err != nil {
			return mcpError(fmt.Sprintf("prediction failed: %v", err)), nil
		}
		return mcpJSON(p)
	}
}

func mcpMoodClusters(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		report, err := deps.Analyzer.Clusters(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("clustering failed: %v", err)), nil
		}
		return mcpJSON(report)
	}
}

func mcpMoodInsights(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		in, err := deps.Analyzer.Insights(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("insights failed: %v", err)), nil
		}
		return mcpJSON(in)
	}
}

func mcpRetrainModels(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		meta, err := deps.Analyzer.Retrain(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("retraining failed: %v", err)), nil
		}
		return mcpJSON(meta)
	}
}

func mcpResourceSummary(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		s, err := deps.Analyzer.Summary(ctx, storage.EntryFilter{})
		if err != nil {
			return nil, fmt.Errorf("failed to summarise entries: %w", err)
		}

		b, err := json.Marshal(s)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal summary: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcpText(string(b)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
