package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/companion/internal/chat"
	"github.com/kalambet/companion/internal/notify"
	"github.com/kalambet/companion/internal/prefs"
	"github.com/kalambet/companion/internal/reminder"
	"github.com/kalambet/companion/internal/topics"
	"github.com/kalambet/companion/internal/weather"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Chat          *chat.Service
	Prefs         *prefs.Manager
	Reminders     *reminder.Manager
	Notifications *notify.Store
	Topics        *topics.Aggregator
	Weather       *weather.Client
}

// NewMCPServer creates an MCP server with all companion tools and
// resources registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"companion",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("companion — local personal assistant for conversations, reminders, and preferences."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("chat",
			mcp.WithDescription("Send a message to the assistant within the current conversation session."),
			mcp.WithString("message", mcp.Description("The message text"), mcp.Required()),
		),
		mcpChat(deps),
	)

	s.AddTool(
		mcp.NewTool("create_reminder",
			mcp.WithDescription("Create a reminder that fires a notification when due."),
			mcp.WithString("title", mcp.Description("Short reminder title"), mcp.Required()),
			mcp.WithString("description", mcp.Description("Optional details")),
			mcp.WithString("datetime", mcp.Description("Due time in RFC 3339 format"), mcp.Required()),
		),
		mcpCreateReminder(deps),
	)

	s.AddTool(
		mcp.NewTool("list_reminders",
			mcp.WithDescription("List reminders, pending first, soonest due first."),
		),
		mcpListReminders(deps),
	)

	s.AddTool(
		mcp.NewTool("complete_reminder",
			mcp.WithDescription("Mark a reminder as completed."),
			mcp.WithString("id", mcp.Description("Reminder ID"), mcp.Required()),
		),
		mcpCompleteReminder(deps),
	)

	s.AddTool(
		mcp.NewTool("trending_topics",
			mcp.WithDescription("List conversation topics active within the last week."),
		),
		mcpTrendingTopics(deps),
	)

	s.AddTool(
		mcp.NewTool("get_weather",
			mcp.WithDescription("Get current weather and a clothing suggestion for a city."),
			mcp.WithString("city", mcp.Description("City name; defaults to the preferred location")),
		),
		mcpGetWeather(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"user://preferences",
			"User Preferences",
			mcp.WithResourceDescription("Current user preferences as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourcePreferences(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"user://notifications",
			"Notifications",
			mcp.WithResourceDescription("Current notifications, newest first"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceNotifications(deps),
	)

	return s
}

func mcpChat(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		message, err := req.RequireString("message")
		if err != nil {
			return mcpError("message is required"), nil
		}

		reply, err := deps.Chat.Send(ctx, message)
		if err != nil {
			return mcpError(fmt.Sprintf("chat failed: %v", err)), nil
		}
		return mcpText(reply.Content), nil
	}
}

func mcpCreateReminder(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		title, err := req.RequireString("title")
		if err != nil {
			return mcpError("title is required"), nil
		}
		rawDue, err := req.RequireString("datetime")
		if err != nil {
			return mcpError("datetime is required"), nil
		}
		dueAt, err := time.Parse(time.RFC3339, rawDue)
		if err != nil {
			return mcpError(fmt.Sprintf("invalid datetime %q: %v", rawDue, err)), nil
		}
		description := req.GetString("description", "")

		rem, err := deps.Reminders.Create(title, description, dueAt)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to create reminder: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Created reminder %s due %s", rem.ID, rem.DueAt.Format(time.RFC3339))), nil
	}
}

func mcpListReminders(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		reminders, err := deps.Reminders.List()
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list reminders: %v", err)), nil
		}
		if reminders == nil {
			reminders = []reminder.Reminder{}
		}
		b, err := json.Marshal(reminders)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal reminders: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpCompleteReminder(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}
		if err := deps.Reminders.Complete(id); err != nil {
			return mcpError(fmt.Sprintf("failed to complete reminder: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Completed reminder %s", id)), nil
	}
}

func mcpTrendingTopics(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		trending, err := deps.Topics.Trending()
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list trending topics: %v", err)), nil
		}
		if trending == nil {
			trending = []topics.Topic{}
		}
		b, err := json.Marshal(trending)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal topics: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpGetWeather(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		city := req.GetString("city", "")
		if city == "" {
			p, err := deps.Prefs.Get()
			if err != nil {
				return mcpError(fmt.Sprintf("failed to get preferences: %v", err)), nil
			}
			city = p.Location
		}
		if city == "" {
			return mcpError("no city given and no preferred location set"), nil
		}

		report := deps.Weather.Current(ctx, city)
		b, err := json.Marshal(WeatherResponse{
			City:       city,
			Report:     report,
			Suggestion: weather.Suggestion(report),
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal weather: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourcePreferences(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		p, err := deps.Prefs.Get()
		if err != nil {
			return nil, fmt.Errorf("failed to get preferences: %w", err)
		}
		b, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal preferences: %w", err)
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

func mcpResourceNotifications(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		notifications, err := deps.Notifications.List()
		if err != nil {
			return nil, fmt.Errorf("failed to list notifications: %w", err)
		}
		if notifications == nil {
			notifications = []notify.Notification{}
		}
		b, err := json.Marshal(notifications)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal notifications: %w", err)
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
