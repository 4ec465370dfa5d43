// Package mcpapi provides a stateless MCP streamable-HTTP adapter.
package mcpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/hylla/fieldwork/internal/adapters/server/common"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// Config captures MCP transport configuration.
type Config struct {
	ServerName    string
	ServerVersion string
	EndpointPath  string
}

// Handler wraps one stateless MCP streamable HTTP handler.
type Handler struct {
	httpHandler http.Handler
}

// NewHandler builds one stateless MCP adapter exposing activity, ledger, and honor tools.
func NewHandler(cfg Config, service common.Service) (*Handler, error) {
	if service == nil {
		return nil, fmt.Errorf("fieldwork service is required")
	}
	cfg = normalizeConfig(cfg)

	mcpSrv := mcpserver.NewMCPServer(
		cfg.ServerName,
		cfg.ServerVersion,
		mcpserver.WithToolCapabilities(false),
	)
	registerActivityTools(mcpSrv, service)
	registerProgressTools(mcpSrv, service)
	registerHonorTools(mcpSrv, service)

	streamable := mcpserver.NewStreamableHTTPServer(
		mcpSrv,
		mcpserver.WithEndpointPath(cfg.EndpointPath),
		mcpserver.WithStateLess(true),
	)
	return &Handler{httpHandler: streamable}, nil
}

// ServeHTTP handles one MCP streamable HTTP request.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.httpHandler == nil {
		http.Error(w, "mcp handler unavailable", http.StatusServiceUnavailable)
		return
	}
	h.httpHandler.ServeHTTP(w, r)
}

// normalizeConfig applies deterministic defaults to MCP adapter config.
func normalizeConfig(cfg Config) Config {
	cfg.ServerName = strings.TrimSpace(cfg.ServerName)
	if cfg.ServerName == "" {
		cfg.ServerName = "fieldwork"
	}
	cfg.ServerVersion = strings.TrimSpace(cfg.ServerVersion)
	if cfg.ServerVersion == "" {
		cfg.ServerVersion = "dev"
	}
	cfg.EndpointPath = strings.TrimSpace(cfg.EndpointPath)
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = "/mcp"
	}
	cfg.EndpointPath = "/" + strings.Trim(cfg.EndpointPath, "/")
	return cfg
}

// registerActivityTools registers activity read and document tools.
func registerActivityTools(srv *mcpserver.MCPServer, activities common.ActivityService) {
	srv.AddTool(
		mcp.NewTool(
			"fieldwork.list_activities",
			mcp.WithDescription("List activities with their derived status."),
		),
		func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			rows, err := activities.ListActivities(ctx)
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonToolResult("list_activities", map[string]any{"activities": rows})
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"fieldwork.get_activity",
			mcp.WithDescription("Return one activity with assignments, per-phase progress, status, and warnings."),
			mcp.WithString("activity_id", mcp.Required(), mcp.Description("Activity identifier")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			activityID, err := req.RequireString("activity_id")
			if err != nil {
				return invalidRequestToolResult(err), nil
			}
			activity, err := activities.GetActivity(ctx, activityID)
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonToolResult("get_activity", activity)
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"fieldwork.activity_status",
			mcp.WithDescription("Derive the lifecycle status and advisory warnings of one activity for today."),
			mcp.WithString("activity_id", mcp.Required(), mcp.Description("Activity identifier")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			activityID, err := req.RequireString("activity_id")
			if err != nil {
				return invalidRequestToolResult(err), nil
			}
			status, err := activities.ActivityStatus(ctx, activityID)
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonToolResult("activity_status", status)
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"fieldwork.list_documents",
			mcp.WithDescription("List report document metadata of one activity."),
			mcp.WithString("activity_id", mcp.Required(), mcp.Description("Activity identifier")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			activityID, err := req.RequireString("activity_id")
			if err != nil {
				return invalidRequestToolResult(err), nil
			}
			docs, err := activities.ListDocuments(ctx, activityID)
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonToolResult("list_documents", map[string]any{"documents": docs})
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"fieldwork.upsert_document",
			mcp.WithDescription("Record or replace report document metadata for one phase."),
			mcp.WithString("activity_id", mcp.Required(), mcp.Description("Activity identifier")),
			mcp.WithString("id", mcp.Description("Document identifier; generated when empty")),
			mcp.WithString("phase", mcp.Required(), mcp.Description("Phase the report belongs to"),
				mcp.Enum("preparation", "data_collection", "processing_analysis", "dissemination_evaluation")),
			mcp.WithString("name", mcp.Required(), mcp.Description("Document name")),
			mcp.WithBoolean("mandatory", mcp.Description("Whether the report gates the phase")),
			mcp.WithString("approval", mcp.Description("Approval state"), mcp.Enum("pending", "approved", "rejected")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var args common.UpsertDocumentRequest
			if err := req.BindArguments(&args); err != nil {
				return invalidRequestToolResult(err), nil
			}
			doc, err := activities.UpsertDocument(ctx, args)
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonToolResult("upsert_document", doc)
		},
	)
}

// registerProgressTools registers ledger edit and history tools.
func registerProgressTools(srv *mcpserver.MCPServer, service common.Service) {
	srv.AddTool(
		mcp.NewTool(
			"fieldwork.set_stage_value",
			mcp.WithDescription("Set how many units of one assignment sit in a stage. Units move only from the stage just before it."),
			mcp.WithString("activity_id", mcp.Required(), mcp.Description("Activity identifier")),
			mcp.WithString("assignment_id", mcp.Required(), mcp.Description("Worker assignment identifier")),
			mcp.WithString("stage", mcp.Required(), mcp.Description("Stage name"),
				mcp.Enum("submitted", "reviewed", "approved", "entered", "validated", "clean")),
			mcp.WithNumber("value", mcp.Required(), mcp.Description("New non-negative whole unit count")),
			mcp.WithString("actor_id", mcp.Description("Who made the edit")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var args common.SetStageValueRequest
			if err := req.BindArguments(&args); err != nil {
				return invalidRequestToolResult(err), nil
			}
			assignment, err := service.SetStageValue(ctx, args)
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonToolResult("set_stage_value", assignment)
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"fieldwork.list_progress_events",
			mcp.WithDescription("List recent stage edits of one activity, newest first."),
			mcp.WithString("activity_id", mcp.Required(), mcp.Description("Activity identifier")),
			mcp.WithNumber("limit", mcp.Description("Maximum rows to return")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			activityID, err := req.RequireString("activity_id")
			if err != nil {
				return invalidRequestToolResult(err), nil
			}
			events, err := service.ListProgressEvents(ctx, common.ListEventsRequest{
				ActivityID: activityID,
				Limit:      req.GetInt("limit", 50),
			})
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonToolResult("list_progress_events", map[string]any{"events": events})
		},
	)
}

// jsonToolResult encodes one structured tool payload.
func jsonToolResult(tool string, payload any) (*mcp.CallToolResult, error) {
	result, err := mcp.NewToolResultJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s result: %w", tool, err)
	}
	return result, nil
}

// invalidRequestToolResult reports argument decoding failures.
func invalidRequestToolResult(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError("invalid_request: " + err.Error())
}

// toolResultFromError maps service errors into MCP-visible tool errors.
func toolResultFromError(err error) *mcp.CallToolResult {
	switch {
	case err == nil:
		return mcp.NewToolResultError("unknown error")
	case errors.Is(err, common.ErrInvalidRequest):
		return mcp.NewToolResultError("invalid_request: " + err.Error())
	case errors.Is(err, common.ErrNotFound):
		return mcp.NewToolResultError("not_found: " + err.Error())
	case errors.Is(err, common.ErrLedgerRejected):
		return mcp.NewToolResultError("ledger_rejected: " + err.Error())
	case errors.Is(err, common.ErrConflict):
		return mcp.NewToolResultError("conflict: " + err.Error())
	case errors.Is(err, common.ErrForbidden):
		return mcp.NewToolResultError("forbidden: " + err.Error())
	case errors.Is(err, common.ErrScheduleIncomplete):
		return mcp.NewToolResultError("insufficient_schedule_info: " + err.Error())
	case errors.Is(err, common.ErrLimitExceeded):
		return mcp.NewToolResultError("honor_limit_exceeded: " + err.Error())
	case errors.Is(err, common.ErrInconsistentState):
		return mcp.NewToolResultError("inconsistent_state: " + err.Error())
	default:
		return mcp.NewToolResultError("internal_error: " + err.Error())
	}
}
