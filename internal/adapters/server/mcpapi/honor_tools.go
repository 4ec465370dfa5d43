package mcpapi

import (
	"context"

	"github.com/hylla/fieldwork/internal/adapters/server/common"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// registerHonorTools registers honor computation, monthly limit, and recap tools.
func registerHonorTools(srv *mcpserver.MCPServer, honor common.HonorService) {
	srv.AddTool(
		mcp.NewTool(
			"fieldwork.compute_honor",
			mcp.WithDescription("Price a unit count directly or from an activity's task type setting."),
			mcp.WithNumber("unit_count", mcp.Required(), mcp.Description("Whole number of units")),
			mcp.WithNumber("unit_price", mcp.Description("Price per unit when no activity is given")),
			mcp.WithString("activity_id", mcp.Description("Activity whose price list to use")),
			mcp.WithString("task_type", mcp.Description("Task type to price"), mcp.Enum("listing", "enumeration", "processing")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var args common.ComputeHonorRequest
			if err := req.BindArguments(&args); err != nil {
				return invalidRequestToolResult(err), nil
			}
			result, err := honor.ComputeHonor(ctx, args)
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonToolResult("compute_honor", result)
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"fieldwork.get_honor_limit",
			mcp.WithDescription("Return the effective monthly honor ceiling per worker."),
		),
		func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			limit, err := honor.GetHonorLimit(ctx)
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonToolResult("get_honor_limit", limit)
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"fieldwork.set_honor_limit",
			mcp.WithDescription("Store the monthly honor ceiling. Requires the server identity to be an admin."),
			mcp.WithNumber("limit", mcp.Required(), mcp.Description("New ceiling in whole currency units")),
			mcp.WithString("actor_id", mcp.Description("Who made the change")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var args common.SetHonorLimitRequest
			if err := req.BindArguments(&args); err != nil {
				return invalidRequestToolResult(err), nil
			}
			limit, err := honor.SetHonorLimit(ctx, args)
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonToolResult("set_honor_limit", limit)
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"fieldwork.validate_honor_limit",
			mcp.WithDescription("Project a worker's monthly honor total and report whether it exceeds the ceiling. Advisory only."),
			mcp.WithString("worker_id", mcp.Required(), mcp.Description("Worker identifier")),
			mcp.WithString("period", mcp.Description("Payment month as YYYY-MM")),
			mcp.WithNumber("proposed_honor", mcp.Description("Honor to add on top of existing payments")),
			mcp.WithString("activity_id", mcp.Description("Use this activity's payment month and current honor when period is empty")),
			mcp.WithString("exclude_activity_id", mcp.Description("Activity to leave out of the existing total")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var args common.LimitCheckRequest
			if err := req.BindArguments(&args); err != nil {
				return invalidRequestToolResult(err), nil
			}
			result, err := honor.ValidateHonorLimit(ctx, args)
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonToolResult("validate_honor_limit", result)
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"fieldwork.monthly_recap",
			mcp.WithDescription("Total every worker's honor for activities paid in one month."),
			mcp.WithString("period", mcp.Required(), mcp.Description("Payment month as YYYY-MM")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			period, err := req.RequireString("period")
			if err != nil {
				return invalidRequestToolResult(err), nil
			}
			recap, err := honor.MonthlyRecap(ctx, period)
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonToolResult("monthly_recap", recap)
		},
	)
}
