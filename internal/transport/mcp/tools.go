package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	mcpmcp "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/alanyang/ipc-bridge/internal/domain/message"
	"github.com/alanyang/ipc-bridge/internal/port/transport"
)

// newTool describes one bridge function as an MCP tool named after its channel.
func newTool(channel string) mcpmcp.Tool {
	return mcpmcp.NewTool(channel,
		mcpmcp.WithDescription(fmt.Sprintf("Invoke the bridge function bound on channel %q. Returns the JSON-encoded result.", channel)),
		mcpmcp.WithArray("args",
			mcpmcp.Description("Positional arguments, in order. Omit for a call without arguments."),
			mcpmcp.Items(map[string]any{}),
		),
	)
}

// toolHandler adapts a bridge handler to the MCP tool-call shape. Invocation
// failures come back as tool errors so the calling model can see them.
func toolHandler(channel string, h transport.Handler) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcpmcp.CallToolRequest) (*mcpmcp.CallToolResult, error) {
		args, err := toolArgs(req)
		if err != nil {
			return mcpmcp.NewToolResultError(fmt.Sprintf("error: %s", err)), nil
		}

		result, err := h(ctx, args)
		if err != nil {
			return mcpmcp.NewToolResultError(message.ToRemote(channel, err).Error()), nil
		}
		if len(result) == 0 {
			result = json.RawMessage("null")
		}
		return mcpmcp.NewToolResultText(string(result)), nil
	}
}

func toolArgs(req mcpmcp.CallToolRequest) (message.Args, error) {
	raw, ok := req.GetArguments()["args"]
	if !ok || raw == nil {
		return message.Args{}, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("args must be an array, got %T", raw)
	}
	return message.EncodeArgs(list...)
}
