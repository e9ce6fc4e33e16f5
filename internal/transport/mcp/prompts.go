package mcp

import (
	"context"
	"fmt"
	"strings"

	mcpmcp "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/alanyang/ipc-bridge/internal/domain/channel"
	"github.com/alanyang/ipc-bridge/internal/domain/descriptor"
	"github.com/alanyang/ipc-bridge/internal/port/transport"
)

const (
	descriptorURI = "ipc://descriptor"
	overviewName  = "bridge_overview"
)

// syncURI is the resource URI a responder is published under.
func syncURI(ch string) string {
	if ch == channel.Discovery {
		return descriptorURI
	}
	return "ipc://sync/" + ch
}

func newResource(ch string) mcpmcp.Resource {
	return mcpmcp.NewResource(syncURI(ch), ch,
		mcpmcp.WithResourceDescription(fmt.Sprintf("Synchronous answer of channel %q.", ch)),
		mcpmcp.WithMIMEType("application/json"),
	)
}

func resourceHandler(ch string, h transport.SyncHandler) mcpserver.ResourceHandlerFunc {
	return func(ctx context.Context, req mcpmcp.ReadResourceRequest) ([]mcpmcp.ResourceContents, error) {
		data, err := h(ctx)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", ch, err)
		}
		return []mcpmcp.ResourceContents{
			mcpmcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(data),
			},
		}, nil
	}
}

// newOverviewPrompt describes the bridge surface in prose, for agents that
// read prompts before listing tools.
func newOverviewPrompt() mcpmcp.Prompt {
	return mcpmcp.NewPrompt(overviewName,
		mcpmcp.WithPromptDescription("Lists every function and event stream the bridge currently exposes."),
	)
}

func overviewHandler(h transport.SyncHandler) mcpserver.PromptHandlerFunc {
	return func(ctx context.Context, _ mcpmcp.GetPromptRequest) (*mcpmcp.GetPromptResult, error) {
		data, err := h(ctx)
		if err != nil {
			return nil, fmt.Errorf("reading descriptor: %w", err)
		}
		list, err := descriptor.Decode(data)
		if err != nil {
			return nil, err
		}
		return mcpmcp.NewGetPromptResult(
			"Bridge overview",
			[]mcpmcp.PromptMessage{
				mcpmcp.NewPromptMessage(mcpmcp.RoleUser, mcpmcp.NewTextContent(renderOverview(list))),
			},
		), nil
	}
}

func renderOverview(list descriptor.List) string {
	var b strings.Builder
	b.WriteString("Call functions with the tool named after their channel, passing positional arguments in \"args\".\n")
	b.WriteString("Events arrive as notifications/message with \"channel\" and \"args\".\n\n")
	if len(list) == 0 {
		b.WriteString("Nothing is registered yet.\n")
		return b.String()
	}
	var write func(d descriptor.Descriptor, ns string)
	write = func(d descriptor.Descriptor, ns string) {
		switch d.Kind {
		case descriptor.KindFunction:
			fmt.Fprintf(&b, "- function %s\n", channel.For(d.Name, ns))
		case descriptor.KindEvents:
			fmt.Fprintf(&b, "- events %s::<event>\n", channel.For(d.Name, ns))
		case descriptor.KindNamespace:
			for _, v := range d.Values {
				write(v, d.Name)
			}
		}
	}
	for _, d := range list {
		write(d, "")
	}
	return b.String()
}
