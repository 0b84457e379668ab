// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes stored datamaps and extraction results via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/datamaps/internal/datamapservice"
)

const definitionFormatURI = "datamaps://definition-format"

// Server wraps the MCP server with datamap tools.
type Server struct {
	mcp *server.MCPServer
	svc *datamapservice.Service
}

// New creates a new MCP server with all datamap tools registered.
func New(svc *datamapservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"datamaps",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_datamaps",
		mcp.WithDescription("List stored datamaps with their ids, names and line counts."),
	), s.listDatamaps)

	s.mcp.AddTool(mcp.NewTool("get_datamap_lines",
		mcp.WithDescription("Show the key, sheet and cell reference of every line of a datamap."),
		mcp.WithString("datamap", mcp.Required(), mcp.Description("Datamap id or name")),
	), s.getDatamapLines)

	s.mcp.AddTool(mcp.NewTool("get_extracted_values",
		mcp.WithDescription("Return the values recorded by an extraction run of a datamap."),
		mcp.WithString("datamap", mcp.Required(), mcp.Description("Datamap id or name")),
		mcp.WithString("run", mcp.Description("Run id; the newest run when omitted")),
	), s.getExtractedValues)

	s.mcp.AddTool(mcp.NewTool("lookup_value",
		mcp.WithDescription("Return the newest extracted value of one key."),
		mcp.WithString("datamap", mcp.Required(), mcp.Description("Datamap id or name")),
		mcp.WithString("key", mcp.Required(), mcp.Description("Key as written in the definition")),
	), s.lookupValue)

	s.mcp.AddTool(mcp.NewTool("get_datamap_format",
		mcp.WithDescription("Returns the datamap definition format. "+
			"Call this before drafting a definition file for import."),
	), s.getDatamapFormat)

	s.mcp.AddResource(
		mcp.NewResource(definitionFormatURI, "Datamap Definition Format",
			mcp.WithResourceDescription("Comma-separated key, sheet, cellref definition format."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readDefinitionFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listDatamaps(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	items, err := s.svc.ListDatamaps(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(items) == 0 {
		return mcp.NewToolResultText("no datamaps stored"), nil
	}
	return jsonResult(items)
}

func (s *Server) getDatamapLines(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref, err := req.RequireString("datamap")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	d, err := s.svc.GetDatamap(ctx, ref)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(d)
}

func (s *Server) getExtractedValues(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref, err := req.RequireString("datamap")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	runID := ""
	if v, err := req.RequireString("run"); err == nil {
		runID = v
	}
	rv, err := s.svc.Values(ctx, ref, runID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(rv)
}

func (s *Server) lookupValue(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref, err := req.RequireString("datamap")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	key, err := req.RequireString("key")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	v, err := s.svc.Lookup(ctx, ref, key)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("lookup %s: %v", key, err)), nil
	}
	return mcp.NewToolResultText(v.Value), nil
}

func (s *Server) getDatamapFormat(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(DefinitionFormatContract), nil
}

func (s *Server) readDefinitionFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      definitionFormatURI,
			MIMEType: "text/markdown",
			Text:     DefinitionFormatContract,
		},
	}, nil
}
