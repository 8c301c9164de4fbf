package tools

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// RegisterAll registers all tools with the MCP server.
// This is called from main after server creation but before Run().
func RegisterAll(server *mcp.Server, deps *Dependencies) {
	mcp.AddTool(server, &mcp.Tool{
		Name: "generate_diagram",
		Description: "Turn a plain-language description into a PlantUML diagram. " +
			"Returns the PlantUML source and the rendered image (SVG text or PNG).",
	}, NewGenerateDiagramHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_categories",
		Description: "List the diagram categories generate_diagram accepts",
	}, NewListCategoriesHandler())

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_transcript",
		Description: "Return the conversation so far, oldest turn first",
	}, NewTranscriptHandler(deps))
}
