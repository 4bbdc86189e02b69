// Package mcp exposes the assistant over the Model Context Protocol.
//
// Tools are registered with the MCP SDK (github.com/modelcontextprotocol/go-sdk/mcp)
// and call the dispatcher, memory service and task store directly. Text that
// is echoed back to the client is scrubbed for secrets first.
package mcp
