//go:build mcp

package mcpserver

import "testing"

func TestMCPExportHandshakeAndCall(t *testing.T) {
	// Exercising the in-memory transport pair requires a client session;
	// covered once the client side lands.
	t.Skip("MCP client session pending")
}
