// Command gpu-mcp exposes Intel GPU telemetry as Model Context Protocol
// tools over stdio, so local AI agents (e.g. Claude Desktop) can query
// encoder/decoder load and power/thermal state without shelling out.
package main

import (
	"fmt"

	mcp_golang "github.com/metoro-io/mcp-golang"
	"github.com/metoro-io/mcp-golang/transport/stdio"

	"github.com/ruaan-deysel/intelgpu"
	"github.com/ruaan-deysel/intelgpu/logger"
)

func main() {
	logger.SetLevel(logger.LevelWarning) // stdout is reserved for MCP JSON-RPC; only warnings and errors reach the log

	gpu, err := intelgpu.Detect()
	if err != nil {
		logger.Warning("gpu-mcp: detect Intel GPU: %v", err)
	}
	if gpu != nil {
		defer gpu.Close()
	}

	server := mcp_golang.NewServer(stdio.NewStdioServerTransport())

	if err := server.RegisterTool("list_gpus", "List every Intel GPU visible on this host, by DRM card path", listGpusTool); err != nil {
		logger.Fatal("register list_gpus: %v", err)
	}
	if err := server.RegisterTool("get_gpu_stats", "Read the current engine utilization, frequency, power, temperature, and throttle state of the opened Intel GPU", makeStatsTool(gpu)); err != nil {
		logger.Fatal("register get_gpu_stats: %v", err)
	}
	if err := server.RegisterTool("list_quicksync_clients", "List processes currently using the Quick Sync video or video-enhance engines, by PID", listQuicksyncClientsTool); err != nil {
		logger.Fatal("register list_quicksync_clients: %v", err)
	}

	if err := server.Serve(); err != nil {
		logger.Fatal("mcp server: %v", err)
	}
	select {}
}

// emptyArgs is the request shape for tools that take no parameters; the
// mcp-golang server derives a JSON schema from this struct via reflection.
type emptyArgs struct{}

func listGpusTool(_ emptyArgs) (*mcp_golang.ToolResponse, error) {
	gpus, err := intelgpu.ListGpus()
	if err != nil {
		return nil, fmt.Errorf("list gpus: %w", err)
	}
	return textResponse(gpus)
}

func listQuicksyncClientsTool(_ emptyArgs) (*mcp_golang.ToolResponse, error) {
	clients, err := intelgpu.FindQuicksyncClients()
	if err != nil {
		return nil, fmt.Errorf("list quicksync clients: %w", err)
	}
	return textResponse(clients)
}

// makeStatsTool closes over the already-opened adapter so the returned
// handler can be registered directly with RegisterTool.
func makeStatsTool(gpu *intelgpu.IntelGpu) func(emptyArgs) (*mcp_golang.ToolResponse, error) {
	return func(_ emptyArgs) (*mcp_golang.ToolResponse, error) {
		if gpu == nil {
			return nil, fmt.Errorf("no Intel GPU was detected at startup")
		}
		stats, err := gpu.ReadStats()
		if err != nil {
			return nil, fmt.Errorf("read_stats: %w", err)
		}
		return textResponse(stats)
	}
}

func textResponse(v any) (*mcp_golang.ToolResponse, error) {
	return mcp_golang.NewToolResponse(mcp_golang.NewTextContent(fmt.Sprintf("%+v", v))), nil
}
