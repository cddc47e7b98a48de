package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/giantswarm/llm-gauge/internal/record"
	"github.com/giantswarm/llm-gauge/internal/server"
)

func handleGetResults(_ context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	runID, _ := args["run_id"].(string)

	if runID != "" {
		return getRun(sc.OutputDir, runID)
	}
	return listRuns(sc.OutputDir)
}

func listRuns(outputDir string) (*mcp.CallToolResult, error) {
	entries, err := os.ReadDir(outputDir)
	if err != nil {
		if os.IsNotExist(err) {
			return mcp.NewToolResultText("[]"), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("failed to read results directory: %v", err)), nil
	}

	runs := make([]runSummary, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		path := filepath.Join(outputDir, e.Name())
		rec, err := record.Load(path)
		if err != nil {
			slog.Debug("skipping unreadable record", "path", path, "error", err)
			continue
		}
		runs = append(runs, runSummary{
			RunID:        rec.RunID,
			RunTimestamp: rec.RunTimestamp,
			TestUID:      rec.TestUID,
			SUTUID:       rec.SUTUID,
			Items:        len(rec.TestItemRecords),
			Results:      rec.Results,
			CacheStats:   rec.CacheStats,
			RecordFile:   path,
		})
	}
	if len(runs) == 0 {
		return mcp.NewToolResultText("[]"), nil
	}

	// Newest first.
	slices.SortFunc(runs, func(a, b runSummary) int {
		return b.RunTimestamp.Compare(a.RunTimestamp)
	})
	return jsonResult(runs, "runs")
}

func getRun(outputDir, runID string) (*mcp.CallToolResult, error) {
	path, err := resolveRunPath(outputDir, runID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid run_id: %v", err)), nil
	}

	rec, err := record.Load(path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("run %q not found: %v", runID, err)), nil
	}
	return jsonResult(rec, "record")
}
