// analytics-export writes the cross-workspace expense analytics of a main
// workspace to an xlsx workbook, one sheet per rollup dimension.
//
// Usage (from backend directory):
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... \
//	  go run ./cmd/analytics-export -workspace-id <uuid> -user-id <owner-uuid> -out analytics.xlsx
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"

	"bitbucket.org/mmdatafocus/workspace_backend/aggregator"
	"bitbucket.org/mmdatafocus/workspace_backend/cache"
	"bitbucket.org/mmdatafocus/workspace_backend/config"
	"bitbucket.org/mmdatafocus/workspace_backend/store"
	"bitbucket.org/mmdatafocus/workspace_backend/utils"
)

func main() {
	workspaceID := flag.String("workspace-id", "", "Required: main workspace id (uuid)")
	userID := flag.String("user-id", "", "Required: user id the export runs as (must have full visibility)")
	outPath := flag.String("out", "analytics.xlsx", "Optional: output xlsx path")
	timeout := flag.Duration("timeout", 5*time.Minute, "Optional: overall timeout")
	flag.Parse()

	if strings.TrimSpace(*workspaceID) == "" {
		fmt.Fprintln(os.Stderr, "-workspace-id is required")
		os.Exit(1)
	}
	if strings.TrimSpace(*userID) == "" {
		fmt.Fprintln(os.Stderr, "-user-id is required")
		os.Exit(1)
	}

	logger := logrus.New()

	st, err := store.OpenGormStore(config.DatabaseDSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "open document store: %v\n", err)
		os.Exit(1)
	}

	rc := cache.NewResults(utils.GetCacheLifespan(), time.Now, cache.DefaultKey)
	svc := aggregator.NewService(st, aggregator.NewStoreHierarchy(st), rc)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	ctx = utils.SetUserIdInContext(ctx, *userID)
	ctx = utils.SetWorkspaceIdInContext(ctx, *workspaceID)

	analytics, chunkErrs, err := svc.OwnerCrossWorkspaceAnalytics(ctx, *workspaceID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "aggregate analytics: %v\n", err)
		os.Exit(1)
	}
	for _, ce := range chunkErrs {
		logger.WithField("workspace_ids", ce.WorkspaceIds).Warnf("chunk failed, export is partial: %v", ce.Err)
	}

	f := excelize.NewFile()
	defer f.Close()

	writeSheet(f, "Summary", [][]interface{}{
		{"Total count", analytics.TotalCount},
		{"Total amount", analytics.TotalAmount.String()},
		{"Generated at", analytics.GeneratedAt.Format(time.RFC3339)},
		{"Failed chunks", len(chunkErrs)},
	})

	statusRows := rollupHeader("Status")
	for _, k := range sortedKeys(analytics.ByStatus) {
		statusRows = append(statusRows, rollupRow(string(k), analytics.ByStatus[k].Count, analytics.ByStatus[k].Total))
	}
	writeSheet(f, "By Status", statusRows)

	workspaceRows := [][]interface{}{{"Workspace", "Name", "Count", "Total"}}
	for _, k := range sortedKeys(analytics.ByWorkspace) {
		r := analytics.ByWorkspace[k]
		workspaceRows = append(workspaceRows, []interface{}{r.WorkspaceId, r.WorkspaceName, r.Count, r.Total.String()})
	}
	writeSheet(f, "By Workspace", workspaceRows)

	categoryRows := rollupHeader("Category")
	for _, k := range sortedKeys(analytics.ByCategory) {
		categoryRows = append(categoryRows, rollupRow(k, analytics.ByCategory[k].Count, analytics.ByCategory[k].Total))
	}
	writeSheet(f, "By Category", categoryRows)

	departmentRows := rollupHeader("Department")
	for _, k := range sortedKeys(analytics.ByDepartment) {
		departmentRows = append(departmentRows, rollupRow(k, analytics.ByDepartment[k].Count, analytics.ByDepartment[k].Total))
	}
	writeSheet(f, "By Department", departmentRows)

	monthRows := rollupHeader("Month")
	for _, k := range sortedKeys(analytics.ByMonth) {
		monthRows = append(monthRows, rollupRow(k, analytics.ByMonth[k].Count, analytics.ByMonth[k].Total))
	}
	writeSheet(f, "By Month", monthRows)

	f.DeleteSheet("Sheet1")
	if err := f.SaveAs(*outPath); err != nil {
		fmt.Fprintf(os.Stderr, "write %s: %v\n", *outPath, err)
		os.Exit(1)
	}
	logger.WithFields(logrus.Fields{
		"workspace_id": *workspaceID,
		"out":          *outPath,
		"expenses":     analytics.TotalCount,
	}).Info("analytics export complete")
}

func writeSheet(f *excelize.File, name string, rows [][]interface{}) {
	f.NewSheet(name)
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		f.SetSheetRow(name, cell, &row)
	}
}

func rollupHeader(dimension string) [][]interface{} {
	return [][]interface{}{{dimension, "Count", "Total"}}
}

func rollupRow(key string, count int, total decimal.Decimal) []interface{} {
	return []interface{}{key, count, total.String()}
}

func sortedKeys[K ~string, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
