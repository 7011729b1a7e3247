// budget-recalc rebuilds budget spent totals for a workspace from its
// approved and paid expenses. Run it after imports or manual data fixes.
//
// Usage (from backend directory):
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/budget-recalc -workspace-id <uuid>
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"bitbucket.org/mmdatafocus/workspace_backend/budget"
	"bitbucket.org/mmdatafocus/workspace_backend/cache"
	"bitbucket.org/mmdatafocus/workspace_backend/config"
	"bitbucket.org/mmdatafocus/workspace_backend/store"
	"bitbucket.org/mmdatafocus/workspace_backend/utils"
)

func main() {
	workspaceID := flag.String("workspace-id", "", "Required: workspace id (uuid)")
	timeout := flag.Duration("timeout", 5*time.Minute, "Optional: overall timeout")
	flag.Parse()

	if strings.TrimSpace(*workspaceID) == "" {
		fmt.Fprintln(os.Stderr, "-workspace-id is required")
		os.Exit(1)
	}

	logger := logrus.New()

	st, err := store.OpenGormStore(config.DatabaseDSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "open document store: %v\n", err)
		os.Exit(1)
	}

	// Local cache only. The recalc itself invalidates nothing shared; a
	// deployment-wide flush after a recalc is cmd/cache-flush's job.
	rc := cache.NewResults(utils.GetCacheLifespan(), time.Now, cache.DefaultKey)
	ledger := budget.NewLedger(st, rc, nil)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := ledger.Recalculate(ctx, *workspaceID); err != nil {
		fmt.Fprintf(os.Stderr, "recalculate workspace %s: %v\n", *workspaceID, err)
		os.Exit(1)
	}
	logger.WithField("workspace_id", *workspaceID).Info("budget recalculation complete")
}
