// cache-flush drops cached query results from Redis, either for one
// workspace or for the whole deployment. Run it after manual data surgery
// so readers do not serve stale aggregates for the rest of the TTL window.
//
// Usage (from backend directory):
//
//	REDIS_ADDRESS=... go run ./cmd/cache-flush            # flush everything
//	REDIS_ADDRESS=... go run ./cmd/cache-flush -workspace-id <uuid>
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"bitbucket.org/mmdatafocus/workspace_backend/cache"
	"bitbucket.org/mmdatafocus/workspace_backend/config"
	"bitbucket.org/mmdatafocus/workspace_backend/utils"
)

func main() {
	workspaceID := flag.String("workspace-id", "", "Optional: flush only this workspace's cached results")
	flag.Parse()

	logger := logrus.New()

	config.ConnectRedisWithRetry()
	if config.GetRedisDB() == nil {
		fmt.Fprintln(os.Stderr, "redis not initialized. Set REDIS_ADDRESS.")
		os.Exit(1)
	}

	rc := cache.NewRedisResults(utils.GetCacheLifespan(), cache.DefaultKey)

	start := time.Now()
	if strings.TrimSpace(*workspaceID) != "" {
		if err := rc.InvalidateWorkspace(*workspaceID); err != nil {
			fmt.Fprintf(os.Stderr, "flush workspace %s: %v\n", *workspaceID, err)
			os.Exit(1)
		}
		logger.WithFields(logrus.Fields{
			"workspace_id": *workspaceID,
			"took":         time.Since(start).String(),
		}).Info("workspace cache flushed")
		return
	}

	if err := rc.InvalidateAll(); err != nil {
		fmt.Fprintf(os.Stderr, "flush cache: %v\n", err)
		os.Exit(1)
	}
	logger.WithField("took", time.Since(start).String()).Info("cache flushed")
}
