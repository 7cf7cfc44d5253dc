// Command cron-inspect is a small, read-only, operator-invoked HTTP
// inspector over the most recent generation run recorded in
// internal/stampstore. It is never invoked by the service manager at
// boot; it exists purely for interactive debugging of a generation pass
// after the fact ("what did the last run do").
//
// Grounded on internal/server/router.go's gin.New()+gin.Recovery()
// construction, reduced to two read-only routes.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/sysdcron/generator/internal/stampstore"
)

func main() {
	var (
		stampstorePath string
		listen         string
	)

	root := &cobra.Command{
		Use:           "cron-inspect",
		Short:         "Serve the last systemd-cron-generator run's summary over HTTP",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(stampstorePath, listen)
		},
	}
	root.Flags().StringVar(&stampstorePath, "stampstore", "/var/lib/systemd-cron-generator/runs.db", "path to the generator's run ledger")
	root.Flags().StringVar(&listen, "listen", "127.0.0.1:9091", "address to serve the inspector on")

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "cron-inspect: %v\n", err)
		os.Exit(1)
	}
}

func serve(stampstorePath, listen string) error {
	store, err := stampstore.Open(stampstorePath)
	if err != nil {
		return fmt.Errorf("open stamp store: %w", err)
	}
	defer store.Close()

	g := gin.New()
	g.Use(gin.Recovery())

	g.GET("/last-run", func(c *gin.Context) {
		run, ok, err := store.LastRun(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "no run recorded yet"})
			return
		}
		c.JSON(http.StatusOK, run)
	})

	g.GET("/healthz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if _, _, err := store.LastRun(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	srv := &http.Server{
		Addr:              listen,
		Handler:           g,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return srv.ListenAndServe()
}
