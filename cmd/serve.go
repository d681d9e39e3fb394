package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/marsik/reid-mine/internal/config"
	"github.com/marsik/reid-mine/internal/database/postgres"
	"github.com/marsik/reid-mine/internal/feature"
	"github.com/marsik/reid-mine/internal/web"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start the reid-mine HTTP API.
The mining and loss endpoints work standalone; sample ingestion, retrieval
and stats additionally need DATABASE_URL and a running extraction server.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
	serveCmd.Flags().Bool("hnsw", true, "Build the in-memory HNSW index on startup")
}

func runServe(cmd *cobra.Command, args []string) error {
	port, _ := cmd.Flags().GetInt("port")
	host, _ := cmd.Flags().GetString("host")
	useHNSW, _ := cmd.Flags().GetBool("hnsw")

	ctx := context.Background()
	cfg := config.Load()

	var repo *postgres.SampleRepository
	if cfg.Database.URL != "" {
		fmt.Println("Connecting to PostgreSQL...")
		pool, err := postgres.NewPool(&cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		defer pool.Close()

		if err := pool.Migrate(ctx, cfg.Extractor.Dim); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}

		repo = postgres.NewSampleRepository(pool)

		if useHNSW {
			fmt.Println("Building in-memory HNSW index...")
			if err := repo.EnableHNSW(ctx); err != nil {
				fmt.Printf("Warning: failed to build HNSW index: %v\n", err)
				fmt.Println("Retrieval will use PostgreSQL queries (slower)")
			} else {
				fmt.Printf("HNSW index built with %d samples\n", repo.HNSWCount())
			}
		}
	} else {
		fmt.Println("DATABASE_URL not set - running without the sample store")
	}

	extractor := feature.NewClient(cfg.Extractor.URL, cfg.Extractor.Model)

	var server *web.Server
	if repo != nil {
		server = web.NewServer(cfg, port, host, repo, extractor)
	} else {
		server = web.NewServer(cfg, port, host, nil, extractor)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		fmt.Printf("Received %s, shutting down...\n", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
