package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"example.com/snippetquiz/services/core/config"
	"example.com/snippetquiz/services/core/internal/api"
	"example.com/snippetquiz/services/core/internal/api/handlers"
	"example.com/snippetquiz/services/core/internal/fanout"
	"example.com/snippetquiz/services/core/internal/metrics"
	"example.com/snippetquiz/services/core/internal/search"
	"example.com/snippetquiz/services/core/internal/tracing"
)

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Start the API server",
	Long:  `Start the HTTP API server exposing the live quiz-generation progress stream`,
	RunE:  runAPI,
}

func init() {
	rootCmd.AddCommand(apiCmd)
}

func runAPI(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return err
	}

	// Configure logging
	if cfg.Environment == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	// Set up signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Initialize tracer
	tracer, err := tracing.NewTracer(cfg.Tracing)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
		tracer = &tracing.NewRelicTracer{}
	}

	// Initialize metrics
	metricsCollector := metrics.NewMetrics()

	// Initialize the question search backend
	var searcher handlers.QuestionSearcher
	elasticClient, err := search.NewElasticClient(cfg.Elastic)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Elasticsearch client, continuing without question search")
	} else {
		searcher = elasticClient
	}

	// The bridge subscribes to the per-user Redis channels and feeds
	// the SSE streams.
	bridge, err := fanout.NewBridge(cfg.Redis, cfg.Stream)
	if err != nil {
		return err
	}
	defer bridge.Close()

	g.Go(func() error {
		return bridge.Run(ctx)
	})

	// Initialize and start the server
	server := api.NewServer(cfg, bridge, searcher, metricsCollector, tracer)

	g.Go(func() error {
		return server.Start()
	})

	// Wait for termination signal
	<-ctx.Done()

	// Shutdown the server
	if err := server.Shutdown(context.Background()); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("API server error")
		return err
	}

	log.Info().Msg("Shutting down API server")
	return nil
}
