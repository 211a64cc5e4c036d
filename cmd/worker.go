package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"example.com/snippetquiz/services/core/config"
	"example.com/snippetquiz/services/core/internal/ai"
	"example.com/snippetquiz/services/core/internal/cache"
	"example.com/snippetquiz/services/core/internal/database"
	"example.com/snippetquiz/services/core/internal/eventstore"
	"example.com/snippetquiz/services/core/internal/events"
	"example.com/snippetquiz/services/core/internal/fanout"
	"example.com/snippetquiz/services/core/internal/messaging"
	"example.com/snippetquiz/services/core/internal/metrics"
	"example.com/snippetquiz/services/core/internal/repositories"
	"example.com/snippetquiz/services/core/internal/search"
	"example.com/snippetquiz/services/core/internal/services"
	"example.com/snippetquiz/services/core/internal/tracing"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the background worker",
	Long:  `Start the background worker consuming pipeline events from Azure Service Bus and reconciling stuck quizzes`,
	RunE:  runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
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

	// Create an error group to manage goroutines
	g, ctx := errgroup.WithContext(ctx)

	// Initialize database connections and run migrations
	conn, err := database.Connect(cfg.DB)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := database.Migrate(conn); err != nil {
		return err
	}

	// Initialize cache
	redisCache, err := cache.NewRedisCache(cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Redis cache, continuing without caching")
		redisCache = &cache.RedisCache{}
	}

	// Initialize tracer
	tracer, err := tracing.NewTracer(cfg.Tracing)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
		tracer = &tracing.NewRelicTracer{}
	}

	// Initialize Elasticsearch client
	var indexer services.QuestionIndexer
	elasticClient, err := search.NewElasticClient(cfg.Elastic)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Elasticsearch client, continuing without search functionality")
	} else {
		indexer = elasticClient
	}

	// Initialize metrics
	metricsCollector := metrics.NewMetrics()

	// Initialize repositories
	entryRepo := repositories.NewContentEntryRepository(conn.DB, conn.ReadOnlyDB)
	topicRepo := repositories.NewTopicRepository(conn.DB, conn.ReadOnlyDB)
	characterRepo := repositories.NewCharacterRepository(conn.ReadOnlyDB)
	quizRepo := repositories.NewQuizRepository(conn.DB, conn.ReadOnlyDB)
	questionRepo := repositories.NewQuestionRepository(conn.DB, conn.ReadOnlyDB)
	processedRepo := repositories.NewProcessedEventRepository(conn.DB, conn.ReadOnlyDB)

	tracker := services.NewEventTracker(processedRepo)

	// Initialize the service bus with the event audit store
	bus, err := messaging.NewBus(cfg.Azure, eventstore.NewGormEventStore(conn.DB), metricsCollector)
	if err != nil {
		return err
	}
	defer bus.Close()

	// Initialize the Redis fan-out publisher
	fanoutPublisher, err := fanout.NewPublisher(cfg.Redis)
	if err != nil {
		return err
	}
	defer fanoutPublisher.Close()

	// Initialize the AI completion client
	aiClient := ai.NewClient(cfg.AI)

	// Initialize event handlers
	topicService := services.NewTopicService(entryRepo, topicRepo, characterRepo, redisCache,
		aiClient, bus, fanoutPublisher, tracker, tracer, metricsCollector,
		cfg.Pipeline.TopicCacheDuration)
	topicLinker := services.NewTopicLinker(topicRepo, tracker, tracer, metricsCollector)
	quizGenerator := services.NewQuizGenerator(entryRepo, quizRepo, aiClient, bus, tracker,
		tracer, metricsCollector, cfg.Pipeline.ChunkSize, cfg.Pipeline.ChunkDelay)
	questionWriter := services.NewQuestionWriter(quizRepo, entryRepo, questionRepo,
		indexer, fanoutPublisher, tracker, tracer, metricsCollector)

	// Route each event type to its handler
	dispatcher := messaging.NewDispatcher()
	dispatcher.On(events.ContentEntryCreatedName, messaging.HandlerFunc(func(ctx context.Context, ev events.Event) error {
		created, ok := ev.(*events.ContentEntryCreated)
		if !ok {
			return messaging.ErrNotDecodable
		}
		return topicService.HandleContentEntryCreated(ctx, created)
	}))
	dispatcher.On(events.TopicsAddedName, messaging.HandlerFunc(func(ctx context.Context, ev events.Event) error {
		added, ok := ev.(*events.TopicsAdded)
		if !ok {
			return messaging.ErrNotDecodable
		}
		return topicLinker.HandleTopicsAdded(ctx, added)
	}))
	dispatcher.On(events.QuizCreatedName, messaging.HandlerFunc(func(ctx context.Context, ev events.Event) error {
		created, ok := ev.(*events.QuizCreated)
		if !ok {
			return messaging.ErrNotDecodable
		}
		return quizGenerator.HandleQuizCreated(ctx, created)
	}))
	dispatcher.On(events.QuestionsGeneratedName, messaging.HandlerFunc(func(ctx context.Context, ev events.Event) error {
		generated, ok := ev.(*events.QuestionsGenerated)
		if !ok {
			return messaging.ErrNotDecodable
		}
		return questionWriter.HandleQuestionsGenerated(ctx, generated)
	}))

	// Consume every routed topic
	for _, topic := range dispatcher.Topics() {
		topic := topic
		g.Go(func() error {
			log.Info().Str("topic", topic).Msg("Starting service bus consumer")
			return bus.Consume(ctx, topic, dispatcher)
		})
	}

	// Start the stuck-quiz reconciliation cron job as a fallback mechanism
	reconciler := services.NewReconciler(quizRepo, entryRepo, bus, metricsCollector,
		cfg.Pipeline.ReconcileStuckAge)
	g.Go(func() error {
		log.Info().
			Dur("interval", cfg.Pipeline.ReconcileInterval).
			Msg("Starting quiz reconciliation cron job as fallback mechanism")

		scheduler, err := gocron.NewScheduler()
		if err != nil {
			return err
		}

		_, err = scheduler.NewJob(
			gocron.DurationJob(cfg.Pipeline.ReconcileInterval),
			gocron.NewTask(func() {
				if err := reconciler.Reconcile(ctx); err != nil {
					log.Error().Err(err).Msg("Failed to reconcile stuck quizzes")
				}
			}),
		)
		if err != nil {
			return err
		}

		scheduler.Start()

		<-ctx.Done()

		return scheduler.Shutdown()
	})

	// Wait for any goroutine to exit
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Worker error")
		return err
	}

	log.Info().Msg("Worker shutting down gracefully")
	return nil
}
