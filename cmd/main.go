/**
 * @description
 * This is the main entry point for the distribution-service. It is responsible
 * for initializing all components of the service, including configuration,
 * database connection, external API clients, message brokers, repositories, the
 * core application service, the expiry sweep scheduler, and the HTTP server. It
 * wires everything together and starts the service.
 *
 * @dependencies
 * - log, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/go-chi/chi/v5: For HTTP routing.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - internal/api, internal/app, internal/config, internal/store: Internal packages for the service.
 * - pkg/chainresolver, pkg/recipientclient: Clients for sibling services.
 * - pkg/rabbitmq: Client for RabbitMQ.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/worklane/distribution-service/internal/api"
	"github.com/worklane/distribution-service/internal/app"
	"github.com/worklane/distribution-service/internal/config"
	"github.com/worklane/distribution-service/internal/store"
	"github.com/worklane/distribution-service/pkg/chainresolver"
	"github.com/worklane/distribution-service/pkg/rabbitmq"
	"github.com/worklane/distribution-service/pkg/recipientclient"
)

func main() {
	// Load application configuration from environment variables.
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if strings.TrimSpace(cfg.InternalAPIKey) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"internal api key must be configured\" env=INTERNAL_API_KEY")
	}

	log.Printf("level=info component=bootstrap msg=\"starting distribution-service\" port=%s", cfg.ServerPort)

	// Establish a connection pool to the PostgreSQL database.
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}

	// Configure connection pool for high-traffic scenarios
	poolConfig.MaxConns = 100
	poolConfig.MinConns = 20
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer dbpool.Close()
	log.Println("level=info component=bootstrap msg=\"database connected\"")

	// Initialize the RabbitMQ producer to publish lifecycle events. Event
	// delivery is fire-and-forget, so a broker outage downgrades to the
	// fallback publisher instead of blocking startup.
	var producer rabbitmq.Publisher
	eventProducer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
		producer = &rabbitmq.EventProducerFallback{}
	} else {
		defer eventProducer.Close()
		producer = eventProducer
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	// Initialize the chain-resolver client used for settlement verification.
	var networkResolver app.NetworkResolver
	if strings.TrimSpace(cfg.ChainResolverURL) == "" {
		log.Println("level=warn component=bootstrap msg=\"chain resolver not configured; settlement network verification disabled\" env=CHAIN_RESOLVER_URL")
	} else {
		networkResolver = chainresolver.NewClient(cfg.ChainResolverURL, cfg.ChainResolverAPIKey)
	}

	// Initialize the recipient-service client used when creating distributions.
	var recipientResolver app.RecipientResolver
	if strings.TrimSpace(cfg.RecipientServiceURL) == "" {
		log.Println("level=warn component=bootstrap msg=\"recipient service not configured; recipient existence checks disabled\" env=RECIPIENT_SERVICE_URL")
	} else {
		recipientResolver = recipientclient.NewClient(cfg.RecipientServiceURL, cfg.RecipientServiceAPIKey)
	}

	var redisClient *redis.Client
	if cfg.ClaimRateLimitPerMinute > 0 {
		if strings.TrimSpace(cfg.RedisURL) == "" {
			log.Println("level=warn component=bootstrap msg=\"redis url missing; claim rate limiting disabled\" env=REDIS_URL")
		} else {
			redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
			if parseErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; claim rate limiting disabled\" err=%v", parseErr)
			} else {
				redisClient = redis.NewClient(redisOptions)
				pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancelPing()
				if pingErr := redisClient.Ping(pingCtx).Err(); pingErr != nil {
					log.Printf("level=warn component=bootstrap msg=\"redis ping failed; claim rate limiting disabled\" err=%v", pingErr)
					redisClient.Close()
					redisClient = nil
				} else {
					defer redisClient.Close()
					log.Println("level=info component=bootstrap msg=\"redis connected\"")
				}
			}
		}
	}

	// Initialize the data access layer (repository).
	repository := store.NewPostgresRepository(dbpool)

	// Initialize the core application service with its dependencies.
	distributionService := app.NewService(
		repository,
		networkResolver,
		recipientResolver,
		producer,
		time.Duration(cfg.ClaimTTLHours)*time.Hour,
	)
	if redisClient != nil {
		distributionService.SetClaimRateLimiter(
			app.NewRedisClaimRateLimiter(redisClient, cfg.RedisRateLimitPrefix),
			cfg.ClaimRateLimitPerMinute,
		)
	}

	// Start the expiry sweep scheduler.
	scheduler := app.NewScheduler(distributionService, cfg.ExpirySweepSchedule, cfg.ExpirySweepBatchLimit)
	scheduler.Start()
	defer func() {
		<-scheduler.Stop().Done()
	}()

	// Wire up the broker consumers for settlement and payout-trigger events.
	settlementConsumer := app.NewSettlementStatusConsumer(distributionService)
	payoutConsumer := app.NewPayoutTriggeredConsumer(distributionService)

	rabbitConsumer, err := rabbitmq.NewConsumer(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"rabbitmq consumer init failed\" err=%v", err)
	}
	defer rabbitConsumer.Close()

	eventBindings := map[string]func([]byte) bool{
		"settlement.status.confirmed": settlementConsumer.HandleMessage,
		"settlement.status.settled":   settlementConsumer.HandleMessage,
		"payout.triggered":            payoutConsumer.HandleMessage,
	}

	if err := rabbitConsumer.ConsumeWithBindings("worklane.events", cfg.DistributionEventQueue, eventBindings); err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"event consumer start failed\" err=%v", err)
	}

	// Initialize the API handlers.
	distributionHandlers := api.NewDistributionHandlers(distributionService)

	// Set up the HTTP router and define the API routes.
	router := chi.NewRouter()
	router.Mount("/", api.DistributionRoutes(distributionHandlers, cfg.JWKSURL, cfg.InternalAPIKey))

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)

	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=http msg=\"shutdown started\"")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}

	log.Println("level=info component=http msg=\"shutdown complete\"")
}
