package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"groupswipe/config"
	"groupswipe/events"
	"groupswipe/logging"
	"groupswipe/media"
	"groupswipe/routes"
	"groupswipe/services"
	"groupswipe/socket"
	"groupswipe/supervisor"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize the store
	var store services.Store
	switch strings.ToLower(cfg.Store.Backend) {
	case "memory":
		logging.Warn().Msg("Using in-memory store; data is lost on restart")
		store = services.NewMemoryStore()
	default:
		awsCfg, err := services.LoadAWSConfig(ctx, cfg.Store.Region)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to load AWS configuration")
		}
		store = &services.DynamoService{
			Client: services.InitializeDynamoDBClient(awsCfg, cfg.Store.Endpoint),
			Table:  cfg.Store.Table,
		}
		logging.Info().Str("table", cfg.Store.Table).Str("region", cfg.Store.Region).Msg("DynamoDB client initialized")
	}

	// Match events flow from the services to socket.io through the bus
	bus := events.NewBus(nil)
	defer func() { _ = bus.Close() }()

	rooms := services.NewRoomService(store, cfg.Consensus, events.NewPublisher(bus))
	defer rooms.Wait()

	// Initialize media resolution
	cache, err := media.OpenBadgerCache(cfg.Media.CacheDir, cfg.Media.CacheTTL)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open media cache")
	}
	defer func() { _ = cache.Close() }()

	var signer *media.ArtworkSigner
	if cfg.Media.ArtworkBucket != "" {
		awsCfg, err := services.LoadAWSConfig(ctx, cfg.Store.Region)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to load AWS configuration for artwork")
		}
		signer = media.NewArtworkSigner(s3.NewFromConfig(awsCfg), cfg.Media.ArtworkBucket, cfg.Media.ArtworkURLTTL)
	}
	resolver := media.NewResolver(media.NewTMDBClient(cfg.Media), cache, signer, cfg.Media.Breaker)
	defer resolver.Wait()
	rooms.Media = resolver

	// Register routes
	sock := socket.NewServer()
	r := mux.NewRouter()
	routes.RegisterRoutes(r)
	routes.RegisterRoomRoutes(r, rooms)
	routes.RegisterMatchRoutes(r, rooms, cfg.Server.VotesPerMinute)
	routes.RegisterMediaRoutes(r, resolver, signer)
	r.PathPrefix("/socket.io/").Handler(sock)

	// Add CORS middleware
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Request-ID"},
		AllowCredentials: true,
	}).Handler(r)

	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           logging.RequestIDMiddleware(corsHandler),
		ReadHeaderTimeout: cfg.Server.RequestTimeout,
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{ShutdownTimeout: cfg.Server.ShutdownTimeout})
	tree.AddAPIService(supervisor.NewHTTPService(server, cfg.Server.ShutdownTimeout))
	tree.AddAPIService(sock)
	tree.AddBackgroundService(&socket.Bridge{Subscriber: bus, Target: sock})
	tree.AddBackgroundService(supervisor.NewSweepService(rooms, cfg.Consensus.SweepInterval))

	logging.Info().Str("addr", server.Addr).Str("store", cfg.Store.Backend).Msg("Starting server")
	if err := tree.Serve(ctx); err != nil && ctx.Err() == nil {
		logging.Error().Err(err).Msg("Supervisor stopped unexpectedly")
	}
	logging.Info().Msg("Server stopped")
}
