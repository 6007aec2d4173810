package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"pinmap-server/config"
	"pinmap-server/handlers"
	"pinmap-server/middleware"
	"pinmap-server/services"
	"pinmap-server/storage"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	ctx := context.Background()

	docs, err := storage.NewDocumentStore(ctx, cfg.MongoURI, cfg.MongoDatabase)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to MongoDB")
	}
	defer docs.Close(ctx)
	log.Info().Msg("connected to MongoDB")

	images, err := storage.NewObjectStore(ctx, storage.ObjectStoreConfig{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		UseSSL:    cfg.MinioUseSSL,
		Bucket:    cfg.MinioBucket,
		BaseURL:   cfg.MinioPublicURL,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to object storage")
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
		DB:   cfg.RedisDB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Msg("failed to connect to Redis")
	}

	// Services
	sessions := services.NewSessionService()
	userService := services.NewUserService(docs, redisClient, cfg.JWTSecret)
	resolver := services.NewProfileResolver(userService)
	connectivity := services.NewConnectivityMonitor(docs, 15*time.Second)

	var store *services.LocationStore
	var coordinator *services.MutationCoordinator

	presenter := services.NewMarkerPresenter(services.MarkerActions{
		OnEdit: func(locationID string) {
			coordinator.BeginEdit(locationID)
		},
		OnDelete: func(locationID string) {
			if session := sessions.Current(); session != nil {
				if err := coordinator.Delete(ctx, session.UserID, locationID, true); err != nil {
					log.Warn().Err(err).Str("location_id", locationID).Msg("marker delete action failed")
				}
			}
		},
	})
	layer := services.NewMapLayer()
	store = services.NewLocationStore(docs, resolver, presenter, layer, sessions.CurrentUserID)
	filter := services.NewSearchFilter(store)
	coordinator = services.NewMutationCoordinator(docs, images, store, connectivity.Online)

	// An authenticated session kicks off the initial marker load.
	sessions.OnSessionChange(func(session *services.Session) {
		if session == nil {
			return
		}
		if err := store.Reload(ctx); err != nil {
			log.Warn().Err(err).Msg("initial marker load failed")
		}
	})
	connectivity.OnConnectivityChange(func(online bool) {
		if online {
			if err := store.Reload(ctx); err != nil {
				log.Warn().Err(err).Msg("reload after reconnect failed")
			}
		}
	})
	connectivity.Start(ctx)

	// Handlers
	authHandler := handlers.NewAuthHandler(userService, sessions)
	mapHandler := handlers.NewMapHandler(filter, coordinator, connectivity)
	locationHandler := handlers.NewLocationHandler(coordinator, docs)

	r := mux.NewRouter()
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))
	r.Use(middleware.ErrorMiddleware())

	// Auth routes
	authRouter := r.PathPrefix("/auth").Subrouter()
	authRouter.HandleFunc("/register", authHandler.RegisterUser).Methods("POST", "OPTIONS")
	authRouter.HandleFunc("/login", authHandler.LoginUser).Methods("POST", "OPTIONS")
	authRouter.HandleFunc("/logout", authHandler.LogoutUser).Methods("POST", "OPTIONS")

	// Map routes
	mapRouter := r.PathPrefix("/map").Subrouter()
	mapRouter.Use(middleware.JWTMiddleware(cfg.JWTSecret))
	mapRouter.HandleFunc("/markers", mapHandler.GetMarkers).Methods("GET", "OPTIONS")
	mapRouter.HandleFunc("/search", mapHandler.Search).Methods("POST", "OPTIONS")
	mapRouter.HandleFunc("/placing", mapHandler.TogglePlacing).Methods("POST", "OPTIONS")
	mapRouter.HandleFunc("/pin", mapHandler.DropPin).Methods("POST", "OPTIONS")
	mapRouter.HandleFunc("/cancel", mapHandler.CancelPlacing).Methods("POST", "OPTIONS")

	// Location routes
	locationRouter := r.PathPrefix("/locations").Subrouter()
	locationRouter.Use(middleware.JWTMiddleware(cfg.JWTSecret))
	locationRouter.HandleFunc("", locationHandler.CreateLocation).Methods("POST", "OPTIONS")
	locationRouter.HandleFunc("/{id}", locationHandler.GetLocation).Methods("GET", "OPTIONS")
	locationRouter.HandleFunc("/{id}", locationHandler.UpdateLocation).Methods("PUT", "OPTIONS")
	locationRouter.HandleFunc("/{id}", locationHandler.DeleteLocation).Methods("DELETE")
	locationRouter.HandleFunc("/{id}/image", locationHandler.RemoveImage).Methods("DELETE", "OPTIONS")
	locationRouter.HandleFunc("/{id}/upvote", locationHandler.Upvote).Methods("POST", "OPTIONS")
	locationRouter.HandleFunc("/{id}/downvote", locationHandler.Downvote).Methods("POST", "OPTIONS")

	log.Info().Str("addr", cfg.ListenAddr).Msg("server starting")
	if err := http.ListenAndServe(cfg.ListenAddr, r); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
