package main

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"chat-core/internal/cache"
	"chat-core/internal/chat"
	"chat-core/internal/config"
	"chat-core/internal/logger"
	"chat-core/internal/storage"
	"chat-core/internal/transport"
)

func main() {
	cfg := config.Load()
	logger.Init(cfg.Env)

	recent := cache.New(cfg.CacheCapacity)

	var repo chat.Repository
	var store transport.MessageStore
	if cfg.EnableMongo {
		db, err := storage.Connect(cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			log.Fatal().Err(err).Msg("mongo connect")
		}
		defer func() { _ = db.Close() }()
		if err := db.EnsureIndexes(); err != nil {
			log.Fatal().Err(err).Msg("mongo indexes")
		}

		mongoRepo := storage.NewMongoRepository(db)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err = mongoRepo.Load(ctx)
		cancel()
		if err != nil {
			log.Fatal().Err(err).Msg("load entities")
		}
		for _, room := range mongoRepo.Rooms() {
			msgs, err := mongoRepo.RecentMessages(room.Name, cfg.CacheCapacity)
			if err != nil {
				log.Warn().Err(err).Str("room", room.Name).Msg("prime recent messages")
				continue
			}
			recent.Prime(room.Name, msgs)
		}
		log.Info().Int("users", mongoRepo.UserCount()).Int("rooms", len(mongoRepo.Rooms())).Msg("entities loaded")
		repo = mongoRepo
		store = mongoRepo
	} else {
		repo = chat.NewInMemoryRepository()
	}

	service := chat.NewChatService(repo, chat.NewBcryptCrypto(), recent, cfg.AdminUsers)
	srv := transport.NewServer(cfg, service, repo, recent, store)

	sweeper := chat.NewSweeper(service, cfg.SweepInterval, cfg.IdleTimeout, srv.HasClient)
	sweeper.Start()
	defer sweeper.Stop()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", srv.HandleWS)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("chat server listening")
	if err := http.ListenAndServe(":"+cfg.Port, mux); err != nil {
		log.Fatal().Err(err).Msg("server run")
	}
}
