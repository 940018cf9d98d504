package main

import (
	"context"
	"flag"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"go-notify/internal/config"
	"go-notify/internal/db"
	myMiddleware "go-notify/internal/middleware"
	"go-notify/internal/notify"
	"go-notify/internal/user"
)

func main() {
	// 1. Config & Flags
	addr := flag.String("addr", "", "http service address (overrides ADDR)")
	flag.Parse()

	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}

	// 2. Connect to Database (Platform Layer)
	database, err := db.NewDatabase(cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("❌ Failed to connect to DB: %v", err)
	}
	log.Println("✅ Connected to PostgreSQL")

	if err := database.AutoMigrate(); err != nil {
		log.Fatalf("❌ Migration failed: %v", err)
	}
	log.Println("✅ Database Schema Initialized")

	// 3. Broker: Redis bridges instances, loopback serves single-process runs.
	var broker notify.Broker
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr,
		})
		if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
			log.Fatalf("❌ Failed to connect to Redis: %v", err)
		}
		log.Println("✅ Connected to Redis")
		broker = notify.NewRedisBroker(redisClient)
	} else {
		log.Println("⚠️ REDIS_ADDR not set, using in-process broker (single instance only)")
		broker = notify.NewLocalBroker()
	}

	// 4. Initialize User Feature
	userRepo := user.NewRepository(database.Conn)
	userService := user.NewService(userRepo, cfg.JWTSecret)
	userHandler := user.NewHandler(userService)

	// 5. Initialize Notification Feature
	store := notify.NewSQLStore(database.Conn, cfg.MaxBodyLen)
	registry := notify.NewRegistry()
	dispatcher := notify.NewDispatcher(store, registry, broker)
	notifyHandler := notify.NewHandler(store, dispatcher)
	wsHandler := notify.NewWSHandler(registry, userService, cfg.AuthWait)

	// Start the delivery engine
	go dispatcher.Run(context.Background())

	authMiddleware := myMiddleware.NewAuthMiddleware(userService)

	// 6. Define Routes
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Public Routes
	r.Post("/register", userHandler.Register)
	r.Post("/login", userHandler.Login)

	// WebSocket push channel; authentication happens in-band via the
	// authenticate frame, not through the REST middleware.
	r.Get("/ws", wsHandler.ServeWs)

	// Protected Routes (Require JWT)
	r.Route("/api", func(r chi.Router) {
		r.Use(authMiddleware.Handle)
		notifyHandler.Routes(r)
	})

	log.Printf("🚀 Server starting on %s", cfg.Addr)
	if err := http.ListenAndServe(cfg.Addr, r); err != nil {
		log.Fatal(err)
	}
}
