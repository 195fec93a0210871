package main

import (
	"crypto/tls"
	"encoding/json"
	stdlog "log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/hmseok/Self-Disruption-sub000/src/config"
	"github.com/hmseok/Self-Disruption-sub000/src/database"
	"github.com/hmseok/Self-Disruption-sub000/src/handlers"
	"github.com/hmseok/Self-Disruption-sub000/src/logger"
	"github.com/hmseok/Self-Disruption-sub000/src/services"
)

func proxyHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Forwarded-Proto") == "https" {
			r.URL.Scheme = "https"
			r.TLS = &tls.ConnectionState{}
		}
		next.ServeHTTP(w, r)
	})
}

var limiter = rate.NewLimiter(rate.Every(100*time.Millisecond), 30)

func rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			logger.L.Warn("Rate limit exceeded", "path", r.URL.Path)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		allowedOrigins := map[string]bool{
			"http://localhost:3000": true,
		}

		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE, PATCH")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, Authorization, X-Requested-With, If-None-Match")
		} else if origin == "" {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func main() {
	config.LoadConfig()
	logger.InitLogger(config.Cfg.LogLevel)

	logger.L.Info("Reconciliation backend server starting...")

	if config.Cfg.JWTSecret == "" || len(config.Cfg.JWTSecret) < 32 {
		logger.L.Error("JWT_SECRET configuration invalid.")
		os.Exit(1)
	}

	logger.L.Info("Initializing database...", "path", config.Cfg.DatabasePath)
	database.InitDB(config.Cfg.DatabasePath)
	database.RunMigrations(config.Cfg.DatabasePath, config.Cfg.MigrationsPath)

	registryCache := cache.New(services.DefaultCacheExpiration, services.CacheCleanupInterval)

	openaiConfig := openai.DefaultConfig(config.Cfg.OpenAIAPIKey)
	openaiConfig.HTTPClient = &http.Client{Timeout: config.Cfg.OpenAITimeout}
	chatClient := openai.NewClientWithConfig(openaiConfig)

	cardService := services.NewCardService(database.DB, registryCache)
	salaryService := services.NewSalaryAdjustmentService(database.DB)
	flagService := services.NewFlagService(database.DB, salaryService)
	extractionService := services.NewExtractionService(database.DB, chatClient, cardService, flagService, services.ExtractionConfig{
		Model:           config.Cfg.OpenAIModel,
		LocalCurrency:   config.Cfg.LocalCurrency,
		MaxDocumentSize: int(config.Cfg.MaxDocumentSize),
	})

	extractionHandler := handlers.NewExtractionHandler(extractionService)
	uploadHandler := handlers.NewUploadHandler(extractionService)
	flagHandler := handlers.NewFlagHandler(flagService)
	salaryHandler := handlers.NewSalaryAdjustmentHandler(salaryService)
	cardHandler := handlers.NewCardHandler(cardService)

	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(handlers.ContextualLoggerMiddleware)
	r.Use(proxyHeadersMiddleware)
	r.Use(enableCORS)
	r.Use(rateLimitMiddleware)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"message": "Reconciliation backend is running"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(handlers.AuthMiddleware)

			r.Post("/extractions", extractionHandler.HandleExtract)
			r.Post("/extractions/upload", uploadHandler.HandleUpload)

			r.Get("/flags", flagHandler.HandleListFlags)
			r.Post("/flags", flagHandler.HandleCreateFlags)
			r.Post("/flags/transition", flagHandler.HandleTransitionFlags)

			r.Get("/salary-adjustments", salaryHandler.HandleListAdjustments)
			r.Post("/salary-adjustments", salaryHandler.HandleCreateAdjustment)
			r.Post("/salary-adjustments/transition", salaryHandler.HandleTransitionAdjustments)

			r.Get("/cards", cardHandler.HandleListCards)
			r.Post("/cards", cardHandler.HandleCreateCard)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/api/") {
			http.NotFound(w, r)
		}
	})

	serverAddr := ":" + config.Cfg.Port
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.L.Info("Server starting", "address", serverAddr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		stdlog.Fatalf("Failed to start server: %v", err)
	}
}
