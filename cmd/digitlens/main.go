package main

import (
	"log"
	"log/slog"
	"net/http"
	"time"

	"digitlens/internal/app"
	"digitlens/internal/config"
	"digitlens/internal/otp"
	"digitlens/internal/ratelimit"
	"digitlens/internal/server"
	"digitlens/internal/util"
	"digitlens/pkg/ai"
	"digitlens/pkg/mailer"
	"digitlens/pkg/storage"
	"digitlens/pkg/store"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := util.InitLogger(cfg.LogLevel)

	sessionTTL, err := config.ParseDuration("sessionTTL", cfg.SessionTTL)
	if err != nil {
		log.Fatalf("%v", err)
	}
	if sessionTTL == 0 {
		sessionTTL = 24 * time.Hour
	}
	classifyTimeout, err := config.ParseDuration("classifyTimeout", cfg.ClassifyTimeout)
	if err != nil {
		log.Fatalf("%v", err)
	}
	minAnalyze, err := config.ParseDuration("minAnalyzeDuration", cfg.MinAnalyzeDuration)
	if err != nil {
		log.Fatalf("%v", err)
	}

	var dataStore store.Store
	if cfg.Storage == "postgres" {
		dataStore, err = store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("failed to init postgres store: %v", err)
		}
	} else {
		dataStore = store.NewMemoryStore()
		logger.Warn("using in-memory storage, data will not survive restarts")
	}

	var sessions store.SessionStore
	switch cfg.SessionStrategy {
	case "redis":
		sessions = store.NewRedisSessionStore(cfg.RedisAddr, cfg.RedisPassword, sessionTTL)
	case "jwt":
		var revoker store.TokenRevoker
		if cfg.RedisAddr != "" {
			revoker = store.NewRedisTokenRevoker(cfg.RedisAddr, cfg.RedisPassword)
		} else {
			revoker = store.NewMemoryTokenRevoker()
		}
		sessions, err = store.NewJWTSessionStore(cfg.JWTSecret, sessionTTL, revoker)
		if err != nil {
			log.Fatalf("failed to init jwt session store: %v", err)
		}
	default:
		sessions = store.NewMemorySessionStore()
	}

	var codes otp.Store
	if cfg.RedisAddr != "" {
		codes, err = otp.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			log.Fatalf("failed to init otp store: %v", err)
		}
	} else {
		codes = otp.NewMemoryStore()
	}

	geminiClient, err := ai.NewGeminiClient(cfg.GeminiAPIKey, classifyTimeout)
	if err != nil {
		log.Fatalf("failed to init gemini client: %v", err)
	}
	classifier := ai.NewGeminiClassifier(geminiClient, cfg.GeminiModel)

	var sender mailer.OTPSender
	switch cfg.OTPDelivery {
	case "http":
		sender, err = mailer.NewHTTPSender(cfg.OTPDeliveryURL)
		if err != nil {
			log.Fatalf("failed to init otp http sender: %v", err)
		}
	case "amqp":
		sender, err = mailer.NewAMQPSender(cfg.AMQPURL, cfg.AMQPQueue)
		if err != nil {
			log.Fatalf("failed to init otp amqp sender: %v", err)
		}
	}

	var objects storage.ObjectStore
	if cfg.MinioEndpoint != "" {
		objects, err = storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			log.Fatalf("failed to init object store: %v", err)
		}
	}

	appCore, err := app.New(app.Config{
		Store:              dataStore,
		Sessions:           sessions,
		Codes:              codes,
		Classifier:         classifier,
		Sender:             sender,
		Objects:            objects,
		MinAnalyzeDuration: minAnalyze,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	trusted, err := util.NewTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		log.Fatalf("failed to parse trusted proxies: %v", err)
	}

	httpServer := server.New(server.Config{
		App:            appCore,
		SignupLimiter:  newLimiter(cfg.RedisAddr, cfg.RedisPassword, "digitlens:ratelimit:signup", cfg.SignupRateLimitPerMinute),
		LoginLimiter:   newLimiter(cfg.RedisAddr, cfg.RedisPassword, "digitlens:ratelimit:login", cfg.LoginRateLimitPerMinute),
		ForgotLimiter:  newLimiter(cfg.RedisAddr, cfg.RedisPassword, "digitlens:ratelimit:forgot", cfg.ForgotRateLimitPerMinute),
		TrustedProxies: trusted,
	})

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("digitlens server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}

func newLimiter(redisAddr, redisPassword, prefix string, perMinute int) *ratelimit.FixedWindowLimiter {
	if perMinute <= 0 || redisAddr == "" {
		return nil
	}
	limiter, err := ratelimit.NewRedisFixedWindowLimiter(redisAddr, redisPassword, prefix, perMinute, time.Minute)
	if err != nil {
		log.Fatalf("failed to init rate limiter: %v", err)
	}
	return limiter
}
