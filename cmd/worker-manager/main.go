package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	awsclients "trainer-match-workers/internal/common/aws"
	"trainer-match-workers/internal/common/camunda"
	"trainer-match-workers/internal/common/config"
	"trainer-match-workers/internal/common/database"
	"trainer-match-workers/internal/common/logger"
	"trainer-match-workers/internal/common/observability"
	"trainer-match-workers/internal/intelligence"
	"trainer-match-workers/internal/matching"
	"trainer-match-workers/internal/matching/notify"
	"trainer-match-workers/internal/matching/persist"
	"trainer-match-workers/internal/matching/ranking"
	"trainer-match-workers/internal/matching/scoring"
	"trainer-match-workers/internal/store/postgres"
	"trainer-match-workers/internal/store/search"
	"trainer-match-workers/pkg/registry"

	ntm "trainer-match-workers/internal/workers/matching/notify-top-matches"
	rt "trainer-match-workers/internal/workers/matching/rank-trainers"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()

	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting worker manager...",
		zap.String("app", cfg.App.Name),
		zap.String("environment", cfg.App.Environment),
	)

	obs := observability.New(cfg.App.Name, log)
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Zeebe ---
	var zeebe *camunda.Client
	err = retryWithBackoff(func() error {
		var err error
		zeebe, err = camunda.NewClientWithConfig(&camunda.ClientConfig{
			GatewayAddress:         cfg.Camunda.BrokerAddress,
			UsePlaintextConnection: cfg.Camunda.UsePlaintext,
			ConnectionTimeout:      10 * time.Second,
			RequestTimeout:         config.GetDuration(cfg.Camunda.RequestTimeout),
		})
		return err
	}, 10, 2*time.Second, zapLog, "Zeebe client initialization")
	if err != nil {
		zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
	}
	zapLog.Info("Zeebe client connected successfully")

	// --- PostgreSQL ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Redis (intelligence cache and distributed pair locks) ---
	var rdb *database.RedisClient
	if cfg.Database.Redis.Address != "" {
		err = retryWithBackoff(func() error {
			var err error
			rdb, err = database.NewRedis(cfg.Database.Redis)
			if err != nil {
				return err
			}
			return rdb.Ping(ctx)
		}, 10, 2*time.Second, zapLog, "Redis connection")
		if err != nil {
			zapLog.Fatal("redis failed after retries", zap.Error(err))
		}
		defer rdb.Close()
		zapLog.Info("Redis connected successfully")
	}

	// --- Candidate pool ---
	trainers := postgres.NewTrainerStore(pg.GetDB())
	var pool matching.TrainerPool = trainers
	if cfg.Matching.CandidateSource == config.CandidateSourceElasticsearch {
		var es *database.ElasticsearchClient
		err = retryWithBackoff(func() error {
			var err error
			es, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return es.Ping()
		}, 15, 2*time.Second, zapLog, "Elasticsearch connection")
		if err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}
		pool = search.NewTrainerIndex(es.Client, cfg.Database.Elasticsearch.TrainerIndex)
		zapLog.Info("Elasticsearch connected successfully",
			zap.String("index", cfg.Database.Elasticsearch.TrainerIndex))
	}

	// --- Scoring ---
	primary, err := buildIntelligenceScorer(ctx, cfg.APIs.Intelligence, rdb, log)
	if err != nil {
		zapLog.Fatal("intelligence scorer init failed", zap.Error(err))
	}

	mode, err := scoring.ParseMode(cfg.Matching.FallbackMode)
	if err != nil {
		zapLog.Fatal("invalid fallback mode", zap.Error(err))
	}
	heuristic, err := scoring.NewHeuristic(mode, scoring.DefaultWeights, trainers)
	if err != nil {
		zapLog.Fatal("heuristic init failed", zap.Error(err))
	}
	selector := scoring.NewSelector(primary, heuristic, config.GetDuration(cfg.Matching.PrimaryTimeout), log)

	ranker := ranking.NewRanker(
		postgres.NewRequirementStore(pg.GetDB()),
		pool,
		selector,
		cfg.Matching.MaxConcurrency,
		log,
	)

	// --- Persistence ---
	var locker persist.KeyedLocker = persist.NewLocalLocker()
	if cfg.Matching.LockBackend == config.LockBackendRedis {
		locker = persist.NewRedisLocker(rdb.Client, config.GetDuration(cfg.Matching.LockTTL))
	}
	upserter := persist.NewUpserter(
		postgres.NewMatchResultStore(pg.GetDB()),
		locker,
		persist.Options{PruneStale: cfg.Matching.PruneStale},
		log,
	)

	// --- Notifications ---
	notifier, err := buildNotifier(ctx, cfg.Notifications, log)
	if err != nil {
		zapLog.Fatal("notifier init failed", zap.Error(err))
	}
	trigger := notify.NewTrigger(ranker, upserter, notifier, cfg.Matching.NotifyThreshold, cfg.Matching.TopK, log)

	// --- Workers ---
	var workers []worker.JobWorker

	rankCfg := config.GetWorkerConfig(cfg, rt.TaskType)
	rankHandler := rt.NewHandler(rt.FromWorkerConfig(rankCfg, cfg.Matching), ranker, upserter, obs, log)
	if w := camunda.StartWorker(zeebe.GetClient(), rt.TaskType, rankCfg, rankHandler, log); w != nil {
		workers = append(workers, w)
	}

	notifyCfg := config.GetWorkerConfig(cfg, ntm.TaskType)
	notifyHandler := ntm.NewHandler(ntm.FromWorkerConfig(notifyCfg), trigger, obs, log)
	if w := camunda.StartWorker(zeebe.GetClient(), ntm.TaskType, notifyCfg, notifyHandler, log); w != nil {
		workers = append(workers, w)
	}

	zapLog.Info("Workers registered", zap.Int("count", len(workers)))

	// --- Health / metrics ---
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, "healthy")
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		readyCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := pg.Ping(readyCtx); err != nil {
			writeStatus(w, http.StatusServiceUnavailable, "postgres unavailable")
			return
		}
		if err := zeebe.HealthCheck(readyCtx); err != nil {
			writeStatus(w, http.StatusServiceUnavailable, "zeebe unavailable")
			return
		}
		writeStatus(w, http.StatusOK, "ready")
	})
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		zapLog.Info("Health/Metrics server listening", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping workers...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, w := range workers {
		w.Close()
		w.AwaitClose()
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error stopping health server", zap.Error(err))
	}
	if err := zeebe.Close(); err != nil {
		zapLog.Error("Error closing Zeebe client", zap.Error(err))
	}

	zapLog.Info("Worker manager stopped gracefully")
}

// buildIntelligenceScorer returns nil for the "none" provider, leaving the
// heuristic as the only scorer.
func buildIntelligenceScorer(ctx context.Context, cfg config.IntelligenceConfig, rdb *database.RedisClient, log logger.Logger) (matching.IntelligenceScorer, error) {
	var (
		scorer matching.IntelligenceScorer
		name   string
	)
	switch cfg.Provider {
	case config.ProviderNone:
		return nil, nil
	case config.ProviderHTTP:
		scorer = intelligence.NewHTTPScorer(cfg.BaseURL, cfg.APIKey, cfg.Model, config.GetDuration(cfg.Timeout), cfg.MaxRetries)
		name = "http:" + cfg.Model
	case config.ProviderGemini:
		g, err := intelligence.NewGeminiScorer(ctx, cfg.APIKey, cfg.Model)
		if err != nil {
			return nil, err
		}
		scorer = g
		name = "gemini:" + g.Model()
	default:
		return nil, fmt.Errorf("unknown intelligence provider %q", cfg.Provider)
	}

	if cfg.CacheTTL > 0 && rdb != nil {
		cache := intelligence.NewCache(rdb.Client, time.Duration(cfg.CacheTTL)*time.Second)
		scorer = intelligence.WithCache(scorer, cache, name, log)
	}
	return scorer, nil
}

func buildNotifier(ctx context.Context, cfg config.NotificationConfig, log logger.Logger) (*notify.ChannelNotifier, error) {
	templates := registry.Default()
	if cfg.TemplateRegistry != "" {
		loaded, err := registry.LoadRegistry(cfg.TemplateRegistry)
		if err != nil {
			return nil, err
		}
		templates = loaded
	}

	awsCfg, err := awsclients.LoadConfig(ctx, cfg.AWS.Region)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return notify.NewChannelNotifier(
		notify.ChannelConfig{
			EmailEnabled: cfg.Email.Enabled,
			FromEmail:    cfg.Email.FromEmail,
			SMSEnabled:   cfg.SMS.Enabled,
			SenderID:     cfg.SMS.SenderID,
		},
		awsclients.NewSESClient(awsCfg),
		awsclients.NewSNSClient(awsCfg),
		templates,
		log,
	), nil
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status": status,
		"time":   time.Now().Format(time.RFC3339),
	})
}
