package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/johnnybonaci/susurro/transcriber/application"
	"github.com/johnnybonaci/susurro/transcriber/domain"
	"github.com/johnnybonaci/susurro/transcriber/engine"
	"github.com/johnnybonaci/susurro/transcriber/infra"
)

func main() {
	_ = godotenv.Load()

	cfg, err := readConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	log := buildLogger(cfg)
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rdb, err := infra.Dial(ctx, cfg.redisAddr, cfg.redisPassword, cfg.redisDB)
	if err != nil {
		log.Fatal().Err(err).Str("addr", cfg.redisAddr).Msg("redis unreachable")
	}
	defer func() { _ = rdb.Close() }()

	keys := infra.NewKeys(cfg.keyPrefix)
	queue := infra.NewFIFOQueue(rdb, keys)
	store := infra.NewJobStore(rdb, keys, infra.WithJobTTL(cfg.jobTTL))
	stats := infra.NewRedisStatsStore(rdb, keys)

	scratch, err := infra.NewScratch(cfg.scratchDir, log,
		infra.WithScratchMaxAge(cfg.scratchMaxAge))
	if err != nil {
		log.Fatal().Err(err).Msg("scratch dir unavailable")
	}
	scratch.StartJanitor(ctx)

	limiter := infra.NewSubmitLimiter(cfg.submitRPS, cfg.submitBurst)
	limiter.StartJanitor(ctx)

	gate, busy := buildGate(rdb, keys, cfg)
	engines, err := buildEngines(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("engine setup failed")
	}
	defer func() { _ = engines.Close() }()

	orc := &application.Orchestrator{
		Store:       store,
		Queue:       queue,
		Gate:        gate,
		Busy:        busy,
		History:     queue,
		Stats:       stats,
		Engines:     engines,
		Artifacts:   scratch,
		Ping:        infra.NewRedisPinger(rdb),
		Log:         log,
		MaxFileSize: cfg.maxFileSize,
		AllowedExts: cfg.allowedExts,
	}
	if err := orc.Validate(); err != nil {
		log.Fatal().Err(err).Msg("bad wiring")
	}

	worker := &application.Worker{
		Orc:         orc,
		Queue:       queue,
		Log:         log,
		Concurrency: cfg.workers,
	}
	go worker.Run(ctx)
	go dailyStatsReset(ctx, orc, log)

	api := &api{orc: orc, scratch: scratch, limiter: limiter, log: log}
	srv := &http.Server{
		Addr:              cfg.listenAddr,
		Handler:           api.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       5 * time.Minute, // uploads grandes
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().
		Str("listen", cfg.listenAddr).
		Str("redis", cfg.redisAddr).
		Str("gate", cfg.gateMode).
		Str("engine", cfg.engineMode).
		Int("max_concurrent", cfg.maxConcurrent).
		Int("workers", cfg.workers).
		Msg("susurrod listening")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server error")
	}
}

// buildGate escolhe a variante de admissão: lock binário de dono único
// (com status observável) ou semáforo contador de N vagas.
func buildGate(rdb *redis.Client, keys infra.Keys, cfg config) (domain.Gate, domain.GateStatus) {
	if cfg.gateMode == "semaphore" {
		return infra.NewSemaphore(rdb, keys, cfg.maxConcurrent), nil
	}
	lock := infra.NewOwnerLock(rdb, keys, infra.WithLockTTL(cfg.lockTTL))
	return lock, lock
}

// buildEngines monta o manager do modo configurado sobre o comando externo.
func buildEngines(ctx context.Context, cfg config, log zerolog.Logger) (engine.Manager, error) {
	factory := func(context.Context) (engine.Engine, error) {
		return engine.NewCommandEngine(cfg.engineBin, cfg.engineArgs...), nil
	}

	switch cfg.engineMode {
	case "pool":
		return engine.NewFixedPool(ctx, cfg.maxConcurrent, factory)
	case "always":
		return engine.NewAlwaysLoaded(ctx, factory, cfg.maxConcurrent, log)
	case "lazy":
		mgr := engine.NewLazy(factory, cfg.maxConcurrent, log,
			engine.WithIdleTTL(cfg.engineIdleTTL))
		mgr.StartJanitor(ctx)
		return mgr, nil
	default:
		return nil, fmt.Errorf("unknown ENGINE_MODE %q (pool|always|lazy)", cfg.engineMode)
	}
}

// dailyStatsReset zera os contadores diários na virada do dia (UTC).
func dailyStatsReset(ctx context.Context, orc *application.Orchestrator, log zerolog.Logger) {
	for {
		now := time.Now().UTC()
		next := now.Truncate(24 * time.Hour).Add(24 * time.Hour)

		select {
		case <-ctx.Done():
			return
		case <-time.After(next.Sub(now)):
			resetCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			if err := orc.ResetDailyStats(resetCtx); err != nil {
				log.Error().Err(err).Msg("daily stats reset failed")
			}
			cancel()
		}
	}
}

func buildLogger(cfg config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var out = os.Stderr
	log := zerolog.New(out).Level(level).With().Timestamp().Logger()
	if cfg.logPretty {
		log = log.Output(zerolog.ConsoleWriter{Out: out})
	}
	return log
}

type config struct {
	listenAddr string
	logLevel   string
	logPretty  bool

	redisAddr     string
	redisPassword string
	redisDB       int
	keyPrefix     string

	gateMode      string // "lock" | "semaphore"
	maxConcurrent int
	lockTTL       time.Duration
	jobTTL        time.Duration
	workers       int

	engineMode    string // "pool" | "always" | "lazy"
	engineBin     string
	engineArgs    []string
	engineIdleTTL time.Duration

	scratchDir    string
	scratchMaxAge time.Duration
	maxFileSize   int64
	allowedExts   []string

	submitRPS   float64
	submitBurst int
}

func readConfig() (config, error) {
	cfg := config{}
	cfg.listenAddr = getenvDefault("LISTEN_ADDR", ":8000")
	cfg.logLevel = getenvDefault("LOG_LEVEL", "info")
	cfg.logPretty = getenvBoolDefault("LOG_PRETTY", false)

	cfg.redisAddr = getenvDefault("REDIS_ADDR", "localhost:6379")
	cfg.redisPassword = os.Getenv("REDIS_PASSWORD")
	cfg.redisDB = getenvIntDefault("REDIS_DB", 0)
	cfg.keyPrefix = getenvDefault("KEY_PREFIX", "susurro")

	cfg.gateMode = getenvDefault("GATE_MODE", "lock")
	cfg.maxConcurrent = getenvIntDefault("MAX_CONCURRENT", 1)
	cfg.lockTTL = getenvDurationDefault("LOCK_TTL", time.Hour)
	cfg.jobTTL = getenvDurationDefault("JOB_TTL", 24*time.Hour)
	cfg.workers = getenvIntDefault("WORKERS", 1)

	cfg.engineMode = getenvDefault("ENGINE_MODE", "lazy")
	cfg.engineBin = getenvDefault("ENGINE_BIN", "whisper-cli")
	if args := os.Getenv("ENGINE_ARGS"); args != "" {
		cfg.engineArgs = strings.Fields(args)
	}
	cfg.engineIdleTTL = getenvDurationDefault("ENGINE_IDLE_TTL", 10*time.Minute)

	cfg.scratchDir = getenvDefault("SCRATCH_DIR", os.TempDir()+"/susurro")
	cfg.scratchMaxAge = getenvDurationDefault("SCRATCH_MAX_AGE", 30*time.Minute)
	cfg.maxFileSize = int64(getenvIntDefault("MAX_FILE_SIZE_MB", 100)) << 20
	cfg.allowedExts = []string{".mp3", ".wav", ".ogg", ".m4a", ".flac", ".webm"}

	cfg.submitRPS = getenvFloatDefault("SUBMIT_RPS", 1)
	cfg.submitBurst = getenvIntDefault("SUBMIT_BURST", 5)

	if cfg.gateMode != "lock" && cfg.gateMode != "semaphore" {
		return config{}, fmt.Errorf("GATE_MODE must be lock or semaphore, got %q", cfg.gateMode)
	}
	if cfg.maxConcurrent <= 0 {
		return config{}, errors.New("MAX_CONCURRENT must be > 0")
	}
	if cfg.gateMode == "lock" && cfg.maxConcurrent != 1 {
		return config{}, errors.New("GATE_MODE=lock implies MAX_CONCURRENT=1")
	}
	if cfg.workers <= 0 {
		return config{}, errors.New("WORKERS must be > 0")
	}
	if cfg.submitRPS <= 0 || cfg.submitBurst <= 0 {
		return config{}, errors.New("SUBMIT_RPS and SUBMIT_BURST must be > 0")
	}
	return cfg, nil
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvIntDefault(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getenvFloatDefault(k string, def float64) float64 {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getenvBoolDefault(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvDurationDefault(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
