package main

import (
	"flag"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/clinical-trials-core/internal/cache"
	"github.com/clinical-trials-core/internal/config"
	"github.com/clinical-trials-core/internal/criteria"
	"github.com/clinical-trials-core/internal/dense"
	"github.com/clinical-trials-core/internal/feasibility"
	"github.com/clinical-trials-core/internal/httpapi"
	"github.com/clinical-trials-core/internal/lexical"
	"github.com/clinical-trials-core/internal/middleware"
	"github.com/clinical-trials-core/internal/orchestrator"
)

// hashEncoderDimension is the vector width of the fallback encoder when
// no offline sentence-embedding artifacts are wired in; it must match
// whatever dimension the dense index at cfg.DenseIndexPath was built
// with, since HashEncoder is a deterministic stand-in, not a trained
// model.
const hashEncoderDimension = 256

func main() {
	cfg := config.New()
	initLogger(cfg)

	port := flag.String("port", cfg.Port, "Server port")
	cacheEnabled := flag.Bool("cache", cfg.CacheEnabled, "Enable caching")
	cacheTTL := flag.Duration("cache-ttl", cfg.CacheTTL, "Cache TTL duration")
	flag.Parse()

	lexicalIdx, err := lexical.New(log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build lexical index")
	}
	defer lexicalIdx.Close()
	log.Info().Msg("lexical index initialized")

	denseIdx := dense.Load(cfg.DenseIndexPath, cfg.DenseMetaPath)
	if denseIdx.Ready() {
		log.Info().Str("model", denseIdx.ModelName()).Msg("dense index loaded")
	} else {
		log.Warn().
			Str("graph_path", cfg.DenseIndexPath).
			Str("meta_path", cfg.DenseMetaPath).
			Msg("dense index artifacts not found, running lexical-only")
	}
	encoder := dense.NewHashEncoder(hashEncoderDimension)

	dict, err := criteria.LoadDictionary(cfg.SynonymDictionaryPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.SynonymDictionaryPath).Msg("failed to load synonym dictionary")
	}
	parser := criteria.NewParser(dict, log.Logger, cfg.ParseCacheSize)
	scorer := feasibility.NewScorer(feasibility.DefaultLinker())

	orch := orchestrator.New(lexicalIdx, denseIdx, encoder, dict, parser, scorer, feasibility.DefaultLinker(), cfg.RRFConstant, log.Logger)

	var trialCache *cache.Cache
	if *cacheEnabled {
		trialCache = cache.NewCache(*cacheTTL)
		log.Info().Dur("ttl", *cacheTTL).Msg("response cache enabled")
	} else {
		trialCache = cache.NewCache(0)
		log.Info().Msg("response cache disabled")
	}

	handler := httpapi.NewHandler(orch, trialCache, *cacheEnabled)

	router := mux.NewRouter()
	router.Use(middleware.LoggingMiddleware)
	router.Use(corsMiddleware)
	httpapi.Routes(router, handler)

	addr := ":" + *port
	log.Info().Str("port", *port).Str("address", addr).Msg("starting server")
	log.Info().Msg("API endpoints:")
	log.Info().Msg("  GET  /health")
	log.Info().Msg("  POST /api/v1/trials/rank")
	log.Info().Msg("  GET  /api/v1/trials/search")
	log.Info().Msg("  POST /api/v1/criteria/parse")
	log.Info().Msg("  POST /api/v1/feasibility/score")

	if err := http.ListenAndServe(addr, router); err != nil {
		log.Fatal().Err(err).Msg("server failed to start")
	}
}

// initLogger configures the global zerolog logger from cfg, the same
// LOG_LEVEL/LOG_FORMAT shape as the teacher's cmd/server.
func initLogger(cfg *config.Config) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil {
		level = zerolog.InfoLevel
		log.Warn().Str("level", cfg.LogLevel).Msg("invalid LOG_LEVEL, defaulting to info")
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	if cfg.LogFormat == "console" || cfg.LogFormat == "text" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}

	log.Info().Str("level", level.String()).Str("format", cfg.LogFormat).Msg("logger initialized")
}

// corsMiddleware adds CORS headers so a browser-based demo client can
// reach the API directly; CORS is out of scope for the core itself.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
