// Command queryflowd serves the query-orchestration pipeline over HTTP: a
// streaming SSE endpoint, a WebSocket endpoint for the same event stream,
// and Prometheus metrics. All orchestration logic lives in the library; this
// binary only wires configuration into constructors.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/frameiq/queryflow"
	"github.com/frameiq/queryflow/admission"
	"github.com/frameiq/queryflow/config"
	"github.com/frameiq/queryflow/core"
	"github.com/frameiq/queryflow/logging"
	"github.com/frameiq/queryflow/memory"
	"github.com/frameiq/queryflow/metrics"
	"github.com/frameiq/queryflow/model"
	"github.com/frameiq/queryflow/model/anthropic"
	"github.com/frameiq/queryflow/model/ollama"
	"github.com/frameiq/queryflow/model/openai"
	"github.com/frameiq/queryflow/node"
	"github.com/frameiq/queryflow/tool"
	"github.com/frameiq/queryflow/tool/tmdb"
	"github.com/frameiq/queryflow/tool/vector"
	"github.com/frameiq/queryflow/workflow"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	// Missing .env is fine; the environment may already be populated.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := newLogger(cfg.Logging)

	orch, limiter, err := buildOrchestrator(cfg, logger)
	if err != nil {
		return err
	}
	defer orch.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /query", handleQuery(orch, limiter, logger))
	mux.HandleFunc("GET /ws", handleWebSocket(orch, logger))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Server.Addr)
		errCh <- srv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-stop:
		logger.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}

func newLogger(cfg config.LoggingConfig) logging.Logger {
	level := logging.LogLevelInfo
	switch cfg.Level {
	case "debug":
		level = logging.LogLevelDebug
	case "warn":
		level = logging.LogLevelWarn
	case "error":
		level = logging.LogLevelError
	}
	return logging.NewRunLogger(&logging.RunLoggerConfig{
		Level:     level,
		Format:    cfg.Format,
		Component: "queryflowd",
	})
}

func buildOrchestrator(cfg config.Config, logger logging.Logger) (*queryflow.Orchestrator, *admission.Limiter, error) {
	fast, err := buildModel(cfg.Models.Fast)
	if err != nil {
		return nil, nil, fmt.Errorf("fast tier: %w", err)
	}
	deep, err := buildModel(cfg.Models.Deep)
	if err != nil {
		return nil, nil, fmt.Errorf("deep tier: %w", err)
	}
	tiers := model.NewTiered(fast, deep)

	retry := tool.RetryPolicy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   cfg.Retry.BaseDelay.Std(),
		MaxDelay:    cfg.Retry.MaxDelay.Std(),
	}

	var searcher tool.SemanticSearcher
	if cfg.Tools.VectorIndexURL != "" {
		searcher = vector.NewClient(cfg.Tools.VectorIndexURL, func(o *vector.Options) {
			o.Timeout = cfg.Tools.VectorTimeout.Std()
		})
	} else {
		logger.Warn("no vector index configured; semantic search returns nothing")
		searcher = tool.NewMockSearcher()
	}

	var metadata tool.MetadataClient
	if cfg.Tools.TMDBAPIKey != "" {
		metadata = tmdb.NewClient(cfg.Tools.TMDBAPIKey, func(o *tmdb.Options) {
			if cfg.Tools.TMDBBaseURL != "" {
				o.BaseURL = cfg.Tools.TMDBBaseURL
			}
		})
	} else {
		logger.Warn("no metadata api key configured; enrichment is disabled")
		metadata = tool.NewMockMetadataClient()
	}

	limiter := admission.New(func(lo *admission.Options) {
		lo.CallerLimit = cfg.Admission.CallerLimit
		lo.GlobalLimit = cfg.Admission.GlobalLimit
		lo.Window = cfg.Admission.Window.Std()
	})

	engine, err := workflow.New(
		workflow.NewNodeSet(
			node.NewRouter(func(o *node.RouterOptions) { o.Logger = logger }),
			node.NewRetriever(searcher, metadata, func(o *node.RetrieverOptions) {
				o.Limit = cfg.Tools.SearchLimit
				o.Model = tiers.Fast
				o.Retry = retry
				o.Logger = logger
			}),
			node.NewReasoner(tiers.Deep, func(o *node.ReasonerOptions) {
				o.Temperature = cfg.Models.Deep.Temperature
				o.Retry = retry
				o.Logger = logger
			}),
			node.NewEnricher(metadata, func(o *node.EnricherOptions) {
				o.Retry = retry
				o.Logger = logger
			}),
		),
		func(o *workflow.Options) {
			o.Bound = cfg.Workflow.RecursionBound
			o.Logger = logger
		},
	)
	if err != nil {
		return nil, nil, err
	}

	store, err := buildStore(cfg.Memory)
	if err != nil {
		return nil, nil, err
	}

	orch := queryflow.New(engine, func(o *queryflow.Options) {
		o.Limiter = limiter
		o.Store = store
		o.Recorder = metrics.NewPrometheusRecorder()
		o.EventBufferSize = cfg.Workflow.EventBuffer
		o.Logger = logger
	})
	return orch, limiter, nil
}

func buildModel(cfg config.ModelConfig) (model.Model, error) {
	switch cfg.Provider {
	case "openai":
		return openai.NewModel(func(o *openai.Options) {
			if cfg.Name != "" {
				o.Model = cfg.Name
			}
			o.Temperature = cfg.Temperature
			if cfg.MaxTokens > 0 {
				o.MaxCompletionTokens = cfg.MaxTokens
			}
		}), nil
	case "anthropic":
		return anthropic.NewModel(func(o *anthropic.Options) {
			if cfg.Name != "" {
				o.Model = anthropicsdk.Model(cfg.Name)
			}
			o.Temperature = cfg.Temperature
			if cfg.MaxTokens > 0 {
				o.MaxTokens = cfg.MaxTokens
			}
		}), nil
	case "ollama":
		return ollama.NewModel(cfg.Name, func(o *ollama.Options) {
			if cfg.HostURL != "" {
				o.HostURL = cfg.HostURL
			}
			o.Temperature = cfg.Temperature
			if cfg.MaxTokens > 0 {
				o.MaxTokens = cfg.MaxTokens
			}
		})
	case "mock":
		return model.NewMockModel(cfg.Name, "mock"), nil
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Provider)
	}
}

func buildStore(cfg config.MemoryConfig) (memory.Store, error) {
	if cfg.Backend == "redis" {
		return memory.NewRedisStoreFromURL(context.Background(), cfg.RedisURL, func(o *memory.RedisOptions) {
			o.TTL = cfg.TTL.Std()
		})
	}
	return memory.NewInMemoryStore(func(o *memory.Options) {
		o.TTL = cfg.TTL.Std()
		o.SweepInterval = cfg.SweepInterval.Std()
	}), nil
}

type queryRequest struct {
	CallerKey  string `json:"callerKey"`
	SessionKey string `json:"sessionKey"`
	Query      string `json:"query"`
}

// handleQuery streams run events as server-sent events.
func handleQuery(orch *queryflow.Orchestrator, limiter *admission.Limiter, logger logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req queryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if req.CallerKey == "" {
			req.CallerKey = r.RemoteAddr
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		runID, events, err := orch.Handle(r.Context(), req.CallerKey, req.SessionKey, req.Query)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer orch.Cancel(runID) //nolint:errcheck // run may already be gone

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(limiter.Remaining(req.CallerKey)))
		w.WriteHeader(http.StatusOK)

		for ev := range events {
			payload, err := json.Marshal(ev)
			if err != nil {
				logger.Error("event marshal failed", "run_id", runID, "error", err)
				return
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, payload)
			flusher.Flush()
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// handleWebSocket serves one run per received query message.
func handleWebSocket(orch *queryflow.Orchestrator, logger logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", "error", err)
			return
		}
		defer conn.Close()

		for {
			var req queryRequest
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			if req.CallerKey == "" {
				req.CallerKey = r.RemoteAddr
			}

			runID, events, err := orch.Handle(r.Context(), req.CallerKey, req.SessionKey, req.Query)
			if err != nil {
				if werr := conn.WriteJSON(core.StreamEvent{Type: core.EventFailed, Reason: err.Error()}); werr != nil {
					return
				}
				continue
			}

			for ev := range events {
				if err := conn.WriteJSON(ev); err != nil {
					orch.Cancel(runID) //nolint:errcheck // run may already be gone
					return
				}
			}
		}
	}
}
