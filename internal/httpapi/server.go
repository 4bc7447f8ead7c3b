package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chatd/internal/chat"
	"chatd/internal/engine"
	"chatd/internal/registry"
	"chatd/internal/store"
	"chatd/pkg/types"
)

// SessionService is the session-manager surface required by the handlers.
type SessionService interface {
	CreateSession(ctx context.Context, userID string) (*chat.Session, error)
	GetSession(ctx context.Context, sessionID string) (*chat.Session, error)
	ListSessionsForUser(ctx context.Context, userID string) ([]types.SessionSummary, error)
	DeleteSession(ctx context.Context, sessionID string) error
}

// EngineService is the model-manager surface required by the handlers.
type EngineService interface {
	Load(cfg types.ModelConfig) (engine.Generator, error)
	Unload()
	CurrentConfig() (types.ModelConfig, bool)
	State() engine.State
	Counters() (loads, unloads uint64)
}

// UserStore persists users and named model configs.
type UserStore interface {
	EnsureUser(ctx context.Context, id string) (store.User, error)
	SaveModelConfig(ctx context.Context, cfg types.ModelConfig) error
}

// App bundles everything the handlers depend on. It is built once at startup
// and passed explicitly; handlers never reach for ambient globals.
type App struct {
	Sessions SessionService
	Engines  EngineService
	Users    UserStore
	// Management exposes the model lifecycle surface (PUT/DELETE /api/llm).
	// Production deployments preload a fixed engine and leave it off.
	Management bool
	// ModelsDir, when set, is scanned for loadable weights files by
	// GET /api/llm/available.
	ModelsDir string
	StartedAt time.Time
}

// NewMux builds the HTTP router over the given application.
func NewMux(a *App) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	// Compression for JSON endpoints
	r.Use(middleware.Compress(5))
	r.Use(MetricsMiddleware)
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
		}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/users", a.handleCreateUser)

		r.Route("/chat/sessions", func(r chi.Router) {
			r.Post("/", a.handleCreateSession)
			r.Get("/", a.handleListSessions)
			r.Get("/{sessionID}", a.handleGetSession)
			r.Delete("/{sessionID}", a.handleDeleteSession)
			r.Post("/{sessionID}/messages", a.handleSendMessage)
			r.Post("/{sessionID}/messages/stream", a.handleStreamMessage)
		})

		r.Get("/llm", a.handleGetModel)
		if a.Management {
			r.Put("/llm", a.handleSetModel)
			r.Delete("/llm", a.handleRemoveModel)
			r.Get("/llm/available", a.handleListModelFiles)
		}
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if a.Engines.State() == engine.StateLoading {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("loading"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
	})

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		loads, unloads := a.Engines.Counters()
		resp := types.StatusResponse{
			State:          string(a.Engines.State()),
			LoadsTotal:     loads,
			UnloadsTotal:   unloads,
			UptimeSeconds:  int64(time.Since(a.StartedAt).Seconds()),
			ServerTimeUnix: time.Now().Unix(),
		}
		if cfg, ok := a.Engines.CurrentConfig(); ok {
			resp.Model = cfg.Name
		}
		writeJSON(w, http.StatusOK, resp)
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)
	return r
}

// decodeJSON enforces the shared content-type check and body-size limit.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return false
	}
	// Limit body size (configurable, default 1MiB)
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		// If exceeded size, MaxBytesReader may cause an error; still return 400 to avoid size leak details
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil && zlog != nil {
		zlog.Error().Err(err).Msg("failed to encode response")
	}
}

func (a *App) sessionResponse(sess *chat.Session) types.SessionResponse {
	resp := types.SessionResponse{
		SessionID:     sess.ID(),
		UserID:        sess.UserID(),
		CreatedAt:     sess.CreatedAt(),
		LastMessageAt: sess.LastMessageAt(),
		Messages:      sess.History(),
	}
	if cfg, ok := a.Engines.CurrentConfig(); ok {
		resp.ModelConfig = &cfg
	}
	return resp
}

// handleCreateUser creates (or returns) the user named by the X-User-ID
// header. Absent a header, an id is generated.
func (a *App) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	u, err := a.Users.EnsureUser(r.Context(), strings.TrimSpace(r.Header.Get("X-User-ID")))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.UserResponse{ID: u.ID, CreatedAt: u.CreatedAt})
}

func (a *App) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req types.CreateSessionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sess, err := a.Sessions.CreateSession(r.Context(), strings.TrimSpace(req.UserID))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a.sessionResponse(sess))
}

func (a *App) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := a.Sessions.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a.sessionResponse(sess))
}

func (a *App) handleListSessions(w http.ResponseWriter, r *http.Request) {
	list, err := a.Sessions.ListSessionsForUser(r.Context(), strings.TrimSpace(r.URL.Query().Get("user_id")))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.SessionListResponse{Sessions: list})
}

func (a *App) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := a.Sessions.DeleteSession(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.AckResponse{Message: "session deleted"})
}

func (a *App) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req types.MessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeJSONError(w, http.StatusBadRequest, "content is required")
		return
	}
	sessionID := chi.URLParam(r, "sessionID")
	sess, err := a.Sessions.GetSession(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}

	// Join server base context with request context so shutdown cancels work too.
	ctx, cancel := joinContexts(serverBaseCtx, r.Context())
	defer cancel()
	start := time.Now()
	reply, err := sess.AddMessage(ctx, req.Content)
	if err != nil {
		// Client disconnect: nothing useful can be written.
		if r.Context().Err() != nil {
			return
		}
		// Shutdown cancellation with the client still connected gets an
		// explicit answer instead of an empty 200.
		if serverBaseCtx.Err() != nil {
			writeJSONError(w, http.StatusServiceUnavailable, "server is shutting down")
			return
		}
		if engine.IsBusy(err) {
			IncrementBackpressure("gate")
		}
		observeExchange("sync", "error", time.Since(start))
		writeError(w, err)
		return
	}
	observeExchange("sync", "ok", time.Since(start))
	writeJSON(w, http.StatusOK, types.MessageResponse{Message: reply, SessionID: sessionID})
}

func (a *App) handleStreamMessage(w http.ResponseWriter, r *http.Request) {
	var req types.MessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeJSONError(w, http.StatusBadRequest, "content is required")
		return
	}
	sess, err := a.Sessions.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, err)
		return
	}

	var flush func()
	if f, ok := w.(http.Flusher); ok {
		flush = f.Flush
	}

	ctx, cancel := joinContexts(serverBaseCtx, r.Context())
	defer cancel()
	start := time.Now()
	st, err := sess.StreamMessage(ctx, req.Content)
	if err != nil {
		writeError(w, err)
		return
	}

	lvl := requestLogLevel(r)
	if lvl >= LevelInfo && zlog != nil {
		z := zlog.Info().Str("session", sess.ID())
		if rid := middleware.GetReqID(r.Context()); rid != "" {
			z = z.Str("request_id", rid)
		}
		z.Msg("stream start")
	}

	// Optional logging of NDJSON lines
	out := io.Writer(w)
	if lvl >= LevelDebug {
		out = io.MultiWriter(w, &loggingLineWriter{})
	}
	enc := json.NewEncoder(out)
	wroteAny := false
	for frag := range st.C {
		if !wroteAny {
			// Headers commit on the first fragment; failures before that
			// still get a proper error status.
			w.Header().Set("Content-Type", "application/x-ndjson")
			wroteAny = true
		}
		if err := enc.Encode(types.StreamFragment{Fragment: frag}); err != nil {
			// Client went away; abandon generation and drain.
			cancel()
			for range st.C {
			}
			break
		}
		if flush != nil {
			flush()
		}
	}

	if err := st.Err(); err != nil {
		if r.Context().Err() != nil {
			observeExchange("stream", "canceled", time.Since(start))
			return
		}
		if serverBaseCtx.Err() != nil {
			observeExchange("stream", "canceled", time.Since(start))
			if !wroteAny {
				writeJSONError(w, http.StatusServiceUnavailable, "server is shutting down")
				return
			}
			_ = enc.Encode(types.StreamEnd{Done: true, Error: "server is shutting down"})
			if flush != nil {
				flush()
			}
			return
		}
		if engine.IsBusy(err) {
			IncrementBackpressure("gate")
		}
		observeExchange("stream", "error", time.Since(start))
		if !wroteAny {
			writeError(w, err)
			return
		}
		// Already committed to 200; surface the failure as the terminal line.
		_ = enc.Encode(types.StreamEnd{Done: true, Error: err.Error()})
		if flush != nil {
			flush()
		}
		return
	}

	if !wroteAny {
		w.Header().Set("Content-Type", "application/x-ndjson")
	}
	_ = enc.Encode(types.StreamEnd{Done: true, Content: st.Content()})
	if flush != nil {
		flush()
	}
	observeExchange("stream", "ok", time.Since(start))
	if lvl >= LevelInfo && zlog != nil {
		z := zlog.Info().Str("session", sess.ID()).Dur("dur", time.Since(start))
		if rid := middleware.GetReqID(r.Context()); rid != "" {
			z = z.Str("request_id", rid)
		}
		z.Msg("stream end")
	}
}

func (a *App) handleGetModel(w http.ResponseWriter, r *http.Request) {
	cfg, ok := a.Engines.CurrentConfig()
	if !ok {
		writeJSONError(w, http.StatusNotFound, "no model loaded")
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (a *App) handleSetModel(w http.ResponseWriter, r *http.Request) {
	var cfg types.ModelConfig
	if !decodeJSON(w, r, &cfg) {
		return
	}
	if strings.TrimSpace(cfg.Name) == "" || strings.TrimSpace(cfg.ModelPath) == "" {
		writeJSONError(w, http.StatusBadRequest, "name and model_path are required")
		return
	}
	if _, err := a.Engines.Load(cfg); err != nil {
		writeError(w, err)
		return
	}
	if err := a.Users.SaveModelConfig(r.Context(), cfg); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (a *App) handleListModelFiles(w http.ResponseWriter, r *http.Request) {
	if a.ModelsDir == "" {
		writeJSON(w, http.StatusOK, types.ModelFileListResponse{})
		return
	}
	files, err := registry.LoadDir(a.ModelsDir)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, types.ModelFileListResponse{Files: files})
}

func (a *App) handleRemoveModel(w http.ResponseWriter, r *http.Request) {
	a.Engines.Unload()
	writeJSON(w, http.StatusOK, types.AckResponse{Message: "model removed"})
}
