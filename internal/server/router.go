// Package server assembles the HTTP handler tree.
package server

import (
	"net/http"
	"net/netip"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/BuzzLyutic/tasknest-api/internal/handler"
	"github.com/BuzzLyutic/tasknest-api/internal/ratelimit"
	"github.com/BuzzLyutic/tasknest-api/internal/service"
	"github.com/BuzzLyutic/tasknest-api/pkg/respond"
)

const maxBodyBytes = 10 << 20

type Deps struct {
	Auth   *service.AuthService
	Tasks  *service.TaskService
	Store  handler.Pinger
	Logger *zap.Logger

	// Optional; nil disables the limit.
	AuthLimiter   ratelimit.Limiter
	GlobalLimiter ratelimit.Limiter

	// Forwarded client headers are honored only from these peers.
	TrustedProxies []netip.Prefix

	AllowedOrigins []string
	BasePath       string
	StaticDir      string
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(trustedRealIP(d.TrustedProxies))
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.SetHeader("X-Content-Type-Options", "nosniff"))
	r.Use(middleware.SetHeader("X-Frame-Options", "DENY"))
	r.Use(middleware.SetHeader("Referrer-Policy", "no-referrer"))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"Location", "Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.RequestSize(maxBodyBytes))

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respond.Error(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})
	if d.StaticDir != "" {
		r.NotFound(spaHandler(d.StaticDir))
	} else {
		r.NotFound(notFound)
	}

	api := func(r chi.Router) { mountAPI(r, d) }
	base := strings.TrimSuffix(d.BasePath, "/")
	if base == "" {
		r.Group(api)
	} else {
		r.Route(base, func(r chi.Router) {
			r.NotFound(notFound)
			api(r)
		})
	}
	return r
}

func mountAPI(r chi.Router, d Deps) {
	authH := handler.NewAuthHandler(d.Auth, d.Logger)
	taskH := handler.NewTaskHandler(d.Tasks, d.Logger)
	healthH := handler.NewHealthHandler(d.Store, d.Logger)
	authenticate := handler.Authenticate(d.Auth, d.Logger)

	if d.GlobalLimiter != nil {
		r.Use(ratelimit.Middleware(d.GlobalLimiter, "global", d.Logger))
	}

	r.Get("/health", healthH.Check)

	r.Route("/auth", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if d.AuthLimiter != nil {
				r.Use(ratelimit.Middleware(d.AuthLimiter, "auth", d.Logger))
			}
			r.Post("/register", authH.Register)
			r.Post("/login", authH.Login)
		})
		r.With(authenticate).Get("/me", authH.Me)
	})

	r.Route("/tasks", func(r chi.Router) {
		r.Use(authenticate)
		r.Get("/", taskH.List)
		r.Post("/", taskH.Create)
		r.Get("/stats", taskH.Stats)
		r.Get("/{id}", taskH.Get)
		r.Put("/{id}", taskH.Update)
		r.Patch("/{id}", taskH.Update)
		r.Delete("/{id}", taskH.Delete)
	})
}

func notFound(w http.ResponseWriter, r *http.Request) {
	respond.Error(w, r, http.StatusNotFound, "not found")
}

// spaHandler serves files from dir and falls back to index.html so the
// client-side router can resolve the path.
func spaHandler(dir string) http.HandlerFunc {
	fs := http.FileServer(http.Dir(dir))
	index := filepath.Join(dir, "index.html")

	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			notFound(w, r)
			return
		}

		name := filepath.Join(dir, filepath.FromSlash(path.Clean("/"+r.URL.Path)))
		if info, err := os.Stat(name); err == nil && !info.IsDir() {
			fs.ServeHTTP(w, r)
			return
		}
		http.ServeFile(w, r, index)
	}
}
