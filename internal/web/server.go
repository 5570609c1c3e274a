package web

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hpungsan/sitesmith/internal/config"
	"github.com/hpungsan/sitesmith/internal/editor"
	"github.com/hpungsan/sitesmith/internal/store"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

// pageCSP applies to every response except the preview document.
const pageCSP = "default-src 'self'; script-src 'self'; style-src 'self'; img-src 'self' https: data:"

// NewServer creates the HTTP server for the editor UI and its JSON API.
func NewServer(st store.Store, sessions *editor.Registry, cfg *config.Config, version string, logger *slog.Logger) *http.Server {
	if logger == nil {
		logger = slog.Default()
	}
	templateSub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		panic(fmt.Sprintf("template sub-FS: %v", err))
	}
	staticSub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(fmt.Sprintf("static sub-FS: %v", err))
	}

	h := &Handlers{
		store:    st,
		sessions: sessions,
		cfg:      cfg,
		renderer: NewRenderer(templateSub, version, logger),
		logger:   logger,
	}

	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Bind, cfg.Port),
		Handler:           h.Router(staticSub),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// Router builds the route table.
func (h *Handlers) Router(static fs.FS) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(securityHeaders)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/projects", http.StatusFound)
	})
	r.Get("/projects", h.HandleProjects)
	r.Post("/projects", h.HandleCreateProject)
	r.Get("/projects/{id}", h.HandleProject)
	r.Get("/frames/{id}", h.HandleWorkspace)
	r.Get("/frames/{id}/preview", h.HandlePreview)
	if static != nil {
		r.Handle("/static/*", http.StripPrefix("/static/", http.FileServerFS(static)))
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/projects", h.APIListProjects)
		r.Post("/projects", h.APICreateProject)
		r.Get("/projects/{id}/frames", h.APIListFrames)
		r.Post("/projects/{id}/frames", h.APIAddFrame)
		r.Get("/deployments", h.APIListDeployments)

		r.Route("/frames/{id}", func(r chi.Router) {
			r.Get("/", h.APIFetchFrame)
			r.Post("/generate", h.APIGenerate)
			r.Get("/element", h.APIElement)
			r.Post("/select", h.APISelect)
			r.Delete("/select", h.APIDeselect)
			r.Post("/style", h.APIStyle)
			r.Post("/text", h.APIText)
			r.Post("/attribute", h.APIAttribute)
			r.Post("/image", h.APIImage)
			r.Post("/image/upload", h.APIImageUpload)
			r.Post("/save", h.APISave)
			r.Get("/export", h.APIExport)
			r.Post("/deploy", h.APIDeploy)
		})
	})
	return r
}

// securityHeaders adds security-related HTTP headers to all responses.
// The preview handler replaces the policy with the sandbox one.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", pageCSP)
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		next.ServeHTTP(w, r)
	})
}

// Run starts the HTTP server and handles graceful shutdown on SIGINT/SIGTERM.
func Run(srv *http.Server, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logger.Info("sitesmith UI running", "url", "http://"+srv.Addr)
	if strings.Contains(srv.Addr, "0.0.0.0") || strings.Contains(srv.Addr, "::") {
		logger.Warn("server is binding to all interfaces and may be accessible from the network")
	}

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		logger.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}
