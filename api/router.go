package api

import (
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// NewRouter mounts the REST endpoints. ws, when non-nil, is served at /ws
// outside the request timeout. assets, when non-nil, is served under the
// configured asset URL prefix.
func NewRouter(h *Handler, ws http.HandlerFunc, assets http.FileSystem) chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(CORS(h.Config.ClientOrigin))

	if ws != nil {
		r.Get("/ws", ws)
	}

	r.Group(func(r chi.Router) {
		r.Use(chimw.Timeout(10 * time.Second))
		r.Get("/health", h.Health)
		r.Route("/api", func(r chi.Router) {
			r.Get("/difficulties", h.Difficulties)
			r.Get("/themes", h.Themes)
			r.Get("/dex", h.Dex)
		})
	})

	if prefix := strings.TrimSuffix(h.Config.AssetURLPrefix, "/"); assets != nil && strings.HasPrefix(prefix, "/") {
		r.Handle(prefix+"/*", http.StripPrefix(prefix, http.FileServer(noListing{assets})))
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

// noListing hides directories so theme folders cannot be enumerated.
type noListing struct {
	root http.FileSystem
}

func (n noListing) Open(name string) (http.File, error) {
	f, err := n.root.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.IsDir() {
		f.Close()
		return nil, fs.ErrNotExist
	}
	return f, nil
}

// CORS allows the configured client origin ("*" for any).
func CORS(origin string) func(http.Handler) http.Handler {
	if origin == "" {
		origin = "*"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
