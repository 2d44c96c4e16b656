// Package api configures an http server for the DICOMweb resources.
package api

import (
	"net/http"
	"strconv"
	"time"

	"dicom-object-store/api/dicomweb"
	"dicom-object-store/app"
	"dicom-object-store/logging"
	"dicom-object-store/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// New configures application resources and routes.
func New(a *app.App) *chi.Mux {
	dicomwebAPI := dicomweb.NewAPI(dicomweb.Services{
		Store:          a.Store,
		Delete:         a.Delete,
		ChangeFeed:     a.ChangeFeed,
		QueryTags:      a.QueryTags,
		Reindexer:      a.Reindexer,
		Index:          a.Index,
		Content:        a.Content,
		MaxRequestSize: a.Config.Store.MaxRequestSize,
	})

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)

	r.Use(logging.NewStructuredLogger(a.Logger))
	r.Use(render.SetContentType(render.ContentTypeJSON))

	// use CORS middleware if client is not served by this api, e.g. from other domain or CDN
	if a.Config.EnableCORS {
		r.Use(corsConfig().Handler)
	}

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if _, err := a.DB.ExecOne("SELECT 1"); err != nil {
			render.Status(r, http.StatusServiceUnavailable)
			render.JSON(w, r, map[string]string{"status": "unavailable"})
			return
		}
		render.JSON(w, r, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(trackMetrics)
		// store requests stream large bodies and are not bound by a timeout
		r.Mount("/", dicomwebAPI.Router())
	})

	return r
}

// trackMetrics counts requests by route pattern.
func trackMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		metrics.HTTPRequestSeconds.WithLabelValues(r.Method, route).Add(time.Since(start).Seconds())
	})
}

func corsConfig() *cors.Cors {
	return cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link", "Location"},
		AllowCredentials: true,
		MaxAge:           86400, // Maximum value not ignored by any of major browsers
	})
}
