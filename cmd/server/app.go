package main

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/diewo77/facturly/auth"
	"github.com/diewo77/facturly/httpx"
	"github.com/diewo77/facturly/i18n"
	"github.com/diewo77/facturly/internal/handlers"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// App is the main application handler that sets up all routes.
type App struct {
	mux  *http.ServeMux
	jwt  *auth.JWT
	log  zerolog.Logger
	b    *backend
}

// NewApp creates a new application with all routes configured.
func NewApp(b *backend, jwt *auth.JWT, log zerolog.Logger) *App {
	app := &App{
		mux:  http.NewServeMux(),
		jwt:  jwt,
		log:  log,
		b:    b,
	}
	app.setupRoutes()
	return app
}

// ServeHTTP implements http.Handler.
func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Global middleware: recovery, access log, language, bearer token
	handler := a.recoverer(a.accessLog(withLanguage(a.jwt.Middleware(a.mux))))
	handler.ServeHTTP(w, r)
}

// setupRoutes configures all application routes.
func (a *App) setupRoutes() {
	ih := handlers.NewInvoiceHandler(a.b.invoices)
	ch := handlers.NewClientHandler(a.b.clients, a.b.gate)
	sh := handlers.NewCompanyHandler(a.b.company, a.b.gate)

	// Public
	a.mux.HandleFunc("GET /healthz", handlers.NewHealthHandler(a.b.primary).Check)

	// Authenticated
	a.handle("GET /dashboard", ih.Dashboard)

	a.handle("GET /clients", ch.List)
	a.handle("POST /clients", ch.Create)
	a.handle("GET /clients/{id}", ch.Get)
	a.handle("PUT /clients/{id}", ch.Update)
	a.handle("DELETE /clients/{id}", ch.Delete)

	a.handle("GET /settings", sh.Get)
	a.handle("PUT /settings", sh.Update)

	a.handle("GET /invoices", ih.List)
	a.handle("POST /invoices", ih.Create)
	a.handle("GET /invoices/{id}", ih.Get)
	a.handle("PUT /invoices/{id}", ih.Update)
	a.handle("DELETE /invoices/{id}", ih.Delete)
	a.handle("POST /invoices/{id}/items", ih.AddItem)
	a.handle("PUT /invoices/{id}/items/{index}", ih.UpdateItem)
	a.handle("DELETE /invoices/{id}/items/{index}", ih.RemoveItem)
	a.handle("PUT /invoices/{id}/status", ih.SetStatus)
	a.handle("PUT /invoices/{id}/paid-date", ih.CorrectPaidDate)
	a.handle("GET /invoices/{id}/export/pdf", ih.ExportPDF)
}

func (a *App) handle(pattern string, h http.HandlerFunc) {
	a.mux.Handle(pattern, auth.RequireAuth(h))
}

// ─────────────────────────────────────────────────────────────────────────────
// Middleware
// ─────────────────────────────────────────────────────────────────────────────

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	n, err := s.ResponseWriter.Write(b)
	s.bytes += n
	return n, err
}

// accessLog logs one line per request and exposes a request scoped logger
// through zerolog.Ctx.
func (a *App) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqLog := a.log.With().Str("request_id", uuid.NewString()).Logger()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r.WithContext(reqLog.WithContext(r.Context())))

		ev := reqLog.Info()
		if rec.status >= http.StatusInternalServerError {
			ev = reqLog.Error()
		}
		ev.Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Int("bytes", rec.bytes).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

// recoverer turns a panic into a 500 JSON response.
func (a *App) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rv := recover(); rv != nil {
				a.log.Error().Interface("panic", rv).Bytes("stack", debug.Stack()).Str("path", r.URL.Path).Msg("panic recovered")
				httpx.JSONError(w, http.StatusInternalServerError, "internal_error", nil)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// withLanguage picks the response language from ?lang= or Accept-Language.
func withLanguage(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lang := i18n.DetectLanguage(r.Header.Get("Accept-Language"))
		if q := r.URL.Query().Get("lang"); q != "" {
			lang = i18n.DetectLanguage(q)
		}
		next.ServeHTTP(w, r.WithContext(i18n.WithLang(r.Context(), lang)))
	})
}
