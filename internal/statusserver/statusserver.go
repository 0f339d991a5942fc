// Package statusserver exposes a small HTTP surface for operators: liveness,
// session state, and the pairing QR page used to link a fresh session.
package statusserver

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const qrImageEndpoint = "https://api.qrserver.com/v1/create-qr-code/?size=300x300&data="

var qrPage = template.Must(template.New("qr").Parse(`<!doctype html>
<html>
<head><meta charset="utf-8"><title>leitobot pairing</title></head>
<body style="font-family: sans-serif; text-align: center; padding-top: 2em">
{{if .ImageURL}}
<h1>Escanea el código QR</h1>
<img src="{{.ImageURL}}" alt="pairing qr" width="300" height="300">
<p>WhatsApp &gt; Dispositivos vinculados &gt; Vincular un dispositivo</p>
{{else}}
<h1>{{.Message}}</h1>
{{end}}
</body>
</html>
`))

type Options struct {
	Logger *slog.Logger

	// State reports the current session lifecycle state.
	State func() string
	// PairingToken reports the latest unconsumed pairing token, if any.
	PairingToken func() (string, bool)
}

type Server struct {
	logger       *slog.Logger
	state        func() string
	pairingToken func() (string, bool)
	router       chi.Router
}

func New(opts Options) (*Server, error) {
	if opts.State == nil {
		return nil, fmt.Errorf("statusserver: state func is required")
	}
	if opts.PairingToken == nil {
		return nil, fmt.Errorf("statusserver: pairing token func is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		logger:       logger,
		state:        opts.State,
		pairingToken: opts.PairingToken,
	}
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/", s.handleRoot)
	r.Get("/healthz", s.handleHealthz)
	r.Get("/qr", s.handleQR)
	s.router = r
	return s, nil
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintln(w, "leitobot is alive")
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status": "ok",
		"state":  s.state(),
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleQR(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	token, ok := s.pairingToken()
	data := struct {
		ImageURL string
		Message  string
	}{}
	switch {
	case ok:
		data.ImageURL = qrImageEndpoint + url.QueryEscape(token)
	case s.state() == "connected":
		data.Message = "Sesión ya vinculada."
	default:
		data.Message = "Esperando código de vinculación…"
	}
	if err := qrPage.Execute(w, data); err != nil {
		s.logger.Warn("status_qr_render_error", "error", err.Error())
	}
}

// NormalizeListen turns a bare port into a listen address and trims blanks,
// so config may say "8080", ":8080" or "127.0.0.1:8080".
func NormalizeListen(listen string) string {
	listen = strings.TrimSpace(listen)
	if listen == "" {
		return ""
	}
	if !strings.Contains(listen, ":") {
		return ":" + listen
	}
	return listen
}

// Start serves the status surface on addr until ctx is canceled. The bind
// happens synchronously so an unusable address fails here, not later in a
// goroutine; the returned server's Addr carries the resolved listen address.
func Start(ctx context.Context, logger *slog.Logger, addr string, s *Server) (*http.Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("statusserver: listen %s: %w", addr, err)
	}
	srv := &http.Server{
		Addr:              listener.Addr().String(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		_ = srv.Serve(listener)
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	logger.Info("status_server_listening", "addr", srv.Addr)
	return srv, nil
}
