// Package web provides the HTTP surface of the logic-nodes daemon: the
// status page, Prometheus metrics and the node trigger endpoints.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/teclab-at/logic-nodes/internal/mail"
	"github.com/teclab-at/logic-nodes/internal/status"
	"github.com/teclab-at/logic-nodes/internal/telegram"
	"github.com/teclab-at/logic-nodes/internal/thermostat"
)

const maxRequestBytes = 64 << 10

// Triggerer starts a background run of a node.
type Triggerer interface {
	Trigger()
}

// MailSender queues an e-mail and returns its job ID.
type MailSender interface {
	Send(msg mail.Message) string
}

// ChatSender queues a chat message and returns its job ID.
type ChatSender interface {
	Send(msg telegram.Message) string
}

// ThermostatUpdater applies thermostat input writes.
type ThermostatUpdater interface {
	Update(u thermostat.Update) (thermostat.Result, error)
}

// Options wires the server to the running nodes. Nil nodes leave their
// endpoints answering 404.
type Options struct {
	Addr       string
	Tracker    *status.Tracker
	Gatherer   prometheus.Gatherer
	Triggers   map[string]Triggerer
	Mail       MailSender
	Telegram   ChatSender
	Thermostat ThermostatUpdater
	Logger     zerolog.Logger
}

// Server serves the status page and node endpoints over HTTP.
type Server struct {
	httpServer *http.Server
	opts       Options
}

// New creates a Server.
func New(opts Options) *Server {
	s := &Server{opts: opts}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /", s.handleIndex)
	mux.HandleFunc("GET /index.json", s.handleJSON)
	if opts.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}
	mux.HandleFunc("POST /nodes/{name}/trigger", s.handleTrigger)
	mux.HandleFunc("POST /nodes/mail/send", s.handleMail)
	mux.HandleFunc("POST /nodes/telegram/send", s.handleTelegram)
	mux.HandleFunc("POST /nodes/thermostat/inputs", s.handleThermostat)

	s.httpServer = &http.Server{
		Addr:    opts.Addr,
		Handler: mux,
	}
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	snap := s.opts.Tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, snap); err != nil {
		s.opts.Logger.Error().Err(err).Msg("render status page")
	}
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.opts.Tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

// jobResponse acknowledges a queued job.
type jobResponse struct {
	JobID string `json:"job_id,omitempty"`
	Node  string `json:"node,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	t, ok := s.opts.Triggers[name]
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown node " + name})
		return
	}
	t.Trigger()
	writeJSON(w, http.StatusAccepted, jobResponse{Node: name})
}

func (s *Server) handleMail(w http.ResponseWriter, r *http.Request) {
	if s.opts.Mail == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "mail node not enabled"})
		return
	}
	var msg mail.Message
	if err := decodeBody(r, &msg); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, jobResponse{JobID: s.opts.Mail.Send(msg)})
}

func (s *Server) handleTelegram(w http.ResponseWriter, r *http.Request) {
	if s.opts.Telegram == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "telegram node not enabled"})
		return
	}
	var msg telegram.Message
	if err := decodeBody(r, &msg); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, jobResponse{JobID: s.opts.Telegram.Send(msg)})
}

// thermostatResponse reports the controller outputs.
type thermostatResponse struct {
	Ready  bool    `json:"ready"`
	Valve  bool    `json:"valve"`
	Stored float64 `json:"stored_temperature"`
}

func (s *Server) handleThermostat(w http.ResponseWriter, r *http.Request) {
	if s.opts.Thermostat == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "thermostat node not enabled"})
		return
	}
	var u thermostat.Update
	if err := decodeBody(r, &u); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	res, err := s.opts.Thermostat.Update(u)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, thermostatResponse{Ready: res.Ready, Valve: res.Valve, Stored: res.Stored})
}
