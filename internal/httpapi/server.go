// Package httpapi exposes the control surface over HTTP. Commands go
// through the actor channel; peer inventory reads come straight from
// the store.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"wifip2p/internal/store"
	"wifip2p/p2p"
)

// PeerLister reads the peer inventory.
type PeerLister interface {
	List(ctx context.Context) ([]store.Peer, error)
}

// ErrorResponse is the JSON body for failed requests.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// ConnectRequest selects a peer to connect to.
type ConnectRequest struct {
	Address string `json:"address"`
}

// Server handles control requests. The channel is swapped on config
// reload, so access goes through the mutex.
type Server struct {
	mu     sync.RWMutex
	ch     *p2p.Channel
	peers  PeerLister
	events http.Handler
	log    *slog.Logger
}

// New creates a new Server. The channel may be nil until SetChannel is
// called; requests in that window get 503.
func New(peers PeerLister, events http.Handler, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{peers: peers, events: events, log: log}
}

// SetChannel installs the command channel for the current manager
// generation.
func (s *Server) SetChannel(ch *p2p.Channel) {
	s.mu.Lock()
	s.ch = ch
	s.mu.Unlock()
}

func (s *Server) channel() *p2p.Channel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ch
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/discovery/start", s.StartDiscovery)
	mux.HandleFunc("POST /api/discovery/stop", s.StopDiscovery)
	mux.HandleFunc("POST /api/connect", s.Connect)
	mux.HandleFunc("POST /api/group", s.CreateGroup)
	mux.HandleFunc("GET /api/peers", s.ListPeers)
	mux.HandleFunc("GET /healthz", s.Health)

	if s.events != nil {
		mux.Handle("GET /events", s.events)
	}

	return Chain(mux,
		Recover(s.log),
		Logger(s.log),
	)
}

// StartDiscovery begins P2P peer discovery
func (s *Server) StartDiscovery(w http.ResponseWriter, r *http.Request) {
	s.submitCommand(w, r, "discovery_started", func(ch *p2p.Channel, ctx context.Context) (*p2p.Pending, error) {
		return ch.DiscoverPeers(ctx)
	})
}

// StopDiscovery halts P2P peer discovery
func (s *Server) StopDiscovery(w http.ResponseWriter, r *http.Request) {
	s.submitCommand(w, r, "discovery_stopped", func(ch *p2p.Channel, ctx context.Context) (*p2p.Pending, error) {
		return ch.StopDiscovery(ctx)
	})
}

// Connect initiates a connection to the peer named in the body
func (s *Server) Connect(w http.ResponseWriter, r *http.Request) {
	var req ConnectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}

	s.submitCommand(w, r, "connected", func(ch *p2p.Channel, ctx context.Context) (*p2p.Pending, error) {
		return ch.Connect(ctx, req.Address)
	})
}

// CreateGroup forms an autonomous group with this device as owner
func (s *Server) CreateGroup(w http.ResponseWriter, r *http.Request) {
	s.submitCommand(w, r, "group_created", func(ch *p2p.Channel, ctx context.Context) (*p2p.Pending, error) {
		return ch.CreateGroup(ctx)
	})
}

// ListPeers returns every peer the inventory has seen
func (s *Server) ListPeers(w http.ResponseWriter, r *http.Request) {
	peers, err := s.peers.List(r.Context())
	if err != nil {
		s.log.Error("failed to list peers", "error", err)
		s.writeError(w, "Failed to list peers", err.Error(), http.StatusInternalServerError)
		return
	}
	if peers == nil {
		peers = []store.Peer{}
	}
	s.writeJSON(w, peers, http.StatusOK)
}

// Health reports liveness
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if s.channel() == nil {
		status = "starting"
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, map[string]string{"status": status}, code)
}

func (s *Server) submitCommand(w http.ResponseWriter, r *http.Request, status string, submit func(*p2p.Channel, context.Context) (*p2p.Pending, error)) {
	ch := s.channel()
	if ch == nil {
		s.writeError(w, "Service not ready", "Control channel is not available", http.StatusServiceUnavailable)
		return
	}

	pending, err := submit(ch, r.Context())
	if err != nil {
		s.writeP2PError(w, err)
		return
	}

	if err := pending.Wait(r.Context()); err != nil {
		s.writeP2PError(w, err)
		return
	}

	s.writeJSON(w, map[string]string{"status": status}, http.StatusOK)
}

func (s *Server) writeP2PError(w http.ResponseWriter, err error) {
	var perr *p2p.Error
	if !errors.As(err, &perr) {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			s.writeError(w, "Request cancelled", err.Error(), http.StatusGatewayTimeout)
			return
		}
		s.log.Error("command failed", "error", err)
		s.writeError(w, "Command failed", err.Error(), http.StatusInternalServerError)
		return
	}

	switch perr.Kind {
	case p2p.KindInvalidInput:
		s.writeError(w, "Invalid input", perr.Error(), http.StatusBadRequest)
	case p2p.KindChannelClosed:
		s.writeError(w, "Service shutting down", perr.Error(), http.StatusServiceUnavailable)
	case p2p.KindRemoteCall, p2p.KindSerialization:
		s.writeError(w, "Supplicant call failed", perr.Error(), http.StatusBadGateway)
	default:
		s.log.Error("command failed", "error", perr)
		s.writeError(w, "Command failed", perr.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error("failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, error, details string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Details: details,
	}); err != nil {
		s.log.Error("failed to encode error response", "error", err)
	}
}
