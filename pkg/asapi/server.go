// Copyright 2024-2026 Aiku AI

// Package asapi serves the homeserver-facing side of the application
// service API: transaction push, ping, and the room/user existence probes.
package asapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"maunium.net/go/mautrix/appservice"
	"maunium.net/go/mautrix/event"
)

// TransactionHandler consumes one inbound transaction. A non-nil error
// turns into a 500 so the homeserver redelivers the batch.
type TransactionHandler interface {
	HandleTransaction(ctx context.Context, txnID string, events []*event.Event) error
}

type Server struct {
	router  *mux.Router
	hsToken string
	handler TransactionHandler
	log     zerolog.Logger
}

// NewServer wires the application service routes, including the legacy
// unprefixed paths some older homeservers still use.
func NewServer(reg *appservice.Registration, handler TransactionHandler, log zerolog.Logger) *Server {
	s := &Server{
		router:  mux.NewRouter(),
		hsToken: reg.ServerToken,
		handler: handler,
		log:     log.With().Str("component", "asapi").Logger(),
	}
	for _, prefix := range []string{"/_matrix/app/v1", ""} {
		r := s.router.PathPrefix(prefix).Subrouter()
		r.HandleFunc("/transactions/{txnID}", s.authed(s.putTransaction)).Methods(http.MethodPut)
		r.HandleFunc("/rooms/{alias}", s.authed(s.getRoom)).Methods(http.MethodGet)
		r.HandleFunc("/users/{userID}", s.authed(s.getUser)).Methods(http.MethodGet)
	}
	s.router.HandleFunc("/_matrix/app/v1/ping", s.authed(s.postPing)).Methods(http.MethodPost)
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token == "" {
			token = r.URL.Query().Get("access_token")
		}
		switch token {
		case "":
			writeError(w, http.StatusUnauthorized, "M_MISSING_TOKEN", "Missing authorization")
		case s.hsToken:
			next(w, r)
		default:
			writeError(w, http.StatusForbidden, "M_UNKNOWN_TOKEN", "Incorrect access token")
		}
	}
}

func (s *Server) putTransaction(w http.ResponseWriter, r *http.Request) {
	txnID := mux.Vars(r)["txnID"]
	var txn appservice.Transaction
	if err := json.NewDecoder(r.Body).Decode(&txn); err != nil {
		writeError(w, http.StatusBadRequest, "M_NOT_JSON", "Malformed transaction body")
		return
	}
	for _, evt := range txn.Events {
		// The wire format carries no event class; restore it so typed
		// comparisons and content parsing work downstream.
		if evt.StateKey != nil {
			evt.Type.Class = event.StateEventType
		} else {
			evt.Type.Class = event.MessageEventType
		}
		if err := evt.Content.ParseRaw(evt.Type); err != nil && !errors.Is(err, event.ErrUnsupportedContentType) {
			s.log.Debug().Err(err).Str("event_id", evt.ID.String()).Msg("Failed to parse event content")
		}
	}
	if err := s.handler.HandleTransaction(r.Context(), txnID, txn.Events); err != nil {
		s.log.Err(err).Str("txn_id", txnID).Msg("Transaction processing failed")
		writeError(w, http.StatusInternalServerError, "M_UNKNOWN", "Transaction processing failed")
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

func (s *Server) postPing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, struct{}{})
}

// The existence probes are pure no-ops: rooms and users are replicated
// from remote events, never provisioned on homeserver demand, so the
// probes just acknowledge.

func (s *Server) getRoom(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, struct{}{})
}

func (s *Server) getUser(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, struct{}{})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, errcode, message string) {
	writeJSON(w, status, map[string]string{"errcode": errcode, "error": message})
}
