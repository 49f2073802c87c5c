// Copyright 2025 Certen Protocol
//
// Package adminserver exposes the validator's submission surface:
// POST /submit, POST /submit_batch, GET /consensus/overload (spec.md §6).
// Routed with github.com/julienschmidt/httprouter rather than stdlib
// http.ServeMux, a deliberate departure from pkg/server/ledger_handlers.go
// (which uses ServeMux) since httprouter is already an indirect
// dependency of the wider pack and gives named path parameters the admin
// surface's future object/transaction lookups will want; the JSON
// error-body convention (`{"error":"..."}`  plus explicit status code)
// is kept identical to ledger_handlers.go.
package adminserver

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/certen/authority-core/pkg/consensusadapter"
	"github.com/certen/authority-core/pkg/consensusclient"
	"github.com/certen/authority-core/pkg/epoch"
	"github.com/certen/authority-core/pkg/objtype"
	"github.com/certen/authority-core/pkg/store"
)

// Logger is the narrow logging interface used throughout this module.
type Logger interface {
	Printf(format string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...interface{}) {}

// Server wires the admin HTTP surface.
type Server struct {
	router  *httprouter.Router
	adapter *consensusadapter.Adapter
	epoch   *epoch.Manager
	log     Logger
}

// New builds a Server submitting accepted transactions through adapter
// and driving reconfiguration through epochMgr (nil disables
// /epoch/close, e.g. for a read-only or single-epoch deployment).
func New(adapter *consensusadapter.Adapter, epochMgr *epoch.Manager, log Logger) *Server {
	if log == nil {
		log = nopLogger{}
	}
	s := &Server{router: httprouter.New(), adapter: adapter, epoch: epochMgr, log: log}
	s.router.POST("/submit", s.handleSubmit)
	s.router.POST("/submit_batch", s.handleSubmitBatch)
	s.router.GET("/consensus/overload", s.handleOverload)
	s.router.POST("/epoch/close", s.handleCloseEpoch)
	return s
}

// ServeHTTP satisfies http.Handler, so Server can be handed directly to
// http.Server.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type submitRequest struct {
	Digest   string `json:"digest"`
	Wire     string `json:"wire"`      // submitted as the string's raw bytes; no base64 or other decoding is applied
	GasPrice uint64 `json:"gas_price"`
}

type submitResponse struct {
	Accepted bool `json:"accepted"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	w.Header().Set("Content-Type", "application/json")

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := s.adapter.CheckConsensusOverload(); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	digest, err := objtype.ParseTxDigest(req.Digest)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid digest: "+err.Error())
		return
	}

	sub := consensusadapter.Submission{
		MinDigest: digest,
		Wire:      []consensusclient.Transaction{[]byte(req.Wire)},
		GasPrice:  req.GasPrice,
	}
	if _, err := s.adapter.Submit(r.Context(), sub, nil); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	_ = json.NewEncoder(w).Encode(submitResponse{Accepted: true})
}

type submitBatchRequest struct {
	MinDigest string   `json:"min_digest"`
	Wire      []string `json:"wire"`
	GasPrice  uint64   `json:"gas_price"`
}

func (s *Server) handleSubmitBatch(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	w.Header().Set("Content-Type", "application/json")

	var req submitBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(req.Wire) == 0 {
		writeError(w, http.StatusBadRequest, "submit_batch requires at least one transaction")
		return
	}

	if err := s.adapter.CheckConsensusOverload(); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	digest, err := objtype.ParseTxDigest(req.MinDigest)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid min_digest: "+err.Error())
		return
	}

	wire := make([]consensusclient.Transaction, len(req.Wire))
	for i, w2 := range req.Wire {
		wire[i] = consensusclient.Transaction(w2)
	}
	sub := consensusadapter.Submission{MinDigest: digest, Wire: wire, GasPrice: req.GasPrice}
	if _, err := s.adapter.SubmitBatch(r.Context(), sub, nil); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	_ = json.NewEncoder(w).Encode(submitResponse{Accepted: true})
}

type overloadResponse struct {
	Overloaded bool `json:"overloaded"`
	Pending    int  `json:"pending"`
}

func (s *Server) handleOverload(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	w.Header().Set("Content-Type", "application/json")
	overloaded := s.adapter.CheckConsensusOverload() != nil
	_ = json.NewEncoder(w).Encode(overloadResponse{
		Overloaded: overloaded,
		Pending:    s.adapter.PendingCount(),
	})
}

type closeEpochRequest struct {
	NextEpoch uint64            `json:"next_epoch"`
	Committee map[string]uint64 `json:"committee"` // hex address -> stake
}

type closeEpochResponse struct {
	Closed bool `json:"closed"`
}

// handleCloseEpoch drives spec.md §4.6's reconfiguration handshake
// on demand: the committee-change algorithm that decides the next
// membership is out of scope, so the caller (an external reconfiguration
// coordinator) supplies it directly.
func (s *Server) handleCloseEpoch(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	w.Header().Set("Content-Type", "application/json")

	if s.epoch == nil {
		writeError(w, http.StatusNotImplemented, "epoch reconfiguration is not wired on this server")
		return
	}

	var req closeEpochRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	committee := make(map[objtype.Address]uint64, len(req.Committee))
	for addrHex, stake := range req.Committee {
		addr, err := objtype.ParseAddress(addrHex)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid committee address "+addrHex+": "+err.Error())
			return
		}
		committee[addr] = stake
	}

	next := store.EpochInfo{Epoch: req.NextEpoch, Committee: committee, StartedAt: time.Now()}
	if err := s.epoch.CloseEpoch(r.Context(), next); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	_ = json.NewEncoder(w).Encode(closeEpochResponse{Closed: true})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
