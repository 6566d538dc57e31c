package server

import (
	"net/http"

	"github.com/teranos/tradepulse/approval"
	"github.com/teranos/tradepulse/logger"
	"github.com/teranos/tradepulse/trade"
)

// HandleListApprovals handles GET /api/approvals?risk_tier=
func (s *Server) HandleListApprovals(w http.ResponseWriter, r *http.Request) {
	var tier *trade.RiskTier
	if raw := r.URL.Query().Get("risk_tier"); raw != "" {
		t := trade.RiskTier(raw)
		tier = &t
	}
	reqs, err := s.gate.ListPending(r.Context(), tier)
	if err != nil {
		writeErr(w, s.logger, err)
		return
	}
	if reqs == nil {
		reqs = []*approval.Request{}
	}
	writeJSON(w, http.StatusOK, ListApprovalsResponse{Requests: reqs, Count: len(reqs)})
}

// HandleGetApproval handles GET /api/approvals/{id}
func (s *Server) HandleGetApproval(w http.ResponseWriter, r *http.Request) {
	req, err := s.gate.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeErr(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// HandleApprove handles POST /api/approvals/{id}/approve.
// When the approval is recorded but the gateway refuses the dispatch, the
// error body carries the approved request.
func (s *Server) HandleApprove(w http.ResponseWriter, r *http.Request) {
	requestID := r.PathValue("id")
	var body ResolveRequest
	if !readJSON(w, r, &body) {
		return
	}

	logger.AddApprovalSymbol(s.logger).Infow("Approve request",
		logger.FieldApprovalID, requestID,
		logger.FieldActor, body.Actor,
		"remote", r.RemoteAddr)

	decision, err := s.gate.Approve(r.Context(), requestID, body.Actor)
	if err != nil {
		var record interface{}
		if decision != nil {
			record = decision.Request
		}
		writeErrWith(w, s.logger, err, record)
		return
	}
	writeJSON(w, http.StatusOK, decision)
}

// HandleReject handles POST /api/approvals/{id}/reject
func (s *Server) HandleReject(w http.ResponseWriter, r *http.Request) {
	requestID := r.PathValue("id")
	var body ResolveRequest
	if !readJSON(w, r, &body) {
		return
	}

	logger.AddApprovalSymbol(s.logger).Infow("Reject request",
		logger.FieldApprovalID, requestID,
		logger.FieldActor, body.Actor,
		"remote", r.RemoteAddr)

	decision, err := s.gate.Reject(r.Context(), requestID, body.Actor)
	if err != nil {
		writeErr(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, decision)
}

// HandleSweepApprovals handles POST /api/approvals/sweep
func (s *Server) HandleSweepApprovals(w http.ResponseWriter, r *http.Request) {
	n, err := s.gate.SweepExpired(r.Context())
	if err != nil {
		writeErr(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, SweepResponse{Expired: n})
}
