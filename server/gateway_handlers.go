package server

import (
	"net/http"

	"github.com/teranos/tradepulse/execution"
	"github.com/teranos/tradepulse/logger"
)

// HandleExecute handles POST /api/execute. A replayed outcome is returned
// with 200 like the original; its duplicate flag tells them apart.
func (s *Server) HandleExecute(w http.ResponseWriter, r *http.Request) {
	var req execution.Request
	if !readJSON(w, r, &req) {
		return
	}

	outcome, err := s.gateway.Execute(r.Context(), req)
	if err != nil {
		writeErr(w, logger.AddGatewaySymbol(s.logger).With(logger.FieldRequestID, req.RequestID), err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

// HandleGetKillSwitch handles GET /api/killswitch
func (s *Server) HandleGetKillSwitch(w http.ResponseWriter, r *http.Request) {
	state, err := s.gateway.KillSwitchState(r.Context())
	if err != nil {
		writeErr(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// HandleSetKillSwitch handles PUT /api/killswitch
func (s *Server) HandleSetKillSwitch(w http.ResponseWriter, r *http.Request) {
	var body SetKillSwitchRequest
	if !readJSON(w, r, &body) {
		return
	}
	if body.Enabled == nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "enabled is required")
		return
	}

	state, err := s.gateway.SetKillSwitch(r.Context(), *body.Enabled, body.Actor)
	if err != nil {
		writeErr(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}
