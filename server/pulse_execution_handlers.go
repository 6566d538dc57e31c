package server

import (
	"net/http"

	"github.com/teranos/tradepulse/logger"
	"github.com/teranos/tradepulse/pulse/schedule"
)

// defaultExecutionLimit caps execution listings without ?limit=
const defaultExecutionLimit = 50

// HandleListExecutions handles GET /api/executions?schedule_id=&limit=
func (s *Server) HandleListExecutions(w http.ResponseWriter, r *http.Request) {
	var scheduleID *string
	if id := r.URL.Query().Get("schedule_id"); id != "" {
		scheduleID = &id
	}
	s.writeExecutions(w, r, scheduleID)
}

func (s *Server) writeExecutions(w http.ResponseWriter, r *http.Request, scheduleID *string) {
	limit, err := queryLimit(r, defaultExecutionLimit)
	if err != nil {
		writeErr(w, s.logger, err)
		return
	}
	execs, err := s.scheduler.ListExecutions(r.Context(), scheduleID, limit)
	if err != nil {
		writeErr(w, s.logger, err)
		return
	}
	if execs == nil {
		execs = []*schedule.Execution{}
	}
	writeJSON(w, http.StatusOK, ListExecutionsResponse{Executions: execs, Count: len(execs)})
}

// HandleGetExecution handles GET /api/executions/{id}
func (s *Server) HandleGetExecution(w http.ResponseWriter, r *http.Request) {
	exec, err := s.scheduler.GetExecution(r.Context(), r.PathValue("id"))
	if err != nil {
		writeErr(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, exec)
}

// HandleRunJob handles POST /api/jobs/run. The job runs in the background;
// the response is the running record.
func (s *Server) HandleRunJob(w http.ResponseWriter, r *http.Request) {
	var req RunJobRequest
	if !readJSON(w, r, &req) {
		return
	}

	logger.AddPulseSymbol(s.logger).Infow("Pulse manual run",
		logger.FieldJobType, req.JobType,
		logger.FieldScheduleID, req.ScheduleID,
		"remote", r.RemoteAddr)

	exec, err := s.scheduler.RunNow(r.Context(), req.JobType, req.ScheduleID)
	if err != nil {
		writeErr(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusAccepted, exec)
}

// HandlePauseAll handles POST /api/pulse/pause-all
func (s *Server) HandlePauseAll(w http.ResponseWriter, r *http.Request) {
	if err := s.scheduler.PauseAll(r.Context()); err != nil {
		writeErr(w, s.logger, err)
		return
	}
	s.writePulseStatus(w, r)
}

// HandleResumeAll handles POST /api/pulse/resume-all
func (s *Server) HandleResumeAll(w http.ResponseWriter, r *http.Request) {
	if err := s.scheduler.ResumeAll(r.Context()); err != nil {
		writeErr(w, s.logger, err)
		return
	}
	s.writePulseStatus(w, r)
}

// HandlePulseStatus handles GET /api/pulse/status
func (s *Server) HandlePulseStatus(w http.ResponseWriter, r *http.Request) {
	s.writePulseStatus(w, r)
}

func (s *Server) writePulseStatus(w http.ResponseWriter, r *http.Request) {
	paused, err := s.scheduler.GlobalPaused(r.Context())
	if err != nil {
		writeErr(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, PulseStatusResponse{GlobalPaused: paused, Loop: s.scheduler.GetStats()})
}
