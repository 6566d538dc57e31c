package server

import (
	"net/http"

	"github.com/teranos/tradepulse/logger"
	"github.com/teranos/tradepulse/pulse/schedule"
)

// HandleListSchedules handles GET /api/schedules
func (s *Server) HandleListSchedules(w http.ResponseWriter, r *http.Request) {
	schedules, err := s.scheduler.ListSchedules(r.Context())
	if err != nil {
		writeErr(w, s.logger, err)
		return
	}
	if schedules == nil {
		schedules = []*schedule.Schedule{}
	}
	writeJSON(w, http.StatusOK, ListSchedulesResponse{Schedules: schedules, Count: len(schedules)})
}

// HandleCreateSchedule handles POST /api/schedules
func (s *Server) HandleCreateSchedule(w http.ResponseWriter, r *http.Request) {
	var def schedule.Definition
	if !readJSON(w, r, &def) {
		return
	}

	logger.AddPulseSymbol(s.logger).Infow("Pulse create schedule",
		"name", def.Name,
		logger.FieldJobType, def.JobType,
		"cron", def.CronExpression,
		"remote", r.RemoteAddr)

	sch, err := s.scheduler.CreateSchedule(r.Context(), def)
	if err != nil {
		writeErr(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, sch)
}

// HandleGetSchedule handles GET /api/schedules/{id}
func (s *Server) HandleGetSchedule(w http.ResponseWriter, r *http.Request) {
	sch, err := s.scheduler.GetSchedule(r.Context(), r.PathValue("id"))
	if err != nil {
		writeErr(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, sch)
}

// HandleUpdateSchedule handles PATCH /api/schedules/{id}
func (s *Server) HandleUpdateSchedule(w http.ResponseWriter, r *http.Request) {
	scheduleID := r.PathValue("id")
	var patch schedule.Patch
	if !readJSON(w, r, &patch) {
		return
	}

	logger.AddPulseSymbol(s.logger).Infow("Pulse update schedule", logger.FieldScheduleID, scheduleID)

	sch, err := s.scheduler.UpdateSchedule(r.Context(), scheduleID, patch)
	if err != nil {
		writeErr(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, sch)
}

// HandlePauseSchedule handles POST /api/schedules/{id}/pause
func (s *Server) HandlePauseSchedule(w http.ResponseWriter, r *http.Request) {
	sch, err := s.scheduler.Pause(r.Context(), r.PathValue("id"))
	if err != nil {
		writeErr(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, sch)
}

// HandleResumeSchedule handles POST /api/schedules/{id}/resume
func (s *Server) HandleResumeSchedule(w http.ResponseWriter, r *http.Request) {
	sch, err := s.scheduler.Resume(r.Context(), r.PathValue("id"))
	if err != nil {
		writeErr(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, sch)
}

// HandleScheduleExecutions handles GET /api/schedules/{id}/executions
func (s *Server) HandleScheduleExecutions(w http.ResponseWriter, r *http.Request) {
	scheduleID := r.PathValue("id")
	if _, err := s.scheduler.GetSchedule(r.Context(), scheduleID); err != nil {
		writeErr(w, s.logger, err)
		return
	}
	s.writeExecutions(w, r, &scheduleID)
}
