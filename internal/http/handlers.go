package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"bauchermatch/internal/core"
	applog "bauchermatch/internal/log"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.started).String(),
	}).Write(w)
}

// handleReady checks that storage answers.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	if _, ok := s.svc.MonthlyTotals(ctx); ok {
		checks["storage"] = "ok"
	} else {
		checks["storage"] = "failed"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	}

	pipelines := make(map[string]string)
	for _, p := range s.svc.Pipelines() {
		pipelines[p.Variant.String()] = p.State.String()
	}
	checks["pipelines"] = pipelines
	checks["rate_limiter"] = map[string]any{
		"active_clients": s.limiter.ActiveClients(),
	}

	NewJSONResponse().Status(httpStatus).Body(map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	}).Write(w)
}

// handleMetrics provides request and security counters in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)

	fmt.Fprintf(w, "# HELP http_requests_total Total number of HTTP requests\n")
	fmt.Fprintf(w, "# TYPE http_requests_total counter\n")
	fmt.Fprintf(w, "http_requests_total %d\n\n", s.tracer.Requests())

	fmt.Fprintf(w, "# HELP rate_limit_hits_total Total rate limit hits\n")
	fmt.Fprintf(w, "# TYPE rate_limit_hits_total counter\n")
	fmt.Fprintf(w, "rate_limit_hits_total %d\n\n", s.limiter.Rejected())

	fmt.Fprintf(w, "# HELP suspicious_requests_total Total suspicious requests detected\n")
	fmt.Fprintf(w, "# TYPE suspicious_requests_total counter\n")
	fmt.Fprintf(w, "suspicious_requests_total %d\n\n", s.detector.SuspiciousRequests())

	fmt.Fprintf(w, "# HELP active_rate_limit_clients Currently tracked rate limit clients\n")
	fmt.Fprintf(w, "# TYPE active_rate_limit_clients gauge\n")
	fmt.Fprintf(w, "active_rate_limit_clients %d\n\n", s.limiter.ActiveClients())

	fmt.Fprintf(w, "# HELP uptime_seconds Application uptime in seconds\n")
	fmt.Fprintf(w, "# TYPE uptime_seconds gauge\n")
	fmt.Fprintf(w, "uptime_seconds %.0f\n", time.Since(s.started).Seconds())
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := applog.NewStructuredLogger(applog.FromContext(ctx))

	variant, err := ParseVariant(r, s.defaultVariant)
	if err != nil {
		UploadErrorResponse(err).Write(w)
		return
	}

	src, err := ReadUpload(w, r, s.maxUploadBytes)
	if err != nil {
		logger.LogUpload(ctx, variant.String(), "", "", 0, 0, 0, err)
		UploadErrorResponse(err).Write(w)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.uploadTimeout)
	defer cancel()

	out, err := s.svc.Process(ctx, src, variant)
	if err != nil {
		logger.LogUpload(ctx, variant.String(), src.Filename, "", 0, 0, 0, err)
		UploadErrorResponse(err).Write(w)
		return
	}

	logger.LogUpload(ctx, variant.String(), out.Result.Filename, out.Result.Month.String(),
		out.Result.Year, out.Result.Ingreso, out.Statement.ID, nil)
	NewJSONResponse().Status(http.StatusCreated).Body(out).Write(w)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	year, err := ParseYear(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	NewJSONResponse().Body(s.svc.Dashboard(r.Context(), year)).Write(w)
}

func (s *Server) handleListStatements(w http.ResponseWriter, r *http.Request) {
	year, err := ParseYear(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	list, ok := s.svc.Statements(r.Context(), year)
	if !ok {
		ServiceUnavailableError("No se pudo leer el historial.").Write(w)
		return
	}
	if list == nil {
		list = []core.ProcessedStatement{}
	}
	NewJSONResponse().Body(map[string]any{"statements": list}).Write(w)
}

func (s *Server) handleDeleteStatement(w http.ResponseWriter, r *http.Request) {
	id, err := ParseStatementID(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	if !s.svc.Delete(r.Context(), id) {
		ServiceUnavailableError("No se pudo eliminar el registro.").Write(w)
		return
	}
	applog.FromContext(r.Context()).InfoContext(r.Context(), "Statement deleted via API",
		applog.FieldOperation, applog.OpDelete,
		applog.FieldStatementID, id)
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

func (s *Server) handleClearStatements(w http.ResponseWriter, r *http.Request) {
	if !s.svc.Clear(r.Context()) {
		ServiceUnavailableError("No se pudo limpiar el historial.").Write(w)
		return
	}
	applog.FromContext(r.Context()).InfoContext(r.Context(), "All statements cleared via API",
		applog.FieldOperation, applog.OpClear)
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

func (s *Server) handleMonthlyTotals(w http.ResponseWriter, r *http.Request) {
	totals, ok := s.svc.MonthlyTotals(r.Context())
	if !ok {
		ServiceUnavailableError("No se pudieron leer los totales.").Write(w)
		return
	}
	if totals == nil {
		totals = []core.MonthlyTotal{}
	}
	NewJSONResponse().Body(map[string]any{"totals": totals}).Write(w)
}

func (s *Server) handleDatabasePath(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(map[string]string{"path": s.svc.DatabasePath()}).Write(w)
}

func (s *Server) handlePipelines(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(map[string]any{"pipelines": s.svc.Pipelines()}).Write(w)
}
