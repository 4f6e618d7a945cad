// Package handler は nearest-leader の HTTP API を echo で公開します。
package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/ogurasousui/nearest-leader/internal/core/deactivation"
	"github.com/ogurasousui/nearest-leader/internal/core/relationship"
	"github.com/ogurasousui/nearest-leader/internal/platform/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	employeeIDHeader = "Sykmeldt-Fnr"
	leaderIDHeader   = "Narmeste-Leder-Fnr"
)

// Pinger は依存先の疎通確認です。
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler は HTTP ルートの実装です。
type Handler struct {
	relationships relationship.UseCase
	deactivation  deactivation.UseCase
	ready         Pinger
	logger        *zap.Logger
}

// NewHandler は Handler を生成します。
func NewHandler(relationships relationship.UseCase, deact deactivation.UseCase, ready Pinger, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{relationships: relationships, deactivation: deact, ready: ready, logger: logger}
}

// Register はルートとミドルウェアを登録します。
func (h *Handler) Register(e *echo.Echo) {
	e.GET("/internal/is_alive", h.isAlive)
	e.GET("/internal/is_ready", h.isReady)
	e.GET("/internal/metrics", echo.WrapHandler(promhttp.Handler()))

	mw := []echo.MiddlewareFunc{CorrelationID(), RequestMetrics()}
	e.GET("/arbeidsgiver/forskutterer", h.getForskuttering, mw...)
	e.GET("/sykmeldt/:fnr/narmesteledere", h.listForEmployee, mw...)
	e.GET("/leder/ansatte", h.listForLeader, mw...)
	e.POST("/leder/ansatt/:fnr/avkreft", h.deactivateByLeader, mw...)
	e.POST("/sykmeldt/arbeidsgiver/:orgnummer/avkreft", h.deactivateByEmployee, mw...)
}

func (h *Handler) isAlive(c echo.Context) error {
	return c.String(http.StatusOK, "I'm alive")
}

func (h *Handler) isReady(c echo.Context) error {
	if h.ready != nil {
		if err := h.ready.Ping(c.Request().Context()); err != nil {
			h.logger.Warn("readiness check failed", zap.Error(err))
			return c.String(http.StatusServiceUnavailable, "Please wait! I'm not ready :(")
		}
	}
	return c.String(http.StatusOK, "I'm ready! :)")
}

func (h *Handler) getForskuttering(c echo.Context) error {
	orgID := strings.TrimSpace(c.QueryParam("orgnummer"))
	if orgID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "orgnummer is required")
	}
	employeeID := strings.TrimSpace(c.Request().Header.Get(employeeIDHeader))
	if employeeID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, employeeIDHeader+" header is required")
	}

	advancePay, err := h.relationships.GetAdvancePay(c.Request().Context(), orgID, employeeID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, forskutteringResponse{Forskuttering: toForskuttering(advancePay)})
}

func (h *Handler) listForEmployee(c echo.Context) error {
	ctx := c.Request().Context()
	employeeID := c.Param("fnr")

	var (
		rels []*relationship.Relationship
		err  error
	)
	if c.QueryParam("utvidet") == "ja" {
		rels, err = h.relationships.ListWithNames(ctx, employeeID, correlationID(c).String())
	} else {
		rels, err = h.relationships.List(ctx, employeeID)
	}
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, toRelationshipResponses(rels))
}

func (h *Handler) listForLeader(c echo.Context) error {
	rels, err := h.relationships.ListActiveForLeader(c.Request().Context(), c.Request().Header.Get(leaderIDHeader))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, toRelationshipResponses(rels))
}

func (h *Handler) deactivateByLeader(c echo.Context) error {
	result, err := h.deactivation.DeactivateForEmployee(c.Request().Context(), deactivation.DeactivateForEmployeeInput{
		LeaderID:      c.Request().Header.Get(leaderIDHeader),
		EmployerOrgID: c.QueryParam("orgnummer"),
		EmployeeID:    c.Param("fnr"),
		AuthToken:     c.Request().Header.Get(echo.HeaderAuthorization),
		CorrelationID: correlationID(c),
	})
	return h.respondDeactivation(c, deactivation.SourceManager, result, err)
}

func (h *Handler) deactivateByEmployee(c echo.Context) error {
	result, err := h.deactivation.Deactivate(c.Request().Context(), deactivation.DeactivateInput{
		EmployerOrgID:       c.Param("orgnummer"),
		EmployeeID:          c.Request().Header.Get(employeeIDHeader),
		AuthToken:           c.Request().Header.Get(echo.HeaderAuthorization),
		CorrelationID:       correlationID(c),
		TriggeredByEmployee: true,
	})
	return h.respondDeactivation(c, deactivation.SourceEmployee, result, err)
}

func (h *Handler) respondDeactivation(c echo.Context, source deactivation.Source, result *deactivation.Result, err error) error {
	if err != nil {
		metrics.DeactivationTotal.WithLabelValues(string(source), "error").Inc()
		return h.fail(c, err)
	}

	metrics.DeactivationTotal.WithLabelValues(string(source), outcome(result)).Inc()
	return c.JSON(http.StatusOK, deactivationResponse{
		State:                string(result.FinalState),
		Closed:               result.Closed,
		ReplacementRequested: result.ReplacementRequested,
	})
}

func outcome(r *deactivation.Result) string {
	switch {
	case r.NoOp:
		return "noop"
	case r.ReplacementRequested:
		return "replacement_requested"
	case r.Closed:
		return "closed"
	default:
		return "stale"
	}
}

func (h *Handler) fail(c echo.Context, err error) error {
	httpErr := toHTTPError(err)
	if he, ok := httpErr.(*echo.HTTPError); ok && he.Code >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("correlation_id", correlationID(c).String()),
			zap.String("path", c.Path()),
			zap.Error(err),
		)
	}
	return httpErr
}
