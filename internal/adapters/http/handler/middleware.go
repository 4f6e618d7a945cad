package handler

import (
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/ogurasousui/nearest-leader/internal/platform/metrics"
)

const (
	callIDHeader     = "Nav-Callid"
	correlationIDKey = "correlation_id"
)

// CorrelationID は Nav-Callid ヘッダー (なければクエリパラメータ) から相関 ID を取り出します。
// 値がないか UUID として不正な場合は新しく生成します。
func CorrelationID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := c.Request().Header.Get(callIDHeader)
			if raw == "" {
				raw = c.QueryParam(callIDHeader)
			}

			id, err := uuid.Parse(raw)
			if err != nil {
				id = uuid.New()
			}

			c.Set(correlationIDKey, id)
			c.Response().Header().Set(callIDHeader, id.String())
			return next(c)
		}
	}
}

// RequestMetrics はルートテンプレートごとの処理時間を記録します。
func RequestMetrics() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			path := c.Path()
			if path == "" {
				path = "unmatched"
			}
			metrics.HTTPRequestDuration.WithLabelValues(path).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

func correlationID(c echo.Context) uuid.UUID {
	if id, ok := c.Get(correlationIDKey).(uuid.UUID); ok {
		return id
	}
	return uuid.New()
}
