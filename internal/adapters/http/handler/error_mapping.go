package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/ogurasousui/nearest-leader/internal/core/deactivation"
	"github.com/ogurasousui/nearest-leader/internal/core/relationship"
)

func toHTTPError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, relationship.ErrInvalidOrgID),
		errors.Is(err, relationship.ErrInvalidEmployeeID),
		errors.Is(err, relationship.ErrInvalidLeaderID),
		errors.Is(err, relationship.ErrInvalidPeriod),
		errors.Is(err, deactivation.ErrInvalidOrgID),
		errors.Is(err, deactivation.ErrInvalidEmployeeID),
		errors.Is(err, deactivation.ErrInvalidLeaderID):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, relationship.ErrRelationshipNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	default:
		// 内部エラーの詳細は応答に含めない
		return echo.NewHTTPError(http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError)).SetInternal(err)
	}
}
