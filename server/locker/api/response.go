package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"hospital_locker/server/common/transport/httpresp"
	"hospital_locker/server/locker/domain"
)

func statusFor(err error) (int, string) {
	switch kind := domain.KindOf(err); {
	case errors.Is(kind, domain.ErrValidation):
		return http.StatusBadRequest, "validation"
	case errors.Is(kind, domain.ErrAuth):
		return http.StatusUnauthorized, "auth"
	case errors.Is(kind, domain.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(kind, domain.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(kind, domain.ErrNetwork):
		return http.StatusBadGateway, "network"
	case errors.Is(kind, domain.ErrBackend):
		return http.StatusBadGateway, "backend"
	default:
		return http.StatusInternalServerError, ""
	}
}

// writeError renders a failed action. The body carries the same text the
// status line shows.
func writeError(c *gin.Context, err error) {
	status, kind := statusFor(err)
	c.JSON(status, httpresp.NewKindErrorResponse(kind, domain.UserMessage(err)))
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, httpresp.NewKindErrorResponse("validation", message))
}
