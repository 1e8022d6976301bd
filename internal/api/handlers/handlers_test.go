package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	apperrors "github.com/gocomet/ridematch/pkg/errors"
	"github.com/gocomet/ridematch/pkg/logger"
)

func TestRespondError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := &Handlers{Logger: logger.NewNop()}

	tests := []struct {
		name   string
		err    error
		status int
		body   string
	}{
		{"business rule", apperrors.DriverBusy("driver-1"), http.StatusBadRequest, `"code":"DRIVER_BUSY"`},
		{"not found", apperrors.TripNotFound("t-1"), http.StatusNotFound, `"code":"TRIP_NOT_FOUND"`},
		{"route", apperrors.RouteUnavailable(errors.New("timeout")), http.StatusBadRequest, `"code":"ROUTE_UNAVAILABLE"`},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, `"code":"INTERNAL_ERROR"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

			h.respondError(c, tt.err)

			assert.Equal(t, tt.status, w.Code)
			assert.Contains(t, w.Body.String(), tt.body)
			assert.NotContains(t, w.Body.String(), "boom", "causes are never leaked")
		})
	}
}
