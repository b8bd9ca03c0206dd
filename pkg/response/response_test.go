package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/portal-estudiante-api/internal/models"
	appErrors "github.com/noah-isme/portal-estudiante-api/pkg/errors"
	"github.com/noah-isme/portal-estudiante-api/pkg/middleware/requestid"
)

func record(t *testing.T, handler gin.HandlerFunc) (*httptest.ResponseRecorder, map[string]json.RawMessage) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(requestid.Middleware())
	r.GET("/", handler)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestid.Header, "req-1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	body := map[string]json.RawMessage{}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestJSONWithPagination(t *testing.T) {
	rec, body := record(t, func(c *gin.Context) {
		JSON(c, http.StatusOK, []string{"a"}, models.NewPagination(1, 10, 1))
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Contains(t, body, "pagination")
	assert.NotContains(t, body, "error")
}

func TestErrorCarriesRequestID(t *testing.T) {
	rec, body := record(t, func(c *gin.Context) {
		Error(c, appErrors.Clone(appErrors.ErrNotFound, "document not found"))
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"request_id":"req-1"}`, string(body["meta"]))

	var apiErr appErrors.Error
	require.NoError(t, json.Unmarshal(body["error"], &apiErr))
	assert.Equal(t, appErrors.ErrNotFound.Code, apiErr.Code)
}

func TestErrorHidesUnknownErrors(t *testing.T) {
	rec, _ := record(t, func(c *gin.Context) {
		Error(c, errors.New("pq: connection refused"))
	})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection refused")
}

func TestAcceptedAndNoContent(t *testing.T) {
	rec, _ := record(t, func(c *gin.Context) { Accepted(c, gin.H{"id": "job"}) })
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec, _ = record(t, func(c *gin.Context) { NoContent(c) })
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
