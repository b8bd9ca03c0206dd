package requestid

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, inbound string) (string, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware())
	var seen string
	r.GET("/", func(c *gin.Context) {
		seen = Value(c)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if inbound != "" {
		req.Header.Set(Header, inbound)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return seen, rec.Header().Get(Header)
}

func TestGeneratesID(t *testing.T) {
	seen, header := serve(t, "")
	assert.Equal(t, seen, header)
	_, err := uuid.Parse(seen)
	require.NoError(t, err)
}

func TestKeepsCallerID(t *testing.T) {
	seen, header := serve(t, "frontend-42")
	assert.Equal(t, "frontend-42", seen)
	assert.Equal(t, "frontend-42", header)
}

func TestReplacesUnusableID(t *testing.T) {
	seen, _ := serve(t, strings.Repeat("x", maxLength+1))
	assert.NotEqual(t, strings.Repeat("x", maxLength+1), seen)

	seen, _ = serve(t, "has space")
	assert.NotEqual(t, "has space", seen)
}
