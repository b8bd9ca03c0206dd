package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/portal-estudiante-api/pkg/errors"
	"github.com/noah-isme/portal-estudiante-api/pkg/response"
)

// multipartOverhead leaves room for boundaries and the non-file form fields.
const multipartOverhead = 64 << 10

// UploadLimit caps multipart bodies so oversized uploads fail before they are spooled.
// maxFileSize <= 0 disables the cap.
func UploadLimit(maxFileSize int64) gin.HandlerFunc {
	if maxFileSize <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	limit := maxFileSize + multipartOverhead
	return func(c *gin.Context) {
		if c.Request.ContentLength > limit {
			response.Error(c, appErrors.Clone(appErrors.ErrPayloadTooLarge, "file exceeds maximum upload size"))
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}
