package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/portal-estudiante-api/internal/dto"
	"github.com/noah-isme/portal-estudiante-api/internal/middleware"
	"github.com/noah-isme/portal-estudiante-api/internal/models"
	appErrors "github.com/noah-isme/portal-estudiante-api/pkg/errors"
	"github.com/noah-isme/portal-estudiante-api/pkg/response"
)

// currentUser returns the caller's claims or writes a 401 and reports false.
func currentUser(c *gin.Context) (*models.JWTClaims, bool) {
	claims := middleware.CurrentUser(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return nil, false
	}
	return claims, true
}

// formUpload reads the multipart "file" field. The caller closes the returned closer.
func formUpload(c *gin.Context) (dto.FileUpload, io.Closer, error) {
	header, err := c.FormFile("file")
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return dto.FileUpload{}, nil, appErrors.Clone(appErrors.ErrPayloadTooLarge, "file exceeds maximum upload size")
	}
	if err != nil {
		return dto.FileUpload{}, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "file is required")
	}
	file, err := header.Open()
	if err != nil {
		return dto.FileUpload{}, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "failed to read uploaded file")
	}
	return dto.FileUpload{Filename: header.Filename, Size: header.Size, Content: file}, file, nil
}

func streamFile(c *gin.Context, download *dto.FileDownload) {
	defer download.Content.Close() //nolint:errcheck
	headers := map[string]string{
		"Content-Disposition": fmt.Sprintf("inline; filename=%q", download.Filename),
		"Cache-Control":       "no-store",
	}
	size := download.SizeBytes
	if size <= 0 {
		size = -1
	}
	mimeType := download.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	c.DataFromReader(http.StatusOK, size, mimeType, download.Content, headers)
}

func bindQuery(c *gin.Context, dest interface{}) bool {
	if err := c.ShouldBindQuery(dest); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return false
	}
	return true
}

func bindJSON(c *gin.Context, dest interface{}, message string) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, message))
		return false
	}
	return true
}
