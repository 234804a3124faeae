package handler

import (
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/deptconnect/deptconnect-api/internal/models"
	appErrors "github.com/deptconnect/deptconnect-api/pkg/errors"
	"github.com/deptconnect/deptconnect-api/pkg/response"
	"github.com/deptconnect/deptconnect-api/pkg/storage"
)

// UploadHandler stores attachment files and serves them back through
// signed, expiring URLs.
type UploadHandler struct {
	storage      *storage.LocalStorage
	signer       *storage.SignedURLSigner
	maxSizeBytes int64
	allowedMIMEs map[string]struct{}
}

// NewUploadHandler creates a new handler.
func NewUploadHandler(store *storage.LocalStorage, signer *storage.SignedURLSigner, maxSizeBytes int64, allowedMIMEs []string) *UploadHandler {
	allowed := make(map[string]struct{}, len(allowedMIMEs))
	for _, m := range allowedMIMEs {
		allowed[strings.ToLower(strings.TrimSpace(m))] = struct{}{}
	}
	return &UploadHandler{storage: store, signer: signer, maxSizeBytes: maxSizeBytes, allowedMIMEs: allowed}
}

// Upload godoc
// @Summary Upload an attachment
// @Description Store a file and return a signed download URL
// @Tags Uploads
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "File to upload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 413 {object} response.Envelope
// @Security BearerAuth
// @Router /uploads [post]
func (h *UploadHandler) Upload(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "file field required"))
		return
	}
	if h.maxSizeBytes > 0 && fileHeader.Size > h.maxSizeBytes {
		response.Error(c, appErrors.New("FILE_TOO_LARGE", http.StatusRequestEntityTooLarge, fmt.Sprintf("file exceeds %d bytes", h.maxSizeBytes)))
		return
	}

	contentType := fileHeader.Header.Get("Content-Type")
	if mediaType, _, parseErr := mime.ParseMediaType(contentType); parseErr == nil {
		contentType = mediaType
	}
	if len(h.allowedMIMEs) > 0 {
		if _, ok := h.allowedMIMEs[strings.ToLower(contentType)]; !ok {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("content type %q not allowed", contentType)))
			return
		}
	}

	src, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read upload"))
		return
	}
	defer src.Close() //nolint:errcheck

	fileID := uuid.NewString()
	relPath := filepath.Join(claims.UserID, fileID+filepath.Ext(fileHeader.Filename))
	if _, err := h.storage.SaveStream(relPath, src); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store upload"))
		return
	}

	token, expiresAt, err := h.signer.Generate(fileID, relPath)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download url"))
		return
	}

	response.Created(c, gin.H{
		"attachment": models.Attachment{
			FileName: fileHeader.Filename,
			FileURL:  "/uploads/" + token,
		},
		"expires_at": expiresAt,
	})
}

// Download godoc
// @Summary Download an attachment
// @Description Stream a stored file addressed by its signed token
// @Tags Uploads
// @Produce octet-stream
// @Param token path string true "Signed download token"
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /uploads/{token} [get]
func (h *UploadHandler) Download(c *gin.Context) {
	_, relPath, expiresAt, err := h.signer.Parse(c.Param("token"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInvalidToken, "download link is invalid or expired"))
		return
	}
	if time.Now().After(expiresAt) {
		response.Error(c, appErrors.Clone(appErrors.ErrInvalidToken, "download link is invalid or expired"))
		return
	}

	file, err := h.storage.Open(relPath)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "file not found"))
		return
	}
	defer file.Close() //nolint:errcheck

	stat, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stat file"))
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(relPath)))
	c.DataFromReader(http.StatusOK, stat.Size(), "application/octet-stream", file, nil)
}
