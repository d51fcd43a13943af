package files

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"fileshare/internal/pkg/response"
)

const maxUploadFiles = 10

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	f := rg.Group("/files")
	{
		f.POST("/upload", h.Upload)
		f.GET("", h.ListOwn)
		f.GET("/shared", h.ListShared)
		f.GET("/download/:id", h.Download)
		f.DELETE("/:id", h.Delete)
	}
}

// Upload godoc
// @Summary Upload files
// @Description Upload up to 10 files; set compress=true to gzip them at rest.
// @Tags Files
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param files formData file true "Files to upload"
// @Param compress formData bool false "Store gzip-compressed"
// @Success 201 {object} map[string]interface{}
// @Failure 400,401,500 {object} map[string]interface{}
// @Router /files/upload [post]
func (h *Handler) Upload(c *gin.Context) {
	userID := c.GetInt64("user_id")

	form, err := c.MultipartForm()
	if err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid multipart form")
		return
	}

	parts := form.File["files"]
	if len(parts) == 0 {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "no files provided")
		return
	}
	if len(parts) > maxUploadFiles {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR",
			fmt.Sprintf("at most %d files per upload", maxUploadFiles))
		return
	}

	compress, _ := strconv.ParseBool(c.PostForm("compress"))

	uploaded := make([]FileResponse, 0, len(parts))
	for _, part := range parts {
		src, err := part.Open()
		if err != nil {
			response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "unreadable file part")
			return
		}

		mimeType := part.Header.Get("Content-Type")
		if mimeType == "" {
			mimeType = "application/octet-stream"
		}

		file, err := h.service.Upload(c.Request.Context(), userID, part.Filename, mimeType, src, compress)
		src.Close()
		if err != nil {
			response.Error(c, http.StatusInternalServerError, "STORAGE_FAILURE", "upload failed")
			return
		}
		uploaded = append(uploaded, ToFileResponse(file))
	}

	response.Success(c, http.StatusCreated, gin.H{"files": uploaded})
}

// ListOwn returns the caller's files, newest first.
func (h *Handler) ListOwn(c *gin.Context) {
	files, err := h.service.ListOwn(c.Request.Context(), c.GetInt64("user_id"))
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to list files")
		return
	}
	response.Success(c, http.StatusOK, ToFileListResponse(files))
}

// ListShared returns files other users have granted to the caller.
func (h *Handler) ListShared(c *gin.Context) {
	rows, err := h.service.ListSharedWith(c.Request.Context(), c.GetInt64("user_id"))
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to list shared files")
		return
	}
	response.Success(c, http.StatusOK, ToSharedFileListResponse(rows))
}

// Download godoc
// @Summary Download a file
// @Description Streams the original bytes; pass ?link=TOKEN to use a share link.
// @Tags Files
// @Produce octet-stream
// @Security BearerAuth
// @Param id path string true "File ID"
// @Param link query string false "Share link token"
// @Success 200 {file} binary
// @Failure 401,403,404 {object} map[string]interface{}
// @Router /files/download/{id} [get]
func (h *Handler) Download(c *gin.Context) {
	delivery, err := h.service.Download(
		c.Request.Context(),
		c.Param("id"),
		c.GetInt64("user_id"),
		c.Query("link"),
	)
	if err != nil {
		writeAccessError(c, err)
		return
	}
	defer delivery.Reader.Close()

	file := delivery.File
	extraHeaders := map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", file.OriginalName),
	}
	c.DataFromReader(http.StatusOK, file.Size, file.MimeType, delivery.Reader, extraHeaders)
}

func (h *Handler) Delete(c *gin.Context) {
	err := h.service.Delete(c.Request.Context(), c.Param("id"), c.GetInt64("user_id"))
	if err != nil {
		writeAccessError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"message": "file deleted successfully"})
}

func writeAccessError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrFileNotFound):
		response.Error(c, http.StatusNotFound, "NOT_FOUND", ErrFileNotFound.Error())
	case errors.Is(err, ErrLinkExpired):
		response.Error(c, http.StatusForbidden, "LINK_EXPIRED", ErrLinkExpired.Error())
	case errors.Is(err, ErrForbidden):
		response.Error(c, http.StatusForbidden, "FORBIDDEN", ErrForbidden.Error())
	default:
		response.Error(c, http.StatusInternalServerError, "STORAGE_FAILURE", "request failed")
	}
}
