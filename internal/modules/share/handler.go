package share

import (
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"fileshare/internal/pkg/response"
)

type Handler struct {
	service *Service
	baseURL string
}

func NewHandler(service *Service, baseURL string) *Handler {
	return &Handler{service: service, baseURL: baseURL}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	s := rg.Group("/share")
	{
		s.POST("/users", h.GrantUsers)
		s.POST("/link", h.GenerateLink)
		s.GET("/link/:token", h.ResolveLink)
		s.GET("/file/:fileId", h.Audit)
		s.DELETE("/revoke/:fileId/:userId", h.Revoke)
	}
}

// RegisterPublicRoutes mounts the link-gated preview endpoints, which take
// no Authorization header — the token is the credential.
func (h *Handler) RegisterPublicRoutes(r gin.IRouter) {
	r.GET("/shared/:token", h.PreviewPage)
	r.GET("/shared/pdf/:fileId", h.PreviewPDF)
}

// GrantUsers godoc
// @Summary Share a file with specific users
// @Tags Share
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body GrantRequest true "Grant request"
// @Success 200 {object} map[string]interface{}
// @Failure 400,401,403,404 {object} map[string]interface{}
// @Router /share/users [post]
func (h *Handler) GrantUsers(c *gin.Context) {
	var req GrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	share, err := h.service.GrantUsers(c.Request.Context(), c.GetInt64("user_id"), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{
		"message": "file shared successfully",
		"share":   ToShareSummaryResponse(share),
	})
}

// GenerateLink godoc
// @Summary Generate or reuse a public share link
// @Tags Share
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body LinkRequest true "Link request"
// @Success 200 {object} LinkResponse
// @Failure 400,401,403,404 {object} map[string]interface{}
// @Router /share/link [post]
func (h *Handler) GenerateLink(c *gin.Context) {
	var req LinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	share, token, err := h.service.IssueLink(c.Request.Context(), c.GetInt64("user_id"), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, LinkResponse{
		Token:  token,
		URL:    fmt.Sprintf("%s/shared/%s", h.baseURL, token),
		Expiry: share.LinkExpiry,
	})
}

// ResolveLink returns file metadata for a link token and records a view.
func (h *Handler) ResolveLink(c *gin.Context) {
	share, file, owner, err := h.service.ResolveLink(c.Request.Context(), c.GetInt64("user_id"), c.Param("token"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, LinkMetadataResponse{
		File:   toFileMetadata(file),
		Owner:  toGranteeResponse(owner),
		Expiry: share.LinkExpiry,
	})
}

// Audit returns the share state and access log of an owned file.
func (h *Handler) Audit(c *gin.Context) {
	audit, err := h.service.Audit(c.Request.Context(), c.GetInt64("user_id"), c.Param("fileId"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if audit == nil {
		response.Success(c, http.StatusOK, gin.H{"message": "file not shared yet"})
		return
	}
	response.Success(c, http.StatusOK, audit)
}

func (h *Handler) Revoke(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("userId"), 10, 64)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid user id")
		return
	}

	err = h.service.Revoke(c.Request.Context(), c.GetInt64("user_id"), c.Param("fileId"), userID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"message": "access revoked successfully"})
}

var previewPageTmpl = template.Must(template.New("preview").Parse(`<!DOCTYPE html>
<html>
  <head>
    <title>Shared PDF: {{.Name}}</title>
    <style>
      body { margin: 0; background: #2a2a2a; }
      .pdf-viewer {
        width: 100vw;
        height: 100vh;
        display: flex;
        justify-content: center;
        align-items: center;
      }
      embed {
        border: 2px solid #444;
        border-radius: 8px;
      }
    </style>
  </head>
  <body>
    <div class="pdf-viewer">
      <embed src="/shared/pdf/{{.FileID}}" type="application/pdf" width="80%" height="90%" />
    </div>
  </body>
</html>
`))

// PreviewPage serves the link-gated HTML wrapper embedding the shared PDF.
func (h *Handler) PreviewPage(c *gin.Context) {
	file, err := h.service.PreviewFile(c.Request.Context(), c.Param("token"))
	if err != nil {
		h.writePreviewError(c, err)
		return
	}

	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(http.StatusOK)
	previewPageTmpl.Execute(c.Writer, gin.H{
		"Name":   file.OriginalName,
		"FileID": file.ID,
	})
}

// PreviewPDF serves the decompressed bytes of a shared PDF.
func (h *Handler) PreviewPDF(c *gin.Context) {
	path, _, err := h.service.PreviewPDFPath(c.Request.Context(), c.Param("fileId"))
	if err != nil {
		h.writePreviewError(c, err)
		return
	}

	c.Header("Content-Type", "application/pdf")
	c.File(path)
}

func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrFileNotFound):
		response.Error(c, http.StatusNotFound, "NOT_FOUND", ErrFileNotFound.Error())
	case errors.Is(err, ErrShareNotFound):
		response.Error(c, http.StatusNotFound, "NOT_FOUND", ErrShareNotFound.Error())
	case errors.Is(err, ErrLinkExpired):
		response.Error(c, http.StatusForbidden, "LINK_EXPIRED", ErrLinkExpired.Error())
	case errors.Is(err, ErrForbidden):
		response.Error(c, http.StatusForbidden, "FORBIDDEN", ErrForbidden.Error())
	default:
		response.Error(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "request failed")
	}
}

// writePreviewError renders plain text for the public pages, which have no
// JSON-speaking client behind them.
func (h *Handler) writePreviewError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrShareNotFound), errors.Is(err, ErrFileNotFound):
		c.String(http.StatusNotFound, "Link not found")
	case errors.Is(err, ErrLinkExpired):
		c.String(http.StatusForbidden, "Link expired")
	case errors.Is(err, ErrUnsupportedPreview):
		c.String(http.StatusBadRequest, "Only PDF files can be previewed at this link.")
	default:
		c.String(http.StatusInternalServerError, "Internal server error")
	}
}
