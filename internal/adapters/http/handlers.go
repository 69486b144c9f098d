package http

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/roomchat/internal/app/orch"
	"github.com/dkeye/roomchat/internal/app/session"
	"github.com/dkeye/roomchat/internal/core"
	"github.com/dkeye/roomchat/internal/domain"
)

const profileNameKey = "name"

type handlers struct {
	orch           *orch.Orchestrator
	files          core.BlobReader
	health         Pinger
	maxUploadBytes int64
}

type NickRequest struct {
	Name string `json:"name"`
}

type NickResponse struct {
	Name string `json:"name"`
}

func sid(c *gin.Context) core.SessionID {
	return core.SessionID(c.GetString("client_token"))
}

func (h *handlers) getProfile(c *gin.Context) {
	h.restoreName(c)
	c.JSON(http.StatusOK, NickResponse{Name: h.orch.Registry.NameOf(sid(c))})
}

// setProfile stores the display name used when a websocket join omits one.
func (h *handlers) setProfile(c *gin.Context) {
	var req NickRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid name"})
		return
	}
	name, err := domain.CleanDisplayName(req.Name)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s := sessions.Default(c)
	s.Set(profileNameKey, name)
	if err := s.Save(); err != nil {
		log.Warn().Err(err).Str("module", "adapters.http").Msg("save cookie session")
	}
	h.orch.Registry.RememberName(sid(c), name)
	c.JSON(http.StatusOK, NickResponse{Name: name})
}

// restoreName copies the cookie-remembered name into the registry.
func (h *handlers) restoreName(c *gin.Context) {
	if h.orch.Registry.NameOf(sid(c)) != "" {
		return
	}
	if name, ok := sessions.Default(c).Get(profileNameKey).(string); ok && name != "" {
		h.orch.Registry.RememberName(sid(c), name)
	}
}

func (h *handlers) members(c *gin.Context) {
	code := domain.NormalizeRoomCode(c.Param("code"))
	if err := code.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	members, err := h.orch.Members(c.Request.Context(), code)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "store unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"room": code, "members": members})
}

// allowedUpload reports whether a content type may be attached to a room.
func allowedUpload(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return strings.HasPrefix(mediaType, "image/") ||
		strings.HasPrefix(mediaType, "video/") ||
		mediaType == "application/pdf"
}

// upload attaches a file to the caller's active room session.
func (h *handlers) upload(c *gin.Context) {
	sess, ok := h.orch.Session(sid(c))
	if !ok || sess.State() != session.Active {
		c.JSON(http.StatusConflict, gin.H{"error": "join a room first"})
		return
	}

	if h.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+1<<20)
	}
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file"})
		return
	}
	if h.maxUploadBytes > 0 && fh.Size > h.maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return
	}

	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable file"})
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable file"})
		return
	}

	contentType := fh.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}
	if !allowedUpload(contentType) {
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "only images, videos and PDFs can be shared"})
		return
	}

	msg, err := sess.SendFile(c.Request.Context(), session.File{Name: fh.Filename, Data: data})
	if err != nil {
		c.JSON(uploadStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func uploadStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUploadFailed):
		return http.StatusBadGateway
	default:
		return http.StatusServiceUnavailable
	}
}

func (h *handlers) serveFile(c *gin.Context) {
	name := strings.TrimPrefix(c.Param("path"), "/")
	data, err := h.files.Fetch(c.Request.Context(), name)
	if errors.Is(err, domain.ErrNotFound) {
		c.Status(http.StatusNotFound)
		return
	}
	if err != nil {
		log.Warn().Err(err).Str("module", "adapters.http").Str("file", name).Msg("fetch file")
		c.Status(http.StatusBadGateway)
		return
	}
	contentType := mime.TypeByExtension(path.Ext(name))
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	c.Header("Cache-Control", "private, max-age=86400")
	c.Data(http.StatusOK, contentType, data)
}

func (h *handlers) healthz(c *gin.Context) {
	if h.health != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.health.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
