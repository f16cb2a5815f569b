package api

import (
	"context"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"agrimate/internal/auth"
	"agrimate/internal/persist"
	"agrimate/internal/service/ai"
	"agrimate/internal/worker"
)

// Assistant answers sends and reads replies aloud.
type Assistant interface {
	SendMessage(ctx context.Context, req ai.ReplyRequest) (string, error)
	GenerateSpeech(ctx context.Context, text string) (string, error)
}

type WorkerManager interface {
	Workspace(ctx context.Context, email string) *worker.Workspace
	UserState(email string) *persist.State
	Reset(ctx context.Context, email string) error
	SubmitImage(ws *worker.Workspace, msgID string) error
	SubmitVideo(ws *worker.Workspace, msgID string) error
}

// Handler wires HTTP routes to the assistant and the per-user workspaces.
type Handler struct {
	assistant Assistant
	auth      *auth.Service
	workers   WorkerManager
	mediaDir  string
}

// NewHandler constructs a Handler instance. Generated clips under mediaDir
// are served at ai.MediaRoute.
func NewHandler(assistant Assistant, authService *auth.Service, workers WorkerManager, mediaDir string) *Handler {
	return &Handler{
		assistant: assistant,
		auth:      authService,
		workers:   workers,
		mediaDir:  mediaDir,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	if h.mediaDir != "" {
		router.Static(strings.TrimSuffix(ai.MediaRoute, "/"), h.mediaDir)
	}
	api := router.Group("/api")
	api.POST("/login", h.login)
	api.GET("/languages", h.listLanguages)
	api.GET("/lifecycle", h.listLifecycle)

	authed := api.Group("")
	authed.Use(h.auth.Middleware(), h.auth.CSRFMiddleware())
	authed.POST("/logout", h.logout)
	authed.GET("/me", h.me)

	authed.GET("/chat", h.getChat)
	authed.POST("/chat/messages", h.sendMessage)
	authed.POST("/chat/new", h.newChat)
	authed.POST("/chat/load/:session_id", h.loadSession)
	authed.POST("/chat/attachments", h.uploadAttachments)
	authed.POST("/chat/recordings", h.uploadRecording)
	authed.DELETE("/chat/attachments", h.clearAttachments)
	authed.GET("/chat/share", h.shareChat)

	msg := authed.Group("/chat/messages/:msg_id")
	msg.POST("/bookmark", h.toggleBookmark)
	msg.PUT("/feedback", h.setFeedback)
	msg.POST("/speech", h.generateSpeech)
	msg.POST("/image", h.generateImage)
	msg.POST("/video", h.generateVideo)

	authed.GET("/history", h.listHistory)
	authed.GET("/history/:session_id", h.getHistory)
	authed.DELETE("/history/:session_id", h.deleteHistory)

	authed.GET("/preferences", h.getPreferences)
	authed.PUT("/preferences", h.updatePreferences)
	authed.POST("/preferences/theme/toggle", h.toggleTheme)
	authed.POST("/preferences/sidebar/toggle", h.toggleSidebar)
}

func (h *Handler) workspace(c *gin.Context) (*worker.Workspace, bool) {
	user, ok := auth.UserFromContext(c)
	if !ok || user.Email == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
		return nil, false
	}
	return h.workers.Workspace(c.Request.Context(), user.Email), true
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	SignUp   bool   `json:"sign_up"`
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	name := req.Name
	if !req.SignUp {
		name = ""
	}
	user, err := auth.Authenticate(req.Email, req.Password, name)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()
	state := h.workers.UserState(user.Email)
	if !req.SignUp {
		// returning users keep the name they signed up with
		if prev, _ := state.LoadUser(ctx); prev != nil && prev.Name != "" {
			user.Name = prev.Name
		}
	}
	if err := state.SaveUser(ctx, user); err != nil {
		log.Printf("save user %s: %v", user.Email, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save user failed"})
		return
	}
	authToken, err := h.auth.IssueToken(ctx, user)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "issue token failed"})
		return
	}
	csrfToken, err := h.auth.NewCSRFToken()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "issue token failed"})
		return
	}
	h.setAuthCookies(c, authToken, csrfToken)
	ws := h.workers.Workspace(ctx, user.Email)
	c.JSON(http.StatusOK, gin.H{
		"email":       user.Email,
		"name":        user.Name,
		"auth_token":  authToken,
		"csrf_token":  csrfToken,
		"preferences": ws.Preferences(),
	})
}

func (h *Handler) logout(c *gin.Context) {
	user, ok := auth.UserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
		return
	}
	ctx := c.Request.Context()
	if err := h.workers.Reset(ctx, user.Email); err != nil {
		log.Printf("archive on logout for %s: %v", user.Email, err)
	}
	if token, ok := auth.AuthTokenFromContext(c); ok {
		if err := h.auth.RevokeToken(ctx, token); err != nil {
			log.Printf("revoke token: %v", err)
		}
	}
	if err := h.workers.UserState(user.Email).ClearUser(ctx); err != nil {
		log.Printf("clear user %s: %v", user.Email, err)
	}
	h.clearAuthCookies(c)
	c.Status(http.StatusNoContent)
}

func (h *Handler) me(c *gin.Context) {
	user, ok := auth.UserFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *Handler) setAuthCookies(c *gin.Context, authToken, csrfToken string) {
	ttl := int(h.auth.TokenTTL().Seconds())
	if ttl <= 0 {
		ttl = 3600
	}
	secure := gin.Mode() == gin.ReleaseMode
	setCookie(c, &http.Cookie{
		Name:     h.auth.AuthCookieName(),
		Value:    authToken,
		MaxAge:   ttl,
		Path:     "/",
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	setCookie(c, &http.Cookie{
		Name:     h.auth.CSRFCookieName(),
		Value:    csrfToken,
		MaxAge:   ttl,
		Path:     "/",
		Secure:   secure,
		HttpOnly: false,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *Handler) clearAuthCookies(c *gin.Context) {
	for _, name := range []string{h.auth.AuthCookieName(), h.auth.CSRFCookieName()} {
		setCookie(c, &http.Cookie{
			Name:     name,
			Value:    "",
			MaxAge:   -1,
			Path:     "/",
			Secure:   gin.Mode() == gin.ReleaseMode,
			HttpOnly: name == h.auth.AuthCookieName(),
			SameSite: http.SameSiteStrictMode,
		})
	}
}

func setCookie(c *gin.Context, ck *http.Cookie) {
	if ck == nil {
		return
	}
	http.SetCookie(c.Writer, ck)
}
