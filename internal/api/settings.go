package api

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"agrimate/internal/models"
)

type sessionSummary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Timestamp    time.Time `json:"timestamp"`
	MessageCount int       `json:"message_count"`
}

func summarize(sessions []models.ChatSession) []sessionSummary {
	out := make([]sessionSummary, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, sessionSummary{ID: s.ID, Title: s.Title, Timestamp: s.Timestamp, MessageCount: len(s.Messages)})
	}
	return out
}

func (h *Handler) listHistory(c *gin.Context) {
	ws, ok := h.workspace(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": summarize(ws.History.Search(c.Query("q")))})
}

func (h *Handler) getHistory(c *gin.Context) {
	ws, ok := h.workspace(c)
	if !ok {
		return
	}
	s, found := ws.History.Get(c.Param("session_id"))
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *Handler) deleteHistory(c *gin.Context) {
	ws, ok := h.workspace(c)
	if !ok {
		return
	}
	found, err := ws.History.Delete(c.Request.Context(), c.Param("session_id"))
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	if err != nil {
		log.Printf("persist history for %s: %v", ws.Email, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save history failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) getPreferences(c *gin.Context) {
	ws, ok := h.workspace(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, ws.Preferences())
}

type preferencesRequest struct {
	Theme       *models.Theme    `json:"theme"`
	Language    *models.Language `json:"language"`
	SidebarOpen *bool            `json:"sidebar_open"`
}

func (h *Handler) updatePreferences(c *gin.Context) {
	_, ok := h.workspace(c)
	if !ok {
		return
	}
	var req preferencesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.Language != nil && !req.Language.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported language"})
		return
	}
	if req.Theme != nil && *req.Theme != models.ThemeLight && *req.Theme != models.ThemeDark {
		c.JSON(http.StatusBadRequest, gin.H{"error": "theme must be light or dark"})
		return
	}
	h.savePreferences(c, func(p *models.Preferences) {
		if req.Theme != nil {
			p.Theme = *req.Theme
		}
		if req.Language != nil {
			p.Language = *req.Language
		}
		if req.SidebarOpen != nil {
			p.SidebarOpen = *req.SidebarOpen
		}
	})
}

func (h *Handler) toggleTheme(c *gin.Context) {
	h.savePreferences(c, func(p *models.Preferences) { p.Theme = p.Theme.Toggle() })
}

func (h *Handler) toggleSidebar(c *gin.Context) {
	h.savePreferences(c, func(p *models.Preferences) { p.SidebarOpen = !p.SidebarOpen })
}

func (h *Handler) savePreferences(c *gin.Context, fn func(*models.Preferences)) {
	ws, ok := h.workspace(c)
	if !ok {
		return
	}
	prefs, err := ws.UpdatePreferences(c.Request.Context(), fn)
	if err != nil {
		log.Printf("persist preferences for %s: %v", ws.Email, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save preferences failed"})
		return
	}
	c.JSON(http.StatusOK, prefs)
}

func (h *Handler) listLanguages(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"languages": models.Languages})
}

// LifecycleStage is one step of the crop lifecycle overview.
type LifecycleStage struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

var lifecycle = []LifecycleStage{
	{Title: "Sowing", Description: "The process of planting seeds in the soil. Key factors include depth, spacing, and timing based on climate."},
	{Title: "Irrigation", Description: "Supplying water to crops at regular intervals. Essential for nutrient absorption and growth stability."},
	{Title: "Harvesting", Description: "Gathering mature crops from the fields. Requires precise timing to ensure maximum nutritional value."},
	{Title: "Storage", Description: "Protecting harvested crops from pests and moisture. Proper ventilation and temperature control are vital."},
}

func (h *Handler) listLifecycle(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"stages": lifecycle})
}
