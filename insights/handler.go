package insights

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/NethermindEth/chaosfeed/ai"
	"github.com/NethermindEth/chaosfeed/core"
)

type Handler struct {
	store     *core.Store
	extractor *Extractor
}

func NewHandler(store *core.Store, extractor *Extractor) *Handler {
	return &Handler{store: store, extractor: extractor}
}

// GetInsights returns feed statistics
func (h *Handler) GetInsights(c *gin.Context) {
	c.JSON(http.StatusOK, Summarize(h.store.Snapshot()))
}

// GetDiscussionAnalysis returns a model-written analysis of the discussion
func (h *Handler) GetDiscussionAnalysis(c *gin.Context) {
	if h.extractor == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Extractor not initialized"})
		return
	}

	analysis, err := h.extractor.AnalyzeDiscussion(c.Request.Context(), h.store.Snapshot())
	switch {
	case errors.Is(err, ErrEmptyFeed):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case errors.Is(err, ai.ErrMissingCredential), errors.Is(err, ai.ErrUnauthorized):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, analysis)
}
