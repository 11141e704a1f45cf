package handlers

import (
	"net/http"

	"github.com/cvlogg/musicgrabber2/internal/config"
	"github.com/cvlogg/musicgrabber2/internal/search"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SearchHandler fans a query out to the enabled source adapters.
type SearchHandler struct {
	cfg        *config.Config
	aggregator *search.Aggregator
	logger     *zap.Logger
}

func NewSearchHandler(cfg *config.Config, aggregator *search.Aggregator, logger *zap.Logger) *SearchHandler {
	return &SearchHandler{
		cfg:        cfg,
		aggregator: aggregator,
		logger:     logger,
	}
}

type SearchRequest struct {
	Query   string   `json:"query" binding:"required"`
	Sources []string `json:"sources"`
	Limit   int      `json:"limit"`
}

// Search returns ranked candidates. Partial source failures come back in
// the errors map next to whatever the healthy sources found.
func (h *SearchHandler) Search(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	limit := req.Limit
	if limit <= 0 || limit > 50 {
		limit = h.cfg.Aggregator.DefaultLimit
	}

	var sources []search.SourceTag
	for _, s := range req.Sources {
		sources = append(sources, search.SourceTag(s))
	}

	candidates, errs := h.aggregator.Search(c.Request.Context(), req.Query, sources, limit)

	sourceErrors := make(map[string]string, len(errs))
	for tag, err := range errs {
		sourceErrors[string(tag)] = err.Error()
	}

	if len(candidates) == 0 && len(errs) > 0 {
		c.JSON(http.StatusBadGateway, gin.H{
			"results": []search.Candidate{},
			"errors":  sourceErrors,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"results": candidates,
		"count":   len(candidates),
		"errors":  sourceErrors,
	})
}
