package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// getStats handles GET /api/stats.
func (s *Server) getStats(c *gin.Context) {
	stats, err := s.repo.GetStats(c.Request.Context())
	if err != nil {
		s.logger.Error("failed to compute stats", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// resetDatabase handles POST /api/reset. It wipes all transactions, vendors
// and enrichment history.
func (s *Server) resetDatabase(c *gin.Context) {
	if err := s.repo.Reset(); err != nil {
		s.logger.Error("failed to reset database", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to reset database"})
		return
	}
	s.logger.Warn("database reset")
	c.JSON(http.StatusOK, gin.H{"status": "reset"})
}
