package transport

import "github.com/gin-gonic/gin"

func (s *Server) handleHealth(c *gin.Context) {
	if err := s.deps.DB.Ping(c.Request.Context()); err != nil {
		c.JSON(503, gin.H{"status": "unhealthy", "error": err.Error()})
		return
	}
	c.JSON(200, gin.H{"status": "ok"})
}
