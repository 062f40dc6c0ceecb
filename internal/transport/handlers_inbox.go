package transport

import (
	"github.com/agentctx/platform/internal/errs"
	"github.com/gin-gonic/gin"
)

func (s *Server) handleListInbox(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		writeError(c, errs.Validation("transport: user_id is required"))
		return
	}
	unreadOnly := c.Query("unread_only") == "true"
	messages, err := s.deps.Inbox.ForUser(c.Request.Context(), userID, unreadOnly)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(200, messages)
}

func (s *Server) handleMarkInboxRead(c *gin.Context) {
	if err := s.deps.Inbox.MarkRead(c.Request.Context(), c.Param("message_id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(204)
}

func (s *Server) handleMarkAllInboxRead(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		writeError(c, errs.Validation("transport: user_id is required"))
		return
	}
	n, err := s.deps.Inbox.MarkAllRead(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(200, gin.H{"marked": n})
}
