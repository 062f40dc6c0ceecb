package transport

import (
	"github.com/agentctx/platform/internal/errs"
	"github.com/gin-gonic/gin"
)

// fileScope reads the two-part (agent,user) scope every workspace
// endpoint needs, rejecting a missing user_id up front.
func fileScope(c *gin.Context) (agentID, userID string, ok bool) {
	agentID = c.Param("agent_id")
	userID = c.Query("user_id")
	if userID == "" {
		writeError(c, errs.Validation("transport: user_id is required"))
		return "", "", false
	}
	return agentID, userID, true
}

func (s *Server) handleListFiles(c *gin.Context) {
	agentID, userID, ok := fileScope(c)
	if !ok {
		return
	}
	files, err := s.deps.Workspace.List(agentID, userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(200, files)
}

func (s *Server) handleReadFile(c *gin.Context) {
	agentID, userID, ok := fileScope(c)
	if !ok {
		return
	}
	path := c.Query("path")
	content, err := s.deps.Workspace.Read(agentID, userID, path)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Data(200, "application/octet-stream", content)
}

type writeFileRequest struct {
	Path    string `json:"path" binding:"required"`
	Content string `json:"content"`
}

func (s *Server) handleWriteFile(c *gin.Context) {
	agentID, userID, ok := fileScope(c)
	if !ok {
		return
	}
	var req writeFileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}
	if err := s.deps.Workspace.Write(agentID, userID, req.Path, []byte(req.Content)); err != nil {
		writeError(c, err)
		return
	}
	c.Status(204)
}

func (s *Server) handleDeleteFile(c *gin.Context) {
	agentID, userID, ok := fileScope(c)
	if !ok {
		return
	}
	path := c.Query("path")
	if err := s.deps.Workspace.Delete(agentID, userID, path); err != nil {
		writeError(c, err)
		return
	}
	c.Status(204)
}
