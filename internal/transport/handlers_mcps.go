package transport

import (
	"context"

	"github.com/agentctx/platform/internal/entity"
	"github.com/agentctx/platform/internal/mcp"
	"github.com/gin-gonic/gin"
)

func (s *Server) handleListMCPUrls(c *gin.Context) {
	userID := c.Query("user_id")
	mcps, err := s.deps.MCPUrls.ForAgentUser(c.Request.Context(), c.Param("agent_id"), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(200, mcps)
}

type createMCPUrlRequest struct {
	UserID      string `json:"user_id" binding:"required"`
	Name        string `json:"name" binding:"required"`
	URL         string `json:"url" binding:"required"`
	Description string `json:"description"`
}

func (s *Server) handleCreateMCPUrl(c *gin.Context) {
	var req createMCPUrlRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}
	m, err := s.deps.MCPUrls.Create(c.Request.Context(), &entity.MCPUrl{
		AgentID:     c.Param("agent_id"),
		UserID:      req.UserID,
		Name:        req.Name,
		URL:         req.URL,
		Description: req.Description,
		IsEnabled:   true,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(201, m)
}

type updateMCPUrlRequest struct {
	Name        string `json:"name" binding:"required"`
	URL         string `json:"url" binding:"required"`
	Description string `json:"description"`
	IsEnabled   *bool  `json:"is_enabled"`
}

func (s *Server) handleUpdateMCPUrl(c *gin.Context) {
	var req updateMCPUrlRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}
	m, err := s.deps.MCPUrls.Get(c.Request.Context(), c.Param("mcp_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	m.Name = req.Name
	m.URL = req.URL
	m.Description = req.Description
	if req.IsEnabled != nil {
		m.IsEnabled = *req.IsEnabled
	}
	if err := s.deps.MCPUrls.Update(c.Request.Context(), m); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(200, m)
}

func (s *Server) handleDeleteMCPUrl(c *gin.Context) {
	if err := s.deps.MCPUrls.Delete(c.Request.Context(), c.Param("mcp_id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(204)
}

func (s *Server) handleValidateMCPUrl(c *gin.Context) {
	m, err := s.deps.MCPUrls.Get(c.Request.Context(), c.Param("mcp_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	status, lastErr := mcp.ValidateURL(c.Request.Context(), m.URL)
	if err := s.deps.MCPUrls.RecordHealth(c.Request.Context(), m.MCPID, status, lastErr); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(200, gin.H{"connection_status": status, "last_error": lastErr})
}

func (s *Server) handleValidateAllMCPUrls(c *gin.Context) {
	userID := c.Query("user_id")
	mcps, err := s.deps.MCPUrls.ForAgentUser(c.Request.Context(), c.Param("agent_id"), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	results := make([]gin.H, 0, len(mcps))
	for _, m := range mcps {
		status, lastErr := mcp.ValidateURL(c.Request.Context(), m.URL)
		_ = s.deps.MCPUrls.RecordHealth(c.Request.Context(), m.MCPID, status, lastErr)
		results = append(results, gin.H{"mcp_id": m.MCPID, "connection_status": status, "last_error": lastErr})
	}
	c.JSON(200, results)
}

func (s *Server) handleListRAGFiles(c *gin.Context) {
	store, err := s.deps.RAGStores.GetForAgent(c.Request.Context(), c.Param("agent_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if store == nil {
		c.JSON(200, gin.H{"files": []string{}})
		return
	}
	c.JSON(200, gin.H{"files": store.UploadedFiles})
}

type uploadRAGFileRequest struct {
	FileName string `json:"file_name" binding:"required"`
}

// handleUploadRAGFile ensures the agent's RAG store exists, records the
// file name via RecordUpload in a background goroutine, and replies 202
// "pending". No indexing against a remote file-search service is done
// and keywords are not updated here.
func (s *Server) handleUploadRAGFile(c *gin.Context) {
	agentID := c.Param("agent_id")
	var req uploadRAGFileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}
	if _, err := s.deps.RAGStores.EnsureForAgent(c.Request.Context(), agentID, "agent_"+agentID); err != nil {
		writeError(c, err)
		return
	}
	go func() {
		bgCtx := context.Background()
		_ = s.deps.RAGStores.RecordUpload(bgCtx, agentID, req.FileName)
	}()
	c.JSON(202, gin.H{"status": "pending", "file_name": req.FileName})
}

func (s *Server) handleDeleteRAGFile(c *gin.Context) {
	if err := s.deps.RAGStores.RemoveUpload(c.Request.Context(), c.Param("agent_id"), c.Param("file_name")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(204)
}
