package transport

import (
	"github.com/agentctx/platform/internal/entity"
	"github.com/agentctx/platform/internal/errs"
	"github.com/gin-gonic/gin"
)

type loginRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

// handleLogin is an existence check only: the platform has no
// password scheme of its own, it defers that to whatever edge proxy sits
// in front of it.
func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}
	user, err := s.deps.Users.Get(c.Request.Context(), req.UserID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(200, user)
}

type createUserRequest struct {
	AdminSecret string `json:"admin_secret" binding:"required"`
	UserID      string `json:"user_id" binding:"required"`
	DisplayName string `json:"display_name"`
	Timezone    string `json:"timezone"`
}

func (s *Server) handleCreateUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}
	if s.cfg.AdminSecretKey == "" || req.AdminSecret != s.cfg.AdminSecretKey {
		writeError(c, errs.Unauthorized("transport: invalid admin secret"))
		return
	}
	user, err := s.deps.Users.Create(c.Request.Context(), &entity.User{
		UserID:      req.UserID,
		DisplayName: req.DisplayName,
		Timezone:    req.Timezone,
		Type:        "human",
		Status:      "active",
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(201, user)
}

type createAgentRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	CreatedBy   string `json:"created_by" binding:"required"`
	IsPublic    bool   `json:"is_public"`
}

func (s *Server) handleCreateAgent(c *gin.Context) {
	var req createAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}
	agent, err := s.deps.Agents.Create(c.Request.Context(), &entity.Agent{
		Name:        req.Name,
		Description: req.Description,
		CreatedBy:   req.CreatedBy,
		IsPublic:    req.IsPublic,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(201, agent)
}

func (s *Server) handleListAgents(c *gin.Context) {
	viewer := c.Query("user_id")
	agents, err := s.deps.Agents.VisibleTo(c.Request.Context(), viewer)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(200, agents)
}

func (s *Server) handleGetAgent(c *gin.Context) {
	agent, err := s.deps.Agents.Get(c.Request.Context(), c.Param("agent_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(200, agent)
}

type updateAgentRequest struct {
	UserID      string `json:"user_id" binding:"required"`
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	IsPublic    bool   `json:"is_public"`
}

// handleUpdateAgent edits an agent's metadata. Creator-only: a
// non-creator caller is rejected, not elevated.
func (s *Server) handleUpdateAgent(c *gin.Context) {
	var req updateAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}
	agent, err := s.deps.Agents.Get(c.Request.Context(), c.Param("agent_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if agent.CreatedBy != req.UserID {
		writeError(c, errs.Unauthorized("transport: only the creator may edit an agent"))
		return
	}
	agent.Name = req.Name
	agent.Description = req.Description
	agent.IsPublic = req.IsPublic
	if err := s.deps.Agents.Update(c.Request.Context(), agent); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(200, agent)
}

// handleDeleteAgent runs the full leaf-first cascade delete.
func (s *Server) handleDeleteAgent(c *gin.Context) {
	if err := entity.CascadeDeleteAgent(c.Request.Context(), s.deps.DB, c.Param("agent_id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(204)
}

// writeError maps an errs.Category to its HTTP status.
func writeError(c *gin.Context, err error) {
	status := 500
	var category errs.Category
	var e *errs.Error
	if as, ok := err.(*errs.Error); ok {
		e = as
		category = e.Category
	}
	switch category {
	case errs.CategoryValidation:
		status = 400
	case errs.CategoryNotFound:
		status = 404
	case errs.CategoryUnauthorized:
		status = 401
	case errs.CategoryConflict:
		status = 409
	case errs.CategoryTransient:
		status = 503
	case errs.CategoryConcurrency:
		status = 409
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
