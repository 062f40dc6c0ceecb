package transport

import (
	"strconv"

	"github.com/agentctx/platform/internal/embedding"
	"github.com/agentctx/platform/internal/entity"
	"github.com/agentctx/platform/internal/errs"
	"github.com/gin-gonic/gin"
)

// findOrCreateAwarenessInstance locates agentID's public AwarenessModule
// instance, autocreating one on first access.
func (s *Server) findOrCreateAwarenessInstance(c *gin.Context, agentID string) (*entity.ModuleInstance, error) {
	public, err := s.deps.Instances.PublicForAgent(c.Request.Context(), agentID)
	if err != nil {
		return nil, err
	}
	for _, inst := range public {
		if inst.ModuleClass == entity.ModuleAwareness {
			return inst, nil
		}
	}
	return s.deps.Instances.Create(c.Request.Context(), &entity.ModuleInstance{
		ModuleClass: entity.ModuleAwareness,
		AgentID:     agentID,
		IsPublic:    true,
		Status:      entity.InstanceActive,
		Description: "agent awareness",
	})
}

func (s *Server) handleGetAwareness(c *gin.Context) {
	inst, err := s.findOrCreateAwarenessInstance(c, c.Param("agent_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	text, err := s.deps.Awareness.GetForInstance(c.Request.Context(), inst.InstanceID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(200, gin.H{"awareness": text})
}

type putAwarenessRequest struct {
	Awareness string `json:"awareness"`
}

func (s *Server) handlePutAwareness(c *gin.Context) {
	inst, err := s.findOrCreateAwarenessInstance(c, c.Param("agent_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	var req putAwarenessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}
	if err := s.deps.Awareness.Put(c.Request.Context(), inst.InstanceID, req.Awareness); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(200, gin.H{"awareness": req.Awareness})
}

// socialNetworkInstanceID resolves agentID's one public SocialNetworkModule
// instance, scope every SocialEntity row lives under.
func (s *Server) socialNetworkInstanceID(c *gin.Context, agentID string) (string, error) {
	public, err := s.deps.Instances.PublicForAgent(c.Request.Context(), agentID)
	if err != nil {
		return "", err
	}
	for _, inst := range public {
		if inst.ModuleClass == entity.ModuleSocialNetwork {
			return inst.InstanceID, nil
		}
	}
	return "", errs.NotFound("social network instance")
}

func (s *Server) handleListSocialEntities(c *gin.Context) {
	instanceID, err := s.socialNetworkInstanceID(c, c.Param("agent_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	entities, err := s.deps.Social.ForInstance(c.Request.Context(), instanceID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(200, entities)
}

func (s *Server) handleGetSocialEntity(c *gin.Context) {
	instanceID, err := s.socialNetworkInstanceID(c, c.Param("agent_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	entities, err := s.deps.Social.ForInstance(c.Request.Context(), instanceID)
	if err != nil {
		writeError(c, err)
		return
	}
	userID := c.Param("user_id")
	for _, e := range entities {
		if e.EntityID == userID || e.EntityName == userID {
			c.JSON(200, e)
			return
		}
	}
	writeError(c, errs.NotFound("social entity"))
}

func (s *Server) handleSearchSocialEntities(c *gin.Context) {
	instanceID, err := s.socialNetworkInstanceID(c, c.Param("agent_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	query := c.Query("q")
	limit := 10
	if l, err := strconv.Atoi(c.Query("limit")); err == nil && l > 0 {
		limit = l
	}
	vec, err := embedding.NewHashing().Embed(c.Request.Context(), query)
	if err != nil {
		writeError(c, errs.Internal("transport: embed query failed", err))
		return
	}
	entities, err := s.deps.Social.SemanticSearch(c.Request.Context(), instanceID, vec, limit, 0)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(200, entities)
}

// handleChatHistory joins narratives/links/events for a user on agentID.
func (s *Server) handleChatHistory(c *gin.Context) {
	agentID := c.Param("agent_id")
	userID := c.Query("user_id")
	if userID == "" {
		writeError(c, errs.Validation("transport: user_id is required"))
		return
	}
	narrative, err := s.deps.Narratives.FindByActors(c.Request.Context(), agentID, userID)
	if err != nil {
		writeError(c, err)
		return
	}
	if narrative == nil {
		c.JSON(200, gin.H{"narrative": nil, "events": []any{}})
		return
	}
	events, err := s.deps.Events.ForNarrative(c.Request.Context(), narrative.NarrativeID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(200, gin.H{"narrative": narrative, "events": events})
}

// handleSimpleChatHistory returns the short-term-memory source: every
// message across a user's chat instances.
func (s *Server) handleSimpleChatHistory(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		writeError(c, errs.Validation("transport: user_id is required"))
		return
	}
	instances, err := s.deps.Instances.ChatInstancesOfUser(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	type entry struct {
		InstanceID string `json:"instance_id"`
		Role       string `json:"role"`
		Content    string `json:"content"`
	}
	var feed []entry
	for _, inst := range instances {
		raw, ok := inst.State["memory"]
		if !ok {
			continue
		}
		items, ok := raw.([]any)
		if !ok {
			continue
		}
		for _, item := range items {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			role, _ := m["role"].(string)
			content, _ := m["content"].(string)
			feed = append(feed, entry{InstanceID: inst.InstanceID, Role: role, Content: content})
		}
	}
	c.JSON(200, feed)
}
