package transport

func (s *Server) routes() {
	s.engine.GET("/health", s.handleHealth)

	auth := s.engine.Group("/api/auth")
	auth.POST("/login", s.handleLogin)
	auth.POST("/create-user", s.handleCreateUser)
	auth.POST("/agents", s.handleCreateAgent)
	auth.GET("/agents", s.handleListAgents)
	auth.GET("/agents/:agent_id", s.handleGetAgent)
	auth.PUT("/agents/:agent_id", s.handleUpdateAgent)
	auth.DELETE("/agents/:agent_id", s.handleDeleteAgent)

	agents := s.engine.Group("/api/agents")
	agents.GET("/:agent_id/awareness", s.handleGetAwareness)
	agents.PUT("/:agent_id/awareness", s.handlePutAwareness)
	agents.GET("/:agent_id/social-network", s.handleListSocialEntities)
	agents.GET("/:agent_id/social-network/:user_id", s.handleGetSocialEntity)
	agents.GET("/:agent_id/social-network/search", s.handleSearchSocialEntities)
	agents.GET("/:agent_id/chat-history", s.handleChatHistory)
	agents.GET("/:agent_id/simple-chat-history", s.handleSimpleChatHistory)
	agents.GET("/:agent_id/mcps", s.handleListMCPUrls)
	agents.POST("/:agent_id/mcps", s.handleCreateMCPUrl)
	agents.PUT("/:agent_id/mcps/:mcp_id", s.handleUpdateMCPUrl)
	agents.DELETE("/:agent_id/mcps/:mcp_id", s.handleDeleteMCPUrl)
	agents.POST("/:agent_id/mcps/:mcp_id/validate", s.handleValidateMCPUrl)
	agents.POST("/:agent_id/mcps/validate-all", s.handleValidateAllMCPUrls)
	agents.GET("/:agent_id/rag-files", s.handleListRAGFiles)
	agents.POST("/:agent_id/rag-files", s.handleUploadRAGFile)
	agents.DELETE("/:agent_id/rag-files/:file_name", s.handleDeleteRAGFile)
	agents.GET("/:agent_id/files", s.handleListFiles)
	agents.GET("/:agent_id/files/content", s.handleReadFile)
	agents.POST("/:agent_id/files", s.handleWriteFile)
	agents.DELETE("/:agent_id/files", s.handleDeleteFile)

	jobs := s.engine.Group("/api/jobs")
	jobs.GET("", s.handleListJobs)
	jobs.GET("/:job_id", s.handleGetJob)
	jobs.PUT("/:job_id/cancel", s.handleCancelJob)
	jobs.POST("/complex", s.handleCreateComplexJob)

	inbox := s.engine.Group("/api/inbox")
	inbox.GET("", s.handleListInbox)
	inbox.PUT("/:message_id/read", s.handleMarkInboxRead)
	inbox.PUT("/read-all", s.handleMarkAllInboxRead)

	s.engine.GET("/ws/agent/run", s.handleAgentRunWS)
}
