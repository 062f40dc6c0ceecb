// Package entity defines the platform's data model and the
// typed EntityRepo family of accessors built on top of store.Store.
package entity

import "time"

// ModuleClass identifies the capability a ModuleInstance instantiates.
type ModuleClass string

const (
	ModuleChat          ModuleClass = "ChatModule"
	ModuleJob           ModuleClass = "JobModule"
	ModuleAwareness     ModuleClass = "AwarenessModule"
	ModuleSocialNetwork ModuleClass = "SocialNetworkModule"
	ModuleBasicInfo     ModuleClass = "BasicInfoModule"
	ModuleGeminiRAG     ModuleClass = "GeminiRAGModule"
	ModuleSkill         ModuleClass = "SkillModule"
)

// InstanceStatus is the ModuleInstance lifecycle.
type InstanceStatus string

const (
	InstanceActive     InstanceStatus = "active"
	InstanceInProgress InstanceStatus = "in_progress"
	InstanceBlocked    InstanceStatus = "blocked"
	InstanceCompleted  InstanceStatus = "completed"
	InstanceFailed     InstanceStatus = "failed"
	InstanceCancelled  InstanceStatus = "cancelled"
	InstanceArchived   InstanceStatus = "archived"
)

// TerminalInstanceStatuses is the terminal set used by the dependency
// resolver to decide when a blocked instance may unblock.
var TerminalInstanceStatuses = map[InstanceStatus]bool{
	InstanceCompleted: true,
	InstanceFailed:    true,
	InstanceCancelled: true,
}

// JobType is the Job.job_type enum.
type JobType string

const (
	JobOneOff    JobType = "one_off"
	JobScheduled JobType = "scheduled"
	JobOngoing   JobType = "ongoing"
)

// JobStatus is the Job.status enum.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobActive    JobStatus = "active"
	JobRunning   JobStatus = "running"
	JobPaused    JobStatus = "paused"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// TerminalJobStatuses are the terminal states for a Job.
var TerminalJobStatuses = map[JobStatus]bool{
	JobCompleted: true,
	JobFailed:    true,
	JobCancelled: true,
}

// NotificationMethod is how a job's result is surfaced to its requester.
type NotificationMethod string

const (
	NotifyInbox NotificationMethod = "inbox"
)

// ActorType is a Narrative actor's role.
type ActorType string

const (
	ActorUser        ActorType = "user"
	ActorAgent       ActorType = "agent"
	ActorParticipant ActorType = "participant"
)

// LinkType is the instance-narrative link kind.
type LinkType string

const (
	LinkActive     LinkType = "active"
	LinkHistorical LinkType = "historical"
)

// WorkingSource identifies the trigger channel of an agent turn.
type WorkingSource string

const (
	SourceChat WorkingSource = "chat"
	SourceJob  WorkingSource = "job"
	SourceA2A  WorkingSource = "a2a"
)

// MessageType / SourceType close the Inbox enums.
type MessageType string

const (
	MessageAgentMessage MessageType = "agent_message"
	MessageJobResult    MessageType = "job_result"
)

type SourceType string

const (
	SourceTypeAgent SourceType = "agent"
	SourceTypeJob   SourceType = "job"
)

// ConnectionStatus is the MCPUrl health state.
type ConnectionStatus string

const (
	ConnectionUnknown   ConnectionStatus = "unknown"
	ConnectionConnected ConnectionStatus = "connected"
	ConnectionFailed    ConnectionStatus = "failed"
)

// Agent is the logical autonomous actor.
type Agent struct {
	AgentID     string
	Name        string
	Description string
	CreatedBy   string // user_id
	IsPublic    bool
	CreatedAt   time.Time
}

// User is a human or synthetic participant.
type User struct {
	UserID      string
	Type        string
	DisplayName string
	Timezone    string // IANA; defaults to "UTC"
	Status      string
	LastLoginAt *time.Time
}

// Actor is one entry of Narrative.narrative_info.actors.
type Actor struct {
	ID   string    `json:"id"`
	Type ActorType `json:"type"`
}

// NarrativeInfo is the Narrative's JSON payload.
type NarrativeInfo struct {
	Name           string  `json:"name"`
	Description    string  `json:"description"`
	CurrentSummary string  `json:"current_summary"`
	Actors         []Actor `json:"actors"`
}

// Narrative is the conversational container shared by all instances
// linked to it.
type Narrative struct {
	NarrativeID   string
	AgentID       string
	NarrativeInfo NarrativeInfo
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// EventLogEntryKind tags the sum-type variants of Event.event_log.
type EventLogEntryKind string

const (
	EventLogToolCall EventLogEntryKind = "tool_call"
	EventLogThinking EventLogEntryKind = "thinking"
	EventLogProgress EventLogEntryKind = "progress"
	EventLogDelta    EventLogEntryKind = "agent_delta"
	EventLogError    EventLogEntryKind = "error"
	EventLogComplete EventLogEntryKind = "complete"
)

// EventLogEntry is one ordered entry of Event.event_log.
type EventLogEntry struct {
	Kind      EventLogEntryKind `json:"kind"`
	Timestamp time.Time         `json:"timestamp"`
	ToolName  string            `json:"tool_name,omitempty"`
	Arguments map[string]any    `json:"arguments,omitempty"`
	Output    string            `json:"output,omitempty"`
	Text      string            `json:"text,omitempty"`
	Error     string            `json:"error,omitempty"`
}

// Event is one agent turn.
type Event struct {
	EventID       string
	NarrativeID   string
	AgentID       string
	UserID        string
	Trigger       string
	TriggerSource string
	FinalOutput   string
	EventLog      []EventLogEntry
	CreatedAt     time.Time
}

// ModuleInstance is the central scheduling/dependency/memory unit.
type ModuleInstance struct {
	InstanceID        string
	ModuleClass       ModuleClass
	AgentID           string
	UserID            *string
	IsPublic          bool
	Status            InstanceStatus
	Description       string
	Dependencies      []string
	Config            map[string]any
	State             map[string]any
	Keywords          []string
	TopicHint         string
	RoutingEmbedding  []float32
	LastPolledStatus  InstanceStatus
	CallbackProcessed bool
	CreatedAt         time.Time
	LastUsedAt        time.Time
	CompletedAt       *time.Time
}

// TriggerConfig is the typed form of Job's trigger_config payload; the
// populated fields depend on job_type.
type TriggerConfig struct {
	RunAt           *time.Time `json:"run_at,omitempty"`
	Cron            string     `json:"cron,omitempty"`
	IntervalSeconds int        `json:"interval_seconds,omitempty"`
	EndCondition    string     `json:"end_condition,omitempty"`
	MaxIterations   int        `json:"max_iterations,omitempty"`
}

// Job is the background task record bound 1:1 to a JobModule instance.
type Job struct {
	JobID              string
	InstanceID         string
	AgentID            string
	UserID             string
	JobType            JobType
	Title              string
	Description        string
	Payload            string
	TriggerConfig      TriggerConfig
	Status             JobStatus
	Process            []string
	LastRunTime        *time.Time
	NextRunTime        *time.Time
	LastError          string
	IterationCount     int
	RelatedEntityID    string
	NarrativeID        string
	MonitoredJobIDs    []string
	NotificationMethod NotificationMethod
	Embedding          []float32
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// EffectiveUserID is the identity a job executes as: the related entity
// if one is set, otherwise the creator.
func (j *Job) EffectiveUserID() string {
	if j.RelatedEntityID != "" {
		return j.RelatedEntityID
	}
	return j.UserID
}

// InstanceLink materializes the many-to-many between non-public
// instances and narratives.
type InstanceLink struct {
	InstanceID  string
	NarrativeID string
	LinkType    LinkType
}

// InboxMessage is an append-only, one-way-read notification.
type InboxMessage struct {
	MessageID   string
	UserID      string
	Title       string
	Content     string
	MessageType MessageType
	SourceType  SourceType
	SourceID    string
	EventID     string
	IsRead      bool
	CreatedAt   time.Time
}

// AgentMessage is the agent-to-agent analogue of InboxMessage.
type AgentMessage struct {
	MessageID  string
	AgentID    string
	Title      string
	Content    string
	SourceType SourceType
	SourceID   string
	EventID    string
	IsResponse bool
	CreatedAt  time.Time
}

// SocialEntity is scoped to a SocialNetworkModule instance.
type SocialEntity struct {
	EntityID             string
	InstanceID           string
	EntityName           string
	EntityDescription    string
	EntityType           string
	IdentityInfo         map[string]any
	ContactInfo          map[string]any
	Tags                 []string
	RelationshipStrength float64
	InteractionCount     int
	LastInteractionTime  *time.Time
	Persona              string
	RelatedJobIDs        []string
	ExpertiseDomains     []string
	Embedding            []float32
}

// MCPUrl is a per-(agent,user) named remote tool endpoint.
type MCPUrl struct {
	MCPID            string
	AgentID          string
	UserID           string
	Name             string
	URL              string
	Description      string
	IsEnabled        bool
	ConnectionStatus ConnectionStatus
	LastCheckTime    *time.Time
	LastError        string
}

// KeywordScore is one entry of RAGStore.keywords.
type KeywordScore struct {
	Keyword string  `json:"keyword"`
	Score   float64 `json:"score"`
}

// RAGStore is the one-per-agent remote file-search store binding.
type RAGStore struct {
	DisplayName   string // unique; "agent_{agent_id}"
	StoreName     string
	Keywords      []KeywordScore
	FileCount     int
	UploadedFiles []string
}
