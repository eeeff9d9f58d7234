// Package memory implements the multi-tier memory fabric: working, episodic,
// semantic (preferences + knowledge cache), procedural, shared handoffs,
// discovery records, and episodic summaries.
package memory

import "time"

// Working memory keys.
const (
	WorkingCurrentProject = "current_project"
	WorkingCurrentTask    = "current_task"
	WorkingLastAction     = "last_action"
)

// Rule types for procedural memory.
const (
	RuleTypeRule     = "rule"
	RuleTypeTemplate = "template"
)

// WorkingEntry is one session-scoped scratchpad value.
type WorkingEntry struct {
	SessionID string    `json:"session_id"`
	Type      string    `json:"type"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// EpisodicEvent is one durable action record, optionally embedded.
type EpisodicEvent struct {
	ID          string            `json:"id"`
	UserID      string            `json:"user_id"`
	Action      string            `json:"action"`
	Description string            `json:"description"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// EpisodicFilter narrows ListEpisodic.
type EpisodicFilter struct {
	Since      time.Time
	Until      time.Time
	ActionType string
	Limit      int
}

// PreferenceRecord is one semantic user preference.
type PreferenceRecord struct {
	UserID     string    `json:"user_id"`
	Key        string    `json:"key"`
	Value      string    `json:"value"`
	Source     string    `json:"source"`
	Confidence float64   `json:"confidence"`
	TimesUsed  int       `json:"times_used"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TemplatePhase is one ordered phase in a workflow template.
type TemplatePhase struct {
	Name  string   `json:"name"`
	Tasks []string `json:"tasks"`
}

// ProceduralRule is a trigger-action rule or a multi-phase workflow template.
type ProceduralRule struct {
	UserID            string          `json:"user_id"`
	Trigger           string          `json:"trigger"`
	NormalizedTrigger string          `json:"normalized_trigger"`
	RuleType          string          `json:"rule_type"` // rule | template
	Action            string          `json:"action"`
	Params            map[string]any  `json:"params,omitempty"`
	Phases            []TemplatePhase `json:"phases,omitempty"`
	Source            string          `json:"source"`
	Confidence        float64         `json:"confidence"`
	TimesUsed         int             `json:"times_used"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// SharedHandoff is a short-lived inter-agent mailbox entry.
type SharedHandoff struct {
	ID        string         `json:"id"`
	SessionID string         `json:"session_id"`
	FromAgent string         `json:"from_agent"`
	ToAgent   string         `json:"to_agent"`
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload"`
	CreatedAt time.Time      `json:"created_at"`
	ExpiresAt time.Time      `json:"expires_at"`
}

// KnowledgeEntry caches an external fetch with its summary.
type KnowledgeEntry struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	Query         string    `json:"query"`
	Results       string    `json:"results"`
	Summary       string    `json:"summary,omitempty"`
	Source        string    `json:"source"`
	TimesAccessed int       `json:"times_accessed"`
	CreatedAt     time.Time `json:"created_at"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// KnowledgeHit pairs a cache entry with its similarity to the query.
type KnowledgeHit struct {
	Entry      KnowledgeEntry `json:"entry"`
	Similarity float64        `json:"similarity"`
}

// Solution is the recorded plan of a successful discovery.
type Solution struct {
	Server    string         `json:"server"`
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments"`
}

// DiscoveryRecord captures one external capability discovery.
type DiscoveryRecord struct {
	ID        string        `json:"id"`
	UserID    string        `json:"user_id"`
	Request   string        `json:"request"`
	Solution  Solution      `json:"solution"`
	Success   bool          `json:"success"`
	Elapsed   time.Duration `json:"elapsed"`
	TimesUsed int           `json:"times_used"`
	Promoted  bool          `json:"promoted"`
	CreatedAt time.Time     `json:"created_at"`
}

// EpisodicSummary is a periodic LLM-generated digest for one entity.
type EpisodicSummary struct {
	EntityType    string    `json:"entity_type"` // task | project
	EntityID      string    `json:"entity_id"`
	Summary       string    `json:"summary"`
	ActivityCount int       `json:"activity_count"`
	GeneratedAt   time.Time `json:"generated_at"`
}
