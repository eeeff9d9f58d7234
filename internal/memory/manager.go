package memory

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"otto/internal/embedding"
	"otto/internal/logging"
	"otto/internal/utils/id"
	"otto/internal/vectorstore"
)

// Collection names inside the vector store.
const (
	collectionEpisodic    = "episodic"
	collectionKnowledge   = "knowledge"
	collectionDiscoveries = "discoveries"
)

// Config tunes the manager's TTLs and default thresholds.
type Config struct {
	WorkingTTL         time.Duration
	HandoffTTL         time.Duration
	KnowledgeTTL       time.Duration
	ReuseThreshold     float64 // cache hit / discovery reuse
	KnowledgeThreshold float64 // permissive agent-level search
}

func (c *Config) normalize() {
	if c.WorkingTTL == 0 {
		c.WorkingTTL = 2 * time.Hour
	}
	if c.HandoffTTL == 0 {
		c.HandoffTTL = 5 * time.Minute
	}
	if c.KnowledgeTTL == 0 {
		c.KnowledgeTTL = 7 * 24 * time.Hour
	}
	if c.ReuseThreshold == 0 {
		c.ReuseThreshold = 0.85
	}
	if c.KnowledgeThreshold == 0 {
		c.KnowledgeThreshold = 0.65
	}
}

// Manager is the single source of truth for all memory tiers. All mutations
// go through it; atomic increments happen under its lock.
type Manager struct {
	cfg      Config
	vectors  vectorstore.Store
	embedder embedding.Embedder
	logger   logging.Logger

	mu          sync.Mutex
	working     map[string]map[string]WorkingEntry // session -> type -> entry
	episodic    []EpisodicEvent
	preferences map[string]map[string]*PreferenceRecord // user -> key -> record
	rules       map[string]map[string]*ProceduralRule   // user -> normalized trigger -> rule
	handoffs    map[string][]*SharedHandoff             // session -> pending
	knowledge   map[string]*KnowledgeEntry              // id -> entry
	discoveries map[string]*DiscoveryRecord             // id -> record
	summaries   map[string]EpisodicSummary              // entityType/entityID -> latest

	now func() time.Time
}

// NewManager builds a Manager backed by the given vector store and embedder.
func NewManager(cfg Config, vectors vectorstore.Store, embedder embedding.Embedder, logger logging.Logger) *Manager {
	cfg.normalize()
	return &Manager{
		cfg:         cfg,
		vectors:     vectors,
		embedder:    embedder,
		logger:      logging.OrNop(logger),
		working:     make(map[string]map[string]WorkingEntry),
		preferences: make(map[string]map[string]*PreferenceRecord),
		rules:       make(map[string]map[string]*ProceduralRule),
		handoffs:    make(map[string][]*SharedHandoff),
		knowledge:   make(map[string]*KnowledgeEntry),
		discoveries: make(map[string]*DiscoveryRecord),
		summaries:   make(map[string]EpisodicSummary),
		now:         time.Now,
	}
}

// --- Working memory ---

// SetWorking stores a session-scoped value with the working TTL.
func (m *Manager) SetWorking(sessionID, workingType, value string) {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.working[sessionID]
	if !ok {
		session = make(map[string]WorkingEntry)
		m.working[sessionID] = session
	}
	session[workingType] = WorkingEntry{
		SessionID: sessionID,
		Type:      workingType,
		Value:     value,
		UpdatedAt: now,
		ExpiresAt: now.Add(m.cfg.WorkingTTL),
	}
}

// GetWorking returns a session value, or false when missing or expired.
func (m *Manager) GetWorking(sessionID, workingType string) (string, bool) {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.working[sessionID][workingType]
	if !ok || now.After(entry.ExpiresAt) {
		return "", false
	}
	return entry.Value, true
}

// ClearSession drops working memory and pending handoffs for a session.
func (m *Manager) ClearSession(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.working, sessionID)
	delete(m.handoffs, sessionID)
}

// --- Episodic memory ---

// RecordEpisodic appends a durable action event. When embed is true the
// description is also indexed for similarity search; indexing failures are
// logged and do not fail the append.
func (m *Manager) RecordEpisodic(ctx context.Context, userID, action, description string, metadata map[string]string, embed bool) (string, error) {
	event := EpisodicEvent{
		ID:          id.NewEventID(),
		UserID:      userID,
		Action:      action,
		Description: description,
		Metadata:    metadata,
		CreatedAt:   m.now(),
	}

	m.mu.Lock()
	m.episodic = append(m.episodic, event)
	m.mu.Unlock()

	if embed && m.vectors != nil {
		err := m.vectors.Add(ctx, collectionEpisodic, vectorstore.Document{
			ID:      event.ID,
			Content: action + ": " + description,
			Metadata: map[string]string{
				"user_id": userID,
				"action":  action,
			},
		})
		if err != nil {
			m.logger.Warn("episodic embedding failed id=%s: %v", event.ID, err)
		}
	}
	return event.ID, nil
}

// ListEpisodic returns events for a user, newest first.
func (m *Manager) ListEpisodic(userID string, filter EpisodicFilter) []EpisodicEvent {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []EpisodicEvent
	for i := len(m.episodic) - 1; i >= 0; i-- {
		event := m.episodic[i]
		if event.UserID != userID {
			continue
		}
		if filter.ActionType != "" && event.Action != filter.ActionType {
			continue
		}
		if !filter.Since.IsZero() && event.CreatedAt.Before(filter.Since) {
			continue
		}
		if !filter.Until.IsZero() && event.CreatedAt.After(filter.Until) {
			continue
		}
		out = append(out, event)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out
}

// ListEpisodicByEntity returns the newest events tagged with the given
// entity id, regardless of user.
func (m *Manager) ListEpisodicByEntity(entityID string, limit int) []EpisodicEvent {
	if limit <= 0 {
		limit = 10
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []EpisodicEvent
	for i := len(m.episodic) - 1; i >= 0 && len(out) < limit; i-- {
		if m.episodic[i].Metadata["entity_id"] == entityID {
			out = append(out, m.episodic[i])
		}
	}
	return out
}

// SearchEpisodic finds events similar to text.
func (m *Manager) SearchEpisodic(ctx context.Context, userID, text string, limit int) ([]EpisodicEvent, error) {
	if m.vectors == nil {
		return nil, nil
	}
	results, err := m.vectors.SearchByText(ctx, collectionEpisodic, text, limit,
		map[string]string{"user_id": userID})
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	byID := make(map[string]EpisodicEvent, len(m.episodic))
	for _, event := range m.episodic {
		byID[event.ID] = event
	}
	m.mu.Unlock()

	var out []EpisodicEvent
	for _, r := range results {
		if event, ok := byID[r.ID]; ok {
			out = append(out, event)
		}
	}
	return out, nil
}

// --- Semantic preferences ---

// UpsertPreference creates or replaces a preference. Upserts reset neither
// times_used nor creation order; the latest value wins.
func (m *Manager) UpsertPreference(userID, key, value, source string, confidence float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.preferences[userID]
	if !ok {
		user = make(map[string]*PreferenceRecord)
		m.preferences[userID] = user
	}
	if existing, ok := user[key]; ok {
		existing.Value = value
		existing.Source = source
		existing.Confidence = confidence
		existing.UpdatedAt = m.now()
		return
	}
	user[key] = &PreferenceRecord{
		UserID:     userID,
		Key:        key,
		Value:      value,
		Source:     source,
		Confidence: confidence,
		UpdatedAt:  m.now(),
	}
}

// GetPreferences returns preferences at or above minConfidence, sorted by
// confidence descending.
func (m *Manager) GetPreferences(userID string, minConfidence float64) []PreferenceRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []PreferenceRecord
	for _, record := range m.preferences[userID] {
		if record.Confidence >= minConfidence {
			out = append(out, *record)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// GetPreference returns one preference and atomically increments its
// times_used counter.
func (m *Manager) GetPreference(userID, key string) (PreferenceRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.preferences[userID][key]
	if !ok {
		return PreferenceRecord{}, false
	}
	record.TimesUsed++
	return *record, true
}

// --- Procedural rules and templates ---

// NormalizeTrigger canonicalizes a trigger for lookup: lowercase, trimmed,
// inner whitespace collapsed to single underscores.
func NormalizeTrigger(trigger string) string {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(trigger)))
	return strings.Join(fields, "_")
}

// UpsertRule creates or replaces a trigger-action rule.
func (m *Manager) UpsertRule(userID, trigger, action string, params map[string]any, source string, confidence float64) {
	m.upsertProcedural(&ProceduralRule{
		UserID:     userID,
		Trigger:    trigger,
		RuleType:   RuleTypeRule,
		Action:     action,
		Params:     params,
		Source:     source,
		Confidence: confidence,
	})
}

// UpsertTemplate creates or replaces a workflow template.
func (m *Manager) UpsertTemplate(userID, trigger string, phases []TemplatePhase, source string, confidence float64) {
	m.upsertProcedural(&ProceduralRule{
		UserID:     userID,
		Trigger:    trigger,
		RuleType:   RuleTypeTemplate,
		Phases:     phases,
		Source:     source,
		Confidence: confidence,
	})
}

func (m *Manager) upsertProcedural(rule *ProceduralRule) {
	rule.NormalizedTrigger = NormalizeTrigger(rule.Trigger)
	rule.UpdatedAt = m.now()

	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.rules[rule.UserID]
	if !ok {
		user = make(map[string]*ProceduralRule)
		m.rules[rule.UserID] = user
	}
	if existing, ok := user[rule.NormalizedTrigger]; ok {
		rule.TimesUsed = existing.TimesUsed
	}
	user[rule.NormalizedTrigger] = rule
}

// GetRuleForTrigger resolves a rule or template by normalized trigger and
// atomically increments its times_used counter.
func (m *Manager) GetRuleForTrigger(userID, trigger string) (ProceduralRule, bool) {
	normalized := NormalizeTrigger(trigger)
	m.mu.Lock()
	defer m.mu.Unlock()
	rule, ok := m.rules[userID][normalized]
	if !ok {
		return ProceduralRule{}, false
	}
	rule.TimesUsed++
	return *rule, true
}

// PeekRuleForTrigger resolves without touching times_used. Context injection
// uses this so merely rendering a rule does not count as usage.
func (m *Manager) PeekRuleForTrigger(userID, trigger string) (ProceduralRule, bool) {
	normalized := NormalizeTrigger(trigger)
	m.mu.Lock()
	defer m.mu.Unlock()
	rule, ok := m.rules[userID][normalized]
	if !ok {
		return ProceduralRule{}, false
	}
	return *rule, true
}

// ListRules returns all rules at or above minConfidence, times_used
// descending.
func (m *Manager) ListRules(userID string, minConfidence float64) []ProceduralRule {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ProceduralRule
	for _, rule := range m.rules[userID] {
		if rule.RuleType == RuleTypeRule && rule.Confidence >= minConfidence {
			out = append(out, *rule)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TimesUsed != out[j].TimesUsed {
			return out[i].TimesUsed > out[j].TimesUsed
		}
		return out[i].NormalizedTrigger < out[j].NormalizedTrigger
	})
	return out
}

// ListTemplates returns all workflow templates for a user.
func (m *Manager) ListTemplates(userID string) []ProceduralRule {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ProceduralRule
	for _, rule := range m.rules[userID] {
		if rule.RuleType == RuleTypeTemplate {
			out = append(out, *rule)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].NormalizedTrigger < out[j].NormalizedTrigger
	})
	return out
}

// --- Shared handoffs ---

// CreateHandoff stores a short-lived payload addressed to another agent.
func (m *Manager) CreateHandoff(sessionID, fromAgent, toAgent, handoffType string, payload map[string]any) string {
	now := m.now()
	handoff := &SharedHandoff{
		ID:        id.NewHandoffID(),
		SessionID: sessionID,
		FromAgent: fromAgent,
		ToAgent:   toAgent,
		Type:      handoffType,
		Payload:   payload,
		CreatedAt: now,
		ExpiresAt: now.Add(m.cfg.HandoffTTL),
	}
	m.mu.Lock()
	m.handoffs[sessionID] = append(m.handoffs[sessionID], handoff)
	m.mu.Unlock()
	return handoff.ID
}

// ConsumePending atomically removes and returns the oldest unexpired handoff
// addressed to toAgent. Under concurrent calls exactly one caller wins; the
// rest see nil. Losing the race is an outcome, not an error.
func (m *Manager) ConsumePending(sessionID, toAgent string) (*SharedHandoff, bool) {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	pending := m.handoffs[sessionID]
	for i, handoff := range pending {
		if handoff.ToAgent != toAgent || now.After(handoff.ExpiresAt) {
			continue
		}
		m.handoffs[sessionID] = append(pending[:i:i], pending[i+1:]...)
		return handoff, true
	}
	return nil, false
}

// PeekPending reports the oldest unexpired handoff without consuming it.
func (m *Manager) PeekPending(sessionID, toAgent string) (*SharedHandoff, bool) {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, handoff := range m.handoffs[sessionID] {
		if handoff.ToAgent == toAgent && !now.After(handoff.ExpiresAt) {
			clone := *handoff
			return &clone, true
		}
	}
	return nil, false
}

// --- Knowledge cache ---

// CacheKnowledge stores an external fetch result with its optional summary.
func (m *Manager) CacheKnowledge(ctx context.Context, userID, query, results, summary, source string, ttl time.Duration) (string, error) {
	if ttl == 0 {
		ttl = m.cfg.KnowledgeTTL
	}
	now := m.now()
	entry := &KnowledgeEntry{
		ID:        id.NewKnowledgeID(),
		UserID:    userID,
		Query:     query,
		Results:   results,
		Summary:   summary,
		Source:    source,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	m.mu.Lock()
	m.knowledge[entry.ID] = entry
	m.mu.Unlock()

	if m.vectors != nil {
		err := m.vectors.Add(ctx, collectionKnowledge, vectorstore.Document{
			ID:      entry.ID,
			Content: query,
			Metadata: map[string]string{
				"user_id":       userID,
				"memory_type":   "semantic",
				"semantic_type": "knowledge",
			},
		})
		if err != nil {
			return entry.ID, fmt.Errorf("index knowledge entry: %w", err)
		}
	}
	return entry.ID, nil
}

// SearchKnowledge returns unexpired entries whose similarity to query is at
// or above threshold (inclusive), best first. Expired entries are invisible
// even if still physically present.
func (m *Manager) SearchKnowledge(ctx context.Context, userID, query string, threshold float64, limit int) ([]KnowledgeHit, error) {
	if threshold == 0 {
		threshold = m.cfg.KnowledgeThreshold
	}
	if limit <= 0 {
		limit = 5
	}
	if m.vectors == nil {
		return nil, nil
	}

	// Over-fetch so expired entries below the cut do not starve the result.
	results, err := m.vectors.SearchByText(ctx, collectionKnowledge, query, limit*3,
		map[string]string{"user_id": userID, "semantic_type": "knowledge"})
	if err != nil {
		return nil, err
	}

	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()

	var hits []KnowledgeHit
	for _, r := range results {
		if r.Similarity < threshold {
			continue
		}
		entry, ok := m.knowledge[r.ID]
		if !ok || !entry.ExpiresAt.After(now) {
			continue
		}
		hits = append(hits, KnowledgeHit{Entry: *entry, Similarity: r.Similarity})
		if len(hits) >= limit {
			break
		}
	}
	return hits, nil
}

// TouchKnowledge atomically increments times_accessed for a cache entry.
func (m *Manager) TouchKnowledge(entryID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry, ok := m.knowledge[entryID]; ok {
		entry.TimesAccessed++
	}
}

// --- Discovery records ---

// LogDiscovery records the outcome of an external capability discovery.
// Successful discoveries are indexed for reuse.
func (m *Manager) LogDiscovery(ctx context.Context, userID, request string, solution Solution, success bool, elapsed time.Duration) (string, error) {
	record := &DiscoveryRecord{
		ID:        id.NewDiscoveryID(),
		UserID:    userID,
		Request:   request,
		Solution:  solution,
		Success:   success,
		Elapsed:   elapsed,
		CreatedAt: m.now(),
	}

	m.mu.Lock()
	m.discoveries[record.ID] = record
	m.mu.Unlock()

	if success && m.vectors != nil {
		err := m.vectors.Add(ctx, collectionDiscoveries, vectorstore.Document{
			ID:      record.ID,
			Content: request,
			Metadata: map[string]string{
				"user_id": userID,
				"success": "true",
			},
		})
		if err != nil {
			m.logger.Warn("discovery indexing failed id=%s: %v", record.ID, err)
		}
	}
	return record.ID, nil
}

// FindSimilarDiscovery returns the best successful discovery whose similarity
// to request is at or above threshold (inclusive).
func (m *Manager) FindSimilarDiscovery(ctx context.Context, userID, request string, threshold float64) (*DiscoveryRecord, float64, error) {
	if threshold == 0 {
		threshold = m.cfg.ReuseThreshold
	}
	if m.vectors == nil {
		return nil, 0, nil
	}
	results, err := m.vectors.SearchByText(ctx, collectionDiscoveries, request, 3,
		map[string]string{"user_id": userID, "success": "true"})
	if err != nil {
		return nil, 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range results {
		if r.Similarity < threshold {
			continue
		}
		if record, ok := m.discoveries[r.ID]; ok && record.Success {
			clone := *record
			return &clone, r.Similarity, nil
		}
	}
	return nil, 0, nil
}

// TouchDiscovery atomically increments times_used for a reused discovery.
func (m *Manager) TouchDiscovery(recordID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if record, ok := m.discoveries[recordID]; ok {
		record.TimesUsed++
	}
}

// PopularDiscoveries returns successful discoveries with at least minUses,
// optionally excluding promoted ones, most used first.
func (m *Manager) PopularDiscoveries(minUses int, excludePromoted bool, limit int) []DiscoveryRecord {
	if minUses <= 0 {
		minUses = 3
	}
	if limit <= 0 {
		limit = 20
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []DiscoveryRecord
	for _, record := range m.discoveries {
		if !record.Success || record.TimesUsed < minUses {
			continue
		}
		if excludePromoted && record.Promoted {
			continue
		}
		out = append(out, *record)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TimesUsed != out[j].TimesUsed {
			return out[i].TimesUsed > out[j].TimesUsed
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// FailedDiscoveries returns unsuccessful discovery attempts for gap
// analysis, newest first.
func (m *Manager) FailedDiscoveries(userID string, limit int) []DiscoveryRecord {
	if limit <= 0 {
		limit = 50
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []DiscoveryRecord
	for _, record := range m.discoveries {
		if record.Success {
			continue
		}
		if userID != "" && record.UserID != userID {
			continue
		}
		out = append(out, *record)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// PromoteDiscovery marks a discovery as promoted to a built-in tool.
func (m *Manager) PromoteDiscovery(recordID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.discoveries[recordID]
	if !ok {
		return false
	}
	record.Promoted = true
	return true
}

// --- Episodic summaries ---

func summaryKey(entityType, entityID string) string {
	return entityType + "/" + entityID
}

// StoreSummary persists the latest digest for an entity.
func (m *Manager) StoreSummary(entityType, entityID, summary string, activityCount int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summaries[summaryKey(entityType, entityID)] = EpisodicSummary{
		EntityType:    entityType,
		EntityID:      entityID,
		Summary:       summary,
		ActivityCount: activityCount,
		GeneratedAt:   m.now(),
	}
}

// LatestSummary returns the most recent digest for an entity.
func (m *Manager) LatestSummary(entityType, entityID string) (EpisodicSummary, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	summary, ok := m.summaries[summaryKey(entityType, entityID)]
	return summary, ok
}

// --- Diagnostics ---

// Stats reports per-tier record counts for diagnostics output.
func (m *Manager) Stats() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	pending := 0
	for _, handoffs := range m.handoffs {
		pending += len(handoffs)
	}
	prefs := 0
	for _, user := range m.preferences {
		prefs += len(user)
	}
	rules := 0
	for _, user := range m.rules {
		rules += len(user)
	}
	return map[string]string{
		"working_sessions": strconv.Itoa(len(m.working)),
		"episodic_events":  strconv.Itoa(len(m.episodic)),
		"preferences":      strconv.Itoa(prefs),
		"rules":            strconv.Itoa(rules),
		"pending_handoffs": strconv.Itoa(pending),
		"knowledge":        strconv.Itoa(len(m.knowledge)),
		"discoveries":      strconv.Itoa(len(m.discoveries)),
		"summaries":        strconv.Itoa(len(m.summaries)),
	}
}
