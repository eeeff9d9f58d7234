package memory

import (
	"context"
	"time"

	"otto/internal/async"
)

// Sweep removes expired working entries, handoffs, and knowledge cache
// entries. Expired records are already invisible to reads; sweeping only
// reclaims the space.
func (m *Manager) Sweep(ctx context.Context) {
	now := m.now()

	m.mu.Lock()
	var staleKnowledge []string
	for entryID, entry := range m.knowledge {
		if !entry.ExpiresAt.After(now) {
			staleKnowledge = append(staleKnowledge, entryID)
			delete(m.knowledge, entryID)
		}
	}
	for sessionID, session := range m.working {
		for workingType, entry := range session {
			if now.After(entry.ExpiresAt) {
				delete(session, workingType)
			}
		}
		if len(session) == 0 {
			delete(m.working, sessionID)
		}
	}
	for sessionID, pending := range m.handoffs {
		kept := pending[:0]
		for _, handoff := range pending {
			if !now.After(handoff.ExpiresAt) {
				kept = append(kept, handoff)
			}
		}
		if len(kept) == 0 {
			delete(m.handoffs, sessionID)
		} else {
			m.handoffs[sessionID] = kept
		}
	}
	m.mu.Unlock()

	if len(staleKnowledge) > 0 && m.vectors != nil {
		if err := m.vectors.Delete(ctx, collectionKnowledge, staleKnowledge...); err != nil {
			m.logger.Warn("knowledge sweep: drop %d vectors: %v", len(staleKnowledge), err)
		} else {
			m.logger.Debug("knowledge sweep dropped %d expired entries", len(staleKnowledge))
		}
	}
}

// StartSweeper runs Sweep on the given interval until ctx is cancelled.
func (m *Manager) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	async.Go(m.logger, "memory-sweeper", func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Sweep(ctx)
			}
		}
	})
}
