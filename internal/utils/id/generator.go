// Package id produces prefixed identifiers for sessions, events, and records.
package id

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/segmentio/ksuid"
)

// Strategy identifies the identifier generation algorithm to use.
type Strategy int

const (
	// StrategyKSUID generates lexicographically sortable identifiers using KSUID.
	StrategyKSUID Strategy = iota
	// StrategyUUIDv7 generates time-ordered identifiers using UUID version 7.
	StrategyUUIDv7
)

var defaultGenerator = &Generator{strategy: StrategyKSUID}

// Generator produces identifiers with stable display prefixes.
type Generator struct {
	mu       sync.RWMutex
	strategy Strategy
}

// SetStrategy configures the generation strategy for the default generator.
func SetStrategy(strategy Strategy) {
	defaultGenerator.mu.Lock()
	defaultGenerator.strategy = strategy
	defaultGenerator.mu.Unlock()
}

// NewSessionID generates a new session identifier.
func NewSessionID() string { return defaultGenerator.newIdentifier("session") }

// NewRequestID generates a new request correlation identifier.
func NewRequestID() string { return defaultGenerator.newIdentifier("req") }

// NewEventID generates an identifier for episodic events.
func NewEventID() string { return defaultGenerator.newIdentifier("evt") }

// NewHandoffID generates an identifier for shared-memory handoffs.
func NewHandoffID() string { return defaultGenerator.newIdentifier("hand") }

// NewDiscoveryID generates an identifier for discovery records.
func NewDiscoveryID() string { return defaultGenerator.newIdentifier("disc") }

// NewKnowledgeID generates an identifier for knowledge cache entries.
func NewKnowledgeID() string { return defaultGenerator.newIdentifier("know") }

// NewTaskID generates an identifier for tasks.
func NewTaskID() string { return defaultGenerator.newIdentifier("task") }

// NewProjectID generates an identifier for projects.
func NewProjectID() string { return defaultGenerator.newIdentifier("proj") }

func (g *Generator) newIdentifier(prefix string) string {
	g.mu.RLock()
	strategy := g.strategy
	g.mu.RUnlock()

	switch strategy {
	case StrategyUUIDv7:
		if v7, err := uuid.NewV7(); err == nil {
			return fmt.Sprintf("%s_%s", prefix, v7.String())
		}
		// UUIDv7 can only fail when the entropy source does; fall through.
		return fmt.Sprintf("%s_%s", prefix, ksuid.New().String())
	default:
		return fmt.Sprintf("%s_%s", prefix, ksuid.New().String())
	}
}
