package app

import (
	"sync"

	"trivia-board-service/internal/domain"
)

// AudioCues is the port through which the game asks for sounds. Playback itself
// belongs to whoever renders the game.
type AudioCues interface {
	Play(gameID string, cue domain.Cue)
	Stop(gameID string, cue domain.Cue)
	SetEnabled(gameID string, enabled bool)
}

// SubscriberCues forwards cues to the game's live subscribers as updates.
// Starts are dropped while sound is disabled for a game; stops always go out.
type SubscriberCues struct {
	sessions SessionRepository

	mu       sync.RWMutex
	disabled map[string]bool
}

func NewSubscriberCues(sessions SessionRepository) *SubscriberCues {
	return &SubscriberCues{sessions: sessions, disabled: make(map[string]bool)}
}

func (c *SubscriberCues) Play(gameID string, cue domain.Cue) {
	c.mu.RLock()
	muted := c.disabled[gameID]
	c.mu.RUnlock()
	if muted {
		return
	}
	c.send(gameID, domain.CueEvent{Cue: cue, Playing: true, Loop: cue == domain.CueThink})
}

func (c *SubscriberCues) Stop(gameID string, cue domain.Cue) {
	c.send(gameID, domain.CueEvent{Cue: cue})
}

func (c *SubscriberCues) SetEnabled(gameID string, enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if enabled {
		delete(c.disabled, gameID)
		return
	}
	c.disabled[gameID] = true
}

func (c *SubscriberCues) send(gameID string, event domain.CueEvent) {
	session, ok := c.sessions.Get(gameID)
	if !ok {
		return
	}
	session.publish(domain.Update{Cue: &event})
}
