// Package presence tracks which participants are connected and under what
// identity. It is the in-memory source of truth for "who is online".
package presence

import (
	"fmt"
	"strings"
	"sync"

	"github.com/banuni/haxor-mk2/internal/chat/domain"
	apperrors "github.com/banuni/haxor-mk2/internal/errors"
)

type entry struct {
	participant domain.Participant
	// connID owns the entry; a re-join from a newer connection supersedes
	// the older one, and only the owner's leave removes the participant.
	connID string
}

// Registry is a concurrency-safe map from connection identity to participant.
// At most one live entry exists per participant id at any time.
type Registry struct {
	mu     sync.Mutex
	byID   map[string]*entry
	byConn map[string]string
	order  []string // participant ids in join order
}

// NewRegistry creates an empty presence registry.
func NewRegistry() *Registry {
	return &Registry{
		byID:   make(map[string]*entry),
		byConn: make(map[string]string),
	}
}

// Join registers a participant under the given connection. Joining an id that
// is already registered overwrites the prior entry (idempotent re-join): the
// new connection becomes the owner and the old connection's later leave is a
// no-op for this participant. A connection that joins again under a different
// id releases its previous identity first, so no entry outlives its owning
// connection.
func (r *Registry) Join(connID string, participant domain.Participant) domain.Participant {
	r.mu.Lock()
	defer r.mu.Unlock()

	if priorID, ok := r.byConn[connID]; ok && priorID != participant.ID {
		if prior, ok := r.byID[priorID]; ok && prior.connID == connID {
			delete(r.byID, priorID)
			r.removeFromOrder(priorID)
		}
	}

	if existing, ok := r.byID[participant.ID]; ok {
		delete(r.byConn, existing.connID)
		existing.participant = participant
		existing.connID = connID
	} else {
		r.byID[participant.ID] = &entry{participant: participant, connID: connID}
		r.order = append(r.order, participant.ID)
	}
	r.byConn[connID] = participant.ID
	return participant
}

// Rename changes a participant's display name. It fails with a NOT_FOUND
// error when the id is not registered.
func (r *Registry) Rename(participantID, newName string) (oldName string, updated domain.Participant, err error) {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return "", domain.Participant{}, apperrors.New(apperrors.CodeUsernameEmpty, "username is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.byID[participantID]
	if !ok {
		return "", domain.Participant{}, apperrors.WithMetadata(apperrors.CodeNotFound,
			fmt.Sprintf("participant %q is not online", participantID),
			map[string]string{"participant_id": participantID})
	}
	oldName = existing.participant.Username
	existing.participant.Username = newName
	return oldName, existing.participant, nil
}

// Leave removes the participant owned by connID. It returns false when the
// connection never identified or its participant was superseded by a newer
// connection.
func (r *Registry) Leave(connID string) (domain.Participant, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	participantID, ok := r.byConn[connID]
	if !ok {
		return domain.Participant{}, false
	}
	delete(r.byConn, connID)

	existing, ok := r.byID[participantID]
	if !ok || existing.connID != connID {
		return domain.Participant{}, false
	}
	delete(r.byID, participantID)
	r.removeFromOrder(participantID)
	return existing.participant, true
}

// List returns all online participants in join order.
func (r *Registry) List() []domain.Participant {
	r.mu.Lock()
	defer r.mu.Unlock()

	participants := make([]domain.Participant, 0, len(r.order))
	for _, participantID := range r.order {
		if existing, ok := r.byID[participantID]; ok {
			participants = append(participants, existing.participant)
		}
	}
	return participants
}

// Count returns the number of online participants.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

func (r *Registry) removeFromOrder(participantID string) {
	for i, existing := range r.order {
		if existing == participantID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			return
		}
	}
}
