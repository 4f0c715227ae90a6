package gateway

import (
	"context"
	"database/sql"
	"errors"

	"agoragate/internal/domain"
	"agoragate/internal/events"
	"agoragate/internal/repo"
)

func validateEvent(ev events.Input) *Error {
	if ev.Source == "" {
		return missingField("event.event_source")
	}
	if ev.Type == "" {
		return missingField("event.event_type")
	}
	return nil
}

type RegisterAgentInput struct {
	AgentID      string
	Name         string
	PublicKey    string
	RegisteredAt string
	Event        events.Input
}

type RegisterAgentResult struct {
	AgentID  string
	EventID  int64
	Replayed bool
}

// RegisterAgent creates an immutable agent row. The natural idempotency key
// is the public key: a byte-identical retry returns the original result, a
// different agent under the same key is rejected.
func (g *Gateway) RegisterAgent(ctx context.Context, in RegisterAgentInput) (RegisterAgentResult, error) {
	var res RegisterAgentResult
	switch {
	case in.AgentID == "":
		return res, missingField("agent_id")
	case in.Name == "":
		return res, missingField("name")
	case in.PublicKey == "":
		return res, missingField("public_key")
	}
	if err := validateEvent(in.Event); err != nil {
		return res, err
	}
	if in.RegisteredAt == "" {
		in.RegisteredAt = g.timestamp()
	}

	err := g.write(ctx, func(ctx context.Context, tx *sql.Tx) error {
		existing, err := g.Repo.GetAgentByPublicKeyTx(ctx, tx, in.PublicKey)
		if err == nil {
			if existing.AgentID == in.AgentID && existing.Name == in.Name {
				res = RegisterAgentResult{AgentID: existing.AgentID, EventID: existing.EventID, Replayed: true}
				return nil
			}
			return conflict(CodePublicKeyExists, "public key is already registered to another agent")
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return err
		}
		if _, err := g.Repo.GetAgentTx(ctx, tx, in.AgentID); err == nil {
			return conflict(CodeAgentExists, "agent id is already registered")
		} else if !errors.Is(err, repo.ErrNotFound) {
			return err
		}

		eventID, err := g.Events.Append(ctx, tx, in.Event)
		if err != nil {
			return err
		}
		a := domain.Agent{
			AgentID:      in.AgentID,
			Name:         in.Name,
			PublicKey:    in.PublicKey,
			RegisteredAt: in.RegisteredAt,
			EventID:      eventID,
		}
		if err := g.Repo.InsertAgent(ctx, tx, a); err != nil {
			return err
		}
		res = RegisterAgentResult{AgentID: a.AgentID, EventID: eventID}
		return nil
	})
	return res, err
}
