package gateway

import (
	"context"
	"database/sql"
	"errors"

	"agoragate/internal/domain"
	"agoragate/internal/events"
	"agoragate/internal/repo"
)

type SubmitFeedbackInput struct {
	Feedback domain.Feedback
	// RevealReverse asks the gateway to flip the counterpart's earlier
	// feedback visible in the same unit, double-blind style.
	RevealReverse     bool
	ReverseFeedbackID string
	Event             events.Input
}

type SubmitFeedbackResult struct {
	FeedbackID string
	EventID    int64
	Replayed   bool
}

// SubmitFeedback records one rating. Idempotent on (task_id, from_agent_id,
// to_agent_id); when RevealReverse is set the reverse row is made visible
// atomically with the insert.
func (g *Gateway) SubmitFeedback(ctx context.Context, in SubmitFeedbackInput) (SubmitFeedbackResult, error) {
	var res SubmitFeedbackResult
	f := in.Feedback
	switch {
	case f.TaskID == "":
		return res, missingField("task_id")
	case f.FromAgentID == "":
		return res, missingField("from_agent_id")
	case f.ToAgentID == "":
		return res, missingField("to_agent_id")
	case f.Category == "":
		return res, missingField("category")
	}
	if f.Rating < 1 || f.Rating > 5 {
		return res, invalidField("rating", "must be between 1 and 5")
	}
	if in.RevealReverse && in.ReverseFeedbackID == "" {
		return res, missingField("reverse_feedback_id")
	}
	if err := validateEvent(in.Event); err != nil {
		return res, err
	}
	if f.FeedbackID == "" {
		f.FeedbackID = newID(domain.PrefixFeedback)
	}
	if f.SubmittedAt == "" {
		f.SubmittedAt = g.timestamp()
	}

	err := g.write(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := g.Repo.GetTaskTx(ctx, tx, f.TaskID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return notFound(CodeTaskNotFound, "task", f.TaskID)
			}
			return err
		}
		for _, agentID := range []string{f.FromAgentID, f.ToAgentID} {
			if _, err := g.Repo.GetAgentTx(ctx, tx, agentID); err != nil {
				if errors.Is(err, repo.ErrNotFound) {
					return conflict(CodeForeignKeyViolation, "agent "+agentID+" does not exist")
				}
				return err
			}
		}
		existing, err := g.Repo.GetFeedbackByPairTx(ctx, tx, f.TaskID, f.FromAgentID, f.ToAgentID)
		if err == nil {
			if existing.Category == f.Category && existing.Rating == f.Rating {
				res = SubmitFeedbackResult{FeedbackID: existing.FeedbackID, EventID: existing.EventID, Replayed: true}
				return nil
			}
			return conflict(CodeFeedbackExists, "feedback for this task and agent pair already exists")
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return err
		}
		if in.RevealReverse {
			if _, err := g.Repo.GetFeedbackTx(ctx, tx, in.ReverseFeedbackID); err != nil {
				if errors.Is(err, repo.ErrNotFound) {
					return notFound(CodeFeedbackNotFound, "feedback", in.ReverseFeedbackID)
				}
				return err
			}
		}

		eventID, err := g.Events.Append(ctx, tx, in.Event)
		if err != nil {
			return err
		}
		f.EventID = eventID
		if in.RevealReverse {
			// Both sides become visible in the same commit.
			f.Visible = true
			if err := g.Repo.RevealFeedback(ctx, tx, in.ReverseFeedbackID); err != nil {
				return err
			}
		}
		if err := g.Repo.InsertFeedback(ctx, tx, f); err != nil {
			return err
		}
		res = SubmitFeedbackResult{FeedbackID: f.FeedbackID, EventID: eventID}
		return nil
	})
	return res, err
}
