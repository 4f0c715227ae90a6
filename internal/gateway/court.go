package gateway

import (
	"context"
	"database/sql"
	"errors"

	"agoragate/internal/domain"
	"agoragate/internal/events"
	"agoragate/internal/repo"
)

type FileClaimInput struct {
	Claim domain.Claim
	Event events.Input
}

type FileClaimResult struct {
	ClaimID  string
	EventID  int64
	Replayed bool
}

// FileClaim opens a dispute record. The gateway stores the claim as given;
// dispute procedure lives in the Court service.
func (g *Gateway) FileClaim(ctx context.Context, in FileClaimInput) (FileClaimResult, error) {
	var res FileClaimResult
	c := in.Claim
	switch {
	case c.ClaimID == "":
		return res, missingField("claim_id")
	case c.TaskID == "":
		return res, missingField("task_id")
	case c.ClaimantID == "":
		return res, missingField("claimant_id")
	case c.Reason == "":
		return res, missingField("reason")
	}
	if err := validateEvent(in.Event); err != nil {
		return res, err
	}
	if c.Status == "" {
		c.Status = "filed"
	}
	if c.FiledAt == "" {
		c.FiledAt = g.timestamp()
	}

	err := g.write(ctx, func(ctx context.Context, tx *sql.Tx) error {
		existing, err := g.Repo.GetClaimTx(ctx, tx, c.ClaimID)
		if err == nil {
			if existing.TaskID == c.TaskID && existing.ClaimantID == c.ClaimantID && existing.Reason == c.Reason {
				res = FileClaimResult{ClaimID: existing.ClaimID, EventID: existing.EventID, Replayed: true}
				return nil
			}
			return conflict(CodeClaimExists, "claim id is already in use")
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return err
		}
		if _, err := g.Repo.GetTaskTx(ctx, tx, c.TaskID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return notFound(CodeTaskNotFound, "task", c.TaskID)
			}
			return err
		}
		if _, err := g.Repo.GetAgentTx(ctx, tx, c.ClaimantID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return conflict(CodeForeignKeyViolation, "claimant agent does not exist")
			}
			return err
		}
		if c.RespondentID != nil {
			if _, err := g.Repo.GetAgentTx(ctx, tx, *c.RespondentID); err != nil {
				if errors.Is(err, repo.ErrNotFound) {
					return conflict(CodeForeignKeyViolation, "respondent agent does not exist")
				}
				return err
			}
		}

		eventID, err := g.Events.Append(ctx, tx, in.Event)
		if err != nil {
			return err
		}
		c.EventID = eventID
		if err := g.Repo.InsertClaim(ctx, tx, c); err != nil {
			return err
		}
		res = FileClaimResult{ClaimID: c.ClaimID, EventID: eventID}
		return nil
	})
	return res, err
}

type SubmitRebuttalInput struct {
	Rebuttal domain.Rebuttal
	Event    events.Input
}

type SubmitRebuttalResult struct {
	RebuttalID string
	EventID    int64
}

func (g *Gateway) SubmitRebuttal(ctx context.Context, in SubmitRebuttalInput) (SubmitRebuttalResult, error) {
	var res SubmitRebuttalResult
	b := in.Rebuttal
	switch {
	case b.ClaimID == "":
		return res, missingField("claim_id")
	case b.AgentID == "":
		return res, missingField("agent_id")
	case b.Statement == "":
		return res, missingField("statement")
	}
	if err := validateEvent(in.Event); err != nil {
		return res, err
	}
	if b.RebuttalID == "" {
		b.RebuttalID = newID(domain.PrefixRebuttal)
	}
	if b.SubmittedAt == "" {
		b.SubmittedAt = g.timestamp()
	}

	err := g.write(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := g.Repo.GetClaimTx(ctx, tx, b.ClaimID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return notFound(CodeClaimNotFound, "claim", b.ClaimID)
			}
			return err
		}
		if _, err := g.Repo.GetAgentTx(ctx, tx, b.AgentID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return conflict(CodeForeignKeyViolation, "agent does not exist")
			}
			return err
		}
		eventID, err := g.Events.Append(ctx, tx, in.Event)
		if err != nil {
			return err
		}
		b.EventID = eventID
		if err := g.Repo.InsertRebuttal(ctx, tx, b); err != nil {
			return err
		}
		res = SubmitRebuttalResult{RebuttalID: b.RebuttalID, EventID: eventID}
		return nil
	})
	return res, err
}

type SubmitRulingInput struct {
	Ruling domain.Ruling
	// ClaimStatusUpdate, when set, moves the claim's status in the same
	// unit so a ruling and its effect commit together.
	ClaimStatusUpdate string
	Event             events.Input
}

type SubmitRulingResult struct {
	RulingID string
	EventID  int64
}

func (g *Gateway) SubmitRuling(ctx context.Context, in SubmitRulingInput) (SubmitRulingResult, error) {
	var res SubmitRulingResult
	u := in.Ruling
	switch {
	case u.ClaimID == "":
		return res, missingField("claim_id")
	case u.Verdict == "":
		return res, missingField("verdict")
	}
	if err := validateEvent(in.Event); err != nil {
		return res, err
	}
	if u.RulingID == "" {
		u.RulingID = newID(domain.PrefixRuling)
	}
	if u.DecidedAt == "" {
		u.DecidedAt = g.timestamp()
	}

	err := g.write(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := g.Repo.GetClaimTx(ctx, tx, u.ClaimID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return notFound(CodeClaimNotFound, "claim", u.ClaimID)
			}
			return err
		}
		if u.TaskID != nil {
			if _, err := g.Repo.GetTaskTx(ctx, tx, *u.TaskID); err != nil {
				if errors.Is(err, repo.ErrNotFound) {
					return notFound(CodeTaskNotFound, "task", *u.TaskID)
				}
				return err
			}
		}
		eventID, err := g.Events.Append(ctx, tx, in.Event)
		if err != nil {
			return err
		}
		u.EventID = eventID
		if err := g.Repo.InsertRuling(ctx, tx, u); err != nil {
			return err
		}
		if in.ClaimStatusUpdate != "" {
			if err := g.Repo.UpdateClaimStatus(ctx, tx, u.ClaimID, in.ClaimStatusUpdate); err != nil {
				return err
			}
		}
		res = SubmitRulingResult{RulingID: u.RulingID, EventID: eventID}
		return nil
	})
	return res, err
}
