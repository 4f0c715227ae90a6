package gateway

import (
	"context"
	"database/sql"
	"errors"

	"agoragate/internal/domain"
	"agoragate/internal/events"
	"agoragate/internal/repo"
)

type CreateTaskInput struct {
	Task  domain.Task
	Event events.Input
}

type CreateTaskResult struct {
	TaskID   string
	EventID  int64
	Replayed bool
}

// CreateTask stores a task row as supplied by the Task Board. The gateway
// does not judge the status value or transition legality; it enforces only
// that the task id is unique and the references resolve.
func (g *Gateway) CreateTask(ctx context.Context, in CreateTaskInput) (CreateTaskResult, error) {
	var res CreateTaskResult
	t := in.Task
	switch {
	case t.TaskID == "":
		return res, missingField("task_id")
	case t.PosterID == "":
		return res, missingField("poster_id")
	case t.Title == "":
		return res, missingField("title")
	case t.Spec == "":
		return res, missingField("spec")
	case t.Status == "":
		return res, missingField("status")
	}
	if t.Reward <= 0 {
		return res, invalidAmount("reward")
	}
	if err := validateEvent(in.Event); err != nil {
		return res, err
	}
	if t.CreatedAt == "" {
		t.CreatedAt = g.timestamp()
	}

	err := g.write(ctx, func(ctx context.Context, tx *sql.Tx) error {
		existing, err := g.Repo.GetTaskTx(ctx, tx, t.TaskID)
		if err == nil {
			if existing.PosterID == t.PosterID && existing.Title == t.Title && existing.Reward == t.Reward {
				res = CreateTaskResult{TaskID: existing.TaskID, EventID: existing.EventID, Replayed: true}
				return nil
			}
			return conflict(CodeTaskExists, "task id is already in use")
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return err
		}
		if _, err := g.Repo.GetAgentTx(ctx, tx, t.PosterID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return conflict(CodeForeignKeyViolation, "poster agent does not exist")
			}
			return err
		}
		if t.EscrowID != nil {
			if _, err := g.Repo.GetEscrowTx(ctx, tx, *t.EscrowID); err != nil {
				if errors.Is(err, repo.ErrNotFound) {
					return notFound(CodeEscrowNotFound, "escrow", *t.EscrowID)
				}
				return err
			}
		}

		eventID, err := g.Events.Append(ctx, tx, in.Event)
		if err != nil {
			return err
		}
		t.EventID = eventID
		if err := g.Repo.InsertTask(ctx, tx, t); err != nil {
			return err
		}
		res = CreateTaskResult{TaskID: t.TaskID, EventID: eventID}
		return nil
	})
	return res, err
}

// taskUpdateColumns is the fixed set of columns the status endpoint may
// touch after creation. Everything else is immutable through this surface.
var taskUpdateColumns = map[string]bool{
	"status":         true,
	"worker_id":      true,
	"escrow_id":      true,
	"updated_at":     true,
	"assigned_at":    true,
	"started_at":     true,
	"submitted_at":   true,
	"completed_at":   true,
	"deadline":       true,
	"dispute_id":     true,
	"dispute_status": true,
}

type UpdateTaskInput struct {
	TaskID  string
	Updates map[string]any
	Event   events.Input
}

type UpdateTaskResult struct {
	TaskID  string
	Status  string
	EventID int64
}

// UpdateTask applies a caller-supplied column/value map to an existing
// task. Unknown columns are rejected before any mutation; transition
// legality is Task Board policy and is not checked here.
func (g *Gateway) UpdateTask(ctx context.Context, in UpdateTaskInput) (UpdateTaskResult, error) {
	var res UpdateTaskResult
	if in.TaskID == "" {
		return res, missingField("task_id")
	}
	if len(in.Updates) == 0 {
		return res, newError(400, CodeEmptyUpdates, "updates must contain at least one column")
	}
	if err := validateEvent(in.Event); err != nil {
		return res, err
	}
	columns := make([]string, 0, len(in.Updates)+1)
	values := make([]any, 0, len(in.Updates)+1)
	for col, val := range in.Updates {
		if !taskUpdateColumns[col] {
			return res, invalidField(col, "is not an updatable task column")
		}
		switch val.(type) {
		case string, nil:
		default:
			return res, invalidField(col, "must be a string or null")
		}
		columns = append(columns, col)
		values = append(values, val)
	}
	if _, ok := in.Updates["updated_at"]; !ok {
		columns = append(columns, "updated_at")
		values = append(values, g.timestamp())
	}

	err := g.write(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := g.Repo.GetTaskTx(ctx, tx, in.TaskID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return notFound(CodeTaskNotFound, "task", in.TaskID)
			}
			return err
		}
		eventID, err := g.Events.Append(ctx, tx, in.Event)
		if err != nil {
			return err
		}
		if err := g.Repo.UpdateTaskColumns(ctx, tx, in.TaskID, columns, values); err != nil {
			return err
		}
		updated, err := g.Repo.GetTaskTx(ctx, tx, in.TaskID)
		if err != nil {
			return err
		}
		res = UpdateTaskResult{TaskID: in.TaskID, Status: updated.Status, EventID: eventID}
		return nil
	})
	return res, err
}

type CreateBidInput struct {
	Bid   domain.Bid
	Event events.Input
}

type CreateBidResult struct {
	BidID    string
	EventID  int64
	Replayed bool
}

// CreateBid records a bid. Idempotent on (task_id, bidder_id); a retry with
// a different proposal is a BID_EXISTS conflict.
func (g *Gateway) CreateBid(ctx context.Context, in CreateBidInput) (CreateBidResult, error) {
	var res CreateBidResult
	b := in.Bid
	switch {
	case b.TaskID == "":
		return res, missingField("task_id")
	case b.BidderID == "":
		return res, missingField("bidder_id")
	case b.Proposal == "":
		return res, missingField("proposal")
	}
	if err := validateEvent(in.Event); err != nil {
		return res, err
	}
	if b.BidID == "" {
		b.BidID = newID(domain.PrefixBid)
	}
	if b.SubmittedAt == "" {
		b.SubmittedAt = g.timestamp()
	}

	err := g.write(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := g.Repo.GetTaskTx(ctx, tx, b.TaskID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return notFound(CodeTaskNotFound, "task", b.TaskID)
			}
			return err
		}
		if _, err := g.Repo.GetAgentTx(ctx, tx, b.BidderID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return conflict(CodeForeignKeyViolation, "bidder agent does not exist")
			}
			return err
		}
		existing, err := g.Repo.GetBidByTaskBidderTx(ctx, tx, b.TaskID, b.BidderID)
		if err == nil {
			if existing.Proposal == b.Proposal {
				res = CreateBidResult{BidID: existing.BidID, EventID: existing.EventID, Replayed: true}
				return nil
			}
			return conflict(CodeBidExists, "bidder already bid on this task")
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return err
		}

		eventID, err := g.Events.Append(ctx, tx, in.Event)
		if err != nil {
			return err
		}
		b.EventID = eventID
		if err := g.Repo.InsertBid(ctx, tx, b); err != nil {
			return err
		}
		res = CreateBidResult{BidID: b.BidID, EventID: eventID}
		return nil
	})
	return res, err
}

type CreateAssetInput struct {
	Asset domain.Asset
	Event events.Input
}

type CreateAssetResult struct {
	AssetID string
	EventID int64
}

// CreateAsset records an uploaded deliverable's metadata. The bytes
// themselves live wherever storage_path points; the gateway stores only
// the row.
func (g *Gateway) CreateAsset(ctx context.Context, in CreateAssetInput) (CreateAssetResult, error) {
	var res CreateAssetResult
	a := in.Asset
	switch {
	case a.TaskID == "":
		return res, missingField("task_id")
	case a.UploaderID == "":
		return res, missingField("uploader_id")
	case a.Filename == "":
		return res, missingField("filename")
	}
	if a.SizeBytes < 0 {
		return res, invalidAmount("size_bytes")
	}
	if err := validateEvent(in.Event); err != nil {
		return res, err
	}
	if a.AssetID == "" {
		a.AssetID = newID(domain.PrefixAsset)
	}
	if a.UploadedAt == "" {
		a.UploadedAt = g.timestamp()
	}

	err := g.write(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := g.Repo.GetTaskTx(ctx, tx, a.TaskID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return notFound(CodeTaskNotFound, "task", a.TaskID)
			}
			return err
		}
		if _, err := g.Repo.GetAgentTx(ctx, tx, a.UploaderID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return conflict(CodeForeignKeyViolation, "uploader agent does not exist")
			}
			return err
		}
		eventID, err := g.Events.Append(ctx, tx, in.Event)
		if err != nil {
			return err
		}
		a.EventID = eventID
		if err := g.Repo.InsertAsset(ctx, tx, a); err != nil {
			return err
		}
		res = CreateAssetResult{AssetID: a.AssetID, EventID: eventID}
		return nil
	})
	return res, err
}
