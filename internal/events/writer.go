package events

import (
	"context"
	"database/sql"
	"time"
)

// Input is the audit envelope every mutating call carries. Summary and
// Payload are stored byte-for-byte as received; the gateway never
// reinterprets them.
type Input struct {
	Source  string
	Type    string
	AgentID string
	TaskID  string
	Summary string
	Payload string
}

type Writer struct {
	Now func() time.Time
}

// Append writes the event row inside the caller's transaction and returns
// the generated event ID. IDs are assigned by the events table in commit
// order, so they are strictly increasing across committed writes.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, in Input) (int64, error) {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	ts := now().UTC().Format(time.RFC3339)
	res, err := tx.ExecContext(ctx, `INSERT INTO events(event_source,event_type,agent_id,task_id,summary,payload,timestamp) VALUES (?,?,?,?,?,?,?)`,
		in.Source, in.Type, nullable(in.AgentID), nullable(in.TaskID), nullable(in.Summary), nullable(in.Payload), ts)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
