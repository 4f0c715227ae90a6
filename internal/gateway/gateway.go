package gateway

import (
	"context"
	"database/sql"
	"os"
	"time"

	"github.com/google/uuid"

	"agoragate/internal/config"
	"agoragate/internal/db"
	"agoragate/internal/events"
	"agoragate/internal/repo"
)

// Gateway is the write path of the store: structural validation, natural-key
// idempotency, the single-writer intent, the all-or-nothing transaction
// executor and the escrow state machine. It carries no task lifecycle or
// dispute policy; those belong to the calling services.
type Gateway struct {
	DB        *db.Handles
	Repo      repo.Repo
	Events    events.Writer
	Config    *config.Config
	Now       func() time.Time
	StartedAt time.Time

	// intent is the exclusive write-intent: at most one mutating unit is in
	// flight against the store at a time. Reads never touch it.
	intent chan struct{}
}

func New(handles *db.Handles, cfg *config.Config) *Gateway {
	return &Gateway{
		DB:        handles,
		Repo:      repo.Repo{DB: handles.Reader},
		Events:    events.Writer{},
		Config:    cfg,
		Now:       time.Now,
		StartedAt: time.Now().UTC(),
		intent:    make(chan struct{}, 1),
	}
}

func (g *Gateway) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now()
}

func (g *Gateway) timestamp() string {
	return g.now().UTC().Format(time.RFC3339)
}

// newID derives a prefixed identifier for optional IDs the caller omitted.
func newID(prefix string) string {
	return prefix + "-" + uuid.NewString()
}

func (g *Gateway) writeWait() time.Duration {
	if g.Config != nil && g.Config.Store.WriteWait > 0 {
		return g.Config.Store.WriteWait
	}
	return 5 * time.Second
}

// acquireIntent blocks until the write-intent is free, the caller context
// is done, or the configured wait elapses. It never skips the intent.
func (g *Gateway) acquireIntent(ctx context.Context) error {
	timer := time.NewTimer(g.writeWait())
	defer timer.Stop()
	select {
	case g.intent <- struct{}{}:
		return nil
	case <-ctx.Done():
		return storeBusy()
	case <-timer.C:
		return storeBusy()
	}
}

func (g *Gateway) releaseIntent() {
	<-g.intent
}

// write runs one mutating unit: acquire the intent, open an immediate
// transaction on the writer, run fn, commit. Any failure aborts the whole
// unit; no business row, event row or balance change survives. Once the
// intent is held the unit runs on a cancel-detached context, so a caller
// that gives up waiting for the response cannot split a commit or leave
// the intent held; duplicate retries are absorbed by the idempotency layer.
func (g *Gateway) write(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error {
	if err := g.acquireIntent(ctx); err != nil {
		return err
	}
	defer g.releaseIntent()

	ctx = context.WithoutCancel(ctx)
	tx, err := g.DB.Writer.BeginTx(ctx, nil)
	if err != nil {
		return mapStorageErr(err)
	}
	defer tx.Rollback()

	if err := fn(ctx, tx); err != nil {
		return mapStorageErr(err)
	}
	if err := tx.Commit(); err != nil {
		return mapStorageErr(err)
	}
	return nil
}

// Health is the read-only liveness summary. It bypasses the write-intent.
type Health struct {
	Status            string
	UptimeSeconds     int64
	StartedAt         string
	DatabaseSizeBytes int64
	TotalEvents       int64
}

func (g *Gateway) Health(ctx context.Context) (Health, error) {
	total, err := g.Repo.CountEvents(ctx)
	if err != nil {
		return Health{}, mapStorageErr(err)
	}
	var size int64
	if g.Config != nil {
		if st, err := os.Stat(db.Path(g.Config.Store.Workspace)); err == nil {
			size = st.Size()
		}
	}
	return Health{
		Status:            "ok",
		UptimeSeconds:     int64(time.Since(g.StartedAt).Seconds()),
		StartedAt:         g.StartedAt.Format(time.RFC3339),
		DatabaseSizeBytes: size,
		TotalEvents:       total,
	}, nil
}
