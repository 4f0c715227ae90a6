package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"agoragate/internal/domain"
)

// Repo wraps the read handle. Write-path lookups and inserts take an
// explicit *sql.Tx from the transaction executor so every decision reads
// the state the same unit is about to mutate.
type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}

// --- agents ---

func (r Repo) InsertAgent(ctx context.Context, tx *sql.Tx, a domain.Agent) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO agents(agent_id,name,public_key,registered_at,event_id) VALUES (?,?,?,?,?)`,
		a.AgentID, a.Name, a.PublicKey, a.RegisteredAt, a.EventID)
	return err
}

func scanAgent(row *sql.Row) (domain.Agent, error) {
	var a domain.Agent
	var eventID sql.NullInt64
	err := row.Scan(&a.AgentID, &a.Name, &a.PublicKey, &a.RegisteredAt, &eventID)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	a.EventID = eventID.Int64
	return a, err
}

const agentCols = `agent_id,name,public_key,registered_at,event_id`

func (r Repo) GetAgent(ctx context.Context, id string) (domain.Agent, error) {
	return scanAgent(r.DB.QueryRowContext(ctx, `SELECT `+agentCols+` FROM agents WHERE agent_id=?`, id))
}

func (r Repo) GetAgentTx(ctx context.Context, tx *sql.Tx, id string) (domain.Agent, error) {
	return scanAgent(tx.QueryRowContext(ctx, `SELECT `+agentCols+` FROM agents WHERE agent_id=?`, id))
}

func (r Repo) GetAgentByPublicKeyTx(ctx context.Context, tx *sql.Tx, publicKey string) (domain.Agent, error) {
	return scanAgent(tx.QueryRowContext(ctx, `SELECT `+agentCols+` FROM agents WHERE public_key=?`, publicKey))
}

// --- accounts ---

func (r Repo) InsertAccount(ctx context.Context, tx *sql.Tx, a domain.Account) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO bank_accounts(account_id,balance,created_at,event_id) VALUES (?,?,?,?)`,
		a.AccountID, a.Balance, a.CreatedAt, a.EventID)
	return err
}

func scanAccount(row *sql.Row) (domain.Account, error) {
	var a domain.Account
	var eventID sql.NullInt64
	err := row.Scan(&a.AccountID, &a.Balance, &a.CreatedAt, &eventID)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	a.EventID = eventID.Int64
	return a, err
}

const accountCols = `account_id,balance,created_at,event_id`

func (r Repo) GetAccount(ctx context.Context, id string) (domain.Account, error) {
	return scanAccount(r.DB.QueryRowContext(ctx, `SELECT `+accountCols+` FROM bank_accounts WHERE account_id=?`, id))
}

func (r Repo) GetAccountTx(ctx context.Context, tx *sql.Tx, id string) (domain.Account, error) {
	return scanAccount(tx.QueryRowContext(ctx, `SELECT `+accountCols+` FROM bank_accounts WHERE account_id=?`, id))
}

func (r Repo) UpdateAccountBalance(ctx context.Context, tx *sql.Tx, accountID string, balance int64) error {
	res, err := tx.ExecContext(ctx, `UPDATE bank_accounts SET balance=? WHERE account_id=?`, balance, accountID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- transactions (ledger) ---

func (r Repo) InsertTransaction(ctx context.Context, tx *sql.Tx, t domain.Transaction) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO bank_transactions(tx_id,account_id,type,amount,reference,balance_after,timestamp,event_id) VALUES (?,?,?,?,?,?,?,?)`,
		t.TxID, t.AccountID, t.Type, t.Amount, nullableStringPtr(t.Reference), t.BalanceAfter, t.Timestamp, t.EventID)
	return err
}

func scanTransaction(row *sql.Row) (domain.Transaction, error) {
	var t domain.Transaction
	var ref sql.NullString
	var eventID sql.NullInt64
	err := row.Scan(&t.TxID, &t.AccountID, &t.Type, &t.Amount, &ref, &t.BalanceAfter, &t.Timestamp, &eventID)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	t.Reference = nullString(ref)
	t.EventID = eventID.Int64
	return t, err
}

const txCols = `tx_id,account_id,type,amount,reference,balance_after,timestamp,event_id`

func (r Repo) GetTransaction(ctx context.Context, id string) (domain.Transaction, error) {
	return scanTransaction(r.DB.QueryRowContext(ctx, `SELECT `+txCols+` FROM bank_transactions WHERE tx_id=?`, id))
}

// GetCreditByReferenceTx looks up the credit ledger row for the natural
// idempotency key (account_id, reference).
func (r Repo) GetCreditByReferenceTx(ctx context.Context, tx *sql.Tx, accountID, reference string) (domain.Transaction, error) {
	return scanTransaction(tx.QueryRowContext(ctx,
		`SELECT `+txCols+` FROM bank_transactions WHERE account_id=? AND reference=? AND type='credit'`, accountID, reference))
}

// GetEscrowLockTxByEscrowTx returns the escrow_lock ledger row recorded for
// an escrow, identified by its reference field.
func (r Repo) GetEscrowLockTxByEscrowTx(ctx context.Context, tx *sql.Tx, escrowID string) (domain.Transaction, error) {
	return scanTransaction(tx.QueryRowContext(ctx,
		`SELECT `+txCols+` FROM bank_transactions WHERE reference=? AND type='escrow_lock'`, escrowID))
}

// --- escrows ---

func (r Repo) InsertEscrow(ctx context.Context, tx *sql.Tx, e domain.Escrow) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO escrows(escrow_id,payer_account_id,amount,task_id,status,created_at,resolved_at,event_id) VALUES (?,?,?,?,?,?,?,?)`,
		e.EscrowID, e.PayerAccountID, e.Amount, e.TaskID, e.Status, e.CreatedAt, nullableStringPtr(e.ResolvedAt), e.EventID)
	return err
}

func scanEscrow(row *sql.Row) (domain.Escrow, error) {
	var e domain.Escrow
	var resolved sql.NullString
	var eventID sql.NullInt64
	err := row.Scan(&e.EscrowID, &e.PayerAccountID, &e.Amount, &e.TaskID, &e.Status, &e.CreatedAt, &resolved, &eventID)
	if err == sql.ErrNoRows {
		return e, ErrNotFound
	}
	e.ResolvedAt = nullString(resolved)
	e.EventID = eventID.Int64
	return e, err
}

const escrowCols = `escrow_id,payer_account_id,amount,task_id,status,created_at,resolved_at,event_id`

func (r Repo) GetEscrow(ctx context.Context, id string) (domain.Escrow, error) {
	return scanEscrow(r.DB.QueryRowContext(ctx, `SELECT `+escrowCols+` FROM escrows WHERE escrow_id=?`, id))
}

func (r Repo) GetEscrowTx(ctx context.Context, tx *sql.Tx, id string) (domain.Escrow, error) {
	return scanEscrow(tx.QueryRowContext(ctx, `SELECT `+escrowCols+` FROM escrows WHERE escrow_id=?`, id))
}

func (r Repo) GetEscrowByPayerTaskTx(ctx context.Context, tx *sql.Tx, payerAccountID, taskID string) (domain.Escrow, error) {
	return scanEscrow(tx.QueryRowContext(ctx, `SELECT `+escrowCols+` FROM escrows WHERE payer_account_id=? AND task_id=?`, payerAccountID, taskID))
}

// ResolveEscrow moves an escrow out of locked. Status monotonicity is
// enforced by the caller inside the same transaction.
func (r Repo) ResolveEscrow(ctx context.Context, tx *sql.Tx, escrowID, status, resolvedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE escrows SET status=?, resolved_at=? WHERE escrow_id=? AND status='locked'`, status, resolvedAt, escrowID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- tasks ---

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO board_tasks(task_id,poster_id,title,spec,reward,status,escrow_id,worker_id,created_at,updated_at,assigned_at,started_at,submitted_at,completed_at,deadline,dispute_id,dispute_status,event_id)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.TaskID, t.PosterID, t.Title, t.Spec, t.Reward, t.Status, nullableStringPtr(t.EscrowID), nullableStringPtr(t.WorkerID),
		t.CreatedAt, nullableStringPtr(t.UpdatedAt), nullableStringPtr(t.AssignedAt), nullableStringPtr(t.StartedAt),
		nullableStringPtr(t.SubmittedAt), nullableStringPtr(t.CompletedAt), nullableStringPtr(t.Deadline),
		nullableStringPtr(t.DisputeID), nullableStringPtr(t.DisputeStatus), t.EventID)
	return err
}

const taskCols = `task_id,poster_id,title,spec,reward,status,escrow_id,worker_id,created_at,updated_at,assigned_at,started_at,submitted_at,completed_at,deadline,dispute_id,dispute_status,event_id`

func scanTask(row *sql.Row) (domain.Task, error) {
	var t domain.Task
	var escrowID, workerID, updated, assigned, started, submitted, completed, deadline, disputeID, disputeStatus sql.NullString
	var eventID sql.NullInt64
	err := row.Scan(&t.TaskID, &t.PosterID, &t.Title, &t.Spec, &t.Reward, &t.Status, &escrowID, &workerID,
		&t.CreatedAt, &updated, &assigned, &started, &submitted, &completed, &deadline, &disputeID, &disputeStatus, &eventID)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	t.EscrowID = nullString(escrowID)
	t.WorkerID = nullString(workerID)
	t.UpdatedAt = nullString(updated)
	t.AssignedAt = nullString(assigned)
	t.StartedAt = nullString(started)
	t.SubmittedAt = nullString(submitted)
	t.CompletedAt = nullString(completed)
	t.Deadline = nullString(deadline)
	t.DisputeID = nullString(disputeID)
	t.DisputeStatus = nullString(disputeStatus)
	t.EventID = eventID.Int64
	return t, err
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	return scanTask(r.DB.QueryRowContext(ctx, `SELECT `+taskCols+` FROM board_tasks WHERE task_id=?`, id))
}

func (r Repo) GetTaskTx(ctx context.Context, tx *sql.Tx, id string) (domain.Task, error) {
	return scanTask(tx.QueryRowContext(ctx, `SELECT `+taskCols+` FROM board_tasks WHERE task_id=?`, id))
}

// UpdateTaskColumns applies a caller-supplied column/value set to a task
// row. Column names must already be whitelisted by the caller.
func (r Repo) UpdateTaskColumns(ctx context.Context, tx *sql.Tx, taskID string, columns []string, values []any) error {
	sets := make([]string, len(columns))
	for i, c := range columns {
		sets[i] = c + "=?"
	}
	args := append(append([]any{}, values...), taskID)
	res, err := tx.ExecContext(ctx, fmt.Sprintf(`UPDATE board_tasks SET %s WHERE task_id=?`, strings.Join(sets, ",")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- bids ---

func (r Repo) InsertBid(ctx context.Context, tx *sql.Tx, b domain.Bid) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO board_bids(bid_id,task_id,bidder_id,proposal,submitted_at,event_id) VALUES (?,?,?,?,?,?)`,
		b.BidID, b.TaskID, b.BidderID, b.Proposal, b.SubmittedAt, b.EventID)
	return err
}

func scanBid(row *sql.Row) (domain.Bid, error) {
	var b domain.Bid
	var eventID sql.NullInt64
	err := row.Scan(&b.BidID, &b.TaskID, &b.BidderID, &b.Proposal, &b.SubmittedAt, &eventID)
	if err == sql.ErrNoRows {
		return b, ErrNotFound
	}
	b.EventID = eventID.Int64
	return b, err
}

func (r Repo) GetBidByTaskBidderTx(ctx context.Context, tx *sql.Tx, taskID, bidderID string) (domain.Bid, error) {
	return scanBid(tx.QueryRowContext(ctx, `SELECT bid_id,task_id,bidder_id,proposal,submitted_at,event_id FROM board_bids WHERE task_id=? AND bidder_id=?`, taskID, bidderID))
}

// --- assets ---

func (r Repo) InsertAsset(ctx context.Context, tx *sql.Tx, a domain.Asset) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO board_assets(asset_id,task_id,uploader_id,filename,content_type,size_bytes,storage_path,uploaded_at,event_id) VALUES (?,?,?,?,?,?,?,?,?)`,
		a.AssetID, a.TaskID, a.UploaderID, a.Filename, nullable(a.ContentType), a.SizeBytes, nullable(a.StoragePath), a.UploadedAt, a.EventID)
	return err
}

// --- feedback ---

func (r Repo) InsertFeedback(ctx context.Context, tx *sql.Tx, f domain.Feedback) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO feedback(feedback_id,task_id,from_agent_id,to_agent_id,category,rating,comment,submitted_at,visible,event_id) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		f.FeedbackID, f.TaskID, f.FromAgentID, f.ToAgentID, f.Category, f.Rating, nullable(f.Comment), f.SubmittedAt, f.Visible, f.EventID)
	return err
}

func scanFeedback(row *sql.Row) (domain.Feedback, error) {
	var f domain.Feedback
	var comment sql.NullString
	var eventID sql.NullInt64
	err := row.Scan(&f.FeedbackID, &f.TaskID, &f.FromAgentID, &f.ToAgentID, &f.Category, &f.Rating, &comment, &f.SubmittedAt, &f.Visible, &eventID)
	if err == sql.ErrNoRows {
		return f, ErrNotFound
	}
	if comment.Valid {
		f.Comment = comment.String
	}
	f.EventID = eventID.Int64
	return f, err
}

const feedbackCols = `feedback_id,task_id,from_agent_id,to_agent_id,category,rating,comment,submitted_at,visible,event_id`

func (r Repo) GetFeedbackTx(ctx context.Context, tx *sql.Tx, id string) (domain.Feedback, error) {
	return scanFeedback(tx.QueryRowContext(ctx, `SELECT `+feedbackCols+` FROM feedback WHERE feedback_id=?`, id))
}

func (r Repo) GetFeedbackByPairTx(ctx context.Context, tx *sql.Tx, taskID, fromAgentID, toAgentID string) (domain.Feedback, error) {
	return scanFeedback(tx.QueryRowContext(ctx, `SELECT `+feedbackCols+` FROM feedback WHERE task_id=? AND from_agent_id=? AND to_agent_id=?`, taskID, fromAgentID, toAgentID))
}

// RevealFeedback flips visible to true. It never flips back.
func (r Repo) RevealFeedback(ctx context.Context, tx *sql.Tx, feedbackID string) error {
	res, err := tx.ExecContext(ctx, `UPDATE feedback SET visible=1 WHERE feedback_id=?`, feedbackID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- court ---

func (r Repo) InsertClaim(ctx context.Context, tx *sql.Tx, c domain.Claim) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO court_claims(claim_id,task_id,claimant_id,respondent_id,reason,status,filed_at,event_id) VALUES (?,?,?,?,?,?,?,?)`,
		c.ClaimID, c.TaskID, c.ClaimantID, nullableStringPtr(c.RespondentID), c.Reason, c.Status, c.FiledAt, c.EventID)
	return err
}

func scanClaim(row *sql.Row) (domain.Claim, error) {
	var c domain.Claim
	var respondent sql.NullString
	var eventID sql.NullInt64
	err := row.Scan(&c.ClaimID, &c.TaskID, &c.ClaimantID, &respondent, &c.Reason, &c.Status, &c.FiledAt, &eventID)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	c.RespondentID = nullString(respondent)
	c.EventID = eventID.Int64
	return c, err
}

const claimCols = `claim_id,task_id,claimant_id,respondent_id,reason,status,filed_at,event_id`

func (r Repo) GetClaim(ctx context.Context, id string) (domain.Claim, error) {
	return scanClaim(r.DB.QueryRowContext(ctx, `SELECT `+claimCols+` FROM court_claims WHERE claim_id=?`, id))
}

func (r Repo) GetClaimTx(ctx context.Context, tx *sql.Tx, id string) (domain.Claim, error) {
	return scanClaim(tx.QueryRowContext(ctx, `SELECT `+claimCols+` FROM court_claims WHERE claim_id=?`, id))
}

func (r Repo) UpdateClaimStatus(ctx context.Context, tx *sql.Tx, claimID, status string) error {
	res, err := tx.ExecContext(ctx, `UPDATE court_claims SET status=? WHERE claim_id=?`, status, claimID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) InsertRebuttal(ctx context.Context, tx *sql.Tx, b domain.Rebuttal) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO court_rebuttals(rebuttal_id,claim_id,agent_id,statement,submitted_at,event_id) VALUES (?,?,?,?,?,?)`,
		b.RebuttalID, b.ClaimID, b.AgentID, b.Statement, b.SubmittedAt, b.EventID)
	return err
}

func (r Repo) InsertRuling(ctx context.Context, tx *sql.Tx, u domain.Ruling) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO court_rulings(ruling_id,claim_id,task_id,verdict,rationale,decided_at,event_id) VALUES (?,?,?,?,?,?,?)`,
		u.RulingID, u.ClaimID, nullableStringPtr(u.TaskID), u.Verdict, nullable(u.Rationale), u.DecidedAt, u.EventID)
	return err
}

// --- events ---

// EventsAfter returns events with IDs greater than the cursor in ascending
// order. This is the Observatory's feed.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT event_id,event_source,event_type,agent_id,task_id,summary,payload,timestamp FROM events WHERE event_id>? ORDER BY event_id ASC LIMIT ?`, cursor, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var agentID, taskID, summary, payload sql.NullString
		if err := rows.Scan(&e.EventID, &e.EventSource, &e.EventType, &agentID, &taskID, &summary, &payload, &e.Timestamp); err != nil {
			return nil, err
		}
		e.AgentID = agentID.String
		e.TaskID = taskID.String
		e.Summary = summary.String
		e.Payload = payload.String
		res = append(res, e)
	}
	return res, rows.Err()
}

// LatestEvents returns up to limit most recent events, newest first.
func (r Repo) LatestEvents(ctx context.Context, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT event_id,event_source,event_type,agent_id,task_id,summary,payload,timestamp FROM events ORDER BY event_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var agentID, taskID, summary, payload sql.NullString
		if err := rows.Scan(&e.EventID, &e.EventSource, &e.EventType, &agentID, &taskID, &summary, &payload, &e.Timestamp); err != nil {
			return nil, err
		}
		e.AgentID = agentID.String
		e.TaskID = taskID.String
		e.Summary = summary.String
		e.Payload = payload.String
		res = append(res, e)
	}
	return res, rows.Err()
}

func (r Repo) CountEvents(ctx context.Context) (int64, error) {
	var n int64
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&n)
	return n, err
}

func (r Repo) CountEventsTx(ctx context.Context, tx *sql.Tx) (int64, error) {
	var n int64
	err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&n)
	return n, err
}
