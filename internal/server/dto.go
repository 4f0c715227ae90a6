package server

import (
	"encoding/json"

	"agoragate/internal/events"
)

// EventEnvelope is the audit record every write carries. The gateway stores
// it verbatim next to the business change; payload is opaque JSON.
type EventEnvelope struct {
	EventSource string          `json:"event_source,omitempty"`
	EventType   string          `json:"event_type,omitempty"`
	AgentID     string          `json:"agent_id,omitempty"`
	TaskID      string          `json:"task_id,omitempty"`
	Summary     string          `json:"summary,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

func (e EventEnvelope) input() events.Input {
	return events.Input{
		Source:  e.EventSource,
		Type:    e.EventType,
		AgentID: e.AgentID,
		TaskID:  e.TaskID,
		Summary: e.Summary,
		Payload: string(e.Payload),
	}
}

// Amounts are pointers so an absent field and a zero field produce
// different errors.

type RegisterAgentRequest struct {
	AgentID      string        `json:"agent_id,omitempty"`
	Name         string        `json:"name,omitempty"`
	PublicKey    string        `json:"public_key,omitempty"`
	RegisteredAt string        `json:"registered_at,omitempty" format:"date-time"`
	Event        EventEnvelope `json:"event,omitempty"`
}

type RegisterAgentResponse struct {
	AgentID  string `json:"agent_id"`
	EventID  int64  `json:"event_id"`
	Replayed bool   `json:"replayed,omitempty"`
}

type InitialCreditRequest struct {
	TxID      string `json:"tx_id,omitempty"`
	Reference string `json:"reference,omitempty"`
}

type CreateAccountRequest struct {
	AccountID     string                `json:"account_id,omitempty"`
	Balance       *int64                `json:"balance,omitempty"`
	CreatedAt     string                `json:"created_at,omitempty" format:"date-time"`
	InitialCredit *InitialCreditRequest `json:"initial_credit,omitempty"`
	Event         EventEnvelope         `json:"event,omitempty"`
}

type CreateAccountResponse struct {
	AccountID string `json:"account_id"`
	Balance   int64  `json:"balance"`
	EventID   int64  `json:"event_id"`
	Replayed  bool   `json:"replayed,omitempty"`
}

type CreditRequest struct {
	TxID      string        `json:"tx_id,omitempty"`
	AccountID string        `json:"account_id,omitempty"`
	Amount    *int64        `json:"amount,omitempty"`
	Reference string        `json:"reference,omitempty"`
	Timestamp string        `json:"timestamp,omitempty" format:"date-time"`
	Event     EventEnvelope `json:"event,omitempty"`
}

type CreditResponse struct {
	TxID         string `json:"tx_id"`
	BalanceAfter int64  `json:"balance_after"`
	EventID      int64  `json:"event_id"`
	Replayed     bool   `json:"replayed,omitempty"`
}

type EscrowLockRequest struct {
	EscrowID       string        `json:"escrow_id,omitempty"`
	PayerAccountID string        `json:"payer_account_id,omitempty"`
	Amount         *int64        `json:"amount,omitempty"`
	TaskID         string        `json:"task_id,omitempty"`
	TxID           string        `json:"tx_id,omitempty"`
	CreatedAt      string        `json:"created_at,omitempty" format:"date-time"`
	Event          EventEnvelope `json:"event,omitempty"`
}

type EscrowLockResponse struct {
	EscrowID     string `json:"escrow_id"`
	BalanceAfter int64  `json:"balance_after"`
	EventID      int64  `json:"event_id"`
	Replayed     bool   `json:"replayed,omitempty"`
}

type EscrowReleaseRequest struct {
	EscrowID           string        `json:"escrow_id,omitempty"`
	RecipientAccountID string        `json:"recipient_account_id,omitempty"`
	TxID               string        `json:"tx_id,omitempty"`
	ResolvedAt         string        `json:"resolved_at,omitempty" format:"date-time"`
	Event              EventEnvelope `json:"event,omitempty"`
}

type EscrowReleaseResponse struct {
	EscrowID string `json:"escrow_id"`
	Status   string `json:"status"`
	Amount   int64  `json:"amount"`
	EventID  int64  `json:"event_id"`
}

type EscrowSplitRequest struct {
	EscrowID        string        `json:"escrow_id,omitempty"`
	WorkerAccountID string        `json:"worker_account_id,omitempty"`
	WorkerAmount    *int64        `json:"worker_amount,omitempty"`
	WorkerTxID      string        `json:"worker_tx_id,omitempty"`
	PosterAccountID string        `json:"poster_account_id,omitempty"`
	PosterAmount    *int64        `json:"poster_amount,omitempty"`
	PosterTxID      string        `json:"poster_tx_id,omitempty"`
	ResolvedAt      string        `json:"resolved_at,omitempty" format:"date-time"`
	Event           EventEnvelope `json:"event,omitempty"`
}

type EscrowSplitResponse struct {
	EscrowID     string `json:"escrow_id"`
	Status       string `json:"status"`
	WorkerAmount int64  `json:"worker_amount"`
	PosterAmount int64  `json:"poster_amount"`
	EventID      int64  `json:"event_id"`
}

type CreateTaskRequest struct {
	TaskID    string        `json:"task_id,omitempty"`
	PosterID  string        `json:"poster_id,omitempty"`
	Title     string        `json:"title,omitempty"`
	Spec      string        `json:"spec,omitempty"`
	Reward    *int64        `json:"reward,omitempty"`
	Status    string        `json:"status,omitempty"`
	EscrowID  *string       `json:"escrow_id,omitempty"`
	WorkerID  *string       `json:"worker_id,omitempty"`
	Deadline  *string       `json:"deadline,omitempty" format:"date-time"`
	CreatedAt string        `json:"created_at,omitempty" format:"date-time"`
	Event     EventEnvelope `json:"event,omitempty"`
}

type CreateTaskResponse struct {
	TaskID   string `json:"task_id"`
	EventID  int64  `json:"event_id"`
	Replayed bool   `json:"replayed,omitempty"`
}

type UpdateTaskRequest struct {
	Updates map[string]any `json:"updates,omitempty" jsonschema:"type=object,additionalProperties=true"`
	Event   EventEnvelope  `json:"event,omitempty"`
}

type UpdateTaskResponse struct {
	TaskID  string `json:"task_id"`
	Status  string `json:"status"`
	EventID int64  `json:"event_id"`
}

type CreateBidRequest struct {
	BidID       string        `json:"bid_id,omitempty"`
	TaskID      string        `json:"task_id,omitempty"`
	BidderID    string        `json:"bidder_id,omitempty"`
	Proposal    string        `json:"proposal,omitempty"`
	SubmittedAt string        `json:"submitted_at,omitempty" format:"date-time"`
	Event       EventEnvelope `json:"event,omitempty"`
}

type CreateBidResponse struct {
	BidID    string `json:"bid_id"`
	EventID  int64  `json:"event_id"`
	Replayed bool   `json:"replayed,omitempty"`
}

type CreateAssetRequest struct {
	AssetID     string        `json:"asset_id,omitempty"`
	TaskID      string        `json:"task_id,omitempty"`
	UploaderID  string        `json:"uploader_id,omitempty"`
	Filename    string        `json:"filename,omitempty"`
	ContentType string        `json:"content_type,omitempty"`
	SizeBytes   int64         `json:"size_bytes,omitempty"`
	StoragePath string        `json:"storage_path,omitempty"`
	UploadedAt  string        `json:"uploaded_at,omitempty" format:"date-time"`
	Event       EventEnvelope `json:"event,omitempty"`
}

type CreateAssetResponse struct {
	AssetID string `json:"asset_id"`
	EventID int64  `json:"event_id"`
}

type SubmitFeedbackRequest struct {
	FeedbackID        string        `json:"feedback_id,omitempty"`
	TaskID            string        `json:"task_id,omitempty"`
	FromAgentID       string        `json:"from_agent_id,omitempty"`
	ToAgentID         string        `json:"to_agent_id,omitempty"`
	Category          string        `json:"category,omitempty"`
	Rating            *int64        `json:"rating,omitempty"`
	Comment           string        `json:"comment,omitempty"`
	SubmittedAt       string        `json:"submitted_at,omitempty" format:"date-time"`
	RevealReverse     bool          `json:"reveal_reverse,omitempty"`
	ReverseFeedbackID string        `json:"reverse_feedback_id,omitempty"`
	Event             EventEnvelope `json:"event,omitempty"`
}

type SubmitFeedbackResponse struct {
	FeedbackID string `json:"feedback_id"`
	EventID    int64  `json:"event_id"`
	Replayed   bool   `json:"replayed,omitempty"`
}

type FileClaimRequest struct {
	ClaimID      string        `json:"claim_id,omitempty"`
	TaskID       string        `json:"task_id,omitempty"`
	ClaimantID   string        `json:"claimant_id,omitempty"`
	RespondentID *string       `json:"respondent_id,omitempty"`
	Reason       string        `json:"reason,omitempty"`
	Status       string        `json:"status,omitempty"`
	FiledAt      string        `json:"filed_at,omitempty" format:"date-time"`
	Event        EventEnvelope `json:"event,omitempty"`
}

type FileClaimResponse struct {
	ClaimID  string `json:"claim_id"`
	EventID  int64  `json:"event_id"`
	Replayed bool   `json:"replayed,omitempty"`
}

type SubmitRebuttalRequest struct {
	RebuttalID  string        `json:"rebuttal_id,omitempty"`
	ClaimID     string        `json:"claim_id,omitempty"`
	AgentID     string        `json:"agent_id,omitempty"`
	Statement   string        `json:"statement,omitempty"`
	SubmittedAt string        `json:"submitted_at,omitempty" format:"date-time"`
	Event       EventEnvelope `json:"event,omitempty"`
}

type SubmitRebuttalResponse struct {
	RebuttalID string `json:"rebuttal_id"`
	EventID    int64  `json:"event_id"`
}

type SubmitRulingRequest struct {
	RulingID          string        `json:"ruling_id,omitempty"`
	ClaimID           string        `json:"claim_id,omitempty"`
	TaskID            *string       `json:"task_id,omitempty"`
	Verdict           string        `json:"verdict,omitempty"`
	Rationale         string        `json:"rationale,omitempty"`
	DecidedAt         string        `json:"decided_at,omitempty" format:"date-time"`
	ClaimStatusUpdate string        `json:"claim_status_update,omitempty"`
	Event             EventEnvelope `json:"event,omitempty"`
}

type SubmitRulingResponse struct {
	RulingID string `json:"ruling_id"`
	EventID  int64  `json:"event_id"`
}

type HealthResponse struct {
	Status            string `json:"status"`
	UptimeSeconds     int64  `json:"uptime_seconds"`
	StartedAt         string `json:"started_at" format:"date-time"`
	DatabaseSizeBytes int64  `json:"database_size_bytes"`
	TotalEvents       int64  `json:"total_events"`
}
