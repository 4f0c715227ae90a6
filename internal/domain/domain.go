package domain

// Identifier prefixes. All IDs are opaque domain-prefixed strings.
const (
	PrefixAgent       = "a"
	PrefixTask        = "t"
	PrefixEscrow      = "esc"
	PrefixTransaction = "tx"
	PrefixBid         = "bid"
	PrefixAsset       = "asset"
	PrefixFeedback    = "fb"
	PrefixClaim       = "clm"
	PrefixRebuttal    = "reb"
	PrefixRuling      = "rul"
)

// Ledger entry types.
const (
	TxCredit        = "credit"
	TxEscrowLock    = "escrow_lock"
	TxEscrowRelease = "escrow_release"
)

// Escrow states. locked is the only non-terminal state.
const (
	EscrowLocked   = "locked"
	EscrowReleased = "released"
	EscrowSplit    = "split"
)

type Agent struct {
	AgentID      string `json:"agent_id"`
	Name         string `json:"name"`
	PublicKey    string `json:"public_key"`
	RegisteredAt string `json:"registered_at" format:"date-time"`
	EventID      int64  `json:"event_id,omitempty"`
}

type Account struct {
	AccountID string `json:"account_id"`
	Balance   int64  `json:"balance"`
	CreatedAt string `json:"created_at" format:"date-time"`
	EventID   int64  `json:"event_id,omitempty"`
}

// Transaction is one append-only ledger entry. BalanceAfter is the balance
// snapshot at commit time, never recomputed later.
type Transaction struct {
	TxID         string  `json:"tx_id"`
	AccountID    string  `json:"account_id"`
	Type         string  `json:"type" enum:"credit,escrow_lock,escrow_release"`
	Amount       int64   `json:"amount"`
	Reference    *string `json:"reference,omitempty"`
	BalanceAfter int64   `json:"balance_after"`
	Timestamp    string  `json:"timestamp" format:"date-time"`
	EventID      int64   `json:"event_id,omitempty"`
}

type Escrow struct {
	EscrowID       string  `json:"escrow_id"`
	PayerAccountID string  `json:"payer_account_id"`
	Amount         int64   `json:"amount"`
	TaskID         string  `json:"task_id"`
	Status         string  `json:"status" enum:"locked,released,split"`
	CreatedAt      string  `json:"created_at" format:"date-time"`
	ResolvedAt     *string `json:"resolved_at,omitempty" format:"date-time"`
	EventID        int64   `json:"event_id,omitempty"`
}

type Task struct {
	TaskID        string  `json:"task_id"`
	PosterID      string  `json:"poster_id"`
	Title         string  `json:"title"`
	Spec          string  `json:"spec"`
	Reward        int64   `json:"reward"`
	Status        string  `json:"status"`
	EscrowID      *string `json:"escrow_id,omitempty"`
	WorkerID      *string `json:"worker_id,omitempty"`
	CreatedAt     string  `json:"created_at" format:"date-time"`
	UpdatedAt     *string `json:"updated_at,omitempty" format:"date-time"`
	AssignedAt    *string `json:"assigned_at,omitempty" format:"date-time"`
	StartedAt     *string `json:"started_at,omitempty" format:"date-time"`
	SubmittedAt   *string `json:"submitted_at,omitempty" format:"date-time"`
	CompletedAt   *string `json:"completed_at,omitempty" format:"date-time"`
	Deadline      *string `json:"deadline,omitempty" format:"date-time"`
	DisputeID     *string `json:"dispute_id,omitempty"`
	DisputeStatus *string `json:"dispute_status,omitempty"`
	EventID       int64   `json:"event_id,omitempty"`
}

type Bid struct {
	BidID       string `json:"bid_id"`
	TaskID      string `json:"task_id"`
	BidderID    string `json:"bidder_id"`
	Proposal    string `json:"proposal"`
	SubmittedAt string `json:"submitted_at" format:"date-time"`
	EventID     int64  `json:"event_id,omitempty"`
}

type Asset struct {
	AssetID     string `json:"asset_id"`
	TaskID      string `json:"task_id"`
	UploaderID  string `json:"uploader_id"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type,omitempty"`
	SizeBytes   int64  `json:"size_bytes,omitempty"`
	StoragePath string `json:"storage_path,omitempty"`
	UploadedAt  string `json:"uploaded_at" format:"date-time"`
	EventID     int64  `json:"event_id,omitempty"`
}

type Feedback struct {
	FeedbackID  string `json:"feedback_id"`
	TaskID      string `json:"task_id"`
	FromAgentID string `json:"from_agent_id"`
	ToAgentID   string `json:"to_agent_id"`
	Category    string `json:"category"`
	Rating      int64  `json:"rating"`
	Comment     string `json:"comment,omitempty"`
	SubmittedAt string `json:"submitted_at" format:"date-time"`
	Visible     bool   `json:"visible"`
	EventID     int64  `json:"event_id,omitempty"`
}

type Claim struct {
	ClaimID      string  `json:"claim_id"`
	TaskID       string  `json:"task_id"`
	ClaimantID   string  `json:"claimant_id"`
	RespondentID *string `json:"respondent_id,omitempty"`
	Reason       string  `json:"reason"`
	Status       string  `json:"status"`
	FiledAt      string  `json:"filed_at" format:"date-time"`
	EventID      int64   `json:"event_id,omitempty"`
}

type Rebuttal struct {
	RebuttalID  string `json:"rebuttal_id"`
	ClaimID     string `json:"claim_id"`
	AgentID     string `json:"agent_id"`
	Statement   string `json:"statement"`
	SubmittedAt string `json:"submitted_at" format:"date-time"`
	EventID     int64  `json:"event_id,omitempty"`
}

type Ruling struct {
	RulingID  string  `json:"ruling_id"`
	ClaimID   string  `json:"claim_id"`
	TaskID    *string `json:"task_id,omitempty"`
	Verdict   string  `json:"verdict"`
	Rationale string  `json:"rationale,omitempty"`
	DecidedAt string  `json:"decided_at" format:"date-time"`
	EventID   int64   `json:"event_id,omitempty"`
}

type Event struct {
	EventID     int64  `json:"event_id"`
	EventSource string `json:"event_source"`
	EventType   string `json:"event_type"`
	AgentID     string `json:"agent_id,omitempty"`
	TaskID      string `json:"task_id,omitempty"`
	Summary     string `json:"summary,omitempty"`
	Payload     string `json:"payload,omitempty"`
	Timestamp   string `json:"timestamp" format:"date-time"`
}
