package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Taxonomy codes. Every failure reachable from a malformed or conflicting
// request maps to exactly one of these before crossing the HTTP boundary.
const (
	CodeMissingField   = "MISSING_FIELD"
	CodeInvalidAmount  = "INVALID_AMOUNT"
	CodeInvalidField   = "INVALID_FIELD"
	CodeEmptyUpdates   = "EMPTY_UPDATES"
	CodeAmountMismatch = "AMOUNT_MISMATCH"
	CodeInvalidJSON    = "INVALID_JSON"

	CodeAccountNotFound  = "ACCOUNT_NOT_FOUND"
	CodeEscrowNotFound   = "ESCROW_NOT_FOUND"
	CodeTaskNotFound     = "TASK_NOT_FOUND"
	CodeAgentNotFound    = "AGENT_NOT_FOUND"
	CodeClaimNotFound    = "CLAIM_NOT_FOUND"
	CodeFeedbackNotFound = "FEEDBACK_NOT_FOUND"

	CodeAgentExists           = "AGENT_EXISTS"
	CodePublicKeyExists       = "PUBLIC_KEY_EXISTS"
	CodeAccountExists         = "ACCOUNT_EXISTS"
	CodeTaskExists            = "TASK_EXISTS"
	CodeBidExists             = "BID_EXISTS"
	CodeAssetExists           = "ASSET_EXISTS"
	CodeFeedbackExists        = "FEEDBACK_EXISTS"
	CodeClaimExists           = "CLAIM_EXISTS"
	CodeRebuttalExists        = "REBUTTAL_EXISTS"
	CodeRulingExists          = "RULING_EXISTS"
	CodeReferenceConflict     = "REFERENCE_CONFLICT"
	CodeEscrowAlreadyLocked   = "ESCROW_ALREADY_LOCKED"
	CodeEscrowAlreadyResolved = "ESCROW_ALREADY_RESOLVED"
	CodeForeignKeyViolation   = "FOREIGN_KEY_VIOLATION"

	CodeInsufficientFunds = "INSUFFICIENT_FUNDS"
	CodeStoreBusy         = "STORE_BUSY"
	CodeInternal          = "INTERNAL"
)

// Error is the gateway's explicit result type for failures: a taxonomy
// code, the HTTP status it maps to, and a caller-safe message. Driver
// messages, stack traces and file paths never ride along.
type Error struct {
	Code    string
	Status  int
	Message string
	Details map[string]any
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

func newError(status int, code, msg string) *Error {
	return &Error{Code: code, Status: status, Message: msg}
}

func missingField(name string) *Error {
	e := newError(http.StatusBadRequest, CodeMissingField, fmt.Sprintf("%s is required", name))
	e.Details = map[string]any{"field": name}
	return e
}

func invalidAmount(name string) *Error {
	e := newError(http.StatusBadRequest, CodeInvalidAmount, fmt.Sprintf("%s must be a positive integer", name))
	e.Details = map[string]any{"field": name}
	return e
}

func invalidField(name, reason string) *Error {
	e := newError(http.StatusBadRequest, CodeInvalidField, fmt.Sprintf("%s %s", name, reason))
	e.Details = map[string]any{"field": name}
	return e
}

func notFound(code, what, id string) *Error {
	e := newError(http.StatusNotFound, code, fmt.Sprintf("%s %s does not exist", what, id))
	e.Details = map[string]any{"id": id}
	return e
}

func conflict(code, msg string) *Error {
	return newError(http.StatusConflict, code, msg)
}

func insufficientFunds(accountID string, balance, amount int64) *Error {
	e := newError(http.StatusPaymentRequired, CodeInsufficientFunds,
		fmt.Sprintf("account %s balance %d cannot cover %d", accountID, balance, amount))
	e.Details = map[string]any{"account_id": accountID, "balance": balance, "amount": amount}
	return e
}

func amountMismatch(escrowAmount, workerAmount, posterAmount int64) *Error {
	e := newError(http.StatusBadRequest, CodeAmountMismatch, "split shares must sum to the escrow amount")
	e.Details = map[string]any{
		"escrow_amount": escrowAmount,
		"worker_amount": workerAmount,
		"poster_amount": posterAmount,
	}
	return e
}

func storeBusy() *Error {
	return newError(http.StatusServiceUnavailable, CodeStoreBusy, "store is busy, retry the request")
}

// uniqueConstraintCodes maps a violated unique constraint to its taxonomy
// member. Keys are the "table.column" names SQLite reports.
var uniqueConstraintCodes = map[string]string{
	"agents.agent_id":             CodeAgentExists,
	"agents.public_key":           CodePublicKeyExists,
	"bank_accounts.account_id":    CodeAccountExists,
	"bank_transactions.tx_id":     CodeReferenceConflict,
	"bank_transactions.reference": CodeReferenceConflict,
	"escrows.escrow_id":           CodeEscrowAlreadyLocked,
	"escrows.task_id":             CodeEscrowAlreadyLocked,
	"board_tasks.task_id":         CodeTaskExists,
	"board_bids.bid_id":           CodeBidExists,
	"board_bids.bidder_id":        CodeBidExists,
	"board_assets.asset_id":       CodeAssetExists,
	"feedback.feedback_id":        CodeFeedbackExists,
	"feedback.to_agent_id":        CodeFeedbackExists,
	"court_claims.claim_id":       CodeClaimExists,
	"court_rebuttals.rebuttal_id": CodeRebuttalExists,
	"court_rulings.ruling_id":     CodeRulingExists,
	// Partial indexes are reported by name, not column list.
	"idx_bank_tx_account_reference": CodeReferenceConflict,
}

// mapStorageErr converts a storage-layer failure into a taxonomy error.
// The idempotency pre-checks produce the precise errors for the common
// cases; this is the final arbiter for races the pre-check lost.
func mapStorageErr(err error) *Error {
	var ge *Error
	if errors.As(err, &ge) {
		return ge
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return conflict(uniqueCode(err.Error()), "a row with this key already exists")
		case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
			return conflict(CodeForeignKeyViolation, "a referenced row does not exist")
		case sqlite3.SQLITE_CONSTRAINT_CHECK:
			return newError(http.StatusBadRequest, CodeInvalidAmount, "a numeric field is out of range")
		}
		if se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT {
			return conflict(CodeForeignKeyViolation, "the write violates a storage constraint")
		}
	}
	return newError(http.StatusInternalServerError, CodeInternal, "internal error")
}

func uniqueCode(driverMsg string) string {
	// SQLite reports "UNIQUE constraint failed: table.col, table.col".
	// The last column in the message identifies the constraint.
	for key, code := range uniqueConstraintCodes {
		if strings.Contains(driverMsg, key) {
			return code
		}
	}
	return CodeForeignKeyViolation
}
