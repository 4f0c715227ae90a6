package gateway

import (
	"context"
	"database/sql"
	"errors"

	"agoragate/internal/domain"
	"agoragate/internal/events"
	"agoragate/internal/repo"
)

type InitialCredit struct {
	TxID      string
	Reference string
}

type CreateAccountInput struct {
	AccountID     string
	Balance       int64
	CreatedAt     string
	InitialCredit *InitialCredit
	Event         events.Input
}

type CreateAccountResult struct {
	AccountID string
	Balance   int64
	EventID   int64
	Replayed  bool
}

// CreateAccount opens the one account an agent may hold. When the opening
// balance is positive and initial_credit is supplied, a credit ledger row
// for the opening balance is written in the same unit.
func (g *Gateway) CreateAccount(ctx context.Context, in CreateAccountInput) (CreateAccountResult, error) {
	var res CreateAccountResult
	if in.AccountID == "" {
		return res, missingField("account_id")
	}
	if in.Balance < 0 {
		return res, invalidAmount("balance")
	}
	if err := validateEvent(in.Event); err != nil {
		return res, err
	}
	if in.CreatedAt == "" {
		in.CreatedAt = g.timestamp()
	}

	err := g.write(ctx, func(ctx context.Context, tx *sql.Tx) error {
		existing, err := g.Repo.GetAccountTx(ctx, tx, in.AccountID)
		if err == nil {
			if existing.Balance == in.Balance {
				res = CreateAccountResult{AccountID: existing.AccountID, Balance: existing.Balance, EventID: existing.EventID, Replayed: true}
				return nil
			}
			return conflict(CodeAccountExists, "account already exists")
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return err
		}
		if _, err := g.Repo.GetAgentTx(ctx, tx, in.AccountID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return conflict(CodeForeignKeyViolation, "owning agent does not exist")
			}
			return err
		}

		eventID, err := g.Events.Append(ctx, tx, in.Event)
		if err != nil {
			return err
		}
		a := domain.Account{
			AccountID: in.AccountID,
			Balance:   in.Balance,
			CreatedAt: in.CreatedAt,
			EventID:   eventID,
		}
		if err := g.Repo.InsertAccount(ctx, tx, a); err != nil {
			return err
		}
		if in.InitialCredit != nil && in.Balance > 0 {
			txID := in.InitialCredit.TxID
			if txID == "" {
				txID = newID(domain.PrefixTransaction)
			}
			reference := in.InitialCredit.Reference
			if reference == "" {
				reference = "initial"
			}
			t := domain.Transaction{
				TxID:         txID,
				AccountID:    in.AccountID,
				Type:         domain.TxCredit,
				Amount:       in.Balance,
				Reference:    &reference,
				BalanceAfter: in.Balance,
				Timestamp:    in.CreatedAt,
				EventID:      eventID,
			}
			if err := g.Repo.InsertTransaction(ctx, tx, t); err != nil {
				return err
			}
		}
		res = CreateAccountResult{AccountID: a.AccountID, Balance: a.Balance, EventID: eventID}
		return nil
	})
	return res, err
}

type CreditInput struct {
	TxID      string
	AccountID string
	Amount    int64
	Reference string
	Timestamp string
	Event     events.Input
}

type CreditResult struct {
	TxID         string
	BalanceAfter int64
	EventID      int64
	Replayed     bool
}

// Credit adds funds to an account. Idempotent on (account_id, reference):
// an identical retry returns the original transaction without re-crediting,
// a retry with a different amount is a REFERENCE_CONFLICT.
func (g *Gateway) Credit(ctx context.Context, in CreditInput) (CreditResult, error) {
	var res CreditResult
	if in.AccountID == "" {
		return res, missingField("account_id")
	}
	if in.Reference == "" {
		return res, missingField("reference")
	}
	if in.Amount <= 0 {
		return res, invalidAmount("amount")
	}
	if err := validateEvent(in.Event); err != nil {
		return res, err
	}
	if in.TxID == "" {
		in.TxID = newID(domain.PrefixTransaction)
	}
	if in.Timestamp == "" {
		in.Timestamp = g.timestamp()
	}

	err := g.write(ctx, func(ctx context.Context, tx *sql.Tx) error {
		account, err := g.Repo.GetAccountTx(ctx, tx, in.AccountID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return notFound(CodeAccountNotFound, "account", in.AccountID)
			}
			return err
		}
		existing, err := g.Repo.GetCreditByReferenceTx(ctx, tx, in.AccountID, in.Reference)
		if err == nil {
			if existing.Amount == in.Amount {
				res = CreditResult{TxID: existing.TxID, BalanceAfter: existing.BalanceAfter, EventID: existing.EventID, Replayed: true}
				return nil
			}
			return conflict(CodeReferenceConflict, "reference was already used with a different amount")
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return err
		}

		eventID, err := g.Events.Append(ctx, tx, in.Event)
		if err != nil {
			return err
		}
		balanceAfter := account.Balance + in.Amount
		if err := g.Repo.UpdateAccountBalance(ctx, tx, in.AccountID, balanceAfter); err != nil {
			return err
		}
		t := domain.Transaction{
			TxID:         in.TxID,
			AccountID:    in.AccountID,
			Type:         domain.TxCredit,
			Amount:       in.Amount,
			Reference:    &in.Reference,
			BalanceAfter: balanceAfter,
			Timestamp:    in.Timestamp,
			EventID:      eventID,
		}
		if err := g.Repo.InsertTransaction(ctx, tx, t); err != nil {
			return err
		}
		res = CreditResult{TxID: in.TxID, BalanceAfter: balanceAfter, EventID: eventID}
		return nil
	})
	return res, err
}

type EscrowLockInput struct {
	EscrowID       string
	PayerAccountID string
	Amount         int64
	TaskID         string
	TxID           string
	CreatedAt      string
	Event          events.Input
}

type EscrowLockResult struct {
	EscrowID     string
	BalanceAfter int64
	EventID      int64
	Replayed     bool
}

// EscrowLock debits the payer and holds the funds against a task. Idempotent
// on (payer_account_id, task_id); a differing amount under the same pair is
// ESCROW_ALREADY_LOCKED. The balance can never go negative: a lock the
// balance cannot cover fails with INSUFFICIENT_FUNDS and no state change.
func (g *Gateway) EscrowLock(ctx context.Context, in EscrowLockInput) (EscrowLockResult, error) {
	var res EscrowLockResult
	switch {
	case in.EscrowID == "":
		return res, missingField("escrow_id")
	case in.PayerAccountID == "":
		return res, missingField("payer_account_id")
	case in.TaskID == "":
		return res, missingField("task_id")
	}
	if in.Amount <= 0 {
		return res, invalidAmount("amount")
	}
	if err := validateEvent(in.Event); err != nil {
		return res, err
	}
	if in.TxID == "" {
		in.TxID = newID(domain.PrefixTransaction)
	}
	if in.CreatedAt == "" {
		in.CreatedAt = g.timestamp()
	}

	err := g.write(ctx, func(ctx context.Context, tx *sql.Tx) error {
		account, err := g.Repo.GetAccountTx(ctx, tx, in.PayerAccountID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return notFound(CodeAccountNotFound, "account", in.PayerAccountID)
			}
			return err
		}
		existing, err := g.Repo.GetEscrowByPayerTaskTx(ctx, tx, in.PayerAccountID, in.TaskID)
		if err == nil {
			if existing.Amount == in.Amount {
				lockTx, err := g.Repo.GetEscrowLockTxByEscrowTx(ctx, tx, existing.EscrowID)
				if err != nil {
					return err
				}
				res = EscrowLockResult{EscrowID: existing.EscrowID, BalanceAfter: lockTx.BalanceAfter, EventID: existing.EventID, Replayed: true}
				return nil
			}
			return conflict(CodeEscrowAlreadyLocked, "an escrow for this payer and task already exists")
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return err
		}
		if account.Balance < in.Amount {
			return insufficientFunds(in.PayerAccountID, account.Balance, in.Amount)
		}

		eventID, err := g.Events.Append(ctx, tx, in.Event)
		if err != nil {
			return err
		}
		balanceAfter := account.Balance - in.Amount
		if err := g.Repo.UpdateAccountBalance(ctx, tx, in.PayerAccountID, balanceAfter); err != nil {
			return err
		}
		t := domain.Transaction{
			TxID:         in.TxID,
			AccountID:    in.PayerAccountID,
			Type:         domain.TxEscrowLock,
			Amount:       in.Amount,
			Reference:    &in.EscrowID,
			BalanceAfter: balanceAfter,
			Timestamp:    in.CreatedAt,
			EventID:      eventID,
		}
		if err := g.Repo.InsertTransaction(ctx, tx, t); err != nil {
			return err
		}
		e := domain.Escrow{
			EscrowID:       in.EscrowID,
			PayerAccountID: in.PayerAccountID,
			Amount:         in.Amount,
			TaskID:         in.TaskID,
			Status:         domain.EscrowLocked,
			CreatedAt:      in.CreatedAt,
			EventID:        eventID,
		}
		if err := g.Repo.InsertEscrow(ctx, tx, e); err != nil {
			return err
		}
		res = EscrowLockResult{EscrowID: in.EscrowID, BalanceAfter: balanceAfter, EventID: eventID}
		return nil
	})
	return res, err
}

type EscrowReleaseInput struct {
	EscrowID           string
	RecipientAccountID string
	TxID               string
	ResolvedAt         string
	Event              events.Input
}

type EscrowReleaseResult struct {
	EscrowID string
	Status   string
	Amount   int64
	EventID  int64
}

// EscrowRelease credits the full escrow amount to the recipient and moves
// the escrow to its terminal released state, in one unit: the escrow is
// never observed locked while the recipient has already been credited.
func (g *Gateway) EscrowRelease(ctx context.Context, in EscrowReleaseInput) (EscrowReleaseResult, error) {
	var res EscrowReleaseResult
	switch {
	case in.EscrowID == "":
		return res, missingField("escrow_id")
	case in.RecipientAccountID == "":
		return res, missingField("recipient_account_id")
	}
	if err := validateEvent(in.Event); err != nil {
		return res, err
	}
	if in.TxID == "" {
		in.TxID = newID(domain.PrefixTransaction)
	}
	if in.ResolvedAt == "" {
		in.ResolvedAt = g.timestamp()
	}

	err := g.write(ctx, func(ctx context.Context, tx *sql.Tx) error {
		escrow, err := g.Repo.GetEscrowTx(ctx, tx, in.EscrowID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return notFound(CodeEscrowNotFound, "escrow", in.EscrowID)
			}
			return err
		}
		if escrow.Status != domain.EscrowLocked {
			return conflict(CodeEscrowAlreadyResolved, "escrow is already "+escrow.Status)
		}
		recipient, err := g.Repo.GetAccountTx(ctx, tx, in.RecipientAccountID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return notFound(CodeAccountNotFound, "account", in.RecipientAccountID)
			}
			return err
		}

		eventID, err := g.Events.Append(ctx, tx, in.Event)
		if err != nil {
			return err
		}
		balanceAfter := recipient.Balance + escrow.Amount
		if err := g.Repo.UpdateAccountBalance(ctx, tx, in.RecipientAccountID, balanceAfter); err != nil {
			return err
		}
		t := domain.Transaction{
			TxID:         in.TxID,
			AccountID:    in.RecipientAccountID,
			Type:         domain.TxEscrowRelease,
			Amount:       escrow.Amount,
			Reference:    &in.EscrowID,
			BalanceAfter: balanceAfter,
			Timestamp:    in.ResolvedAt,
			EventID:      eventID,
		}
		if err := g.Repo.InsertTransaction(ctx, tx, t); err != nil {
			return err
		}
		if err := g.Repo.ResolveEscrow(ctx, tx, in.EscrowID, domain.EscrowReleased, in.ResolvedAt); err != nil {
			return err
		}
		res = EscrowReleaseResult{EscrowID: in.EscrowID, Status: domain.EscrowReleased, Amount: escrow.Amount, EventID: eventID}
		return nil
	})
	return res, err
}

type EscrowSplitInput struct {
	EscrowID        string
	WorkerAccountID string
	WorkerAmount    int64
	WorkerTxID      string
	PosterAccountID string
	PosterAmount    int64
	PosterTxID      string
	ResolvedAt      string
	Event           events.Input
}

type EscrowSplitResult struct {
	EscrowID     string
	Status       string
	WorkerAmount int64
	PosterAmount int64
	EventID      int64
}

// EscrowSplit distributes a locked escrow between worker and poster. The
// shares must sum exactly to the locked amount before any credit is
// applied; a zero share produces no ledger row.
func (g *Gateway) EscrowSplit(ctx context.Context, in EscrowSplitInput) (EscrowSplitResult, error) {
	var res EscrowSplitResult
	switch {
	case in.EscrowID == "":
		return res, missingField("escrow_id")
	case in.WorkerAccountID == "":
		return res, missingField("worker_account_id")
	case in.PosterAccountID == "":
		return res, missingField("poster_account_id")
	}
	if in.WorkerAmount < 0 {
		return res, invalidAmount("worker_amount")
	}
	if in.PosterAmount < 0 {
		return res, invalidAmount("poster_amount")
	}
	if err := validateEvent(in.Event); err != nil {
		return res, err
	}
	if in.WorkerTxID == "" {
		in.WorkerTxID = newID(domain.PrefixTransaction)
	}
	if in.PosterTxID == "" {
		in.PosterTxID = newID(domain.PrefixTransaction)
	}
	if in.ResolvedAt == "" {
		in.ResolvedAt = g.timestamp()
	}

	err := g.write(ctx, func(ctx context.Context, tx *sql.Tx) error {
		escrow, err := g.Repo.GetEscrowTx(ctx, tx, in.EscrowID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return notFound(CodeEscrowNotFound, "escrow", in.EscrowID)
			}
			return err
		}
		if escrow.Status != domain.EscrowLocked {
			return conflict(CodeEscrowAlreadyResolved, "escrow is already "+escrow.Status)
		}
		if in.WorkerAmount+in.PosterAmount != escrow.Amount {
			return amountMismatch(escrow.Amount, in.WorkerAmount, in.PosterAmount)
		}

		eventID, err := g.Events.Append(ctx, tx, in.Event)
		if err != nil {
			return err
		}
		shares := []struct {
			accountID string
			amount    int64
			txID      string
		}{
			{in.WorkerAccountID, in.WorkerAmount, in.WorkerTxID},
			{in.PosterAccountID, in.PosterAmount, in.PosterTxID},
		}
		for _, s := range shares {
			account, err := g.Repo.GetAccountTx(ctx, tx, s.accountID)
			if err != nil {
				if errors.Is(err, repo.ErrNotFound) {
					return notFound(CodeAccountNotFound, "account", s.accountID)
				}
				return err
			}
			if s.amount == 0 {
				continue
			}
			balanceAfter := account.Balance + s.amount
			if err := g.Repo.UpdateAccountBalance(ctx, tx, s.accountID, balanceAfter); err != nil {
				return err
			}
			t := domain.Transaction{
				TxID:         s.txID,
				AccountID:    s.accountID,
				Type:         domain.TxEscrowRelease,
				Amount:       s.amount,
				Reference:    &in.EscrowID,
				BalanceAfter: balanceAfter,
				Timestamp:    in.ResolvedAt,
				EventID:      eventID,
			}
			if err := g.Repo.InsertTransaction(ctx, tx, t); err != nil {
				return err
			}
		}
		if err := g.Repo.ResolveEscrow(ctx, tx, in.EscrowID, domain.EscrowSplit, in.ResolvedAt); err != nil {
			return err
		}
		res = EscrowSplitResult{
			EscrowID:     in.EscrowID,
			Status:       domain.EscrowSplit,
			WorkerAmount: in.WorkerAmount,
			PosterAmount: in.PosterAmount,
			EventID:      eventID,
		}
		return nil
	})
	return res, err
}
