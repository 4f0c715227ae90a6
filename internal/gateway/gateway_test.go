package gateway

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"agoragate/internal/config"
	"agoragate/internal/db"
	"agoragate/internal/domain"
	"agoragate/internal/events"
	"agoragate/internal/migrate"
)

func taskFixture(taskID, posterID string) domain.Task {
	return domain.Task{
		TaskID:   taskID,
		PosterID: posterID,
		Title:    "build the thing",
		Spec:     "a thing that does the thing",
		Reward:   100,
		Status:   "open",
	}
}

func feedbackFixture(taskID, from, to string, rating int64) domain.Feedback {
	return domain.Feedback{
		TaskID:      taskID,
		FromAgentID: from,
		ToAgentID:   to,
		Category:    "quality",
		Rating:      rating,
	}
}

func claimFixture(claimID, taskID, claimantID string) domain.Claim {
	return domain.Claim{
		ClaimID:    claimID,
		TaskID:     taskID,
		ClaimantID: claimantID,
		Reason:     "work was not delivered",
	}
}

func rulingFixture(claimID string) domain.Ruling {
	return domain.Ruling{
		ClaimID: claimID,
		Verdict: "claimant",
	}
}

func newGateway(t *testing.T) *Gateway {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	handles, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { handles.Close() })
	if err := migrate.Migrate(handles.Writer); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return New(handles, config.Default(workspace))
}

func testEvent(source, typ string) events.Input {
	return events.Input{Source: source, Type: typ}
}

func mustRegisterAgent(t *testing.T, g *Gateway, agentID, publicKey string) {
	t.Helper()
	_, err := g.RegisterAgent(context.Background(), RegisterAgentInput{
		AgentID:   agentID,
		Name:      "agent " + agentID,
		PublicKey: publicKey,
		Event:     testEvent("identity", "agent.registered"),
	})
	if err != nil {
		t.Fatalf("register agent %s: %v", agentID, err)
	}
}

func mustCreateAccount(t *testing.T, g *Gateway, accountID string, balance int64) {
	t.Helper()
	_, err := g.CreateAccount(context.Background(), CreateAccountInput{
		AccountID: accountID,
		Balance:   balance,
		Event:     testEvent("bank", "account.created"),
	})
	if err != nil {
		t.Fatalf("create account %s: %v", accountID, err)
	}
}

func gatewayErr(t *testing.T, err error) *Error {
	t.Helper()
	var ge *Error
	if !errors.As(err, &ge) {
		t.Fatalf("expected gateway error, got %v", err)
	}
	return ge
}

func eventCount(t *testing.T, g *Gateway) int64 {
	t.Helper()
	n, err := g.Repo.CountEvents(context.Background())
	if err != nil {
		t.Fatalf("count events: %v", err)
	}
	return n
}

func TestRegisterAgentReplayAndConflict(t *testing.T) {
	g := newGateway(t)
	ctx := context.Background()

	first, err := g.RegisterAgent(ctx, RegisterAgentInput{
		AgentID: "a-1", Name: "alice", PublicKey: "pk-1",
		Event: testEvent("identity", "agent.registered"),
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if first.Replayed {
		t.Fatal("first registration marked replayed")
	}

	replay, err := g.RegisterAgent(ctx, RegisterAgentInput{
		AgentID: "a-1", Name: "alice", PublicKey: "pk-1",
		Event: testEvent("identity", "agent.registered"),
	})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !replay.Replayed {
		t.Fatal("identical retry not marked replayed")
	}
	if replay.EventID != first.EventID {
		t.Fatalf("replay event id %d, want original %d", replay.EventID, first.EventID)
	}
	if n := eventCount(t, g); n != 1 {
		t.Fatalf("events after replay = %d, want 1", n)
	}

	_, err = g.RegisterAgent(ctx, RegisterAgentInput{
		AgentID: "a-2", Name: "bob", PublicKey: "pk-1",
		Event: testEvent("identity", "agent.registered"),
	})
	ge := gatewayErr(t, err)
	if ge.Code != CodePublicKeyExists || ge.Status != 409 {
		t.Fatalf("got %s/%d, want PUBLIC_KEY_EXISTS/409", ge.Code, ge.Status)
	}
}

func TestCreditIdempotencyByReference(t *testing.T) {
	g := newGateway(t)
	ctx := context.Background()
	mustRegisterAgent(t, g, "a-1", "pk-1")
	mustCreateAccount(t, g, "a-1", 0)

	first, err := g.Credit(ctx, CreditInput{
		AccountID: "a-1", Amount: 100, Reference: "seed-1",
		Event: testEvent("bank", "account.credited"),
	})
	if err != nil {
		t.Fatalf("credit: %v", err)
	}
	if first.BalanceAfter != 100 {
		t.Fatalf("balance after = %d, want 100", first.BalanceAfter)
	}

	replay, err := g.Credit(ctx, CreditInput{
		AccountID: "a-1", Amount: 100, Reference: "seed-1",
		Event: testEvent("bank", "account.credited"),
	})
	if err != nil {
		t.Fatalf("replayed credit: %v", err)
	}
	if !replay.Replayed || replay.TxID != first.TxID || replay.EventID != first.EventID {
		t.Fatalf("replay = %+v, want original tx %s event %d", replay, first.TxID, first.EventID)
	}
	account, err := g.Repo.GetAccount(ctx, "a-1")
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if account.Balance != 100 {
		t.Fatalf("balance double-applied: %d", account.Balance)
	}

	_, err = g.Credit(ctx, CreditInput{
		AccountID: "a-1", Amount: 250, Reference: "seed-1",
		Event: testEvent("bank", "account.credited"),
	})
	if ge := gatewayErr(t, err); ge.Code != CodeReferenceConflict {
		t.Fatalf("got %s, want REFERENCE_CONFLICT", ge.Code)
	}

	_, err = g.Credit(ctx, CreditInput{
		AccountID: "nope", Amount: 10, Reference: "x",
		Event: testEvent("bank", "account.credited"),
	})
	if ge := gatewayErr(t, err); ge.Code != CodeAccountNotFound || ge.Status != 404 {
		t.Fatalf("got %s/%d, want ACCOUNT_NOT_FOUND/404", ge.Code, ge.Status)
	}
}

func TestFailedWriteLeavesNoEvent(t *testing.T) {
	g := newGateway(t)
	ctx := context.Background()
	mustRegisterAgent(t, g, "a-1", "pk-1")
	before := eventCount(t, g)

	_, err := g.CreateAccount(ctx, CreateAccountInput{
		AccountID: "ghost", Balance: 10,
		Event: testEvent("bank", "account.created"),
	})
	if ge := gatewayErr(t, err); ge.Code != CodeForeignKeyViolation {
		t.Fatalf("got %s, want FOREIGN_KEY_VIOLATION", ge.Code)
	}
	if after := eventCount(t, g); after != before {
		t.Fatalf("failed write appended an event: %d -> %d", before, after)
	}
}

func TestEscrowLockInsufficientFunds(t *testing.T) {
	g := newGateway(t)
	ctx := context.Background()
	mustRegisterAgent(t, g, "a-1", "pk-1")
	mustCreateAccount(t, g, "a-1", 50)
	before := eventCount(t, g)

	_, err := g.EscrowLock(ctx, EscrowLockInput{
		EscrowID: "esc-1", PayerAccountID: "a-1", Amount: 75, TaskID: "t-1",
		Event: testEvent("bank", "escrow.locked"),
	})
	ge := gatewayErr(t, err)
	if ge.Code != CodeInsufficientFunds || ge.Status != 402 {
		t.Fatalf("got %s/%d, want INSUFFICIENT_FUNDS/402", ge.Code, ge.Status)
	}
	account, _ := g.Repo.GetAccount(ctx, "a-1")
	if account.Balance != 50 {
		t.Fatalf("balance changed on failed lock: %d", account.Balance)
	}
	if after := eventCount(t, g); after != before {
		t.Fatal("failed lock appended an event")
	}
}

func TestEscrowLifecycle(t *testing.T) {
	g := newGateway(t)
	ctx := context.Background()
	mustRegisterAgent(t, g, "payer", "pk-p")
	mustRegisterAgent(t, g, "worker", "pk-w")
	mustCreateAccount(t, g, "payer", 100)
	mustCreateAccount(t, g, "worker", 0)

	lock, err := g.EscrowLock(ctx, EscrowLockInput{
		EscrowID: "esc-1", PayerAccountID: "payer", Amount: 60, TaskID: "t-1",
		Event: testEvent("bank", "escrow.locked"),
	})
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	if lock.BalanceAfter != 40 {
		t.Fatalf("payer balance after lock = %d, want 40", lock.BalanceAfter)
	}

	replay, err := g.EscrowLock(ctx, EscrowLockInput{
		EscrowID: "esc-1", PayerAccountID: "payer", Amount: 60, TaskID: "t-1",
		Event: testEvent("bank", "escrow.locked"),
	})
	if err != nil {
		t.Fatalf("replay lock: %v", err)
	}
	if !replay.Replayed || replay.EventID != lock.EventID {
		t.Fatalf("replay = %+v, want original event %d", replay, lock.EventID)
	}

	_, err = g.EscrowLock(ctx, EscrowLockInput{
		EscrowID: "esc-2", PayerAccountID: "payer", Amount: 10, TaskID: "t-1",
		Event: testEvent("bank", "escrow.locked"),
	})
	if ge := gatewayErr(t, err); ge.Code != CodeEscrowAlreadyLocked {
		t.Fatalf("got %s, want ESCROW_ALREADY_LOCKED", ge.Code)
	}

	release, err := g.EscrowRelease(ctx, EscrowReleaseInput{
		EscrowID: "esc-1", RecipientAccountID: "worker",
		Event: testEvent("bank", "escrow.released"),
	})
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if release.Status != "released" || release.Amount != 60 {
		t.Fatalf("release = %+v", release)
	}
	worker, _ := g.Repo.GetAccount(ctx, "worker")
	if worker.Balance != 60 {
		t.Fatalf("worker balance = %d, want 60", worker.Balance)
	}

	_, err = g.EscrowRelease(ctx, EscrowReleaseInput{
		EscrowID: "esc-1", RecipientAccountID: "worker",
		Event: testEvent("bank", "escrow.released"),
	})
	if ge := gatewayErr(t, err); ge.Code != CodeEscrowAlreadyResolved {
		t.Fatalf("got %s, want ESCROW_ALREADY_RESOLVED", ge.Code)
	}
}

func TestEscrowSplitConservesAmount(t *testing.T) {
	g := newGateway(t)
	ctx := context.Background()
	mustRegisterAgent(t, g, "payer", "pk-p")
	mustRegisterAgent(t, g, "worker", "pk-w")
	mustCreateAccount(t, g, "payer", 100)
	mustCreateAccount(t, g, "worker", 0)

	if _, err := g.EscrowLock(ctx, EscrowLockInput{
		EscrowID: "esc-1", PayerAccountID: "payer", Amount: 100, TaskID: "t-1",
		Event: testEvent("bank", "escrow.locked"),
	}); err != nil {
		t.Fatalf("lock: %v", err)
	}

	_, err := g.EscrowSplit(ctx, EscrowSplitInput{
		EscrowID:        "esc-1",
		WorkerAccountID: "worker", WorkerAmount: 60,
		PosterAccountID: "payer", PosterAmount: 60,
		Event: testEvent("bank", "escrow.split"),
	})
	ge := gatewayErr(t, err)
	if ge.Code != CodeAmountMismatch || ge.Status != 400 {
		t.Fatalf("got %s/%d, want AMOUNT_MISMATCH/400", ge.Code, ge.Status)
	}

	split, err := g.EscrowSplit(ctx, EscrowSplitInput{
		EscrowID:        "esc-1",
		WorkerAccountID: "worker", WorkerAmount: 70,
		PosterAccountID: "payer", PosterAmount: 30,
		Event: testEvent("bank", "escrow.split"),
	})
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if split.Status != "split" {
		t.Fatalf("split status = %s", split.Status)
	}
	worker, _ := g.Repo.GetAccount(ctx, "worker")
	payer, _ := g.Repo.GetAccount(ctx, "payer")
	if worker.Balance != 70 || payer.Balance != 30 {
		t.Fatalf("balances = worker %d payer %d, want 70/30", worker.Balance, payer.Balance)
	}
	if worker.Balance+payer.Balance != 100 {
		t.Fatal("split did not conserve total")
	}
}

func TestConcurrentCreditsSameReference(t *testing.T) {
	g := newGateway(t)
	ctx := context.Background()
	mustRegisterAgent(t, g, "a-1", "pk-1")
	mustCreateAccount(t, g, "a-1", 0)

	const workers = 8
	var wg sync.WaitGroup
	results := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := g.Credit(ctx, CreditInput{
				AccountID: "a-1", Amount: 25, Reference: "burst-1",
				Event: testEvent("bank", "account.credited"),
			})
			results[i] = err
		}(i)
	}
	wg.Wait()

	for i, err := range results {
		if err != nil {
			t.Fatalf("worker %d: %v", i, err)
		}
	}
	account, _ := g.Repo.GetAccount(ctx, "a-1")
	if account.Balance != 25 {
		t.Fatalf("balance = %d, want 25 (credit applied exactly once)", account.Balance)
	}
	if n := eventCount(t, g); n < 1 {
		t.Fatalf("events = %d", n)
	}
}

func TestConcurrentEscrowLocksSingleWinner(t *testing.T) {
	g := newGateway(t)
	ctx := context.Background()
	mustRegisterAgent(t, g, "payer", "pk-p")
	mustCreateAccount(t, g, "payer", 100)

	// Two locks for different tasks, each wanting the full balance. The
	// write intent serializes them so exactly one can debit.
	locks := []EscrowLockInput{
		{EscrowID: "esc-1", PayerAccountID: "payer", Amount: 100, TaskID: "t-1", Event: testEvent("bank", "escrow.locked")},
		{EscrowID: "esc-2", PayerAccountID: "payer", Amount: 100, TaskID: "t-2", Event: testEvent("bank", "escrow.locked")},
	}
	var wg sync.WaitGroup
	results := make([]error, len(locks))
	for i := range locks {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := g.EscrowLock(ctx, locks[i])
			results[i] = err
		}(i)
	}
	wg.Wait()

	var locked, refused int
	for _, err := range results {
		if err == nil {
			locked++
			continue
		}
		if ge := gatewayErr(t, err); ge.Code != CodeInsufficientFunds {
			t.Fatalf("unexpected failure: %s (%s)", ge.Code, ge.Message)
		}
		refused++
	}
	if locked != 1 || refused != 1 {
		t.Fatalf("locked = %d, refused = %d, want exactly one of each", locked, refused)
	}
	account, err := g.Repo.GetAccount(ctx, "payer")
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if account.Balance != 0 {
		t.Fatalf("balance = %d, want 0 (debited exactly once)", account.Balance)
	}
}

func TestEventIDsStrictlyIncrease(t *testing.T) {
	g := newGateway(t)
	ctx := context.Background()

	var last int64
	for i, key := range []string{"pk-1", "pk-2", "pk-3"} {
		res, err := g.RegisterAgent(ctx, RegisterAgentInput{
			AgentID: key + "-id", Name: "n", PublicKey: key,
			Event: testEvent("identity", "agent.registered"),
		})
		if err != nil {
			t.Fatalf("register %d: %v", i, err)
		}
		if res.EventID <= last {
			t.Fatalf("event id %d not greater than %d", res.EventID, last)
		}
		last = res.EventID
	}
	items, err := g.Repo.EventsAfter(ctx, 10, 0)
	if err != nil {
		t.Fatalf("events after: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("feed length = %d, want 3", len(items))
	}
	for i := 1; i < len(items); i++ {
		if items[i].EventID != items[i-1].EventID+1 {
			t.Fatalf("gap between %d and %d", items[i-1].EventID, items[i].EventID)
		}
	}
}

func TestWriteIntentTimesOut(t *testing.T) {
	g := newGateway(t)
	g.Config.Store.WriteWait = 50 * time.Millisecond

	// Hold the intent so the next write cannot acquire it.
	g.intent <- struct{}{}
	defer func() { <-g.intent }()

	_, err := g.RegisterAgent(context.Background(), RegisterAgentInput{
		AgentID: "a-1", Name: "n", PublicKey: "pk-1",
		Event: testEvent("identity", "agent.registered"),
	})
	ge := gatewayErr(t, err)
	if ge.Code != CodeStoreBusy || ge.Status != 503 {
		t.Fatalf("got %s/%d, want STORE_BUSY/503", ge.Code, ge.Status)
	}
}

func TestUpdateTaskColumnWhitelist(t *testing.T) {
	g := newGateway(t)
	ctx := context.Background()
	mustRegisterAgent(t, g, "poster", "pk-p")

	if _, err := g.CreateTask(ctx, CreateTaskInput{
		Task:  taskFixture("t-1", "poster"),
		Event: testEvent("board", "task.created"),
	}); err != nil {
		t.Fatalf("create task: %v", err)
	}

	_, err := g.UpdateTask(ctx, UpdateTaskInput{
		TaskID:  "t-1",
		Updates: map[string]any{},
		Event:   testEvent("board", "task.updated"),
	})
	if ge := gatewayErr(t, err); ge.Code != CodeEmptyUpdates {
		t.Fatalf("got %s, want EMPTY_UPDATES", ge.Code)
	}

	_, err = g.UpdateTask(ctx, UpdateTaskInput{
		TaskID:  "t-1",
		Updates: map[string]any{"reward": "999"},
		Event:   testEvent("board", "task.updated"),
	})
	if ge := gatewayErr(t, err); ge.Code != CodeInvalidField {
		t.Fatalf("got %s, want INVALID_FIELD", ge.Code)
	}

	res, err := g.UpdateTask(ctx, UpdateTaskInput{
		TaskID:  "t-1",
		Updates: map[string]any{"status": "assigned", "worker_id": "poster"},
		Event:   testEvent("board", "task.updated"),
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if res.Status != "assigned" {
		t.Fatalf("status = %s, want assigned", res.Status)
	}
	task, _ := g.Repo.GetTask(ctx, "t-1")
	if task.UpdatedAt == nil {
		t.Fatal("updated_at not stamped")
	}
}

func TestFeedbackRevealReverse(t *testing.T) {
	g := newGateway(t)
	ctx := context.Background()
	mustRegisterAgent(t, g, "poster", "pk-p")
	mustRegisterAgent(t, g, "worker", "pk-w")
	if _, err := g.CreateTask(ctx, CreateTaskInput{
		Task:  taskFixture("t-1", "poster"),
		Event: testEvent("board", "task.created"),
	}); err != nil {
		t.Fatalf("create task: %v", err)
	}

	first, err := g.SubmitFeedback(ctx, SubmitFeedbackInput{
		Feedback: feedbackFixture("t-1", "poster", "worker", 5),
		Event:    testEvent("reputation", "feedback.submitted"),
	})
	if err != nil {
		t.Fatalf("first feedback: %v", err)
	}

	second, err := g.SubmitFeedback(ctx, SubmitFeedbackInput{
		Feedback:          feedbackFixture("t-1", "worker", "poster", 4),
		RevealReverse:     true,
		ReverseFeedbackID: first.FeedbackID,
		Event:             testEvent("reputation", "feedback.submitted"),
	})
	if err != nil {
		t.Fatalf("second feedback: %v", err)
	}
	if second.Replayed {
		t.Fatal("second feedback marked replayed")
	}

	tx, err := g.DB.Writer.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback()
	revealed, err := g.Repo.GetFeedbackTx(ctx, tx, first.FeedbackID)
	if err != nil {
		t.Fatalf("get feedback: %v", err)
	}
	if !revealed.Visible {
		t.Fatal("reverse feedback not revealed")
	}
}

func TestRulingUpdatesClaimStatus(t *testing.T) {
	g := newGateway(t)
	ctx := context.Background()
	mustRegisterAgent(t, g, "poster", "pk-p")
	mustRegisterAgent(t, g, "worker", "pk-w")
	if _, err := g.CreateTask(ctx, CreateTaskInput{
		Task:  taskFixture("t-1", "poster"),
		Event: testEvent("board", "task.created"),
	}); err != nil {
		t.Fatalf("create task: %v", err)
	}
	if _, err := g.FileClaim(ctx, FileClaimInput{
		Claim: claimFixture("clm-1", "t-1", "poster"),
		Event: testEvent("court", "claim.filed"),
	}); err != nil {
		t.Fatalf("file claim: %v", err)
	}

	if _, err := g.SubmitRuling(ctx, SubmitRulingInput{
		Ruling:            rulingFixture("clm-1"),
		ClaimStatusUpdate: "resolved",
		Event:             testEvent("court", "ruling.issued"),
	}); err != nil {
		t.Fatalf("ruling: %v", err)
	}
	claim, err := g.Repo.GetClaim(ctx, "clm-1")
	if err != nil {
		t.Fatalf("get claim: %v", err)
	}
	if claim.Status != "resolved" {
		t.Fatalf("claim status = %s, want resolved", claim.Status)
	}
}
