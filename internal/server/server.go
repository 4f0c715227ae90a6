package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"agoragate/internal/domain"
	"agoragate/internal/gateway"
	"agoragate/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Gateway      *gateway.Gateway
	BasePath     string
	MaxBodyBytes int64
	Auth         AuthConfig
}

// apiError is the error envelope every failure is rendered as.
type apiError struct {
	status  int
	Code    string         `json:"error" example:"INSUFFICIENT_FUNDS"`
	Message string         `json:"message" example:"account acc-1 balance 10 cannot cover 25"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Message }

// New returns an HTTP handler exposing the gateway API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	if basePath == "/" {
		basePath = ""
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors so transport-level failures use the same
	// envelope and codes as gateway failures.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		code := ""
		switch {
		case isParseFailure(msg, errs):
			status = http.StatusBadRequest
			code = gateway.CodeInvalidJSON
		case status == http.StatusUnprocessableEntity:
			// Schema violations are the caller's bug, not a semantic one.
			status = http.StatusBadRequest
			code = gateway.CodeInvalidField
			if isAmountFailure(errs) {
				code = gateway.CodeInvalidAmount
			}
		}
		var details map[string]any
		if len(errs) > 0 {
			msgs := make([]string, len(errs))
			for i, e := range errs {
				msgs[i] = e.Error()
			}
			details = map[string]any{"errors": msgs}
		}
		return newAPIError(status, code, msg, details)
	}

	router := chi.NewRouter()
	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondStatusError(w, newAPIError(http.StatusNotFound, "NOT_FOUND", "resource not found", nil))
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondStatusError(w, newAPIError(http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed", nil))
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth))

	hcfg := huma.DefaultConfig("Agora Gate API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	api := humachi.New(router, hcfg)
	var group huma.API = api
	if basePath != "" {
		group = huma.NewGroup(api, basePath)
	}

	g := cfg.Gateway
	registerHealth(group, g)
	registerEvents(group, g)
	registerIdentity(group, g, maxBody)
	registerBank(group, g, maxBody)
	registerBoard(group, g, maxBody)
	registerReputation(group, g, maxBody)
	registerCourt(group, g, maxBody)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

// handleError translates gateway results into the HTTP envelope. Anything
// that is not already a taxonomy member becomes an opaque 500.
func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var ge *gateway.Error
	if errors.As(err, &ge) {
		return newAPIError(ge.Status, ge.Code, ge.Message, ge.Details)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "NOT_FOUND", "resource not found", nil)
	}
	return newAPIError(http.StatusInternalServerError, gateway.CodeInternal, "internal error", nil)
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return gateway.CodeInvalidField
	case http.StatusUnauthorized:
		return "UNAUTHORIZED"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusMethodNotAllowed:
		return "METHOD_NOT_ALLOWED"
	case http.StatusRequestEntityTooLarge:
		return "PAYLOAD_TOO_LARGE"
	case http.StatusUnsupportedMediaType:
		return "UNSUPPORTED_MEDIA_TYPE"
	case http.StatusServiceUnavailable:
		return gateway.CodeStoreBusy
	case http.StatusInternalServerError:
		return gateway.CodeInternal
	default:
		return strings.ToUpper(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func isParseFailure(msg string, errs []error) bool {
	all := strings.ToLower(msg)
	for _, e := range errs {
		all += " " + strings.ToLower(e.Error())
	}
	for _, marker := range []string{"invalid character", "unexpected end of json", "cannot unmarshal", "unmarshal", "invalid json"} {
		if strings.Contains(all, marker) {
			return true
		}
	}
	return false
}

// amountFields are the numeric request fields whose schema failures report
// the amount code instead of the generic field code.
var amountFields = []string{"amount", "balance", "reward", "rating", "worker_amount", "poster_amount", "size_bytes"}

func isAmountFailure(errs []error) bool {
	for _, e := range errs {
		loc := strings.ToLower(e.Error())
		var detail *huma.ErrorDetail
		if errors.As(e, &detail) && detail.Location != "" {
			loc = strings.ToLower(detail.Location)
		}
		for _, field := range amountFields {
			if strings.HasSuffix(loc, "."+field) || strings.Contains(loc, field) {
				return true
			}
		}
	}
	return false
}

func respondStatusError(w http.ResponseWriter, err huma.StatusError) {
	status := http.StatusInternalServerError
	if e, ok := err.(interface{ GetStatus() int }); ok {
		status = e.GetStatus()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(err)
}

func postOp(id, path string, status int, maxBody int64) huma.Operation {
	return huma.Operation{
		OperationID:   id,
		Method:        http.MethodPost,
		Path:          path,
		DefaultStatus: status,
		MaxBodyBytes:  maxBody,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusPaymentRequired,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusServiceUnavailable,
			http.StatusInternalServerError,
		},
	}
}

// requireAmount distinguishes an absent numeric field from a present one;
// range checks stay with the gateway.
func requireAmount(v *int64, field string) (int64, huma.StatusError) {
	if v == nil {
		return 0, newAPIError(http.StatusBadRequest, gateway.CodeMissingField, field+" is required", map[string]any{"field": field})
	}
	return *v, nil
}

func registerHealth(api huma.API, g *gateway.Gateway) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body HealthResponse `json:"body"`
	}, error) {
		h, err := g.Health(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body HealthResponse `json:"body"`
		}{Body: HealthResponse{
			Status:            h.Status,
			UptimeSeconds:     h.UptimeSeconds,
			StartedAt:         h.StartedAt,
			DatabaseSizeBytes: h.DatabaseSizeBytes,
			TotalEvents:       h.TotalEvents,
		}}, nil
	})
}

func registerEvents(api huma.API, g *gateway.Gateway) {
	type eventsPage struct {
		Items     []domain.Event `json:"items"`
		NextAfter int64          `json:"next_after,omitempty"`
	}
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Event feed",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		After int64 `query:"after"`
		Limit int   `query:"limit" default:"100" maximum:"1000"`
	}) (*struct {
		Body eventsPage `json:"body"`
	}, error) {
		items, err := g.Repo.EventsAfter(ctx, input.Limit, input.After)
		if err != nil {
			return nil, handleError(err)
		}
		page := eventsPage{Items: items}
		if page.Items == nil {
			page.Items = []domain.Event{}
		}
		if len(items) > 0 {
			page.NextAfter = items[len(items)-1].EventID
		}
		return &struct {
			Body eventsPage `json:"body"`
		}{Body: page}, nil
	})
}

func registerIdentity(api huma.API, g *gateway.Gateway, maxBody int64) {
	huma.Register(api, postOp("register-agent", "/identity/agents", http.StatusCreated, maxBody),
		func(ctx context.Context, input *struct {
			Body RegisterAgentRequest `json:"body"`
		}) (*struct {
			Body RegisterAgentResponse `json:"body"`
		}, error) {
			res, err := g.RegisterAgent(ctx, gateway.RegisterAgentInput{
				AgentID:      input.Body.AgentID,
				Name:         input.Body.Name,
				PublicKey:    input.Body.PublicKey,
				RegisteredAt: input.Body.RegisteredAt,
				Event:        input.Body.Event.input(),
			})
			if err != nil {
				return nil, handleError(err)
			}
			return &struct {
				Body RegisterAgentResponse `json:"body"`
			}{Body: RegisterAgentResponse{AgentID: res.AgentID, EventID: res.EventID, Replayed: res.Replayed}}, nil
		})
}

func registerBank(api huma.API, g *gateway.Gateway, maxBody int64) {
	huma.Register(api, postOp("create-account", "/bank/accounts", http.StatusCreated, maxBody),
		func(ctx context.Context, input *struct {
			Body CreateAccountRequest `json:"body"`
		}) (*struct {
			Body CreateAccountResponse `json:"body"`
		}, error) {
			balance, herr := requireAmount(input.Body.Balance, "balance")
			if herr != nil {
				return nil, herr
			}
			in := gateway.CreateAccountInput{
				AccountID: input.Body.AccountID,
				Balance:   balance,
				CreatedAt: input.Body.CreatedAt,
				Event:     input.Body.Event.input(),
			}
			if input.Body.InitialCredit != nil {
				in.InitialCredit = &gateway.InitialCredit{
					TxID:      input.Body.InitialCredit.TxID,
					Reference: input.Body.InitialCredit.Reference,
				}
			}
			res, err := g.CreateAccount(ctx, in)
			if err != nil {
				return nil, handleError(err)
			}
			return &struct {
				Body CreateAccountResponse `json:"body"`
			}{Body: CreateAccountResponse{AccountID: res.AccountID, Balance: res.Balance, EventID: res.EventID, Replayed: res.Replayed}}, nil
		})

	huma.Register(api, postOp("credit-account", "/bank/credit", http.StatusOK, maxBody),
		func(ctx context.Context, input *struct {
			Body CreditRequest `json:"body"`
		}) (*struct {
			Body CreditResponse `json:"body"`
		}, error) {
			amount, herr := requireAmount(input.Body.Amount, "amount")
			if herr != nil {
				return nil, herr
			}
			res, err := g.Credit(ctx, gateway.CreditInput{
				TxID:      input.Body.TxID,
				AccountID: input.Body.AccountID,
				Amount:    amount,
				Reference: input.Body.Reference,
				Timestamp: input.Body.Timestamp,
				Event:     input.Body.Event.input(),
			})
			if err != nil {
				return nil, handleError(err)
			}
			return &struct {
				Body CreditResponse `json:"body"`
			}{Body: CreditResponse{TxID: res.TxID, BalanceAfter: res.BalanceAfter, EventID: res.EventID, Replayed: res.Replayed}}, nil
		})

	huma.Register(api, postOp("escrow-lock", "/bank/escrow/lock", http.StatusCreated, maxBody),
		func(ctx context.Context, input *struct {
			Body EscrowLockRequest `json:"body"`
		}) (*struct {
			Body EscrowLockResponse `json:"body"`
		}, error) {
			amount, herr := requireAmount(input.Body.Amount, "amount")
			if herr != nil {
				return nil, herr
			}
			res, err := g.EscrowLock(ctx, gateway.EscrowLockInput{
				EscrowID:       input.Body.EscrowID,
				PayerAccountID: input.Body.PayerAccountID,
				Amount:         amount,
				TaskID:         input.Body.TaskID,
				TxID:           input.Body.TxID,
				CreatedAt:      input.Body.CreatedAt,
				Event:          input.Body.Event.input(),
			})
			if err != nil {
				return nil, handleError(err)
			}
			return &struct {
				Body EscrowLockResponse `json:"body"`
			}{Body: EscrowLockResponse{EscrowID: res.EscrowID, BalanceAfter: res.BalanceAfter, EventID: res.EventID, Replayed: res.Replayed}}, nil
		})

	huma.Register(api, postOp("escrow-release", "/bank/escrow/release", http.StatusOK, maxBody),
		func(ctx context.Context, input *struct {
			Body EscrowReleaseRequest `json:"body"`
		}) (*struct {
			Body EscrowReleaseResponse `json:"body"`
		}, error) {
			res, err := g.EscrowRelease(ctx, gateway.EscrowReleaseInput{
				EscrowID:           input.Body.EscrowID,
				RecipientAccountID: input.Body.RecipientAccountID,
				TxID:               input.Body.TxID,
				ResolvedAt:         input.Body.ResolvedAt,
				Event:              input.Body.Event.input(),
			})
			if err != nil {
				return nil, handleError(err)
			}
			return &struct {
				Body EscrowReleaseResponse `json:"body"`
			}{Body: EscrowReleaseResponse{EscrowID: res.EscrowID, Status: res.Status, Amount: res.Amount, EventID: res.EventID}}, nil
		})

	huma.Register(api, postOp("escrow-split", "/bank/escrow/split", http.StatusOK, maxBody),
		func(ctx context.Context, input *struct {
			Body EscrowSplitRequest `json:"body"`
		}) (*struct {
			Body EscrowSplitResponse `json:"body"`
		}, error) {
			workerAmount, herr := requireAmount(input.Body.WorkerAmount, "worker_amount")
			if herr != nil {
				return nil, herr
			}
			posterAmount, herr := requireAmount(input.Body.PosterAmount, "poster_amount")
			if herr != nil {
				return nil, herr
			}
			res, err := g.EscrowSplit(ctx, gateway.EscrowSplitInput{
				EscrowID:        input.Body.EscrowID,
				WorkerAccountID: input.Body.WorkerAccountID,
				WorkerAmount:    workerAmount,
				WorkerTxID:      input.Body.WorkerTxID,
				PosterAccountID: input.Body.PosterAccountID,
				PosterAmount:    posterAmount,
				PosterTxID:      input.Body.PosterTxID,
				ResolvedAt:      input.Body.ResolvedAt,
				Event:           input.Body.Event.input(),
			})
			if err != nil {
				return nil, handleError(err)
			}
			return &struct {
				Body EscrowSplitResponse `json:"body"`
			}{Body: EscrowSplitResponse{EscrowID: res.EscrowID, Status: res.Status, WorkerAmount: res.WorkerAmount, PosterAmount: res.PosterAmount, EventID: res.EventID}}, nil
		})

	huma.Register(api, huma.Operation{
		OperationID: "get-account",
		Method:      http.MethodGet,
		Path:        "/bank/accounts/{account_id}",
		Summary:     "Get account",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		AccountID string `path:"account_id"`
	}) (*struct {
		Body domain.Account `json:"body"`
	}, error) {
		a, err := g.Repo.GetAccount(ctx, input.AccountID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return nil, newAPIError(http.StatusNotFound, gateway.CodeAccountNotFound, "account "+input.AccountID+" does not exist", nil)
			}
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Account `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-escrow",
		Method:      http.MethodGet,
		Path:        "/bank/escrows/{escrow_id}",
		Summary:     "Get escrow",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		EscrowID string `path:"escrow_id"`
	}) (*struct {
		Body domain.Escrow `json:"body"`
	}, error) {
		e, err := g.Repo.GetEscrow(ctx, input.EscrowID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return nil, newAPIError(http.StatusNotFound, gateway.CodeEscrowNotFound, "escrow "+input.EscrowID+" does not exist", nil)
			}
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Escrow `json:"body"`
		}{Body: e}, nil
	})
}

func registerBoard(api huma.API, g *gateway.Gateway, maxBody int64) {
	huma.Register(api, postOp("create-task", "/board/tasks", http.StatusCreated, maxBody),
		func(ctx context.Context, input *struct {
			Body CreateTaskRequest `json:"body"`
		}) (*struct {
			Body CreateTaskResponse `json:"body"`
		}, error) {
			reward, herr := requireAmount(input.Body.Reward, "reward")
			if herr != nil {
				return nil, herr
			}
			res, err := g.CreateTask(ctx, gateway.CreateTaskInput{
				Task: domain.Task{
					TaskID:    input.Body.TaskID,
					PosterID:  input.Body.PosterID,
					Title:     input.Body.Title,
					Spec:      input.Body.Spec,
					Reward:    reward,
					Status:    input.Body.Status,
					EscrowID:  input.Body.EscrowID,
					WorkerID:  input.Body.WorkerID,
					Deadline:  input.Body.Deadline,
					CreatedAt: input.Body.CreatedAt,
				},
				Event: input.Body.Event.input(),
			})
			if err != nil {
				return nil, handleError(err)
			}
			return &struct {
				Body CreateTaskResponse `json:"body"`
			}{Body: CreateTaskResponse{TaskID: res.TaskID, EventID: res.EventID, Replayed: res.Replayed}}, nil
		})

	huma.Register(api, postOp("update-task-status", "/board/tasks/{task_id}/status", http.StatusOK, maxBody),
		func(ctx context.Context, input *struct {
			TaskID string            `path:"task_id"`
			Body   UpdateTaskRequest `json:"body"`
		}) (*struct {
			Body UpdateTaskResponse `json:"body"`
		}, error) {
			res, err := g.UpdateTask(ctx, gateway.UpdateTaskInput{
				TaskID:  input.TaskID,
				Updates: input.Body.Updates,
				Event:   input.Body.Event.input(),
			})
			if err != nil {
				return nil, handleError(err)
			}
			return &struct {
				Body UpdateTaskResponse `json:"body"`
			}{Body: UpdateTaskResponse{TaskID: res.TaskID, Status: res.Status, EventID: res.EventID}}, nil
		})

	huma.Register(api, postOp("create-bid", "/board/bids", http.StatusCreated, maxBody),
		func(ctx context.Context, input *struct {
			Body CreateBidRequest `json:"body"`
		}) (*struct {
			Body CreateBidResponse `json:"body"`
		}, error) {
			res, err := g.CreateBid(ctx, gateway.CreateBidInput{
				Bid: domain.Bid{
					BidID:       input.Body.BidID,
					TaskID:      input.Body.TaskID,
					BidderID:    input.Body.BidderID,
					Proposal:    input.Body.Proposal,
					SubmittedAt: input.Body.SubmittedAt,
				},
				Event: input.Body.Event.input(),
			})
			if err != nil {
				return nil, handleError(err)
			}
			return &struct {
				Body CreateBidResponse `json:"body"`
			}{Body: CreateBidResponse{BidID: res.BidID, EventID: res.EventID, Replayed: res.Replayed}}, nil
		})

	huma.Register(api, postOp("create-asset", "/board/assets", http.StatusCreated, maxBody),
		func(ctx context.Context, input *struct {
			Body CreateAssetRequest `json:"body"`
		}) (*struct {
			Body CreateAssetResponse `json:"body"`
		}, error) {
			res, err := g.CreateAsset(ctx, gateway.CreateAssetInput{
				Asset: domain.Asset{
					AssetID:     input.Body.AssetID,
					TaskID:      input.Body.TaskID,
					UploaderID:  input.Body.UploaderID,
					Filename:    input.Body.Filename,
					ContentType: input.Body.ContentType,
					SizeBytes:   input.Body.SizeBytes,
					StoragePath: input.Body.StoragePath,
					UploadedAt:  input.Body.UploadedAt,
				},
				Event: input.Body.Event.input(),
			})
			if err != nil {
				return nil, handleError(err)
			}
			return &struct {
				Body CreateAssetResponse `json:"body"`
			}{Body: CreateAssetResponse{AssetID: res.AssetID, EventID: res.EventID}}, nil
		})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/board/tasks/{task_id}",
		Summary:     "Get task",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TaskID string `path:"task_id"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		t, err := g.Repo.GetTask(ctx, input.TaskID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return nil, newAPIError(http.StatusNotFound, gateway.CodeTaskNotFound, "task "+input.TaskID+" does not exist", nil)
			}
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})
}

func registerReputation(api huma.API, g *gateway.Gateway, maxBody int64) {
	huma.Register(api, postOp("submit-feedback", "/reputation/feedback", http.StatusCreated, maxBody),
		func(ctx context.Context, input *struct {
			Body SubmitFeedbackRequest `json:"body"`
		}) (*struct {
			Body SubmitFeedbackResponse `json:"body"`
		}, error) {
			rating, herr := requireAmount(input.Body.Rating, "rating")
			if herr != nil {
				return nil, herr
			}
			res, err := g.SubmitFeedback(ctx, gateway.SubmitFeedbackInput{
				Feedback: domain.Feedback{
					FeedbackID:  input.Body.FeedbackID,
					TaskID:      input.Body.TaskID,
					FromAgentID: input.Body.FromAgentID,
					ToAgentID:   input.Body.ToAgentID,
					Category:    input.Body.Category,
					Rating:      rating,
					Comment:     input.Body.Comment,
					SubmittedAt: input.Body.SubmittedAt,
				},
				RevealReverse:     input.Body.RevealReverse,
				ReverseFeedbackID: input.Body.ReverseFeedbackID,
				Event:             input.Body.Event.input(),
			})
			if err != nil {
				return nil, handleError(err)
			}
			return &struct {
				Body SubmitFeedbackResponse `json:"body"`
			}{Body: SubmitFeedbackResponse{FeedbackID: res.FeedbackID, EventID: res.EventID, Replayed: res.Replayed}}, nil
		})
}

func registerCourt(api huma.API, g *gateway.Gateway, maxBody int64) {
	huma.Register(api, postOp("file-claim", "/court/claims", http.StatusCreated, maxBody),
		func(ctx context.Context, input *struct {
			Body FileClaimRequest `json:"body"`
		}) (*struct {
			Body FileClaimResponse `json:"body"`
		}, error) {
			res, err := g.FileClaim(ctx, gateway.FileClaimInput{
				Claim: domain.Claim{
					ClaimID:      input.Body.ClaimID,
					TaskID:       input.Body.TaskID,
					ClaimantID:   input.Body.ClaimantID,
					RespondentID: input.Body.RespondentID,
					Reason:       input.Body.Reason,
					Status:       input.Body.Status,
					FiledAt:      input.Body.FiledAt,
				},
				Event: input.Body.Event.input(),
			})
			if err != nil {
				return nil, handleError(err)
			}
			return &struct {
				Body FileClaimResponse `json:"body"`
			}{Body: FileClaimResponse{ClaimID: res.ClaimID, EventID: res.EventID, Replayed: res.Replayed}}, nil
		})

	huma.Register(api, postOp("submit-rebuttal", "/court/rebuttals", http.StatusCreated, maxBody),
		func(ctx context.Context, input *struct {
			Body SubmitRebuttalRequest `json:"body"`
		}) (*struct {
			Body SubmitRebuttalResponse `json:"body"`
		}, error) {
			res, err := g.SubmitRebuttal(ctx, gateway.SubmitRebuttalInput{
				Rebuttal: domain.Rebuttal{
					RebuttalID:  input.Body.RebuttalID,
					ClaimID:     input.Body.ClaimID,
					AgentID:     input.Body.AgentID,
					Statement:   input.Body.Statement,
					SubmittedAt: input.Body.SubmittedAt,
				},
				Event: input.Body.Event.input(),
			})
			if err != nil {
				return nil, handleError(err)
			}
			return &struct {
				Body SubmitRebuttalResponse `json:"body"`
			}{Body: SubmitRebuttalResponse{RebuttalID: res.RebuttalID, EventID: res.EventID}}, nil
		})

	huma.Register(api, postOp("submit-ruling", "/court/rulings", http.StatusCreated, maxBody),
		func(ctx context.Context, input *struct {
			Body SubmitRulingRequest `json:"body"`
		}) (*struct {
			Body SubmitRulingResponse `json:"body"`
		}, error) {
			res, err := g.SubmitRuling(ctx, gateway.SubmitRulingInput{
				Ruling: domain.Ruling{
					RulingID:  input.Body.RulingID,
					ClaimID:   input.Body.ClaimID,
					TaskID:    input.Body.TaskID,
					Verdict:   input.Body.Verdict,
					Rationale: input.Body.Rationale,
					DecidedAt: input.Body.DecidedAt,
				},
				ClaimStatusUpdate: input.Body.ClaimStatusUpdate,
				Event:             input.Body.Event.input(),
			})
			if err != nil {
				return nil, handleError(err)
			}
			return &struct {
				Body SubmitRulingResponse `json:"body"`
			}{Body: SubmitRulingResponse{RulingID: res.RulingID, EventID: res.EventID}}, nil
		})
}
