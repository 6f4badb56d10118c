package service

import (
	"context"
	stderrors "errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"nach-reprocessing/internal/config"
	"nach-reprocessing/internal/domain"
	"nach-reprocessing/internal/errors"
	"nach-reprocessing/internal/validation"
)

const (
	DefaultActor  = "SYSTEM"
	DefaultReason = "Manual reprocessing"
)

// Outcome describes what happened to one requested id.
type Outcome string

const (
	OutcomeReprocessed        Outcome = "REPROCESSED"
	OutcomeFailedValidation   Outcome = "FAILED_VALIDATION"
	OutcomeFailedStore        Outcome = "FAILED_STORE"
	OutcomeSkippedNotFound    Outcome = "SKIPPED_NOT_FOUND"
	OutcomeSkippedNotEligible Outcome = "SKIPPED_NOT_ELIGIBLE"
	OutcomeSkippedConcurrent  Outcome = "SKIPPED_CONCURRENT"
)

type ReprocessRequest struct {
	IDs    []int64
	Actor  string
	Reason string
}

type ReprocessOutcome struct {
	TransactionID  int64         `json:"transaction_id"`
	PreviousStatus domain.Status `json:"previous_status,omitempty"`
	Status         domain.Status `json:"status,omitempty"`
	Outcome        Outcome       `json:"outcome"`
	Message        string        `json:"message,omitempty"`
}

// ReprocessResult tallies one call. TotalCount is the number of candidates,
// ids that were reprocessable when fetched; skipped ids are not part of it.
type ReprocessResult struct {
	RequestID    uuid.UUID          `json:"request_id"`
	SuccessCount int                `json:"success_count"`
	FailedCount  int                `json:"failed_count"`
	SkippedCount int                `json:"skipped_count"`
	TotalCount   int                `json:"total_count"`
	Outcomes     []ReprocessOutcome `json:"outcomes"`
}

type ReprocessService struct {
	store    domain.Store
	maxBatch int
	workers  int
	locks    *keyedMutex
	now      func() time.Time
	logger   *slog.Logger
}

func NewReprocessService(store domain.Store, cfg config.ReprocessConfig, logger *slog.Logger) *ReprocessService {
	workers := cfg.Workers
	if workers <= 0 {
		workers = config.DefaultReprocessWorkers
	}
	maxBatch := cfg.MaxBatch
	if maxBatch <= 0 {
		maxBatch = config.DefaultReprocessMaxBatch
	}
	return &ReprocessService{
		store:    store,
		maxBatch: maxBatch,
		workers:  workers,
		locks:    newKeyedMutex(),
		now:      time.Now,
		logger:   logger,
	}
}

// Reprocess re-checks every reprocessable transaction in req.IDs and moves the
// ones that pass to REPROCESSED. Unknown and ineligible ids are skipped. The
// request is rejected as a whole only when it is malformed.
func (s *ReprocessService) Reprocess(ctx context.Context, req ReprocessRequest) (*ReprocessResult, error) {
	if res := validation.ValidateReprocessRequest(req.IDs, s.maxBatch); !res.Valid {
		s.logger.Warn("Rejected reprocess request", "error", res.Error())
		return nil, errors.ErrInvalidReprocess.WithDetails(res.Error())
	}

	actor := strings.TrimSpace(req.Actor)
	if actor == "" {
		actor = DefaultActor
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = DefaultReason
	}

	ids := dedupe(req.IDs)
	requestID := uuid.New()

	s.logger.Info("Processing reprocess request",
		"request_id", requestID,
		"requested_count", len(req.IDs),
		"unique_count", len(ids),
		"actor", actor)

	found, err := s.store.Transaction().GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]domain.Transaction, len(found))
	for _, t := range found {
		byID[t.ID] = t
	}

	outcomes := make([]ReprocessOutcome, len(ids))
	var candidates []int
	for i, id := range ids {
		txn, ok := byID[id]
		switch {
		case !ok:
			outcomes[i] = ReprocessOutcome{TransactionID: id, Outcome: OutcomeSkippedNotFound}
		case !txn.Status.IsReprocessable():
			outcomes[i] = ReprocessOutcome{
				TransactionID:  id,
				PreviousStatus: txn.Status,
				Status:         txn.Status,
				Outcome:        OutcomeSkippedNotEligible,
			}
		default:
			candidates = append(candidates, i)
		}
	}

	var g errgroup.Group
	g.SetLimit(s.workers)
	for _, idx := range candidates {
		txn := byID[ids[idx]]
		g.Go(func() error {
			outcomes[idx] = s.reprocessOne(ctx, requestID, txn, actor, reason)
			return nil
		})
	}
	g.Wait()

	result := &ReprocessResult{
		RequestID:  requestID,
		TotalCount: len(candidates),
		Outcomes:   outcomes,
	}
	for _, o := range outcomes {
		switch o.Outcome {
		case OutcomeReprocessed:
			result.SuccessCount++
		case OutcomeFailedValidation, OutcomeFailedStore:
			result.FailedCount++
		default:
			result.SkippedCount++
		}
	}

	s.logger.Info("Reprocess request completed",
		"request_id", requestID,
		"success_count", result.SuccessCount,
		"failed_count", result.FailedCount,
		"skipped_count", result.SkippedCount,
		"total_count", result.TotalCount)

	return result, ctx.Err()
}

func (s *ReprocessService) reprocessOne(ctx context.Context, requestID uuid.UUID, txn domain.Transaction, actor, reason string) ReprocessOutcome {
	unlock := s.locks.Lock(txn.ID)
	defer unlock()

	out := ReprocessOutcome{
		TransactionID:  txn.ID,
		PreviousStatus: txn.Status,
		Status:         txn.Status,
	}

	if err := ctx.Err(); err != nil {
		out.Outcome = OutcomeFailedStore
		out.Message = err.Error()
		return out
	}

	if !txn.PassesReprocessCheck() {
		out.Outcome = OutcomeFailedValidation
		out.Message = "amount must be positive and account number at least 10 characters"
		return out
	}

	now := s.now()
	updated := txn
	if err := updated.MarkReprocessed(now); err != nil {
		out.Outcome = OutcomeSkippedNotEligible
		return out
	}

	err := s.store.WithTransaction(ctx, func(tx domain.Store) error {
		if err := tx.Transaction().UpdateStatus(ctx, txn.ID, updated.Status, updated.ErrorCode, updated.ErrorDesc, updated.UpdatedAt); err != nil {
			return err
		}
		return tx.ReprocessAudit().Record(ctx, &domain.ReprocessAudit{
			RequestID:      requestID,
			TransactionID:  txn.ID,
			PreviousStatus: txn.Status,
			NewStatus:      updated.Status,
			Outcome:        string(OutcomeReprocessed),
			Actor:          actor,
			Reason:         reason,
			CreatedAt:      now,
		})
	})

	switch {
	case err == nil:
		out.Status = updated.Status
		out.Outcome = OutcomeReprocessed
	case stderrors.Is(err, domain.ErrInvalidTransition):
		out.Outcome = OutcomeSkippedConcurrent
		out.Message = "status changed by another request"
	default:
		s.logger.Error("Failed to reprocess transaction",
			"request_id", requestID,
			"transaction_id", txn.ID,
			"error", err)
		out.Outcome = OutcomeFailedStore
		out.Message = err.Error()
	}
	return out
}

// dedupe keeps the first occurrence of each id.
func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
