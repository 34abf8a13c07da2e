package jobs

import (
	"context"
	"errors"
	"time"

	"membership-backend/internal/domain"
	"membership-backend/internal/logger"
)

const (
	retryBatchSize = 50
	jobTimeout     = 5 * time.Minute
)

// RetryApprovalArtifacts re-runs the publish phase for approved requests that
// have no credentials document yet, typically because the blob store or the
// notification store was unavailable at approval time.
func (jr *JobRunner) RetryApprovalArtifacts() {
	jr.runWithRecovery("RetryApprovalArtifacts", func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()

		pending, err := jr.requests.ListApprovedWithoutCredentials(ctx, retryBatchSize)
		if err != nil {
			logger.Error("Failed to list approved requests without credentials", "error", err)
			return
		}

		fixed, failed := 0, 0
		for _, req := range pending {
			artifacts, err := jr.lifecycle.RetryArtifacts(ctx, req.ID)
			switch {
			case errors.Is(err, domain.ErrConflict):
				// another writer touched it; next run will see the new state
				logger.Debug("Skipped request modified during retry", "request_id", req.ID)
				continue
			case err != nil:
				failed++
				logger.Error("Failed to retry approval artifacts", "request_id", req.ID, "error", err)
				continue
			}

			if artifacts.CredentialsDocURL == "" {
				failed++
				logger.Warn("Credentials document still missing",
					"request_id", req.ID,
					"matricule", req.Matricule,
					"warnings", len(artifacts.Warnings))
				continue
			}
			fixed++
			logger.Debug("Approval artifacts regenerated", "request_id", req.ID, "credentials_url", artifacts.CredentialsDocURL)
		}

		logger.Info("Approval artifact retry finished", "candidates", len(pending), "fixed", fixed, "failed", failed)
	})
}

// ReportBacklog publishes the number of stored requests per status.
func (jr *JobRunner) ReportBacklog() {
	jr.runWithRecovery("ReportBacklog", func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()

		counts, err := jr.requests.CountByStatus(ctx)
		if err != nil {
			logger.Error("Failed to count requests by status", "error", err)
			return
		}

		statuses := []domain.RequestStatus{
			domain.RequestStatusPending,
			domain.RequestStatusUnderReview,
			domain.RequestStatusApproved,
			domain.RequestStatusRejected,
		}
		args := make([]any, 0, 2*len(statuses))
		for _, status := range statuses {
			n := counts[status]
			jr.metrics.SetRequestsByStatus(string(status), int(n))
			args = append(args, string(status), n)
		}
		logger.Info("Membership request backlog", args...)
	})
}
