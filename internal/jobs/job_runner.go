package jobs

import (
	"membership-backend/internal/config"
	"membership-backend/internal/logger"
	"membership-backend/internal/metrics"
	"membership-backend/internal/repository"
	"membership-backend/internal/service"
)

// JobRunner coordinates all scheduled jobs
type JobRunner struct {
	requests  repository.MembershipRequestRepository
	lifecycle service.RequestLifecycle
	metrics   *metrics.Metrics
	config    *config.Config
}

// NewJobRunner creates a new job runner with all dependencies
func NewJobRunner(requests repository.MembershipRequestRepository, lifecycle service.RequestLifecycle, m *metrics.Metrics, cfg *config.Config) *JobRunner {
	return &JobRunner{
		requests:  requests,
		lifecycle: lifecycle,
		metrics:   m,
		config:    cfg,
	}
}

func (jr *JobRunner) Config() *config.Config {
	return jr.config
}

// runWithRecovery wraps job execution with panic recovery
func (jr *JobRunner) runWithRecovery(jobName string, jobFunc func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Job panicked", "job", jobName, "panic", r)
		}
	}()

	logger.Info("Starting job", "job", jobName)
	jobFunc()
	logger.Info("Job completed", "job", jobName)
}

// RunAll runs every job once (for manual execution)
func (jr *JobRunner) RunAll() {
	jr.RetryApprovalArtifacts()
	jr.ReportBacklog()
}
