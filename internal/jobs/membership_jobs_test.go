package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"membership-backend/internal/config"
	"membership-backend/internal/domain"
	"membership-backend/internal/metrics"
	"membership-backend/internal/repository/memory"
	"membership-backend/internal/service"
)

// MockLifecycle embeds the interface so only the methods used by jobs need
// an implementation.
type MockLifecycle struct {
	service.RequestLifecycle
	mock.Mock
}

func (m *MockLifecycle) RetryArtifacts(ctx context.Context, id string) (*domain.ApprovalArtifacts, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ApprovalArtifacts), args.Error(1)
}

func seed(t *testing.T, repo *memory.MembershipRequestRepository, id string, status domain.RequestStatus, credentials string) {
	t.Helper()
	require.NoError(t, repo.Create(context.Background(), &domain.MembershipRequest{
		ID:                id,
		Matricule:         "ADH-2026-" + id,
		Status:            status,
		CredentialsDocURL: credentials,
	}))
}

func TestRetryApprovalArtifacts(t *testing.T) {
	repo := memory.NewMembershipRequestRepository()
	seed(t, repo, "A00001", domain.RequestStatusApproved, "")
	seed(t, repo, "A00002", domain.RequestStatusApproved, "")
	seed(t, repo, "A00003", domain.RequestStatusApproved, "")
	seed(t, repo, "A00004", domain.RequestStatusApproved, "http://localhost/api/v1/files/doc.html")
	seed(t, repo, "P00001", domain.RequestStatusPending, "")

	lifecycle := new(MockLifecycle)
	lifecycle.On("RetryArtifacts", mock.Anything, "A00001").
		Return(&domain.ApprovalArtifacts{CredentialsDocURL: "http://localhost/api/v1/files/new.html"}, nil).Once()
	lifecycle.On("RetryArtifacts", mock.Anything, "A00002").
		Return(nil, errors.New("blob store down")).Once()
	lifecycle.On("RetryArtifacts", mock.Anything, "A00003").
		Return(nil, domain.ErrConflict).Once()

	jr := NewJobRunner(repo, lifecycle, nil, &config.Config{})
	jr.RetryApprovalArtifacts()

	lifecycle.AssertExpectations(t)
	lifecycle.AssertNotCalled(t, "RetryArtifacts", mock.Anything, "A00004")
	lifecycle.AssertNotCalled(t, "RetryArtifacts", mock.Anything, "P00001")
}

func TestRetryApprovalArtifactsRecoversFromPanic(t *testing.T) {
	repo := memory.NewMembershipRequestRepository()
	seed(t, repo, "A00001", domain.RequestStatusApproved, "")

	// nil lifecycle panics inside the job
	jr := NewJobRunner(repo, nil, nil, &config.Config{})
	assert.NotPanics(t, jr.RetryApprovalArtifacts)
}

func TestReportBacklog(t *testing.T) {
	repo := memory.NewMembershipRequestRepository()
	seed(t, repo, "P00001", domain.RequestStatusPending, "")
	seed(t, repo, "P00002", domain.RequestStatusPending, "")
	seed(t, repo, "U00001", domain.RequestStatusUnderReview, "")

	m := metrics.New(prometheus.NewRegistry())
	jr := NewJobRunner(repo, nil, m, &config.Config{})
	jr.ReportBacklog()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RequestsByStatus.WithLabelValues("pending")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsByStatus.WithLabelValues("under_review")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.RequestsByStatus.WithLabelValues("approved")))
}
