package service

import (
	"context"
	"testing"
	"time"

	"membership-backend/internal/domain"
	"membership-backend/internal/message"
	"membership-backend/internal/repository"
	"membership-backend/internal/repository/memory"
	"membership-backend/internal/security"
	"membership-backend/internal/storage"

	"github.com/stretchr/testify/require"
)

const (
	testFee       = int64(10300)
	testClaimTTL  = 2 * time.Minute
	testCodeTTL   = 72 * time.Hour
	testTypeID    = "type-standard"
	testPhotoURL  = "http://localhost/api/v1/files/photo.jpg"
	testIDScanURL = "http://localhost/api/v1/files/id-scan.jpg"
)

var (
	testAdmin = domain.AdminIdentity{ID: "admin-7", Name: "Chantal Ilunga"}
	cashProof = domain.PaymentInput{
		Amount:        testFee,
		Mode:          domain.PaymentModeCash,
		Justification: "in person, 25 chars justification",
		IsFee:         true,
	}
)

type fixture struct {
	requests      *memory.MembershipRequestRepository
	members       *memory.MemberRepository
	subscriptions *memory.SubscriptionRepository
	notifications *memory.NotificationRepository
	types         *memory.MembershipTypeRepository
	limiter       *security.MemoryLimiter
	emails        *recordingDispatcher
	clock         *testClock
	orchestrator  ApprovalOrchestrator
	svc           RequestLifecycle
}

type fixtureConfig struct {
	subscriptions repository.SubscriptionRepository
	blobs         storage.BlobStore
	timeout       time.Duration
}

func newFixture(t *testing.T, opts ...func(*fixtureConfig)) *fixture {
	t.Helper()

	f := &fixture{
		requests:      memory.NewMembershipRequestRepository(),
		members:       memory.NewMemberRepository(),
		subscriptions: memory.NewSubscriptionRepository(),
		notifications: memory.NewNotificationRepository(),
		types: memory.NewMembershipTypeRepository(
			domain.MembershipType{ID: testTypeID, Name: "Membre actif", Fee: testFee, DurationMonths: 12, Active: true},
			domain.MembershipType{ID: "type-closed", Name: "Membre fondateur", Fee: testFee, DurationMonths: 12, Active: false},
		),
		limiter: security.NewMemoryLimiter(5, 15*time.Minute),
		emails:  &recordingDispatcher{},
		clock:   newTestClock(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)),
	}

	blobs, err := storage.NewLocalBlobStore("http://localhost/api/v1/files", t.TempDir())
	require.NoError(t, err)
	cfg := &fixtureConfig{subscriptions: f.subscriptions, blobs: blobs, timeout: 5 * time.Second}
	for _, opt := range opts {
		opt(cfg)
	}

	composer, err := message.NewComposer()
	require.NoError(t, err)

	f.orchestrator = NewApprovalOrchestrator(
		f.members,
		cfg.subscriptions,
		memory.NewReferenceRepository(),
		f.notifications,
		f.requests,
		cfg.blobs,
		composer,
		nil,
		"MBR",
		cfg.timeout,
	)
	f.svc = NewRequestLifecycle(LifecycleDeps{
		Requests:      f.requests,
		Types:         f.types,
		Members:       f.members,
		Subscriptions: cfg.subscriptions,
		Ledger:        NewPaymentLedger(testFee),
		Orchestrator:  f.orchestrator,
		Codes:         security.NewSecurityCodeIssuer(testCodeTTL),
		Limiter:       f.limiter,
		Composer:      composer,
		Blobs:         cfg.blobs,
		Emails:        f.emails,
	}, LifecycleSettings{
		ClaimTTL:        testClaimTTL,
		MatriculePrefix: "ADH",
		Region:          "CD",
		PortalURL:       "https://adhesion.example.com",
		Clock:           f.clock.Now,
	})
	return f
}

func validPayload() domain.RequestPayload {
	return domain.RequestPayload{
		Identity: domain.Identity{
			FirstName:   "Grace",
			LastName:    "Mukendi",
			Gender:      "F",
			BirthDate:   "1991-06-14",
			BirthPlace:  "Lubumbashi",
			Nationality: "congolaise",
			Phone:       "0812345678",
			Email:       "grace.mukendi@example.com",
			Profession:  "Comptable",
		},
		Address: domain.Address{
			Province: "Kinshasa",
			City:     "Kinshasa",
			Street:   "12 avenue de la Paix",
		},
		Company: domain.Company{
			Name:     "Société Minière du Katanga",
			Position: "Auditrice",
		},
		Documents: domain.Documents{PhotoURL: testPhotoURL},
	}
}

func (f *fixture) submit(t *testing.T) *domain.MembershipRequest {
	t.Helper()
	req, err := f.svc.Submit(context.Background(), validPayload())
	require.NoError(t, err)
	return req
}

func (f *fixture) submitPaid(t *testing.T) *domain.MembershipRequest {
	t.Helper()
	req := f.submit(t)
	req, err := f.svc.Pay(context.Background(), req.ID, testAdmin, cashProof)
	require.NoError(t, err)
	require.True(t, req.IsPaid)
	return req
}

func (f *fixture) approveDecision() domain.ApprovalDecision {
	return domain.ApprovalDecision{MembershipTypeID: testTypeID, IdentityArtifactURL: testIDScanURL}
}

// expireCode moves the stored code expiry into the past.
func (f *fixture) expireCode(t *testing.T, id string) {
	t.Helper()
	ctx := context.Background()
	req, err := f.requests.GetByID(ctx, id)
	require.NoError(t, err)
	past := f.clock.Now().Add(-time.Minute)
	req.SecurityCodeExpiry = &past
	require.NoError(t, f.requests.Update(ctx, req, req.Version))
}
