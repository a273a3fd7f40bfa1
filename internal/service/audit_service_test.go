package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"invoice-financing/internal/core/domain"
	"invoice-financing/internal/core/ports"
	"invoice-financing/internal/core/ports/mocks"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"
)

func TestAuditService_Log_PersistsToRepo(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockRepo := mocks.NewMockAuditRepository(ctrl)
	svc := NewAuditService(mockRepo, newTestLogger())

	actor := uuid.New()
	mockRepo.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, log *domain.AuditLog) error {
			assert.Equal(t, domain.AuditActionAcceptBid, log.Action)
			assert.NotEqual(t, uuid.Nil, log.ID, "ID is filled in")
			assert.False(t, log.CreatedAt.IsZero(), "CreatedAt is filled in")
			return nil
		},
	)

	svc.Log(context.Background(), &domain.AuditLog{
		ActorID:      &actor,
		ActorRole:    string(domain.RoleSeller),
		Action:       domain.AuditActionAcceptBid,
		ResourceType: "bid",
		ResourceID:   uuid.NewString(),
		IPAddress:    "127.0.0.1",
	})
	svc.Wait()
}

func TestAuditService_Log_SurvivesCancelledContext(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockRepo := mocks.NewMockAuditRepository(ctrl)
	svc := NewAuditService(mockRepo, newTestLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	mockRepo.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, _ *domain.AuditLog) error {
			assert.NoError(t, ctx.Err(), "write must not inherit request cancellation")
			return nil
		},
	)

	svc.Log(ctx, &domain.AuditLog{Action: domain.AuditActionIntegrityFailure, ResourceType: "bid"})
	svc.Wait()
}

func TestAuditService_Log_RepoErrorIsSwallowed(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockRepo := mocks.NewMockAuditRepository(ctrl)
	svc := NewAuditService(mockRepo, newTestLogger())

	mockRepo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(errors.New("db down"))

	svc.Log(context.Background(), &domain.AuditLog{Action: domain.AuditActionWebhook, ResourceType: "webhook"})
	svc.Wait()
}

func TestAuditService_Log_NilRepo(t *testing.T) {
	svc := NewAuditService(nil, newTestLogger())

	assert.NotPanics(t, func() {
		svc.Log(context.Background(), &domain.AuditLog{
			Action:       domain.AuditActionLogin,
			ResourceType: "session",
			CreatedAt:    time.Now(),
		})
		svc.Wait()
	})
}

func TestAuditService_Log_FillsRequestMeta(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockRepo := mocks.NewMockAuditRepository(ctrl)
	svc := NewAuditService(mockRepo, newTestLogger())

	mockRepo.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, log *domain.AuditLog) error {
			assert.Equal(t, "10.1.2.3", log.IPAddress)
			assert.Equal(t, "curl/8.0", log.UserAgent)
			return nil
		},
	)

	ctx := ports.WithRequestMeta(context.Background(), ports.RequestMeta{IPAddress: "10.1.2.3", UserAgent: "curl/8.0"})
	svc.Log(ctx, &domain.AuditLog{Action: domain.AuditActionPlaceBid, ResourceType: "bid"})
	svc.Wait()
}
