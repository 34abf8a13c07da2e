package service

import (
	"context"

	"membership-backend/internal/domain"
	"membership-backend/internal/repository"
)

type notificationService struct {
	noteRepo repository.NotificationRepository
}

func NewNotificationService(noteRepo repository.NotificationRepository) NotificationService {
	return &notificationService{noteRepo: noteRepo}
}

func (s *notificationService) GetNotifications(ctx context.Context, memberID string, page, pageSize int32) ([]domain.Notification, int32, error) {
	f := domain.RequestFilter{Page: page, PageSize: pageSize}.Normalize()
	return s.noteRepo.List(ctx, memberID, f.PageSize, f.Offset())
}

func (s *notificationService) MarkAsRead(ctx context.Context, memberID, notificationID string) error {
	return s.noteRepo.MarkAsRead(ctx, notificationID, memberID)
}
