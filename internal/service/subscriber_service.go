package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/viewisland/internal/db"
	"gorm.io/gorm"
)

// SubscriberService 管理新闻简报订阅。
type SubscriberService struct {
	db    *gorm.DB
	clock Clock
}

// NewSubscriberService creates a SubscriberService instance.
func NewSubscriberService(gdb *gorm.DB) *SubscriberService {
	return &SubscriberService{db: gdb, clock: systemClock}
}

// WithClock 替换时间来源。
func (s *SubscriberService) WithClock(clock Clock) *SubscriberService {
	if clock != nil {
		s.clock = clock
	}
	return s
}

// Subscribe 订阅邮箱：已订阅返回冲突，曾退订则重新激活。
func (s *SubscriberService) Subscribe(ctx context.Context, email string) (*db.Subscriber, error) {
	normalized := strings.ToLower(strings.TrimSpace(email))
	if normalized == "" {
		return nil, ErrInvalidInput
	}

	var subscriber db.Subscriber
	err := db.WithTx(ctx, s.db, func(tx *gorm.DB) error {
		err := tx.Where("email = ?", normalized).First(&subscriber).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			subscriber = db.Subscriber{Email: normalized, IsActive: true}
			return tx.Create(&subscriber).Error
		case err != nil:
			return err
		case subscriber.IsActive:
			return ErrAlreadySubscribed
		}

		subscriber.IsActive = true
		subscriber.UnsubscribedAt = nil
		return tx.Model(&subscriber).Select("is_active", "unsubscribed_at", "updated_at").Updates(&subscriber).Error
	})
	if err != nil {
		if errors.Is(err, ErrConflict) || db.IsUniqueViolation(err) {
			return nil, ErrAlreadySubscribed
		}
		return nil, fmt.Errorf("subscribe %s: %w", normalized, err)
	}
	return &subscriber, nil
}

// List returns every subscriber, newest first.
func (s *SubscriberService) List(ctx context.Context) ([]db.Subscriber, error) {
	subscribers := []db.Subscriber{}
	if err := s.db.WithContext(ctx).Order("created_at desc, id desc").Find(&subscribers).Error; err != nil {
		return nil, err
	}
	return subscribers, nil
}

// Get fetches a subscriber by id.
func (s *SubscriberService) Get(ctx context.Context, id uint) (*db.Subscriber, error) {
	var subscriber db.Subscriber
	if err := s.db.WithContext(ctx).First(&subscriber, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSubscriberNotFound
		}
		return nil, err
	}
	return &subscriber, nil
}

// Unsubscribe 软删除订阅，重复调用不会改变退订时间。
func (s *SubscriberService) Unsubscribe(ctx context.Context, id uint) (*db.Subscriber, error) {
	subscriber, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !subscriber.IsActive {
		return subscriber, nil
	}

	now := s.clock().UTC()
	subscriber.IsActive = false
	subscriber.UnsubscribedAt = &now
	if err := s.db.WithContext(ctx).Model(subscriber).
		Select("is_active", "unsubscribed_at", "updated_at").
		Updates(subscriber).Error; err != nil {
		return nil, fmt.Errorf("unsubscribe %d: %w", id, err)
	}
	return subscriber, nil
}
