package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/aliuyar1234/traineeportal/internal/notifications"
	"github.com/google/uuid"
)

// Notifications implements notifications.Store.
type Notifications struct {
	mu   sync.Mutex
	rows map[uuid.UUID]notifications.Notification
	Hook Hook
}

func NewNotifications() *Notifications {
	return &Notifications{rows: make(map[uuid.UUID]notifications.Notification)}
}

func (s *Notifications) Insert(ctx context.Context, n notifications.Notification) (*notifications.Notification, error) {
	if s.Hook != nil {
		if err := s.Hook(ctx, "insert_notification"); err != nil {
			return nil, err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	n.ID = uuid.New()
	s.rows[n.ID] = n
	return &n, nil
}

func (s *Notifications) RecordDelivery(ctx context.Context, id uuid.UUID, recipients, sent, failed int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n, ok := s.rows[id]; ok {
		n.RecipientCount, n.SentCount, n.FailedCount = recipients, sent, failed
		s.rows[id] = n
	}
	return nil
}

func (s *Notifications) List(ctx context.Context, filter notifications.ListFilter) ([]notifications.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []notifications.Notification
	for _, n := range s.rows {
		if filter.SentBy != nil && (n.SentBy == nil || *n.SentBy != *filter.SentBy) {
			continue
		}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}
