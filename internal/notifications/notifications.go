// Package notifications lets staff broadcast an email to a group of
// portal users and keeps a record of what was sent.
package notifications

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	htmltemplate "html/template"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/aliuyar1234/traineeportal/internal/notify"
	"github.com/aliuyar1234/traineeportal/internal/profiles"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

var (
	ErrTitleRequired      = errors.New("title is required")
	ErrTitleTooLong       = errors.New("title must be at most 200 characters")
	ErrMessageRequired    = errors.New("message is required")
	ErrMessageTooLong     = errors.New("message must be at most 10000 characters")
	ErrInvalidGroup       = errors.New("group must be one of: all, staff, trainees, cohort, custom")
	ErrCohortRequired     = errors.New("cohort_id is required for cohort notifications")
	ErrRecipientsRequired = errors.New("recipient_ids are required for custom notifications")
	ErrCohortNotFound     = errors.New("cohort not found")
	ErrStoreUnavailable   = errors.New("notification store unavailable")
)

const (
	MaxTitleLength   = 200
	MaxMessageLength = 10000
	MaxRecipientIDs  = 500
)

// Group selects who receives a notification.
type Group string

const (
	GroupAll      Group = "all"
	GroupStaff    Group = "staff"
	GroupTrainees Group = "trainees"
	GroupCohort   Group = "cohort"
	GroupCustom   Group = "custom"
)

func (g Group) IsValid() bool {
	switch g {
	case GroupAll, GroupStaff, GroupTrainees, GroupCohort, GroupCustom:
		return true
	}
	return false
}

// Notification is a sent broadcast and its delivery tally.
type Notification struct {
	ID             uuid.UUID   `json:"id"`
	Title          string      `json:"title"`
	Message        string      `json:"message"`
	Group          Group       `json:"group"`
	CohortID       *uuid.UUID  `json:"cohort_id,omitempty"`
	RecipientIDs   []uuid.UUID `json:"recipient_ids,omitempty"`
	RecipientCount int         `json:"recipient_count"`
	SentCount      int         `json:"sent_count"`
	FailedCount    int         `json:"failed_count"`
	SentBy         *uuid.UUID  `json:"sent_by,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
}

// SendParams describes a broadcast.
type SendParams struct {
	Title        string
	Message      string
	Group        Group
	CohortID     *uuid.UUID
	RecipientIDs []uuid.UUID
	SentBy       *uuid.UUID
}

// ListFilter narrows the sent-notification history. A nil SentBy lists
// every sender.
type ListFilter struct {
	SentBy *uuid.UUID
	Limit  int
}

// Store persists sent notifications. Insert reports an unknown cohort as
// ErrCohortNotFound.
type Store interface {
	Insert(ctx context.Context, n Notification) (*Notification, error)
	RecordDelivery(ctx context.Context, id uuid.UUID, recipients, sent, failed int) error
	List(ctx context.Context, filter ListFilter) ([]Notification, error)
}

// Directory resolves recipients from portal profiles.
type Directory interface {
	List(ctx context.Context, filter profiles.Filter) ([]profiles.Profile, error)
}

type Options struct {
	StoreTimeout time.Duration
	// Concurrency caps in-flight deliveries per broadcast.
	Concurrency int
}

type Service struct {
	store        Store
	directory    Directory
	notifier     notify.Notifier
	storeTimeout time.Duration
	concurrency  int

	Now func() time.Time
}

func NewService(store Store, directory Directory, notifier notify.Notifier, opts Options) *Service {
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 3 * time.Second
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}
	return &Service{
		store:        store,
		directory:    directory,
		notifier:     notifier,
		storeTimeout: opts.StoreTimeout,
		concurrency:  opts.Concurrency,
		Now:          func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) bounded(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	err := fn(ctx)
	if err == nil || errors.Is(err, ErrCohortNotFound) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}

// Validate normalises params in place.
func (p *SendParams) Validate() error {
	p.Title = strings.TrimSpace(p.Title)
	switch {
	case p.Title == "":
		return ErrTitleRequired
	case utf8.RuneCountInString(p.Title) > MaxTitleLength:
		return ErrTitleTooLong
	case strings.TrimSpace(p.Message) == "":
		return ErrMessageRequired
	case utf8.RuneCountInString(p.Message) > MaxMessageLength:
		return ErrMessageTooLong
	case !p.Group.IsValid():
		return ErrInvalidGroup
	}

	switch p.Group {
	case GroupCohort:
		if p.CohortID == nil || *p.CohortID == uuid.Nil {
			return ErrCohortRequired
		}
		p.RecipientIDs = nil
	case GroupCustom:
		if len(p.RecipientIDs) == 0 {
			return ErrRecipientsRequired
		}
		if len(p.RecipientIDs) > MaxRecipientIDs {
			return fmt.Errorf("%w: at most %d", ErrRecipientsRequired, MaxRecipientIDs)
		}
		p.CohortID = nil
	default:
		p.CohortID = nil
		p.RecipientIDs = nil
	}
	return nil
}

func filterFor(p SendParams) profiles.Filter {
	switch p.Group {
	case GroupStaff:
		return profiles.Filter{Roles: []profiles.Role{profiles.RoleStaff, profiles.RoleAdmin}}
	case GroupTrainees:
		return profiles.Filter{Roles: []profiles.Role{profiles.RoleTrainee}}
	case GroupCohort:
		return profiles.Filter{CohortID: p.CohortID}
	case GroupCustom:
		return profiles.Filter{IdentityIDs: p.RecipientIDs}
	}
	return profiles.Filter{}
}

// Send records the broadcast, resolves its recipients and emails each of
// them. Individual delivery failures are counted, not returned.
func (s *Service) Send(ctx context.Context, params SendParams) (*Notification, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	var n *Notification
	err := s.bounded(ctx, "insert notification", func(ctx context.Context) error {
		var err error
		n, err = s.store.Insert(ctx, Notification{
			Title:        params.Title,
			Message:      params.Message,
			Group:        params.Group,
			CohortID:     params.CohortID,
			RecipientIDs: params.RecipientIDs,
			SentBy:       params.SentBy,
			CreatedAt:    s.Now().UTC(),
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	var recipients []profiles.Profile
	err = s.bounded(ctx, "resolve recipients", func(ctx context.Context) error {
		var err error
		recipients, err = s.directory.List(ctx, filterFor(params))
		return err
	})
	if err != nil {
		return nil, err
	}

	msg, err := render(params.Title, params.Message)
	if err != nil {
		return nil, err
	}

	n.RecipientCount = len(recipients)
	n.SentCount, n.FailedCount = s.deliver(ctx, n.ID, msg, recipients)

	err = s.bounded(context.WithoutCancel(ctx), "record notification delivery", func(ctx context.Context) error {
		return s.store.RecordDelivery(ctx, n.ID, n.RecipientCount, n.SentCount, n.FailedCount)
	})
	if err != nil {
		log.Error().Err(err).Str("notification_id", n.ID.String()).Msg("Failed to record notification delivery")
	}

	log.Info().
		Str("notification_id", n.ID.String()).
		Str("group", string(n.Group)).
		Int("recipients", n.RecipientCount).
		Int("sent", n.SentCount).
		Int("failed", n.FailedCount).
		Msg("Notification sent")
	return n, nil
}

func (s *Service) deliver(ctx context.Context, id uuid.UUID, msg notify.Message, recipients []profiles.Profile) (int, int) {
	var sent, failed atomic.Int32

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, p := range recipients {
		g.Go(func() error {
			m := msg
			m.To = p.Email
			if _, err := s.notifier.Send(ctx, m); err != nil {
				failed.Add(1)
				log.Warn().
					Err(err).
					Str("notification_id", id.String()).
					Str("notifier", s.notifier.Name()).
					Msg("Notification delivery failed")
				return nil
			}
			sent.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	return int(sent.Load()), int(failed.Load())
}

// List returns sent notifications, newest first.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Notification, error) {
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}

	var list []Notification
	err := s.bounded(ctx, "list notifications", func(ctx context.Context) error {
		var err error
		list, err = s.store.List(ctx, filter)
		return err
	})
	return list, err
}

var htmlBody = htmltemplate.Must(htmltemplate.New("notification").Parse(
	`<div>{{range $i, $line := .}}{{if $i}}<br>{{end}}{{$line}}{{end}}</div>`,
))

func render(title, message string) (notify.Message, error) {
	message = strings.ReplaceAll(message, "\r\n", "\n")

	var buf bytes.Buffer
	if err := htmlBody.Execute(&buf, strings.Split(message, "\n")); err != nil {
		return notify.Message{}, fmt.Errorf("failed to render notification: %w", err)
	}
	return notify.Message{
		Subject: title,
		HTML:    buf.String(),
		Text:    message,
		Kind:    notify.KindStaffNotification,
	}, nil
}
