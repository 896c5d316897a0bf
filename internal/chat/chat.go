// Package chat holds the conversation domain: the records exchanged
// between organization members and the rules for mutating them.
package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"parley.chat/internal/ids"
	"parley.chat/internal/store"
)

// Type discriminates conversation shapes.
type Type string

const (
	TypeOneOnOne Type = "one_on_one"
	TypeGroup    Type = "group"
)

// Valid reports whether the type is part of the enumeration.
func (t Type) Valid() bool {
	return t == TypeOneOnOne || t == TypeGroup
}

// Participant is a conversation member with its join instant.
type Participant struct {
	UserID   string `json:"user_id"`
	JoinedAt int64  `json:"joined_at"`
}

// Conversation is scoped to one organization; participants are members of
// that organization.
type Conversation struct {
	ID             string        `json:"id"`
	OrganizationID string        `json:"organization_id"`
	Type           Type          `json:"type"`
	Name           string        `json:"name,omitempty"`
	Participants   []Participant `json:"participants"`
	Disabled       bool          `json:"disabled"`
	CreatedAt      int64         `json:"created_at"`
	UpdatedAt      int64         `json:"updated_at"`
}

// Filter narrows conversation listings.
type Filter struct {
	OrganizationID string
	// Participant restricts results to conversations the user is part of.
	Participant string
}

// Store is the conversation persistence surface.
type Store interface {
	Create(ctx context.Context, c *Conversation) error
	Retrieve(ctx context.Context, id string) (*Conversation, error)
	List(ctx context.Context, f Filter, opts store.ListOptions) (store.Page[Conversation], error)
	Update(ctx context.Context, c *Conversation) error
	Delete(ctx context.Context, id string, soft bool) error
}

// Create is the conversation creation payload.
type Create struct {
	Type           Type     `json:"type"`
	Name           string   `json:"name,omitempty"`
	ParticipantIDs []string `json:"participant_ids"`
}

// Update is a partial conversation update. Nil fields are left unchanged.
type Update struct {
	Name           *string  `json:"name,omitempty"`
	ParticipantIDs []string `json:"participant_ids,omitempty"`
	Disabled       *bool    `json:"disabled,omitempty"`
}

// Service applies the conversation and message rules on top of the stores.
type Service struct {
	store    Store
	messages MessageStore
	now      func() time.Time
}

type ServiceOption func(*Service)

func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

func NewService(st Store, msgs MessageStore, opts ...ServiceOption) *Service {
	s := &Service{store: st, messages: msgs, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Create validates and stores a new conversation under the organization.
func (s *Service) Create(ctx context.Context, orgID string, in Create) (*Conversation, error) {
	if !in.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown conversation type %q", store.ErrInvalidInput, in.Type)
	}
	members := dedupe(in.ParticipantIDs)
	if len(members) == 0 {
		return nil, fmt.Errorf("%w: at least one participant is required", store.ErrInvalidInput)
	}
	if in.Type == TypeOneOnOne && len(members) != 2 {
		return nil, fmt.Errorf("%w: one_on_one conversations need exactly two participants", store.ErrInvalidInput)
	}
	now := s.now().UTC().Unix()
	conv := &Conversation{
		ID:             ids.New(),
		OrganizationID: orgID,
		Type:           in.Type,
		Name:           strings.TrimSpace(in.Name),
		Participants:   make([]Participant, 0, len(members)),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	for _, id := range members {
		conv.Participants = append(conv.Participants, Participant{UserID: id, JoinedAt: now})
	}
	if err := s.store.Create(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// Retrieve fetches a conversation and checks it belongs to the
// organization; a cross-organization id behaves like a missing record.
func (s *Service) Retrieve(ctx context.Context, orgID, id string) (*Conversation, error) {
	conv, err := s.store.Retrieve(ctx, id)
	if err != nil {
		return nil, err
	}
	if conv.OrganizationID != orgID {
		return nil, store.ErrNotFound
	}
	return conv, nil
}

// List pages over an organization's conversations.
func (s *Service) List(ctx context.Context, f Filter, opts store.ListOptions) (store.Page[Conversation], error) {
	return s.store.List(ctx, f, opts)
}

// Update applies a partial update. Existing participants keep their
// original join instant; new ones join now.
func (s *Service) Update(ctx context.Context, orgID, id string, in Update) (*Conversation, error) {
	conv, err := s.Retrieve(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if in.Name != nil {
		conv.Name = strings.TrimSpace(*in.Name)
	}
	if in.Disabled != nil {
		conv.Disabled = *in.Disabled
	}
	now := s.now().UTC().Unix()
	if in.ParticipantIDs != nil {
		joined := make(map[string]int64, len(conv.Participants))
		for _, p := range conv.Participants {
			joined[p.UserID] = p.JoinedAt
		}
		members := dedupe(in.ParticipantIDs)
		if len(members) == 0 {
			return nil, fmt.Errorf("%w: at least one participant is required", store.ErrInvalidInput)
		}
		if conv.Type == TypeOneOnOne && len(members) != 2 {
			return nil, fmt.Errorf("%w: one_on_one conversations need exactly two participants", store.ErrInvalidInput)
		}
		next := make([]Participant, 0, len(members))
		for _, userID := range members {
			at, ok := joined[userID]
			if !ok {
				at = now
			}
			next = append(next, Participant{UserID: userID, JoinedAt: at})
		}
		conv.Participants = next
	}
	conv.UpdatedAt = now
	if err := s.store.Update(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// Delete removes a conversation; soft deletion disables it instead.
func (s *Service) Delete(ctx context.Context, orgID, id string, soft bool) error {
	if _, err := s.Retrieve(ctx, orgID, id); err != nil {
		return err
	}
	return s.store.Delete(ctx, id, soft)
}

// IsParticipant reports whether the user is a member of the conversation.
func (c *Conversation) IsParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p.UserID == userID {
			return true
		}
	}
	return false
}
