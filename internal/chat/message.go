package chat

import (
	"context"
	"fmt"
	"strings"

	"parley.chat/internal/ids"
	"parley.chat/internal/store"
)

// MessageType discriminates message payloads.
type MessageType string

const (
	MessageText   MessageType = "text"
	MessageImage  MessageType = "image"
	MessageFile   MessageType = "file"
	MessageAudio  MessageType = "audio"
	MessageVideo  MessageType = "video"
	MessageSystem MessageType = "system"
)

// Valid reports whether the type is part of the enumeration.
func (t MessageType) Valid() bool {
	switch t {
	case MessageText, MessageImage, MessageFile, MessageAudio, MessageVideo, MessageSystem:
		return true
	}
	return false
}

// Reaction is one user's reaction to a message.
type Reaction struct {
	UserID    string `json:"user_id"`
	Reaction  string `json:"reaction"`
	CreatedAt int64  `json:"created_at"`
}

// Message belongs to exactly one conversation. Deleted messages keep their
// row so threads stay addressable; Deleted works like the soft-delete flag
// elsewhere.
type Message struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversation_id"`
	SenderID       string         `json:"sender_id"`
	Type           MessageType    `json:"type"`
	Content        string         `json:"content"`
	Edited         bool           `json:"is_edited"`
	Deleted        bool           `json:"is_deleted"`
	ReplyTo        string         `json:"reply_to,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	Reactions      []Reaction     `json:"reactions"`
	CreatedAt      int64          `json:"created_at"`
	UpdatedAt      int64          `json:"updated_at"`
}

// MessageFilter narrows message listings to one conversation.
type MessageFilter struct {
	ConversationID string
}

// MessageStore is the message persistence surface.
type MessageStore interface {
	Create(ctx context.Context, m *Message) error
	Retrieve(ctx context.Context, id string) (*Message, error)
	List(ctx context.Context, f MessageFilter, opts store.ListOptions) (store.Page[Message], error)
	Update(ctx context.Context, m *Message) error
	Delete(ctx context.Context, id string, soft bool) error
}

// CreateMessage is the message creation payload. An empty Type means text.
type CreateMessage struct {
	Type     MessageType    `json:"type,omitempty"`
	Content  string         `json:"content"`
	ReplyTo  string         `json:"reply_to,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// UpdateMessage is a partial message update. Nil fields are left unchanged;
// Metadata entries are merged into the existing map, Reactions replace it.
type UpdateMessage struct {
	Content   *string        `json:"content,omitempty"`
	Deleted   *bool          `json:"is_deleted,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Reactions []Reaction     `json:"reactions,omitempty"`
}

// CreateMessage validates and stores a new message in the conversation.
// ReplyTo, when set, must name a message of the same conversation.
func (s *Service) CreateMessage(ctx context.Context, conv *Conversation, senderID string, in CreateMessage) (*Message, error) {
	if in.Type == "" {
		in.Type = MessageText
	}
	if !in.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown message type %q", store.ErrInvalidInput, in.Type)
	}
	if strings.TrimSpace(in.Content) == "" {
		return nil, fmt.Errorf("%w: content is required", store.ErrInvalidInput)
	}
	if in.ReplyTo != "" {
		parent, err := s.messages.Retrieve(ctx, in.ReplyTo)
		if err != nil {
			return nil, fmt.Errorf("%w: reply_to message does not exist", store.ErrInvalidInput)
		}
		if parent.ConversationID != conv.ID {
			return nil, fmt.Errorf("%w: reply_to message belongs to another conversation", store.ErrInvalidInput)
		}
	}
	now := s.now().UTC().Unix()
	msg := &Message{
		ID:             ids.New(),
		ConversationID: conv.ID,
		SenderID:       senderID,
		Type:           in.Type,
		Content:        in.Content,
		ReplyTo:        in.ReplyTo,
		Metadata:       in.Metadata,
		Reactions:      []Reaction{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// RetrieveMessage fetches a message and checks it belongs to the
// conversation; a foreign id behaves like a missing record.
func (s *Service) RetrieveMessage(ctx context.Context, convID, id string) (*Message, error) {
	msg, err := s.messages.Retrieve(ctx, id)
	if err != nil {
		return nil, err
	}
	if msg.ConversationID != convID {
		return nil, store.ErrNotFound
	}
	return msg, nil
}

// ListMessages pages over a conversation's messages.
func (s *Service) ListMessages(ctx context.Context, convID string, opts store.ListOptions) (store.Page[Message], error) {
	return s.messages.List(ctx, MessageFilter{ConversationID: convID}, opts)
}

// UpdateMessage applies a partial update. A content change marks the
// message edited and bumps the update instant.
func (s *Service) UpdateMessage(ctx context.Context, convID, id string, in UpdateMessage) (*Message, error) {
	msg, err := s.RetrieveMessage(ctx, convID, id)
	if err != nil {
		return nil, err
	}
	changed := false
	if in.Content != nil {
		if strings.TrimSpace(*in.Content) == "" {
			return nil, fmt.Errorf("%w: content is required", store.ErrInvalidInput)
		}
		msg.Content = *in.Content
		msg.Edited = true
		changed = true
	}
	if in.Deleted != nil {
		msg.Deleted = *in.Deleted
		changed = true
	}
	if in.Metadata != nil {
		if msg.Metadata == nil {
			msg.Metadata = make(map[string]any, len(in.Metadata))
		}
		for k, v := range in.Metadata {
			msg.Metadata[k] = v
		}
		changed = true
	}
	if in.Reactions != nil {
		msg.Reactions = in.Reactions
		changed = true
	}
	if changed {
		msg.UpdatedAt = s.now().UTC().Unix()
	}
	if err := s.messages.Update(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// DeleteMessage removes a message; soft deletion keeps the row with the
// deleted flag set.
func (s *Service) DeleteMessage(ctx context.Context, convID, id string, soft bool) error {
	if _, err := s.RetrieveMessage(ctx, convID, id); err != nil {
		return err
	}
	return s.messages.Delete(ctx, id, soft)
}
