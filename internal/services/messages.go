package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"group-chat/internal/models"
	"group-chat/internal/observability"
	"group-chat/internal/repositories"
)

const messageEventsRoutingKey = "group_chat.messages"

// Broadcaster fans a stored message out to the group's live subscribers.
type Broadcaster interface {
	BroadcastGroupMessage(groupID string, msg models.Message) error
}

// SendMessageInput is a message as submitted by a client.
type SendMessageInput struct {
	GroupID    string `validate:"required"`
	SenderID   string `validate:"required"`
	SenderName string
	Text       string
	File       *models.Attachment
}

// MessageService stores group messages and hands them to the relay.
type MessageService struct {
	groups   repositories.GroupRepository
	messages repositories.MessageRepository
	relay    Broadcaster
	clock    *Clock
	validate *validator.Validate
	events   EventSink
	log      *slog.Logger
	tracer   trace.Tracer
	locks    *groupLocks
}

// NewMessageService constructs a MessageService. events may be nil.
func NewMessageService(groups repositories.GroupRepository, messages repositories.MessageRepository, relay Broadcaster, events EventSink, log *slog.Logger) *MessageService {
	return &MessageService{
		groups:   groups,
		messages: messages,
		relay:    relay,
		clock:    NewClock(),
		validate: validator.New(),
		events:   events,
		log:      log,
		tracer:   otel.Tracer("group-chat/services"),
		locks:    newGroupLocks(),
	}
}

// SendMessage validates, stores and broadcasts a message. A failed broadcast
// is logged; the stored message is still returned.
func (s *MessageService) SendMessage(ctx context.Context, in SendMessageInput) (models.Message, error) {
	ctx, span := s.tracer.Start(ctx, "messages.send")
	defer span.End()

	in = normalize(in)
	span.SetAttributes(attribute.String("group.id", in.GroupID))

	// Held across persist and broadcast so subscribers see a group's
	// messages in the order they were accepted.
	unlock := s.locks.lock(in.GroupID)
	defer unlock()

	group, err := s.groups.GetGroup(ctx, in.GroupID)
	if err != nil {
		if errors.Is(err, repositories.ErrGroupNotFound) {
			return models.Message{}, fmt.Errorf("%w: group not found", ErrNotFound)
		}
		return models.Message{}, fmt.Errorf("get group: %w", err)
	}
	if !group.HasMember(in.SenderID) {
		return models.Message{}, fmt.Errorf("%w: sender is not a member of this group", ErrForbidden)
	}
	if in.Text == "" && in.File == nil {
		return models.Message{}, fmt.Errorf("%w: message needs text or a file", ErrInvalid)
	}
	if err := s.validate.Struct(in); err != nil {
		return models.Message{}, fmt.Errorf("%w: %s", ErrInvalid, err)
	}

	msg, err := s.messages.CreateGroupMessage(ctx, models.Message{
		ID:         uuid.NewString(),
		GroupID:    in.GroupID,
		SenderID:   in.SenderID,
		SenderName: in.SenderName,
		Text:       in.Text,
		File:       in.File,
		CreatedAt:  s.clock.Now(),
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return models.Message{}, fmt.Errorf("store message: %w", err)
	}
	observability.IncMessageSent(msg.Kind())

	if s.relay != nil {
		if err := s.relay.BroadcastGroupMessage(msg.GroupID, msg); err != nil {
			s.log.WarnContext(ctx, "broadcast failed", "group_id", msg.GroupID, "message_id", msg.ID, "error", err)
		}
	}

	if s.events != nil {
		s.events.Emit(ctx, messageEventsRoutingKey, "message.created", map[string]any{
			"message_id": msg.ID,
			"group_id":   msg.GroupID,
			"sender":     msg.SenderID,
			"kind":       msg.Kind(),
		})
	}
	s.log.DebugContext(ctx, "message sent", "group_id", msg.GroupID, "message_id", msg.ID)
	return msg, nil
}

// GetGroupMessages returns the group's history oldest first. Private groups
// are readable by members only.
func (s *MessageService) GetGroupMessages(ctx context.Context, groupID, requesterID string) ([]models.Message, error) {
	ctx, span := s.tracer.Start(ctx, "messages.list")
	defer span.End()

	groupID, requesterID = strings.TrimSpace(groupID), strings.TrimSpace(requesterID)

	group, err := s.groups.GetGroup(ctx, groupID)
	if err != nil {
		if errors.Is(err, repositories.ErrGroupNotFound) {
			return nil, fmt.Errorf("%w: group not found", ErrNotFound)
		}
		return nil, fmt.Errorf("get group: %w", err)
	}
	if !group.IsPublic && (requesterID == "" || !group.HasMember(requesterID)) {
		return nil, fmt.Errorf("%w: group is private", ErrForbidden)
	}

	msgs, err := s.messages.ListGroupMessages(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return msgs, nil
}

// normalize trims identifiers and text and drops an incomplete attachment.
func normalize(in SendMessageInput) SendMessageInput {
	in.GroupID = strings.TrimSpace(in.GroupID)
	in.SenderID = strings.TrimSpace(in.SenderID)
	in.SenderName = strings.TrimSpace(in.SenderName)
	in.Text = strings.TrimSpace(in.Text)
	if in.File != nil {
		file := models.Attachment{URL: strings.TrimSpace(in.File.URL), Type: strings.TrimSpace(in.File.Type)}
		if file.URL == "" || file.Type == "" {
			in.File = nil
		} else {
			in.File = &file
		}
	}
	return in
}
