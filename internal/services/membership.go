package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"group-chat/internal/models"
	"group-chat/internal/observability"
	"group-chat/internal/repositories"
)

const groupEventsRoutingKey = "group_chat.groups"

// EventSink receives best-effort domain events.
type EventSink interface {
	Emit(ctx context.Context, routingKey, name string, payload any)
}

// MembershipService owns group creation and membership changes.
type MembershipService struct {
	groups            repositories.GroupRepository
	users             repositories.UserDirectory
	events            EventSink
	log               *slog.Logger
	tracer            trace.Tracer
	locks             *groupLocks
	requireMembership bool
}

// MembershipOption customizes a MembershipService.
type MembershipOption func(*MembershipService)

// WithMembersRequireMembership restricts ListMembers to group members.
func WithMembersRequireMembership(enabled bool) MembershipOption {
	return func(s *MembershipService) { s.requireMembership = enabled }
}

// WithMembershipEvents publishes group.* events to sink.
func WithMembershipEvents(sink EventSink) MembershipOption {
	return func(s *MembershipService) { s.events = sink }
}

// NewMembershipService constructs a MembershipService.
func NewMembershipService(groups repositories.GroupRepository, users repositories.UserDirectory, log *slog.Logger, opts ...MembershipOption) *MembershipService {
	s := &MembershipService{
		groups: groups,
		users:  users,
		log:    log,
		tracer: otel.Tracer("group-chat/services"),
		locks:  newGroupLocks(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateGroup creates a group whose only member is its admin.
func (s *MembershipService) CreateGroup(ctx context.Context, name, adminID string, isPublic bool) (models.Group, error) {
	ctx, span := s.tracer.Start(ctx, "membership.create_group")
	defer span.End()

	name, adminID = strings.TrimSpace(name), strings.TrimSpace(adminID)
	if name == "" {
		return models.Group{}, fmt.Errorf("%w: group name is required", ErrInvalid)
	}
	if adminID == "" {
		return models.Group{}, fmt.Errorf("%w: admin is required", ErrInvalid)
	}

	group, err := s.groups.CreateGroup(ctx, adminID, name, isPublic)
	if err != nil {
		return models.Group{}, fmt.Errorf("create group: %w", err)
	}
	span.SetAttributes(attribute.String("group.id", group.ID))

	s.log.InfoContext(ctx, "group created", "group_id", group.ID, "admin", adminID, "public", isPublic)
	s.emit(ctx, "group.created", map[string]any{"group_id": group.ID, "admin": adminID, "is_public": isPublic})
	return group, nil
}

// ListPublicGroups returns every public group.
func (s *MembershipService) ListPublicGroups(ctx context.Context) ([]models.Group, error) {
	groups, err := s.groups.ListPublicGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("list public groups: %w", err)
	}
	return groups, nil
}

// ListUserGroups returns the groups userID belongs to.
func (s *MembershipService) ListUserGroups(ctx context.Context, userID string) ([]models.Group, error) {
	groups, err := s.groups.ListGroupsForUser(ctx, strings.TrimSpace(userID))
	if err != nil {
		return nil, fmt.Errorf("list user groups: %w", err)
	}
	return groups, nil
}

// JoinGroup adds userID to the group. Joining twice is a no-op.
func (s *MembershipService) JoinGroup(ctx context.Context, groupID, userID string) error {
	ctx, span := s.tracer.Start(ctx, "membership.join_group")
	defer span.End()

	groupID, userID = strings.TrimSpace(groupID), strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("%w: user is required", ErrInvalid)
	}

	unlock := s.locks.lock(groupID)
	defer unlock()

	if _, err := s.getGroup(ctx, groupID); err != nil {
		return err
	}

	added, err := s.groups.AddMember(ctx, groupID, userID)
	if err != nil {
		return s.translate(err, "join group")
	}
	if added {
		observability.IncMembershipChange("joined")
		s.log.InfoContext(ctx, "user joined group", "group_id", groupID, "user_id", userID)
		s.emit(ctx, "group.member_joined", map[string]any{"group_id": groupID, "user_id": userID})
	}
	return nil
}

// AddMember lets the group admin add an existing user.
func (s *MembershipService) AddMember(ctx context.Context, groupID, requesterID, userID string) (models.Group, error) {
	ctx, span := s.tracer.Start(ctx, "membership.add_member")
	defer span.End()

	groupID, requesterID, userID = strings.TrimSpace(groupID), strings.TrimSpace(requesterID), strings.TrimSpace(userID)

	unlock := s.locks.lock(groupID)
	defer unlock()

	group, err := s.getGroup(ctx, groupID)
	if err != nil {
		return models.Group{}, err
	}
	if group.AdminID != requesterID {
		return models.Group{}, fmt.Errorf("%w: only the group admin can add members", ErrForbidden)
	}
	if _, err := s.users.GetUser(ctx, userID); err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return models.Group{}, fmt.Errorf("%w: user %q", ErrNotFound, userID)
		}
		return models.Group{}, fmt.Errorf("lookup user: %w", err)
	}
	if group.HasMember(userID) {
		return models.Group{}, fmt.Errorf("%w: user is already a member", ErrConflict)
	}

	added, err := s.groups.AddMember(ctx, groupID, userID)
	if err != nil {
		return models.Group{}, s.translate(err, "add member")
	}
	if !added {
		return models.Group{}, fmt.Errorf("%w: user is already a member", ErrConflict)
	}

	observability.IncMembershipChange("added")
	s.log.InfoContext(ctx, "member added", "group_id", groupID, "user_id", userID, "by", requesterID)
	s.emit(ctx, "group.member_added", map[string]any{"group_id": groupID, "user_id": userID, "by": requesterID})
	return s.getGroup(ctx, groupID)
}

// RemoveMember lets the group admin remove anyone except themselves.
// Removing a non-member succeeds without changes.
func (s *MembershipService) RemoveMember(ctx context.Context, groupID, requesterID, userID string) (models.Group, error) {
	ctx, span := s.tracer.Start(ctx, "membership.remove_member")
	defer span.End()

	groupID, requesterID, userID = strings.TrimSpace(groupID), strings.TrimSpace(requesterID), strings.TrimSpace(userID)

	unlock := s.locks.lock(groupID)
	defer unlock()

	group, err := s.getGroup(ctx, groupID)
	if err != nil {
		return models.Group{}, err
	}
	if group.AdminID != requesterID {
		return models.Group{}, fmt.Errorf("%w: only the group admin can remove members", ErrForbidden)
	}
	if userID == group.AdminID {
		return models.Group{}, fmt.Errorf("%w: the admin cannot be removed", ErrConflict)
	}
	if !group.HasMember(userID) {
		return group, nil
	}

	if err := s.groups.RemoveMember(ctx, groupID, userID); err != nil {
		return models.Group{}, fmt.Errorf("remove member: %w", err)
	}

	observability.IncMembershipChange("removed")
	s.log.InfoContext(ctx, "member removed", "group_id", groupID, "user_id", userID, "by", requesterID)
	s.emit(ctx, "group.member_removed", map[string]any{"group_id": groupID, "user_id": userID, "by": requesterID})
	return s.getGroup(ctx, groupID)
}

// ListMembers resolves the group's members against the user directory.
// Ids the directory does not know are skipped.
func (s *MembershipService) ListMembers(ctx context.Context, groupID, requesterID string) ([]models.User, error) {
	ctx, span := s.tracer.Start(ctx, "membership.list_members")
	defer span.End()

	group, err := s.getGroup(ctx, strings.TrimSpace(groupID))
	if err != nil {
		return nil, err
	}
	if s.requireMembership && !group.HasMember(strings.TrimSpace(requesterID)) {
		return nil, fmt.Errorf("%w: not a member of this group", ErrForbidden)
	}

	users, err := s.users.BulkUsers(ctx, group.Members)
	if err != nil {
		return nil, fmt.Errorf("load members: %w", err)
	}

	byID := lo.KeyBy(users, func(u models.User) string { return u.ID })
	return lo.FilterMap(group.Members, func(id string, _ int) (models.User, bool) {
		u, ok := byID[id]
		return u, ok
	}), nil
}

func (s *MembershipService) getGroup(ctx context.Context, groupID string) (models.Group, error) {
	group, err := s.groups.GetGroup(ctx, groupID)
	if err != nil {
		return models.Group{}, s.translate(err, "get group")
	}
	return group, nil
}

func (s *MembershipService) translate(err error, op string) error {
	if errors.Is(err, repositories.ErrGroupNotFound) {
		return fmt.Errorf("%w: group not found", ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (s *MembershipService) emit(ctx context.Context, name string, payload map[string]any) {
	if s.events == nil {
		return
	}
	s.events.Emit(ctx, groupEventsRoutingKey, name, payload)
}
