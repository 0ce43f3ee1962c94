package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/samber/lo"

	"group-chat/internal/models"
	"group-chat/internal/repositories"
)

type memGroups struct {
	mu     sync.Mutex
	seq    int
	groups map[string]*models.Group
	order  []string
}

func newMemGroups() *memGroups {
	return &memGroups{groups: make(map[string]*models.Group)}
}

func (m *memGroups) CreateGroup(_ context.Context, adminID string, name string, isPublic bool) (models.Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	g := &models.Group{ID: fmt.Sprintf("g%d", m.seq), Name: name, AdminID: adminID, IsPublic: isPublic, Members: []string{adminID}}
	m.groups[g.ID] = g
	m.order = append(m.order, g.ID)
	return copyGroup(g), nil
}

func (m *memGroups) GetGroup(_ context.Context, groupID string) (models.Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[groupID]
	if !ok {
		return models.Group{}, repositories.ErrGroupNotFound
	}
	return copyGroup(g), nil
}

func (m *memGroups) ListPublicGroups(_ context.Context) ([]models.Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Group{}
	for _, id := range m.order {
		if g := m.groups[id]; g.IsPublic {
			out = append(out, copyGroup(g))
		}
	}
	return out, nil
}

func (m *memGroups) ListGroupsForUser(_ context.Context, userID string) ([]models.Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Group{}
	for _, id := range m.order {
		if g := m.groups[id]; g.HasMember(userID) {
			out = append(out, copyGroup(g))
		}
	}
	return out, nil
}

func (m *memGroups) AddMember(_ context.Context, groupID string, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[groupID]
	if !ok {
		return false, repositories.ErrGroupNotFound
	}
	if g.HasMember(userID) {
		return false, nil
	}
	g.Members = append(g.Members, userID)
	return true, nil
}

func (m *memGroups) RemoveMember(_ context.Context, groupID string, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[groupID]
	if !ok || userID == g.AdminID {
		return nil
	}
	g.Members = lo.Without(g.Members, userID)
	return nil
}

func copyGroup(g *models.Group) models.Group {
	out := *g
	out.Members = append([]string(nil), g.Members...)
	return out
}

type memMessages struct {
	mu   sync.Mutex
	msgs []models.Message
	err  error
}

func (m *memMessages) CreateGroupMessage(_ context.Context, msg models.Message) (models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return models.Message{}, m.err
	}
	m.msgs = append(m.msgs, msg)
	return msg, nil
}

func (m *memMessages) ListGroupMessages(_ context.Context, groupID string) ([]models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return lo.Filter(m.msgs, func(msg models.Message, _ int) bool { return msg.GroupID == groupID }), nil
}

type memUsers map[string]models.User

func (m memUsers) GetUser(_ context.Context, userID string) (models.User, error) {
	u, ok := m[userID]
	if !ok {
		return models.User{}, repositories.ErrUserNotFound
	}
	return u, nil
}

func (m memUsers) GetUserByEmail(_ context.Context, email string) (models.User, error) {
	for _, u := range m {
		if u.Email == email {
			return u, nil
		}
	}
	return models.User{}, repositories.ErrUserNotFound
}

func (m memUsers) BulkUsers(_ context.Context, ids []string) ([]models.User, error) {
	return lo.FilterMap(ids, func(id string, _ int) (models.User, bool) {
		u, ok := m[id]
		return u, ok
	}), nil
}

type recordingRelay struct {
	mu   sync.Mutex
	sent []models.Message
	err  error
}

func (r *recordingRelay) BroadcastGroupMessage(_ string, msg models.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, msg)
	return r.err
}

type recordedEvent struct {
	routingKey string
	name       string
}

type recordingSink struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (s *recordingSink) Emit(_ context.Context, routingKey, name string, _ any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, recordedEvent{routingKey: routingKey, name: name})
}

func (s *recordingSink) names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo.Map(s.events, func(e recordedEvent, _ int) string { return e.name })
}

var errStoreDown = errors.New("store down")
