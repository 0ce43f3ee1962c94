package services

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"group-chat/internal/logger"
	"group-chat/internal/models"
)

func newMembership(opts ...MembershipOption) (*MembershipService, *memGroups) {
	groups := newMemGroups()
	users := memUsers{
		"alice": {ID: "alice", Name: "Alice", Email: "alice@example.com"},
		"bob":   {ID: "bob", Name: "Bob", Email: "bob@example.com"},
		"carol": {ID: "carol", Name: "Carol", Email: "carol@example.com"},
	}
	return NewMembershipService(groups, users, logger.Discard(), opts...), groups
}

func TestCreateGroupAdminIsOnlyMember(t *testing.T) {
	svc, _ := newMembership()

	group, err := svc.CreateGroup(context.Background(), " gophers ", " alice ", false)
	require.NoError(t, err)
	assert.Equal(t, "gophers", group.Name)
	assert.Equal(t, "alice", group.AdminID)
	assert.Equal(t, []string{"alice"}, group.Members)
}

func TestCreateGroupRequiresNameAndAdmin(t *testing.T) {
	svc, _ := newMembership()

	_, err := svc.CreateGroup(context.Background(), "  ", "alice", true)
	require.ErrorIs(t, err, ErrInvalid)

	_, err = svc.CreateGroup(context.Background(), "x", "", true)
	require.ErrorIs(t, err, ErrInvalid)
}

func TestJoinGroupIsIdempotent(t *testing.T) {
	svc, groups := newMembership()
	ctx := context.Background()
	group, err := svc.CreateGroup(ctx, "g", "alice", true)
	require.NoError(t, err)

	require.NoError(t, svc.JoinGroup(ctx, group.ID, "bob"))
	first, _ := groups.GetGroup(ctx, group.ID)
	require.NoError(t, svc.JoinGroup(ctx, group.ID, "bob"))
	second, _ := groups.GetGroup(ctx, group.ID)

	assert.Equal(t, first.Members, second.Members)
	assert.Equal(t, []string{"alice", "bob"}, second.Members)
}

func TestJoinGroupMissingGroup(t *testing.T) {
	svc, _ := newMembership()
	err := svc.JoinGroup(context.Background(), "nope", "bob")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestConcurrentJoinsDoNotDuplicate(t *testing.T) {
	svc, groups := newMembership()
	ctx := context.Background()
	group, err := svc.CreateGroup(ctx, "g", "alice", true)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, svc.JoinGroup(ctx, group.ID, "bob"))
		}()
	}
	wg.Wait()

	got, _ := groups.GetGroup(ctx, group.ID)
	assert.Equal(t, []string{"alice", "bob"}, got.Members)
	assert.Zero(t, svc.locks.size())
}

func TestAddMemberChecks(t *testing.T) {
	ctx := context.Background()
	svc, _ := newMembership()
	group, err := svc.CreateGroup(ctx, "g", "alice", false)
	require.NoError(t, err)

	tests := []struct {
		name      string
		groupID   string
		requester string
		user      string
		wantErr   error
	}{
		{name: "missing group", groupID: "nope", requester: "alice", user: "bob", wantErr: ErrNotFound},
		{name: "not admin", groupID: group.ID, requester: "bob", user: "carol", wantErr: ErrForbidden},
		{name: "unknown user", groupID: group.ID, requester: "alice", user: "ghost", wantErr: ErrNotFound},
		{name: "already member", groupID: group.ID, requester: "alice", user: "alice", wantErr: ErrConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.AddMember(ctx, tt.groupID, tt.requester, tt.user)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}

	updated, err := svc.AddMember(ctx, group.ID, "alice", "bob")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice", "bob"}, updated.Members)

	_, err = svc.AddMember(ctx, group.ID, "alice", "bob")
	require.ErrorIs(t, err, ErrConflict)
}

func TestRemoveMember(t *testing.T) {
	ctx := context.Background()
	sink := &recordingSink{}
	svc, _ := newMembership(WithMembershipEvents(sink))
	group, err := svc.CreateGroup(ctx, "g", "alice", false)
	require.NoError(t, err)
	_, err = svc.AddMember(ctx, group.ID, "alice", "bob")
	require.NoError(t, err)

	_, err = svc.RemoveMember(ctx, group.ID, "bob", "alice")
	require.ErrorIs(t, err, ErrForbidden)

	_, err = svc.RemoveMember(ctx, group.ID, "alice", "alice")
	require.ErrorIs(t, err, ErrConflict)

	_, err = svc.RemoveMember(ctx, "nope", "alice", "bob")
	require.ErrorIs(t, err, ErrNotFound)

	updated, err := svc.RemoveMember(ctx, group.ID, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, updated.Members)

	updated, err = svc.RemoveMember(ctx, group.ID, "alice", "carol")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, updated.Members)

	assert.Equal(t, []string{"group.created", "group.member_added", "group.member_removed"}, sink.names())
}

func TestAdminAlwaysMember(t *testing.T) {
	ctx := context.Background()
	svc, groups := newMembership()
	group, err := svc.CreateGroup(ctx, "g", "alice", true)
	require.NoError(t, err)

	steps := []func() error{
		func() error { return svc.JoinGroup(ctx, group.ID, "bob") },
		func() error { _, err := svc.AddMember(ctx, group.ID, "alice", "carol"); return err },
		func() error { _, err := svc.RemoveMember(ctx, group.ID, "alice", "bob"); return err },
		func() error { _, err := svc.RemoveMember(ctx, group.ID, "alice", "alice"); return err },
		func() error { return svc.JoinGroup(ctx, group.ID, "alice") },
	}
	for _, step := range steps {
		_ = step()
		got, err := groups.GetGroup(ctx, group.ID)
		require.NoError(t, err)
		require.Contains(t, got.Members, "alice")
	}
}

func TestListGroups(t *testing.T) {
	ctx := context.Background()
	svc, _ := newMembership()
	pub, err := svc.CreateGroup(ctx, "public", "alice", true)
	require.NoError(t, err)
	priv, err := svc.CreateGroup(ctx, "private", "bob", false)
	require.NoError(t, err)

	public, err := svc.ListPublicGroups(ctx)
	require.NoError(t, err)
	require.Len(t, public, 1)
	assert.Equal(t, pub.ID, public[0].ID)

	mine, err := svc.ListUserGroups(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, priv.ID, mine[0].ID)
}

func TestListMembersSkipsUnknownUsers(t *testing.T) {
	ctx := context.Background()
	svc, _ := newMembership()
	group, err := svc.CreateGroup(ctx, "g", "alice", true)
	require.NoError(t, err)
	require.NoError(t, svc.JoinGroup(ctx, group.ID, "bob"))
	require.NoError(t, svc.JoinGroup(ctx, group.ID, "ghost"))

	users, err := svc.ListMembers(ctx, group.ID, "")
	require.NoError(t, err)
	assert.Equal(t, []models.User{
		{ID: "alice", Name: "Alice", Email: "alice@example.com"},
		{ID: "bob", Name: "Bob", Email: "bob@example.com"},
	}, users)

	_, err = svc.ListMembers(ctx, "nope", "")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListMembersRequiresMembershipWhenEnabled(t *testing.T) {
	ctx := context.Background()
	svc, _ := newMembership(WithMembersRequireMembership(true))
	group, err := svc.CreateGroup(ctx, "g", "alice", true)
	require.NoError(t, err)

	_, err = svc.ListMembers(ctx, group.ID, "carol")
	require.ErrorIs(t, err, ErrForbidden)

	users, err := svc.ListMembers(ctx, group.ID, "alice")
	require.NoError(t, err)
	require.Len(t, users, 1)
}
