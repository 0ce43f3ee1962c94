//go:build integration

package repositories

import (
	"context"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"group-chat/internal/db"
	"group-chat/internal/models"
)

var testDB *sqlx.DB

func TestMain(m *testing.M) {
	ctx := context.Background()
	container, err := postgres.Run(ctx,
		"postgres:15.3-alpine",
		postgres.WithDatabase("group_chat"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		log.Fatalf("failed to start container: %s", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		log.Fatalf("failed to build dsn: %s", err)
	}
	testDB, err = sqlx.Connect("postgres", dsn)
	if err != nil {
		log.Fatalf("failed to connect to postgres container: %s", err)
	}
	if err := db.Migrate(ctx, testDB); err != nil {
		log.Fatalf("failed to migrate: %s", err)
	}

	code := m.Run()

	testDB.Close()
	if err := container.Terminate(ctx); err != nil {
		log.Printf("failed to terminate container: %s", err)
	}
	os.Exit(code)
}

func TestGroupRepoLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewGroupRepo(testDB)

	group, err := repo.CreateGroup(ctx, "admin-1", "gophers", false)
	require.NoError(t, err)
	require.NotEmpty(t, group.ID)
	require.Equal(t, []string{"admin-1"}, group.Members)

	added, err := repo.AddMember(ctx, group.ID, "user-2")
	require.NoError(t, err)
	require.True(t, added)

	added, err = repo.AddMember(ctx, group.ID, "user-2")
	require.NoError(t, err)
	require.False(t, added)

	fetched, err := repo.GetGroup(ctx, group.ID)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"admin-1", "user-2"}, fetched.Members)

	require.NoError(t, repo.RemoveMember(ctx, group.ID, "user-2"))
	require.NoError(t, repo.RemoveMember(ctx, group.ID, "admin-1"))

	fetched, err = repo.GetGroup(ctx, group.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"admin-1"}, fetched.Members)

	mine, err := repo.ListGroupsForUser(ctx, "admin-1")
	require.NoError(t, err)
	require.NotEmpty(t, mine)
}

func TestGroupRepoMissingGroup(t *testing.T) {
	ctx := context.Background()
	repo := NewGroupRepo(testDB)

	_, err := repo.GetGroup(ctx, "missing")
	require.ErrorIs(t, err, ErrGroupNotFound)

	_, err = repo.AddMember(ctx, "missing", "user-1")
	require.ErrorIs(t, err, ErrGroupNotFound)
}

func TestGroupRepoConcurrentJoins(t *testing.T) {
	ctx := context.Background()
	repo := NewGroupRepo(testDB)

	group, err := repo.CreateGroup(ctx, "admin-c", "race", true)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.AddMember(ctx, group.ID, "joiner")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	fetched, err := repo.GetGroup(ctx, group.ID)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"admin-c", "joiner"}, fetched.Members)

	public, err := repo.ListPublicGroups(ctx)
	require.NoError(t, err)
	require.Contains(t, lo.Map(public, func(g models.Group, _ int) string { return g.ID }), group.ID)
}

func TestMessageRepoOrdering(t *testing.T) {
	ctx := context.Background()
	groups := NewGroupRepo(testDB)
	messages := NewMessageRepo(testDB)

	group, err := groups.CreateGroup(ctx, "admin-m", "ordered", false)
	require.NoError(t, err)

	at := time.Now().UTC().Truncate(time.Microsecond)
	first, err := messages.CreateGroupMessage(ctx, models.Message{ID: "m1", GroupID: group.ID, SenderID: "admin-m", SenderName: "A", Text: "one", CreatedAt: at})
	require.NoError(t, err)
	second, err := messages.CreateGroupMessage(ctx, models.Message{ID: "m2", GroupID: group.ID, SenderID: "admin-m", SenderName: "A", File: &models.Attachment{URL: "https://x/y.png", Type: models.AttachmentImage}, CreatedAt: at})
	require.NoError(t, err)
	require.Nil(t, first.File)
	require.NotNil(t, second.File)

	list, err := messages.ListGroupMessages(ctx, group.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "m1", list[0].ID)
	require.Equal(t, "m2", list[1].ID)
}

func TestUserRepoLookups(t *testing.T) {
	ctx := context.Background()
	_, err := testDB.ExecContext(ctx, `INSERT INTO users (id, name, email) VALUES ('u-1', 'Ann', 'ann@example.com'), ('u-2', 'Bob', 'bob@example.com')`)
	require.NoError(t, err)

	users := NewUserRepo(testDB)

	ann, err := users.GetUserByEmail(ctx, "ann@example.com")
	require.NoError(t, err)
	require.Equal(t, "u-1", ann.ID)

	_, err = users.GetUser(ctx, "nobody")
	require.ErrorIs(t, err, ErrUserNotFound)

	found, err := users.BulkUsers(ctx, []string{"u-1", "u-2", "ghost"})
	require.NoError(t, err)
	require.Len(t, found, 2)
}
