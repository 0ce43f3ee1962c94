package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/samber/lo"

	"group-chat/internal/models"
)

var ErrGroupNotFound = errors.New("group not found")

// foreign_key_violation
const pqForeignKeyViolation = "23503"

// GroupRepository abstracts group persistence.
type GroupRepository interface {
	CreateGroup(ctx context.Context, adminID string, name string, isPublic bool) (models.Group, error)
	GetGroup(ctx context.Context, groupID string) (models.Group, error)
	ListPublicGroups(ctx context.Context) ([]models.Group, error)
	ListGroupsForUser(ctx context.Context, userID string) ([]models.Group, error)
	AddMember(ctx context.Context, groupID string, userID string) (bool, error)
	RemoveMember(ctx context.Context, groupID string, userID string) error
}

// GroupRepo is a sqlx implementation of GroupRepository.
type GroupRepo struct {
	db *sqlx.DB
}

// NewGroupRepo constructs a GroupRepo.
func NewGroupRepo(db *sqlx.DB) *GroupRepo {
	return &GroupRepo{db: db}
}

// CreateGroup creates a group with the admin as its only member, atomically.
func (r *GroupRepo) CreateGroup(ctx context.Context, adminID string, name string, isPublic bool) (models.Group, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Group{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var group models.Group
	if err = tx.QueryRowxContext(ctx, `INSERT INTO groups (id, name, admin_id, is_public) VALUES ($1, $2, $3, $4) RETURNING id, name, admin_id, is_public, created_at`, uuid.NewString(), name, adminID, isPublic).
		StructScan(&group); err != nil {
		return models.Group{}, err
	}

	if _, err = tx.ExecContext(ctx, `INSERT INTO group_members (group_id, user_id) VALUES ($1, $2)`, group.ID, adminID); err != nil {
		return models.Group{}, err
	}

	if err = tx.Commit(); err != nil {
		return models.Group{}, err
	}
	group.Members = []string{adminID}
	return group, nil
}

// GetGroup fetches a single group with its members.
func (r *GroupRepo) GetGroup(ctx context.Context, groupID string) (models.Group, error) {
	var group models.Group
	err := r.db.GetContext(ctx, &group, `SELECT id, name, admin_id, is_public, created_at FROM groups WHERE id=$1`, groupID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Group{}, ErrGroupNotFound
	}
	if err != nil {
		return models.Group{}, err
	}

	groups := []models.Group{group}
	if err := r.attachMembers(ctx, groups); err != nil {
		return models.Group{}, err
	}
	return groups[0], nil
}

// ListPublicGroups returns every public group, newest first.
func (r *GroupRepo) ListPublicGroups(ctx context.Context) ([]models.Group, error) {
	groups := []models.Group{}
	if err := r.db.SelectContext(ctx, &groups, `SELECT id, name, admin_id, is_public, created_at FROM groups WHERE is_public = TRUE ORDER BY created_at DESC`); err != nil {
		return nil, err
	}
	if err := r.attachMembers(ctx, groups); err != nil {
		return nil, err
	}
	return groups, nil
}

// ListGroupsForUser returns groups that include the user.
func (r *GroupRepo) ListGroupsForUser(ctx context.Context, userID string) ([]models.Group, error) {
	groups := []models.Group{}
	if err := r.db.SelectContext(ctx, &groups, `SELECT g.id, g.name, g.admin_id, g.is_public, g.created_at FROM groups g INNER JOIN group_members gm ON gm.group_id = g.id WHERE gm.user_id=$1 ORDER BY g.created_at DESC`, userID); err != nil {
		return nil, err
	}
	if err := r.attachMembers(ctx, groups); err != nil {
		return nil, err
	}
	return groups, nil
}

// AddMember inserts the user into the member set. It reports false when the
// user was already a member; the primary key makes concurrent adds safe.
func (r *GroupRepo) AddMember(ctx context.Context, groupID string, userID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `INSERT INTO group_members (group_id, user_id) VALUES ($1, $2) ON CONFLICT (group_id, user_id) DO NOTHING`, groupID, userID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqForeignKeyViolation {
			return false, ErrGroupNotFound
		}
		return false, err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// RemoveMember deletes the user from the member set. The admin row is never deleted.
func (r *GroupRepo) RemoveMember(ctx context.Context, groupID string, userID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM group_members gm USING groups g
        WHERE gm.group_id = g.id AND gm.group_id=$1 AND gm.user_id=$2 AND g.admin_id <> gm.user_id`, groupID, userID)
	return err
}

type memberRow struct {
	GroupID string `db:"group_id"`
	UserID  string `db:"user_id"`
}

func (r *GroupRepo) attachMembers(ctx context.Context, groups []models.Group) error {
	if len(groups) == 0 {
		return nil
	}
	ids := lo.Map(groups, func(g models.Group, _ int) string { return g.ID })

	var rows []memberRow
	if err := r.db.SelectContext(ctx, &rows, `SELECT group_id, user_id FROM group_members WHERE group_id = ANY($1) ORDER BY joined_at ASC, user_id ASC`, pq.Array(ids)); err != nil {
		return err
	}

	byGroup := lo.GroupBy(rows, func(row memberRow) string { return row.GroupID })
	for i := range groups {
		members := lo.Map(byGroup[groups[i].ID], func(row memberRow, _ int) string { return row.UserID })
		groups[i].Members = lo.Uniq(members)
	}
	return nil
}
