package repositories

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/samber/lo"

	"group-chat/internal/models"
)

// MessageRepository defines interactions for group messages.
type MessageRepository interface {
	CreateGroupMessage(ctx context.Context, msg models.Message) (models.Message, error)
	ListGroupMessages(ctx context.Context, groupID string) ([]models.Message, error)
}

// MessageRepo is a sqlx-backed implementation.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs a MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

type messageRow struct {
	Seq        int64     `db:"seq"`
	ID         string    `db:"id"`
	GroupID    string    `db:"group_id"`
	SenderID   string    `db:"sender_id"`
	SenderName string    `db:"sender_name"`
	Text       string    `db:"text"`
	FileURL    string    `db:"file_url"`
	FileType   string    `db:"file_type"`
	CreatedAt  time.Time `db:"created_at"`
}

func (row messageRow) toModel() models.Message {
	msg := models.Message{
		ID:         row.ID,
		GroupID:    row.GroupID,
		SenderID:   row.SenderID,
		SenderName: row.SenderName,
		Text:       row.Text,
		CreatedAt:  row.CreatedAt,
	}
	if row.FileURL != "" {
		msg.File = &models.Attachment{URL: row.FileURL, Type: row.FileType}
	}
	return msg
}

// CreateGroupMessage persists a message. ID and CreatedAt are assigned by the caller.
func (r *MessageRepo) CreateGroupMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	var fileURL, fileType string
	if msg.File != nil {
		fileURL, fileType = msg.File.URL, msg.File.Type
	}

	var row messageRow
	err := r.db.QueryRowxContext(ctx, `INSERT INTO group_messages (id, group_id, sender_id, sender_name, text, file_url, file_type, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING seq, id, group_id, sender_id, sender_name, text, file_url, file_type, created_at`,
		msg.ID, msg.GroupID, msg.SenderID, msg.SenderName, msg.Text, fileURL, fileType, msg.CreatedAt).
		StructScan(&row)
	if err != nil {
		return models.Message{}, err
	}
	return row.toModel(), nil
}

// ListGroupMessages returns messages in ascending timestamp order, ties broken by insertion order.
func (r *MessageRepo) ListGroupMessages(ctx context.Context, groupID string) ([]models.Message, error) {
	var rows []messageRow
	err := r.db.SelectContext(ctx, &rows, `SELECT seq, id, group_id, sender_id, sender_name, text, file_url, file_type, created_at
        FROM group_messages WHERE group_id=$1 ORDER BY created_at ASC, seq ASC`, groupID)
	if err != nil {
		return nil, err
	}
	return lo.Map(rows, func(row messageRow, _ int) models.Message { return row.toModel() }), nil
}
