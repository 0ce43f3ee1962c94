package models

import (
	"time"

	"github.com/samber/lo"
)

// Group represents a chat group. Members always contains AdminID.
type Group struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	AdminID   string    `db:"admin_id" json:"admin"`
	IsPublic  bool      `db:"is_public" json:"isPublic"`
	Members   []string  `db:"-" json:"members"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// HasMember reports whether userID belongs to the group.
func (g Group) HasMember(userID string) bool {
	return lo.Contains(g.Members, userID)
}
