package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/samber/lo"

	"group-chat/internal/models"
	"group-chat/internal/repositories"
)

const keyPrefix = "group_chat:user:"

// kv is the subset of *redis.Client the cache uses.
type kv interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// UserDirectory caches user lookups in Redis in front of another directory.
// Misses and Redis failures fall through; unknown users are never cached.
type UserDirectory struct {
	rdb  kv
	next repositories.UserDirectory
	ttl  time.Duration
	log  *slog.Logger
}

func NewUserDirectory(rdb *redis.Client, next repositories.UserDirectory, ttl time.Duration, log *slog.Logger) *UserDirectory {
	return newUserDirectory(rdb, next, ttl, log)
}

func newUserDirectory(rdb kv, next repositories.UserDirectory, ttl time.Duration, log *slog.Logger) *UserDirectory {
	return &UserDirectory{rdb: rdb, next: next, ttl: ttl, log: log}
}

func (d *UserDirectory) GetUser(ctx context.Context, userID string) (models.User, error) {
	if user, ok := d.load(ctx, idKey(userID)); ok {
		return user, nil
	}
	user, err := d.next.GetUser(ctx, userID)
	if err != nil {
		return models.User{}, err
	}
	d.store(ctx, user)
	return user, nil
}

func (d *UserDirectory) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	if user, ok := d.load(ctx, emailKey(email)); ok {
		return user, nil
	}
	user, err := d.next.GetUserByEmail(ctx, email)
	if err != nil {
		return models.User{}, err
	}
	d.store(ctx, user)
	return user, nil
}

// BulkUsers serves cached users and asks the next directory for the rest.
func (d *UserDirectory) BulkUsers(ctx context.Context, ids []string) ([]models.User, error) {
	found := make(map[string]models.User, len(ids))
	var missing []string
	for _, id := range lo.Uniq(ids) {
		if user, ok := d.load(ctx, idKey(id)); ok {
			found[id] = user
			continue
		}
		missing = append(missing, id)
	}

	if len(missing) > 0 {
		users, err := d.next.BulkUsers(ctx, missing)
		if err != nil {
			return nil, err
		}
		for _, user := range users {
			found[user.ID] = user
			d.store(ctx, user)
		}
	}

	return lo.FilterMap(lo.Uniq(ids), func(id string, _ int) (models.User, bool) {
		user, ok := found[id]
		return user, ok
	}), nil
}

func (d *UserDirectory) load(ctx context.Context, key string) (models.User, bool) {
	raw, err := d.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			d.log.WarnContext(ctx, "user cache read failed", "key", key, "error", err)
		}
		return models.User{}, false
	}
	var user models.User
	if err := json.Unmarshal(raw, &user); err != nil {
		d.log.WarnContext(ctx, "user cache entry corrupt", "key", key, "error", err)
		return models.User{}, false
	}
	return user, true
}

func (d *UserDirectory) store(ctx context.Context, user models.User) {
	raw, err := json.Marshal(user)
	if err != nil {
		return
	}
	for _, key := range []string{idKey(user.ID), emailKey(user.Email)} {
		if err := d.rdb.Set(ctx, key, raw, d.ttl).Err(); err != nil {
			d.log.WarnContext(ctx, "user cache write failed", "key", key, "error", err)
			return
		}
	}
}

func idKey(id string) string       { return keyPrefix + "id:" + id }
func emailKey(email string) string { return keyPrefix + "email:" + email }
