package tenant

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/StricklySoft/identity-gateway/pkg/clients/redis"
	sserr "github.com/StricklySoft/identity-gateway/pkg/errors"
)

// Redis key layout. Each user owns two hashes: assignments keyed by tenant
// id with JSON values, and settings keyed by setting name.
const (
	redisAssignmentPrefix = "tenant:user:"
	redisSettingPrefix    = "setting:user:"
)

// RedisStore is a [Store] on Redis hashes.
type RedisStore struct {
	client *redis.Client
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore returns a store using client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func assignmentKey(userID string) string { return redisAssignmentPrefix + userID }

func settingKey(userID string) string { return redisSettingPrefix + userID }

func (s *RedisStore) GetAssignment(ctx context.Context, userID, tenantID string) (*Assignment, error) {
	raw, err := s.client.HGet(ctx, assignmentKey(userID), tenantID)
	if errors.Is(err, redis.Nil) {
		return nil, assignmentNotFound(userID, tenantID)
	}
	if err != nil {
		return nil, err
	}
	a, err := decodeAssignment(raw)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *RedisStore) ListAssignments(ctx context.Context, userID string) ([]Assignment, error) {
	fields, err := s.client.HGetAll(ctx, assignmentKey(userID))
	if err != nil {
		return nil, err
	}
	list := make([]Assignment, 0, len(fields))
	for _, raw := range fields {
		a, err := decodeAssignment(raw)
		if err != nil {
			return nil, err
		}
		list = append(list, a)
	}
	sortByTenant(list)
	return list, nil
}

func (s *RedisStore) UpsertAssignment(ctx context.Context, a Assignment) error {
	if err := a.validate(); err != nil {
		return err
	}
	if a.Roles == nil {
		a.Roles = []string{}
	}
	raw, err := json.Marshal(a)
	if err != nil {
		return sserr.Wrap(err, sserr.CodeInternalStore, "tenant: encode assignment")
	}
	_, err = s.client.HSet(ctx, assignmentKey(a.UserID), a.TenantID, string(raw))
	return err
}

func (s *RedisStore) DeleteAssignment(ctx context.Context, userID, tenantID string) error {
	_, err := s.client.HDel(ctx, assignmentKey(userID), tenantID)
	return err
}

func (s *RedisStore) GetSetting(ctx context.Context, userID, key string) (*Setting, error) {
	v, err := s.client.HGet(ctx, settingKey(userID), key)
	if errors.Is(err, redis.Nil) {
		return nil, settingNotFound(userID, key)
	}
	if err != nil {
		return nil, err
	}
	return &Setting{UserID: userID, Key: key, Value: v}, nil
}

func (s *RedisStore) UpsertSetting(ctx context.Context, st Setting) error {
	if err := st.validate(); err != nil {
		return err
	}
	_, err := s.client.HSet(ctx, settingKey(st.UserID), st.Key, st.Value)
	return err
}

func (s *RedisStore) DeleteSetting(ctx context.Context, userID, key string) error {
	_, err := s.client.HDel(ctx, settingKey(userID), key)
	return err
}

func decodeAssignment(raw string) (Assignment, error) {
	var a Assignment
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		return Assignment{}, sserr.Wrap(err, sserr.CodeInternalStore, "tenant: decode assignment")
	}
	return a, nil
}
