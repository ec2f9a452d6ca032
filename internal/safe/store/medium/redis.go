package medium

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"digisafe/pkg/platform/sentinel"
)

// Redis keeps the whole image in one string key and addresses it with
// GETRANGE and SETRANGE. Bytes past the end of the stored string read as 0.
type Redis struct {
	client redis.Cmdable
	key    string
	size   int
}

func NewRedis(client redis.Cmdable, key string, size int) (*Redis, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if key == "" {
		return nil, errors.New("redis key is required")
	}
	if err := validateSize(size); err != nil {
		return nil, err
	}
	return &Redis{client: client, key: key, size: size}, nil
}

func (m *Redis) Read(ctx context.Context, addr uint16) (byte, error) {
	if err := checkAddr(addr, m.size); err != nil {
		return 0, err
	}
	s, err := m.client.GetRange(ctx, m.key, int64(addr), int64(addr)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis getrange %s[%d]: %w: %w", m.key, addr, sentinel.ErrUnavailable, err)
	}
	if len(s) == 0 {
		return 0, nil
	}
	return s[0], nil
}

func (m *Redis) Write(ctx context.Context, addr uint16, value byte) error {
	if err := checkAddr(addr, m.size); err != nil {
		return err
	}
	if err := m.client.SetRange(ctx, m.key, int64(addr), string([]byte{value})).Err(); err != nil {
		return fmt.Errorf("redis setrange %s[%d]: %w: %w", m.key, addr, sentinel.ErrUnavailable, err)
	}
	return nil
}

func (m *Redis) Size() int { return m.size }
