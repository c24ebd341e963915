package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrEmpty 대기 시간 안에 꺼낼 메시지가 없을 때 반환됩니다.
var ErrEmpty = errors.New("messaging: queue empty")

// Queue Redis 리스트 기반 작업 큐 인터페이스
type Queue interface {
	Push(ctx context.Context, message interface{}) error
	Pop(ctx context.Context, wait time.Duration) ([]byte, error)
	Len(ctx context.Context) (int64, error)
}

// redisQueue LPUSH / BRPOP 으로 FIFO 순서를 보장합니다.
type redisQueue struct {
	client redis.UniversalClient
	key    string
}

// NewRedisClient Redis 클라이언트를 생성하고 연결을 확인합니다.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("Redis 연결 실패: %w", err)
	}
	return client, nil
}

// NewRedisQueue key 이름의 리스트를 큐로 사용합니다.
func NewRedisQueue(client redis.UniversalClient, key string) Queue {
	return &redisQueue{client: client, key: key}
}

// Push 메시지를 JSON 으로 직렬화해 큐에 넣습니다.
func (q *redisQueue) Push(ctx context.Context, message interface{}) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("메시지 직렬화 실패: %w", err)
	}
	return q.client.LPush(ctx, q.key, payload).Err()
}

// Pop 가장 오래된 메시지를 꺼냅니다. wait 동안 메시지가 없으면 ErrEmpty.
func (q *redisQueue) Pop(ctx context.Context, wait time.Duration) ([]byte, error) {
	res, err := q.client.BRPop(ctx, wait, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, err
	}
	// res = [key, value]
	return []byte(res[1]), nil
}

func (q *redisQueue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key).Result()
}
