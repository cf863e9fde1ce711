package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisRepo struct {
	client   *redis.Client
	maxFails int64
	window   time.Duration
}

func New(ctx context.Context, addr, pass string, db int, maxFails int64, window time.Duration) (*RedisRepo, error) {
	const op = "storage.redis.New"

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     pass,
		DB:           db,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &RedisRepo{
		client:   client,
		maxFails: maxFails,
		window:   window,
	}, nil
}

// * TooManyAttempts сообщает, исчерпан ли лимит неудачных проверок ключа
// для пары компания/пользователь в текущем окне.
func (r *RedisRepo) TooManyAttempts(ctx context.Context, companyID, userID int64) (bool, error) {
	const op = "storage.redis.TooManyAttempts"

	count, err := r.client.Get(ctx, failKey(companyID, userID)).Int64()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return count >= r.maxFails, nil
}

// * RegisterFailure учитывает неудачную проверку ключа.
// Окно отсчитывается от первой неудачи: Expire ставится только на свежий счетчик.
func (r *RedisRepo) RegisterFailure(ctx context.Context, companyID, userID int64) error {
	const op = "storage.redis.RegisterFailure"

	key := failKey(companyID, userID)

	pipe := r.client.Pipeline()
	pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, r.window)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// * Close закрывает соединение с базой данных.
func (r *RedisRepo) Close() {
	r.client.Close()
}

func failKey(companyID, userID int64) string {
	return fmt.Sprintf("entry:fail:%d:%d", companyID, userID)
}
