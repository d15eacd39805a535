package store

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

const testPrefix = "test:rl:"

func setupRedisTest(t *testing.T) *Redis {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		t.Skip("Redis not available:", err)
	}

	t.Cleanup(func() {
		ctx := context.Background()
		iter := client.Scan(ctx, 0, testPrefix+"*", 0).Iterator()
		for iter.Next(ctx) {
			client.Del(ctx, iter.Val())
		}
		client.Close()
	})

	return NewRedis(client)
}

func TestRedis_Increment(t *testing.T) {
	st := setupRedisTest(t)
	ctx := context.Background()
	key := testPrefix + "incr"

	for i := int64(1); i <= 3; i++ {
		count, ttl, err := st.Increment(ctx, key, time.Minute)
		if err != nil {
			t.Fatalf("Increment() error = %v", err)
		}
		if count != i {
			t.Errorf("Increment() = %v, want %v", count, i)
		}
		if ttl <= 0 || ttl > time.Minute {
			t.Errorf("ttl = %v, want in (0, 1m]", ttl)
		}
	}
}

func TestRedis_Block(t *testing.T) {
	st := setupRedisTest(t)
	ctx := context.Background()
	key := testPrefix + "blk"

	if _, ok, err := st.BlockRemaining(ctx, key); err != nil || ok {
		t.Fatalf("BlockRemaining() = ok=%v err=%v before Block()", ok, err)
	}

	if err := st.Block(ctx, key, 30*time.Second); err != nil {
		t.Fatalf("Block() error = %v", err)
	}

	remaining, ok, err := st.BlockRemaining(ctx, key)
	if err != nil {
		t.Fatalf("BlockRemaining() error = %v", err)
	}
	if !ok {
		t.Fatal("BlockRemaining() ok = false after Block()")
	}
	if remaining <= 0 || remaining > 30*time.Second {
		t.Errorf("remaining = %v, want in (0, 30s]", remaining)
	}
}

func TestRedis_Block_ClearsCounter(t *testing.T) {
	st := setupRedisTest(t)
	ctx := context.Background()
	key := testPrefix + "blkcnt"

	for i := 0; i < 3; i++ {
		if _, _, err := st.Increment(ctx, key, time.Hour); err != nil {
			t.Fatalf("Increment() error = %v", err)
		}
	}
	if err := st.Block(ctx, key, time.Minute); err != nil {
		t.Fatalf("Block() error = %v", err)
	}

	count, _, err := st.Increment(ctx, key, time.Hour)
	if err != nil {
		t.Fatalf("Increment() error = %v", err)
	}
	if count != 1 {
		t.Errorf("count after Block() = %v, want 1 (window restarts)", count)
	}
}

func TestRedis_Reset(t *testing.T) {
	st := setupRedisTest(t)
	ctx := context.Background()
	key := testPrefix + "reset"

	if _, _, err := st.Increment(ctx, key, time.Minute); err != nil {
		t.Fatalf("Increment() error = %v", err)
	}
	if err := st.Block(ctx, key, time.Minute); err != nil {
		t.Fatalf("Block() error = %v", err)
	}

	if err := st.Reset(ctx, key); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}

	count, _, err := st.Increment(ctx, key, time.Minute)
	if err != nil {
		t.Fatalf("Increment() error = %v", err)
	}
	if count != 1 {
		t.Errorf("count after reset = %v, want 1", count)
	}
	if _, ok, _ := st.BlockRemaining(ctx, key); ok {
		t.Error("block survived Reset()")
	}
}
