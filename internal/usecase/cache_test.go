package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/example/ai-detect/internal/detection"
)

func TestTieredCacheWritesThroughToRedis(t *testing.T) {
	redisStub := &stubCache{}
	cache := NewTieredCache(NewMemoryCache(4), redisStub, 10*time.Minute, zap.NewNop())

	want := detection.Result{Label: detection.LabelAI, Confidence: 0.8, Source: SourceZeroShot}
	cache.Put(context.Background(), "https://x/a.png", want)

	if len(redisStub.setKeys) != 1 || redisStub.setKeys[0] != "classification:https://x/a.png" {
		t.Fatalf("unexpected redis keys: %v", redisStub.setKeys)
	}
	if redisStub.ttls[0] != 10*time.Minute {
		t.Fatalf("unexpected ttl: %v", redisStub.ttls[0])
	}
	got, ok := cache.Get(context.Background(), "https://x/a.png")
	if !ok || got.Label != want.Label || got.Confidence != want.Confidence {
		t.Fatalf("expected memory hit, got %+v ok=%v", got, ok)
	}
}

func TestTieredCacheReadsRedisOnMemoryMiss(t *testing.T) {
	redisStub := &stubCache{values: map[string]string{
		"classification:https://x/b.png": `{"label":"real","confidence":0.9,"source":"hf_zero_shot"}`,
	}}
	memory := NewMemoryCache(4)
	cache := NewTieredCache(memory, redisStub, time.Minute, zap.NewNop())

	got, ok := cache.Get(context.Background(), "https://x/b.png")
	if !ok || got.Label != detection.LabelReal || got.Confidence != 0.9 {
		t.Fatalf("expected redis hit, got %+v ok=%v", got, ok)
	}
	if memory.Len() != 1 {
		t.Fatalf("expected redis hit to populate memory tier")
	}
}

func TestTieredCacheTreatsRedisFailuresAsMisses(t *testing.T) {
	redisStub := &stubCache{getErr: errors.New("connection reset"), setErr: errors.New("connection reset")}
	cache := NewTieredCache(NewMemoryCache(4), redisStub, time.Minute, zap.NewNop())

	if _, ok := cache.Get(context.Background(), "https://x/c.png"); ok {
		t.Fatal("expected miss when redis is unavailable")
	}
	cache.Put(context.Background(), "https://x/c.png", detection.Result{Label: detection.LabelAI})
	if _, ok := cache.Get(context.Background(), "https://x/c.png"); !ok {
		t.Fatal("expected memory tier to keep the entry")
	}
}

func TestTieredCacheIgnoresCorruptEntries(t *testing.T) {
	redisStub := &stubCache{values: map[string]string{"classification:https://x/d.png": "not-json"}}
	cache := NewTieredCache(NewMemoryCache(4), redisStub, time.Minute, zap.NewNop())

	if _, ok := cache.Get(context.Background(), "https://x/d.png"); ok {
		t.Fatal("expected corrupt entry to be a miss")
	}
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache(2)
	cache.Put(ctx, "A", detection.Result{Label: detection.LabelAI})
	cache.Put(ctx, "B", detection.Result{Label: detection.LabelReal})
	cache.Get(ctx, "A")
	cache.Put(ctx, "C", detection.Result{Label: detection.LabelAI})

	if _, ok := cache.Get(ctx, "B"); ok {
		t.Fatal("expected B to be evicted")
	}
	for _, key := range []string{"A", "C"} {
		if _, ok := cache.Get(ctx, key); !ok {
			t.Fatalf("expected %s to remain", key)
		}
	}
}
