package speedlimit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/banshee-data/trip.report/internal/roads"
	"github.com/banshee-data/trip.report/internal/timeutil"
)

func newTestCache(q roads.Querier) (*Cache, *timeutil.MockClock) {
	clock := timeutil.NewMockClock(time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC))
	return NewCache(NewResolver(q, nil), nil, clock), clock
}

func TestCacheCollapsesNearbyQueries(t *testing.T) {
	q := &fakeQuerier{roads: []roads.Road{{Class: "residential", MaxSpeedTag: "30"}}}
	cache, _ := newTestCache(q)

	ctx := context.Background()
	first := cache.Resolve(ctx, 52.520008, 13.404954)
	// Same ~100 m grid cell, slightly different coordinate.
	second := cache.Resolve(ctx, 52.520312, 13.404711)

	if q.calls != 1 {
		t.Errorf("external queries = %d, want 1", q.calls)
	}
	if first != second {
		t.Errorf("cached result differs: %+v vs %+v", first, second)
	}
}

func TestCacheExpiry(t *testing.T) {
	q := &fakeQuerier{roads: []roads.Road{{Class: "residential", MaxSpeedTag: "30"}}}
	cache, clock := newTestCache(q)
	ctx := context.Background()

	cache.Resolve(ctx, 52.52, 13.405)
	clock.Advance(119 * time.Second)
	cache.Resolve(ctx, 52.52, 13.405)
	if q.calls != 1 {
		t.Fatalf("queries before TTL = %d, want 1", q.calls)
	}

	clock.Advance(2 * time.Second) // past the 2 minute TTL
	cache.Resolve(ctx, 52.52, 13.405)
	if q.calls != 2 {
		t.Errorf("queries after TTL = %d, want 2", q.calls)
	}
}

func TestCacheEvictsOldestInsert(t *testing.T) {
	q := &fakeQuerier{roads: []roads.Road{{Class: "residential"}}}
	cache, _ := newTestCache(q)
	ctx := context.Background()

	// Fill to capacity with distinct grid cells.
	for i := 0; i < 100; i++ {
		cache.Resolve(ctx, 40.0+float64(i)*0.01, -3.7)
	}
	if cache.Len() != 100 {
		t.Fatalf("Len() = %d, want 100", cache.Len())
	}

	// Re-read the first entry; FIFO eviction must ignore the access.
	cache.Resolve(ctx, 40.0, -3.7)
	if q.calls != 100 {
		t.Fatalf("queries = %d, want 100 (re-read must hit cache)", q.calls)
	}

	// The 101st distinct cell evicts exactly one entry: the oldest insert.
	cache.Resolve(ctx, 41.5, -3.7)
	if cache.Len() != 100 {
		t.Errorf("Len() after overflow = %d, want 100", cache.Len())
	}

	// The first-inserted cell is gone and needs a fresh query.
	cache.Resolve(ctx, 40.0, -3.7)
	if q.calls != 102 {
		t.Errorf("queries = %d, want 102 (oldest entry evicted)", q.calls)
	}
}

func TestCacheGridKeyQuantization(t *testing.T) {
	cache, _ := newTestCache(&fakeQuerier{})

	tests := []struct {
		name     string
		lat, lng float64
		want     string
	}{
		{"rounds to three decimals", 52.520008, 13.404954, "52.520,13.405"},
		{"negative coordinates", -33.86882, 151.20929, "-33.869,151.209"},
		{"zero", 0, 0, "0.000,0.000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cache.GridKey(tt.lat, tt.lng); got != tt.want {
				t.Errorf("GridKey(%v, %v) = %q, want %q", tt.lat, tt.lng, got, tt.want)
			}
		})
	}
}

func TestCacheConcurrentLookups(t *testing.T) {
	q := &fakeQuerier{roads: []roads.Road{{Class: "residential"}}}
	cache, _ := newTestCache(q)

	done := make(chan struct{})
	for g := 0; g < 8; g++ {
		go func(g int) {
			defer func() { done <- struct{}{} }()
			for i := 0; i < 50; i++ {
				cache.Resolve(context.Background(), 40.0+float64((g*50+i)%120)*0.01, 2.17)
			}
		}(g)
	}
	for g := 0; g < 8; g++ {
		<-done
	}

	if n := cache.Len(); n > 100 {
		t.Errorf("Len() = %d, want <= 100", n)
	}
}

func TestCacheFailureResultsAreStillCached(t *testing.T) {
	// A failed resolution produces a default_error entry; within the TTL the
	// cadence must not retry a failing source on every tick.
	q := &fakeQuerier{err: fmt.Errorf("dns failure")}
	cache, _ := newTestCache(q)
	ctx := context.Background()

	first := cache.Resolve(ctx, 52.52, 13.405)
	cache.Resolve(ctx, 52.52, 13.405)

	if first.Source != SourceDefaultError {
		t.Errorf("Source = %q, want %q", first.Source, SourceDefaultError)
	}
	if q.calls != 1 {
		t.Errorf("queries = %d, want 1", q.calls)
	}
}
