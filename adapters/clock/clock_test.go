package clock_test

import (
	"sync"
	"testing"
	"time"

	"github.com/artpar/calm/adapters/clock"
)

var _ clock.Clock = clock.Real{}
var _ clock.Clock = (*clock.Fake)(nil)

func TestReal_NowIsUTC(t *testing.T) {
	before := time.Now()
	got := clock.Real{}.Now()
	after := time.Now()

	if got.Before(before) || got.After(after) {
		t.Errorf("Now() = %v, expected between %v and %v", got, before, after)
	}
	if got.Location() != time.UTC {
		t.Errorf("Now() location = %v, want UTC", got.Location())
	}
}

func TestFake(t *testing.T) {
	start := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		mutate func(*clock.Fake)
		want   time.Time
	}{
		{"stable", func(*clock.Fake) {}, start},
		{"set", func(c *clock.Fake) { c.Set(start.AddDate(1, 0, 0)) }, start.AddDate(1, 0, 0)},
		{"advance", func(c *clock.Fake) { c.Advance(time.Hour) }, start.Add(time.Hour)},
		{"advance twice", func(c *clock.Fake) {
			c.Advance(time.Hour)
			c.Advance(30 * time.Second)
		}, start.Add(time.Hour + 30*time.Second)},
		{"advance backwards", func(c *clock.Fake) { c.Advance(-time.Hour) }, start.Add(-time.Hour)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := clock.NewFake(start)
			tt.mutate(c)
			for i := 0; i < 3; i++ {
				if got := c.Now(); !got.Equal(tt.want) {
					t.Fatalf("read %d: Now() = %v, want %v", i, got, tt.want)
				}
			}
		})
	}
}

func TestStepping(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := clock.NewStepping(start, time.Millisecond)

	for i := 0; i < 5; i++ {
		want := start.Add(time.Duration(i) * time.Millisecond)
		if got := c.Now(); !got.Equal(want) {
			t.Fatalf("read %d: Now() = %v, want %v", i, got, want)
		}
	}
}

func TestStepping_ConcurrentReadsAreDistinct(t *testing.T) {
	c := clock.NewStepping(time.Now(), time.Nanosecond)

	var mu sync.Mutex
	seen := make(map[time.Time]bool)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				now := c.Now()
				mu.Lock()
				if seen[now] {
					t.Errorf("duplicate reading %v", now)
				}
				seen[now] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
}
