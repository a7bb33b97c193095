package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testWaitPolicy() WaitPolicy {
	return WaitPolicy{RefreshCutoff: 180 * time.Second, RefreshInterval: 60 * time.Second}
}

func TestWaitRefreshesUntilCutoff(t *testing.T) {
	target := time.Date(2026, 11, 11, 20, 0, 0, 0, time.UTC)
	clock := newFakeClock(target.Add(-600 * time.Second))
	d := newFakeDriver(clock)
	d.cookies = func() ([]CookieRecord, error) {
		return []CookieRecord{{Name: "_tb_token_", Value: "abc", Domain: ".taobao.com"}}, nil
	}
	store := NewCookieStore(filepath.Join(t.TempDir(), "cookies.json"))

	var hooked []time.Duration
	sched := NewWaitScheduler(d, clock, testLog(), testWaitPolicy(), testCartURL, store)
	sched.OnRefresh = func(remaining time.Duration) { hooked = append(hooked, remaining) }

	if err := sched.Wait(context.Background(), target); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}

	// 600, 540, 480, 420, 360, 300 and 240 seconds out.
	if got := d.count("navigate", testCartURL); got != 7 {
		t.Errorf("Expected 7 refreshes, got %d", got)
	}
	for _, c := range d.Calls() {
		if c.op == "navigate" && target.Sub(c.at) <= 180*time.Second {
			t.Errorf("Refresh issued %v before target, inside the cutoff", target.Sub(c.at))
		}
	}
	if got := d.count("cookies", ""); got != 1 {
		t.Errorf("Expected exactly one cookie snapshot, got %d", got)
	}
	if last := d.Calls()[len(d.Calls())-1]; last.op != "cookies" {
		t.Errorf("Expected the snapshot to come last, got %s", last.op)
	}
	if len(hooked) != 8 || hooked[len(hooked)-1] != 180*time.Second {
		t.Errorf("Unexpected refresh hook values: %v", hooked)
	}

	cookies, err := store.Load()
	if err != nil {
		t.Fatalf("Failed to load snapshot: %v", err)
	}
	if len(cookies) != 1 || cookies[0].Name != "_tb_token_" {
		t.Errorf("Unexpected snapshot contents: %+v", cookies)
	}
}

func TestWaitInsideCutoff(t *testing.T) {
	target := time.Now().Add(time.Hour)
	clock := newFakeClock(target.Add(-100 * time.Second))
	d := newFakeDriver(clock)

	store := NewCookieStore(filepath.Join(t.TempDir(), "cookies.json"))
	if err := NewWaitScheduler(d, clock, testLog(), testWaitPolicy(), testCartURL, store).Wait(context.Background(), target); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if got := d.count("navigate", ""); got != 0 {
		t.Errorf("Expected no refresh, got %d", got)
	}
	if got := d.count("cookies", ""); got != 1 {
		t.Errorf("Expected one snapshot, got %d", got)
	}
	if len(clock.Sleeps()) != 0 {
		t.Errorf("Expected no sleeping, got %v", clock.Sleeps())
	}
}

func TestWaitToleratesFailures(t *testing.T) {
	target := time.Now().Add(time.Hour)
	clock := newFakeClock(target.Add(-300 * time.Second))
	d := newFakeDriver(clock)
	d.navigate = func(string) error {
		return newDriverError("navigate", "", ErrTransport, errors.New("net::ERR_TIMED_OUT"))
	}
	d.cookies = func() ([]CookieRecord, error) {
		return nil, newDriverError("cookies", "", ErrTransport, errors.New("target closed"))
	}
	path := filepath.Join(t.TempDir(), "cookies.json")

	if err := NewWaitScheduler(d, clock, testLog(), testWaitPolicy(), testCartURL, NewCookieStore(path)).Wait(context.Background(), target); err != nil {
		t.Fatalf("Expected failures to be tolerated, got %v", err)
	}
	if got := d.count("navigate", ""); got != 2 {
		t.Errorf("Expected 2 refresh attempts, got %d", got)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("Expected no snapshot file, stat returned %v", err)
	}
}

func TestWaitCancelled(t *testing.T) {
	target := time.Now().Add(time.Hour)
	clock := newFakeClock(target.Add(-time.Hour))
	d := newFakeDriver(clock)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewWaitScheduler(d, clock, testLog(), testWaitPolicy(), testCartURL, nil).Wait(ctx, target)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
}

type staleSync struct {
	stale []bool
	err   error
	syncs int
}

func (s *staleSync) ShouldResync() bool {
	if len(s.stale) == 0 {
		return false
	}
	stale := s.stale[0]
	s.stale = s.stale[1:]
	return stale
}

func (s *staleSync) Sync() error {
	s.syncs++
	return s.err
}

func TestWaitResyncsStaleClock(t *testing.T) {
	testCases := []struct {
		name      string
		stale     []bool
		err       error
		wantSyncs int
	}{
		{name: "fresh", stale: []bool{false, false, false}, wantSyncs: 0},
		{name: "stale once", stale: []bool{false, true, false}, wantSyncs: 1},
		{name: "resync fails", stale: []bool{true, true, true}, err: errors.New("no Date header"), wantSyncs: 3},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			target := time.Date(2026, 11, 11, 20, 0, 0, 0, time.UTC)
			// Two reloads, at 300s and 240s out, then the cutoff check.
			clock := newFakeClock(target.Add(-300 * time.Second))
			d := newFakeDriver(clock)
			ts := &staleSync{stale: tc.stale, err: tc.err}

			sched := NewWaitScheduler(d, clock, testLog(), testWaitPolicy(), testCartURL, nil)
			sched.TimeSync = ts
			if err := sched.Wait(context.Background(), target); err != nil {
				t.Fatalf("Wait failed: %v", err)
			}
			if ts.syncs != tc.wantSyncs {
				t.Errorf("Expected %d resyncs, got %d", tc.wantSyncs, ts.syncs)
			}
			if got := d.count("navigate", testCartURL); got != 2 {
				t.Errorf("Expected 2 refreshes, got %d", got)
			}
		})
	}
}
