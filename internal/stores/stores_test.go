package stores

import (
	"context"
	"crypto/sha256"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestChallengeStoreExpiresOnSuppliedClock(t *testing.T) {
	_, rdb := newTestRedis(t)
	s := NewChallengeStore(rdb, "")
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)

	rec := &Challenge{UserID: "u1", Persistent: true, ExpiresAt: now.Add(5 * time.Minute).UnixMilli()}
	if err := s.Save(ctx, "c1", rec, 5*time.Minute); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := s.Get(ctx, "c1", now.Add(4*time.Minute))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.UserID != "u1" || !got.Persistent || got.Attempts != 0 {
		t.Fatalf("unexpected record: %+v", got)
	}

	if _, err := s.Get(ctx, "c1", now.Add(5*time.Minute)); !errors.Is(err, ErrChallengeExpired) {
		t.Fatalf("expected ErrChallengeExpired at deadline, got %v", err)
	}
	if _, err := s.Get(ctx, "c1", now); !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("expected expired challenge to be removed, got %v", err)
	}
}

func TestChallengeStoreRecordFailureDestroysAtLimit(t *testing.T) {
	_, rdb := newTestRedis(t)
	s := NewChallengeStore(rdb, "")
	ctx := context.Background()
	now := time.Now()

	rec := &Challenge{UserID: "u1", ExpiresAt: now.Add(time.Minute).UnixMilli()}
	if err := s.Save(ctx, "c1", rec, time.Minute); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	for i := 1; i < 3; i++ {
		exceeded, err := s.RecordFailure(ctx, "c1", 3, now)
		if err != nil || exceeded {
			t.Fatalf("attempt %d: exceeded=%v err=%v", i, exceeded, err)
		}
	}
	got, err := s.Get(ctx, "c1", now)
	if err != nil || got.Attempts != 2 {
		t.Fatalf("expected 2 attempts, got %+v err=%v", got, err)
	}

	exceeded, err := s.RecordFailure(ctx, "c1", 3, now)
	if err != nil || !exceeded {
		t.Fatalf("expected exceeded on third failure, got exceeded=%v err=%v", exceeded, err)
	}
	if _, err := s.Get(ctx, "c1", now); !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("expected challenge removed after limit, got %v", err)
	}
}

func TestChallengeStoreDeleteWinsOnce(t *testing.T) {
	_, rdb := newTestRedis(t)
	s := NewChallengeStore(rdb, "")
	ctx := context.Background()

	rec := &Challenge{UserID: "u1", ExpiresAt: time.Now().Add(time.Minute).UnixMilli()}
	if err := s.Save(ctx, "c1", rec, time.Minute); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, err := s.Delete(ctx, "c1"); err == nil && ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	if wins.Load() != 1 {
		t.Fatalf("expected exactly one delete to win, got %d", wins.Load())
	}
}

func TestEnrollmentStoreRoundTrip(t *testing.T) {
	_, rdb := newTestRedis(t)
	s := NewEnrollmentStore(rdb, "")
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)

	if _, err := s.Get(ctx, "u1", now); !errors.Is(err, ErrEnrollmentNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	rec := &Enrollment{SealedSecret: []byte("sealed"), ExpiresAt: now.Add(10 * time.Minute).UnixMilli()}
	if err := s.Save(ctx, "u1", rec, 10*time.Minute); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	got, err := s.Get(ctx, "u1", now)
	if err != nil || string(got.SealedSecret) != "sealed" {
		t.Fatalf("unexpected enrollment %+v err=%v", got, err)
	}
	if _, err := s.Get(ctx, "u1", now.Add(11*time.Minute)); !errors.Is(err, ErrEnrollmentNotFound) {
		t.Fatalf("expected stale enrollment to be refused, got %v", err)
	}
	if err := s.Delete(ctx, "u1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
}

func TestReplayGuardIsMonotonic(t *testing.T) {
	_, rdb := newTestRedis(t)
	g := NewReplayGuard(rdb, "")
	ctx := context.Background()

	steps := []struct {
		step int64
		want bool
	}{
		{100, true},
		{100, false},
		{99, false},
		{101, true},
		{100, false},
	}
	for _, tc := range steps {
		ok, err := g.Claim(ctx, "u1", tc.step, time.Minute)
		if err != nil {
			t.Fatalf("Claim(%d) failed: %v", tc.step, err)
		}
		if ok != tc.want {
			t.Fatalf("Claim(%d)=%v, want %v", tc.step, ok, tc.want)
		}
	}

	ok, err := g.Claim(ctx, "u2", 100, time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected independent counter per user, ok=%v err=%v", ok, err)
	}

	if err := g.Reset(ctx, "u1"); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	ok, err = g.Claim(ctx, "u1", 50, time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected claim after reset, ok=%v err=%v", ok, err)
	}
}

func TestReplayGuardConcurrentClaimsSingleWinner(t *testing.T) {
	_, rdb := newTestRedis(t)
	g := NewReplayGuard(rdb, "")
	ctx := context.Background()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, err := g.Claim(ctx, "u1", 4242, time.Minute); err == nil && ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	if wins.Load() != 1 {
		t.Fatalf("expected one winner, got %d", wins.Load())
	}
}

func TestDeviceTrustStoreLifecycle(t *testing.T) {
	_, rdb := newTestRedis(t)
	s := NewDeviceTrustStore(rdb, "")
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)

	h1 := sha256.Sum256([]byte("one"))
	h2 := sha256.Sum256([]byte("two"))
	for _, h := range [][32]byte{h1, h2} {
		rec := &DeviceTrust{
			UserID:      "u1",
			IssuedAt:    now.UnixMilli(),
			ExpiresAt:   now.Add(time.Hour).UnixMilli(),
			Fingerprint: sha256.Sum256([]byte("fp")),
		}
		if err := s.Save(ctx, h, rec, time.Hour); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	got, err := s.Get(ctx, h1)
	if err != nil || got.UserID != "u1" || got.Fingerprint != sha256.Sum256([]byte("fp")) {
		t.Fatalf("unexpected record %+v err=%v", got, err)
	}

	n, err := s.CountActive(ctx, "u1", now)
	if err != nil || n != 2 {
		t.Fatalf("expected 2 active devices, got %d err=%v", n, err)
	}
	n, err = s.CountActive(ctx, "u1", now.Add(2*time.Hour))
	if err != nil || n != 0 {
		t.Fatalf("expected 0 active devices after expiry, got %d err=%v", n, err)
	}

	if ok, err := s.Delete(ctx, "someone-else", h1); err != nil || ok {
		t.Fatalf("expected foreign delete to be refused, ok=%v err=%v", ok, err)
	}
	if ok, err := s.Delete(ctx, "u1", h1); err != nil || !ok {
		t.Fatalf("expected delete to succeed, ok=%v err=%v", ok, err)
	}
	if _, err := s.Get(ctx, h1); !errors.Is(err, ErrDeviceNotFound) {
		t.Fatalf("expected deleted record to be gone, got %v", err)
	}

	removed, err := s.DeleteAll(ctx, "u1")
	if err != nil || removed != 1 {
		t.Fatalf("expected DeleteAll to remove 1, got %d err=%v", removed, err)
	}
	if _, err := s.Get(ctx, h2); !errors.Is(err, ErrDeviceNotFound) {
		t.Fatalf("expected all records gone, got %v", err)
	}
}
