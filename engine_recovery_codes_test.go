package goGuard

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
)

func TestRecoveryCodesConsumeOnce(t *testing.T) {
	env, done := newTestEnv(t, testConfig())
	defer done()
	ctx := context.Background()

	_, codes := env.enableTOTP(t, "u-alice")
	for i, code := range codes {
		if err := env.engine.ConsumeRecoveryCode(ctx, "u-alice", code); err != nil {
			t.Fatalf("code %d: %v", i, err)
		}
		left, err := env.engine.RemainingRecoveryCodes(ctx, "u-alice")
		if err != nil {
			t.Fatalf("RemainingRecoveryCodes failed: %v", err)
		}
		if left != len(codes)-i-1 {
			t.Fatalf("after %d uses expected %d left, got %d", i+1, len(codes)-i-1, left)
		}
		if err := env.engine.ConsumeRecoveryCode(ctx, "u-alice", code); !errors.Is(err, ErrRecoveryCodeInvalid) {
			t.Fatalf("code %d reuse: expected ErrRecoveryCodeInvalid, got %v", i, err)
		}
	}
}

func TestRecoveryCodeFormattingIgnored(t *testing.T) {
	env, done := newTestEnv(t, testConfig())
	defer done()

	_, codes := env.enableTOTP(t, "u-alice")
	messy := " " + strings.ToLower(strings.ReplaceAll(codes[0], "-", " ")) + " "
	if err := env.engine.ConsumeRecoveryCode(context.Background(), "u-alice", messy); err != nil {
		t.Fatalf("formatted code rejected: %v", err)
	}
}

func TestRecoveryCodeOfAnotherUserInvalid(t *testing.T) {
	env, done := newTestEnv(t, testConfig())
	defer done()
	ctx := context.Background()

	_, aliceCodes := env.enableTOTP(t, "u-alice")
	env.enableTOTP(t, "u-bob")

	if err := env.engine.ConsumeRecoveryCode(ctx, "u-bob", aliceCodes[0]); !errors.Is(err, ErrRecoveryCodeInvalid) {
		t.Fatalf("expected ErrRecoveryCodeInvalid, got %v", err)
	}
	if err := env.engine.ConsumeRecoveryCode(ctx, "u-alice", "not-a-code"); !errors.Is(err, ErrRecoveryCodeInvalid) {
		t.Fatalf("expected ErrRecoveryCodeInvalid for garbage, got %v", err)
	}
}

func TestRecoveryCodeConcurrentConsume(t *testing.T) {
	env, done := newTestEnv(t, testConfig())
	defer done()

	_, codes := env.enableTOTP(t, "u-alice")

	const workers = 16
	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- env.engine.ConsumeRecoveryCode(context.Background(), "u-alice", codes[0])
		}()
	}
	wg.Wait()
	close(results)

	successes := 0
	for err := range results {
		switch {
		case err == nil:
			successes++
		case !errors.Is(err, ErrRecoveryCodeInvalid):
			t.Fatalf("unexpected error %v", err)
		}
	}
	if successes != 1 {
		t.Fatalf("expected exactly one success, got %d", successes)
	}
}

func TestRegenerateRecoveryCodesReplacesBatch(t *testing.T) {
	env, done := newTestEnv(t, testConfig())
	defer done()
	ctx := context.Background()

	_, old := env.enableTOTP(t, "u-alice")
	if _, err := env.engine.RegenerateRecoveryCodes(ctx, "u-alice", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	fresh, err := env.engine.RegenerateRecoveryCodes(ctx, "u-alice", "correct-password-123")
	if err != nil {
		t.Fatalf("RegenerateRecoveryCodes failed: %v", err)
	}
	if len(fresh) != 8 {
		t.Fatalf("expected 8 codes, got %d", len(fresh))
	}
	if err := env.engine.ConsumeRecoveryCode(ctx, "u-alice", old[1]); !errors.Is(err, ErrRecoveryCodeInvalid) {
		t.Fatalf("old code must stop working, got %v", err)
	}
	if err := env.engine.ConsumeRecoveryCode(ctx, "u-alice", fresh[1]); err != nil {
		t.Fatalf("new code rejected: %v", err)
	}
}

func TestRegenerateRecoveryCodesRequiresTwoFactor(t *testing.T) {
	env, done := newTestEnv(t, testConfig())
	defer done()

	_, err := env.engine.RegenerateRecoveryCodes(context.Background(), "u-alice", "correct-password-123")
	if !errors.Is(err, ErrTwoFactorNotEnabled) {
		t.Fatalf("expected ErrTwoFactorNotEnabled, got %v", err)
	}
}
