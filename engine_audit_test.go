package goGuard

import (
	"context"
	"errors"
	"testing"
	"time"
)

func collectAudit(sink *ChannelSink) []AuditEvent {
	var events []AuditEvent
	for {
		select {
		case e := <-sink.Events():
			events = append(events, e)
		default:
			return events
		}
	}
}

func TestAuditLoginEvents(t *testing.T) {
	cfg := testConfig()
	cfg.Audit.Enabled = true
	cfg.Audit.DropIfFull = false
	sink := NewChannelSink(256)
	env, done := newTestEnv(t, cfg, withAuditSink(sink))
	defer done()

	ctx := WithUserAgent(WithClientIP(context.Background(), "203.0.113.7"), "test-agent")
	for i := 0; i < 5; i++ {
		_, _ = env.engine.Login(ctx, LoginRequest{Email: "alice@example.com", Password: "wrong"})
	}
	_, _ = env.engine.Login(ctx, LoginRequest{Email: "nobody@example.com", Password: "wrong"})
	env.engine.Close()

	events := collectAudit(sink)
	counts := map[string]int{}
	for _, e := range events {
		counts[e.EventType]++
		if e.IP != "203.0.113.7" {
			t.Fatalf("event %s without client IP", e.EventType)
		}
		if e.Metadata["user_agent"] != "test-agent" {
			t.Fatalf("event %s without user agent", e.EventType)
		}
	}
	if counts["login_failure"] != 6 {
		t.Fatalf("expected 6 login_failure events, got %d (%v)", counts["login_failure"], counts)
	}
	if counts["account_locked"] != 1 {
		t.Fatalf("expected one account_locked event, got %d", counts["account_locked"])
	}

	last := events[len(events)-1]
	if last.UserID != "" || last.Error != string(auditErrInvalidCredentials) {
		t.Fatalf("unknown account event leaked identity: %+v", last)
	}
}

func TestAuditAdminActionsCarryActor(t *testing.T) {
	cfg := testConfig()
	cfg.Audit.Enabled = true
	cfg.Audit.DropIfFull = false
	sink := NewChannelSink(64)
	env, done := newTestEnv(t, cfg, withAuditSink(sink))
	defer done()
	ctx := context.Background()

	if _, err := env.engine.LockUser(ctx, "u-admin", "u-alice"); err != nil {
		t.Fatalf("LockUser failed: %v", err)
	}
	env.engine.Close()

	for _, e := range collectAudit(sink) {
		if e.EventType == "admin_lock_user" {
			if e.ActorID != "u-admin" || e.UserID != "u-alice" || !e.Success {
				t.Fatalf("unexpected event %+v", e)
			}
			return
		}
	}
	t.Fatal("admin_lock_user event missing")
}

func TestAuditErrorCodes(t *testing.T) {
	cases := map[error]AuditErrorCode{
		ErrInvalidCredentials:                        auditErrInvalidCredentials,
		lockoutError(testClockStart()):               auditErrAccountLocked,
		ErrInvalidTOTPCode:                           auditErrTOTPInvalid,
		ErrRecoveryCodeInvalid:                       auditErrRecoveryCodeInvalid,
		ErrLastAdministratorForbidden:                auditErrLastAdministrator,
		wrapBackend(errors.New("dial tcp: refused")): auditErrUnavailable,
	}
	for err, want := range cases {
		if got := auditErrorCode(err); got != want {
			t.Fatalf("auditErrorCode(%v) = %q, want %q", err, got, want)
		}
	}
	if auditErrorCode(nil) != "" {
		t.Fatal("nil error must have no code")
	}
}

func testClockStart() time.Time {
	return newTestClock().Now()
}
