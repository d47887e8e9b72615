package audit

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestScrubbedDropsCredentialMetadata(t *testing.T) {
	in := Event{EventType: "secret_revealed", Metadata: map[string]string{
		"service":       "Admin",
		"key":           "JwtSecret",
		"session_token": "t",
		"recovery_code": "ABCD-EFGH",
		"method":        "otp",
	}}

	out := in.Scrubbed()
	if _, ok := out.Metadata["recovery_code"]; ok {
		t.Fatal("recovery code survived scrubbing")
	}
	if _, ok := out.Metadata["session_token"]; ok {
		t.Fatal("token survived scrubbing")
	}
	if out.Metadata["service"] != "Admin" || out.Metadata["method"] != "otp" || out.Metadata["key"] != "JwtSecret" {
		t.Fatalf("unexpected metadata %v", out.Metadata)
	}
	if len(in.Metadata) != 5 {
		t.Fatal("Scrubbed modified the original event")
	}
}

func TestDispatcherDeliversScrubbedEvents(t *testing.T) {
	sink := NewChannelSink(4)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 4}, sink)

	d.Emit(context.Background(), Event{EventType: "device_trusted", Metadata: map[string]string{"device_token": "x"}})
	d.Close()

	select {
	case ev := <-sink.Events():
		if len(ev.Metadata) != 0 {
			t.Fatalf("expected scrubbed metadata, got %v", ev.Metadata)
		}
	default:
		t.Fatal("event not delivered before Close returned")
	}
	if d.Delivered() != 1 {
		t.Fatalf("expected 1 delivered, got %d", d.Delivered())
	}
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	block := make(chan struct{})
	sink := SinkFunc(func(context.Context, Event) { <-block })
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), Event{EventType: "login_failure"})
	}
	close(block)
	d.Close()

	if d.Dropped() == 0 {
		t.Fatal("expected drops with a blocked sink and a one-slot queue")
	}
	if d.Dropped()+d.Delivered() != 10 {
		t.Fatalf("dropped %d + delivered %d != 10", d.Dropped(), d.Delivered())
	}
}

func TestDisabledDispatcherIsNil(t *testing.T) {
	var d *Dispatcher = NewDispatcher(Config{}, NoOpSink{})
	if d != nil {
		t.Fatal("disabled config must return nil")
	}
	d.Emit(context.Background(), Event{})
	d.Close()
}

func TestLogSinkWritesStructuredRecord(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(slog.New(slog.NewJSONHandler(&buf, nil)))

	sink.Emit(context.Background(), Event{
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		EventType: "account_locked",
		UserID:    "u-alice",
		Metadata:  map[string]string{"until": "2026-01-02T03:19:05Z"},
	})

	out := buf.String()
	for _, want := range []string{`"level":"WARN"`, `"event_type":"account_locked"`, `"user_id":"u-alice"`, `"metadata":{"until"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %s in %s", want, out)
		}
	}
	if strings.Contains(out, "actor_id") {
		t.Fatal("empty fields must be omitted")
	}
}
