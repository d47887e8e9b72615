package goGuard

import (
	"context"

	"github.com/MrEthical07/goGuard/internal/flows"
)

// Reveal discloses one configuration value of service to actorID. The code
// is checked against the actor's own TOTP secret and, with replay
// protection on, cannot be reused for a second reveal.
//
// Errors: ErrUnauthenticated without an actor, ErrUnsupportedService for a
// service outside Reveal.Services, ErrInvalidTOTPCode for a wrong code,
// ErrSecretNotFound for an unknown key and ErrRevealRateLimited after too
// many wrong codes.
func (e *Engine) Reveal(ctx context.Context, actorID, service, key, code string) (*RevealResult, error) {
	out, err := flows.RunReveal(ctx, actorID, service, key, code, e.deps.Reveal)
	if err != nil {
		e.logFailure(ctx, "reveal", err)
		return nil, err
	}
	return &RevealResult{
		Service:    out.Service,
		Key:        out.Key,
		Value:      out.Value,
		RevealedAt: out.RevealedAt,
	}, nil
}

// ListConfiguration lists the configuration of service. Values under
// sensitive key names and sealed values are replaced by RedactedValue.
func (e *Engine) ListConfiguration(ctx context.Context, actorID, service string) ([]ConfigEntry, error) {
	entries, err := flows.RunListConfiguration(ctx, actorID, service, e.deps.Reveal)
	if err != nil {
		e.logFailure(ctx, "list_configuration", err)
		return nil, err
	}
	out := make([]ConfigEntry, len(entries))
	for i, entry := range entries {
		out[i] = ConfigEntry(entry)
	}
	return out, nil
}

// SupportedServices returns the service names accepted by Reveal.
func (e *Engine) SupportedServices() []string {
	return append([]string(nil), e.config.Reveal.Services...)
}

// IsSensitiveKey reports whether ListConfiguration redacts key.
func IsSensitiveKey(key string) bool {
	return flows.IsSensitiveKey(key)
}
