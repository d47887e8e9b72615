package goGuard

import (
	"context"
	"time"

	"github.com/MrEthical07/goGuard/internal/flows"
)

// IssueDeviceToken creates a remember-device token for userID. The token
// is valid for DeviceTrust.TTL from now and is never extended. Only its
// hash is stored.
//
// Login issues tokens itself after a successful second factor; this method
// is for callers that run their own second-factor step.
func (e *Engine) IssueDeviceToken(ctx context.Context, userID, fingerprint string) (string, time.Time, error) {
	token, expiresAt, err := flows.RunIssueDeviceToken(ctx, userID, fingerprint, e.deps.DeviceTrust)
	e.logFailure(ctx, "issue_device_token", err)
	return token, expiresAt, err
}

// ValidateDeviceToken returns nil when token belongs to userID and has not
// expired, and ErrDeviceTokenInvalid otherwise.
func (e *Engine) ValidateDeviceToken(ctx context.Context, userID, token, fingerprint string) error {
	return flows.RunValidateDeviceToken(ctx, userID, token, fingerprint, e.deps.DeviceTrust)
}

// RevokeDeviceToken forgets one device of userID. Unknown tokens are
// ignored.
func (e *Engine) RevokeDeviceToken(ctx context.Context, userID, token string) error {
	return flows.RunRevokeDeviceToken(ctx, userID, token, e.deps.DeviceTrust)
}

// RevokeAllDeviceTokens forgets every device of userID and returns how many
// tokens were removed.
func (e *Engine) RevokeAllDeviceTokens(ctx context.Context, userID string) (int, error) {
	return flows.RunRevokeAllDeviceTokens(ctx, userID, e.deps.DeviceTrust)
}
