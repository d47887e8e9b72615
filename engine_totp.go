package goGuard

import (
	"context"

	"github.com/MrEthical07/goGuard/internal/flows"
)

// VerifyTOTP checks code against the active secret of userID. With replay
// protection on, an accepted time step cannot verify again for that user,
// whether through login, setup confirmation, reveal or this call.
func (e *Engine) VerifyTOTP(ctx context.Context, userID, code string) error {
	if userID == "" {
		return ErrUserNotFound
	}
	user, err := e.twoFactorUser(ctx, userID)
	if err != nil {
		return err
	}
	err = e.verifyTOTPUser(ctx, user, code)
	e.logFailure(ctx, "verify_totp", err)
	return err
}

// BeginTOTPSetup generates a pending secret for userID and returns it for
// display. Nothing changes on the account until ConfirmTOTPSetup accepts a
// code; starting again replaces the pending secret.
func (e *Engine) BeginTOTPSetup(ctx context.Context, userID string) (*TOTPSetup, error) {
	res, err := flows.RunBeginTOTPSetup(ctx, userID, e.deps.TwoFactor)
	if err != nil {
		e.logFailure(ctx, "begin_totp_setup", err)
		return nil, err
	}
	return &TOTPSetup{
		SharedKey:        res.SharedKey,
		AuthenticatorURI: res.AuthenticatorURI,
		QRCodeDataURI:    res.QRCodeDataURI,
		ExpiresAt:        res.ExpiresAt,
	}, nil
}

// ConfirmTOTPSetup verifies code against the pending secret and enables
// two-factor authentication. The returned recovery codes are the only
// plaintext copy.
func (e *Engine) ConfirmTOTPSetup(ctx context.Context, userID, code string) ([]string, error) {
	codes, err := flows.RunConfirmTOTPSetup(ctx, userID, code, e.deps.TwoFactor)
	if err != nil {
		e.logFailure(ctx, "confirm_totp_setup", err)
		return nil, err
	}
	return codes, nil
}

// DisableTwoFactor turns two-factor authentication off after re-checking
// the password. The secret and every recovery code are removed together,
// then all remembered devices are revoked. A wrong password returns
// ErrInvalidCredentials and is not counted toward lockout.
func (e *Engine) DisableTwoFactor(ctx context.Context, userID, password string) error {
	err := flows.RunDisableTwoFactor(ctx, userID, password, e.deps.TwoFactor)
	e.logFailure(ctx, "disable_two_factor", err)
	return err
}

func (e *Engine) TwoFactorStatus(ctx context.Context, userID string) (*TwoFactorStatus, error) {
	res, err := flows.RunTwoFactorStatus(ctx, userID, e.deps.TwoFactor)
	if err != nil {
		return nil, err
	}
	return &TwoFactorStatus{
		Enabled:           res.Enabled,
		RecoveryCodesLeft: res.RecoveryCodesLeft,
		TrustedDevices:    res.TrustedDevices,
	}, nil
}
