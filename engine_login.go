package goGuard

import (
	"context"
	"time"

	"github.com/MrEthical07/goGuard/internal/flows"
)

// Login performs the password step.
//
// The lockout is checked before the password, so a locked account answers
// with *LockoutError whether or not the password is right. Unknown accounts
// and wrong passwords both return ErrInvalidCredentials. For accounts with
// two-factor authentication the result is LoginTwoFactorRequired with a
// challenge, unless req.DeviceToken is a valid remember-device token, in
// which case the second factor is skipped.
func (e *Engine) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	start := time.Now()
	defer func() {
		if e.metrics.LatencyEnabled() {
			e.metrics.Observe(MetricLoginLatency, time.Since(start))
		}
	}()

	out, err := flows.RunLogin(ctx, flows.LoginInput{
		Email:       req.Email,
		Password:    req.Password,
		RememberMe:  req.RememberMe,
		DeviceToken: req.DeviceToken,
		Fingerprint: req.Fingerprint,
	}, e.deps.Login)
	if err != nil {
		e.logFailure(ctx, "login", err)
		return nil, err
	}
	return loginResult(out), nil
}

// CompleteTwoFactor performs the second step for a challenge returned by
// Login.
//
// With TwoFactorAuto a six digit code is checked as TOTP and anything else
// as a recovery code. A wrong code counts toward the account lockout and
// toward the challenge's attempt cap; at the cap the challenge is destroyed
// and ErrChallengeExpired is returned. A lockout set while the challenge
// was pending blocks the step with *LockoutError.
func (e *Engine) CompleteTwoFactor(ctx context.Context, req TwoFactorRequest) (*LoginResult, error) {
	out, err := flows.RunCompleteTwoFactor(ctx, flows.TwoFactorInput{
		ChallengeID:    req.ChallengeID,
		Code:           req.Code,
		Mode:           secondFactorMode(req.Method),
		RememberDevice: req.RememberDevice,
		Fingerprint:    req.Fingerprint,
	}, e.deps.Login)
	if err != nil {
		e.logFailure(ctx, "complete_two_factor", err)
		return nil, err
	}
	return loginResult(out), nil
}

func loginResult(out flows.LoginOutput) *LoginResult {
	state := LoginAuthenticated
	if out.TwoFactorRequired {
		state = LoginTwoFactorRequired
	}
	return &LoginResult{
		State:                state,
		UserID:               out.UserID,
		Persistent:           out.Persistent,
		ChallengeID:          out.ChallengeID,
		ChallengeExpiresAt:   out.ChallengeExpiresAt,
		DeviceTrusted:        out.DeviceTrusted,
		DeviceToken:          out.DeviceToken,
		DeviceTokenExpiresAt: out.DeviceTokenExpiresAt,
		UsedRecoveryCode:     out.UsedRecoveryCode,
	}
}

func secondFactorMode(m TwoFactorMethod) flows.SecondFactorMode {
	switch m {
	case TwoFactorTOTP:
		return flows.SecondFactorTOTP
	case TwoFactorRecovery:
		return flows.SecondFactorRecovery
	default:
		return flows.SecondFactorAuto
	}
}
