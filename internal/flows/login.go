package flows

import (
	"context"
	"errors"
	"time"
)

// LoginInput is the first login step.
type LoginInput struct {
	Email       string
	Password    string
	RememberMe  bool
	DeviceToken string
	Fingerprint string
}

// SecondFactorMode selects how a second-step code is interpreted.
type SecondFactorMode uint8

const (
	SecondFactorAuto SecondFactorMode = iota
	SecondFactorTOTP
	SecondFactorRecovery
)

// TwoFactorInput is the second login step.
type TwoFactorInput struct {
	ChallengeID    string
	Code           string
	Mode           SecondFactorMode
	RememberDevice bool
	Fingerprint    string
}

// LoginOutput is the non-error outcome of either step. Exactly one of
// Authenticated and TwoFactorRequired is true.
type LoginOutput struct {
	Authenticated        bool
	TwoFactorRequired    bool
	UserID               string
	Persistent           bool
	ChallengeID          string
	ChallengeExpiresAt   time.Time
	DeviceTrusted        bool
	DeviceToken          string
	DeviceTokenExpiresAt time.Time
	UsedRecoveryCode     bool
}

// LoginChallenge is the server-side record of a pending second step.
type LoginChallenge struct {
	UserID     string
	Persistent bool
	ExpiresAt  time.Time
}

// LoginMetrics carries metric IDs needed by the login flows.
type LoginMetrics struct {
	LoginSuccess      int
	LoginFailure      int
	LoginLocked       int
	TwoFactorRequired int
	TwoFactorSuccess  int
	TwoFactorFailure  int
	ChallengeExpired  int
}

// LoginEvents carries audit event names used by the login flows.
type LoginEvents struct {
	LoginSuccess      string
	LoginFailure      string
	TwoFactorRequired string
	TwoFactorSuccess  string
	TwoFactorFailure  string
	DeviceTrustFailed string
}

// LoginErrors carries the errors the login flows return.
type LoginErrors struct {
	EngineNotReady      error
	Unavailable         error
	InvalidCredentials  error
	EmailNotConfirmed   error
	ChallengeExpired    error
	InvalidCodeFormat   error
	InvalidTOTPCode     error
	RecoveryCodeInvalid error
	Locked              func(time.Time) error
}

type LoginDeps struct {
	ChallengeTTL          time.Duration
	ChallengeMaxAttempts  int
	RequireConfirmedEmail bool
	DeviceTrustEnabled    bool

	Now func() time.Time

	FindByEmail    func(context.Context, string) (TwoFactorUser, error)
	FindByID       func(context.Context, string) (TwoFactorUser, error)
	IsUserNotFound func(error) bool
	VerifyPassword func(context.Context, string, string) (bool, error)
	// EqualizePassword spends the cost of a password check for an unknown
	// account. Optional.
	EqualizePassword func(context.Context, string)

	CheckLocked   func(context.Context, string) (time.Time, bool, error)
	RecordFailure func(context.Context, string) (LockoutDecision, error)
	RecordSuccess func(context.Context, string) error

	ValidateDevice  func(context.Context, string, string, string) error
	IsDeviceInvalid func(error) bool
	IssueDevice     func(context.Context, string, string) (string, time.Time, error)

	NewChallengeID         func() string
	ValidChallengeID       func(string) bool
	SaveChallenge          func(context.Context, string, LoginChallenge, time.Duration) error
	GetChallenge           func(context.Context, string, time.Time) (LoginChallenge, error)
	DeleteChallenge        func(context.Context, string) (bool, error)
	RecordChallengeFailure func(context.Context, string, int, time.Time) (bool, error)
	IsChallengeGone        func(error) bool

	IsTOTPFormat        func(string) bool
	VerifyTOTP          func(context.Context, TwoFactorUser, string) error
	ConsumeRecoveryCode func(context.Context, string, string) error

	MetricInc func(int)
	EmitAudit AuditFunc

	Metrics LoginMetrics
	Events  LoginEvents
	Errors  LoginErrors
}

// RunLogin performs the password step. The lockout is checked before the
// password so a locked account never reveals whether a password is right.
func RunLogin(ctx context.Context, in LoginInput, deps LoginDeps) (LoginOutput, error) {
	normalizeLoginDeps(&deps)

	if deps.FindByEmail == nil || deps.VerifyPassword == nil || deps.CheckLocked == nil ||
		deps.RecordFailure == nil || deps.RecordSuccess == nil || deps.SaveChallenge == nil {
		return LoginOutput{}, deps.Errors.EngineNotReady
	}

	if in.Email == "" || in.Password == "" {
		deps.MetricInc(deps.Metrics.LoginFailure)
		deps.EmitAudit(ctx, deps.Events.LoginFailure, false, "", "", deps.Errors.InvalidCredentials, nil)
		return LoginOutput{}, deps.Errors.InvalidCredentials
	}

	user, err := deps.FindByEmail(ctx, in.Email)
	if err != nil {
		if deps.IsUserNotFound(err) {
			if deps.EqualizePassword != nil {
				deps.EqualizePassword(ctx, in.Password)
			}
			deps.MetricInc(deps.Metrics.LoginFailure)
			deps.EmitAudit(ctx, deps.Events.LoginFailure, false, "", "", deps.Errors.InvalidCredentials, func() map[string]string {
				return map[string]string{"reason": "unknown_account"}
			})
			return LoginOutput{}, deps.Errors.InvalidCredentials
		}
		return LoginOutput{}, wrapUnavailable(deps.Errors.Unavailable, err)
	}

	until, locked, err := deps.CheckLocked(ctx, user.UserID)
	if err != nil {
		return LoginOutput{}, err
	}
	if locked {
		lockErr := deps.Errors.Locked(until)
		deps.MetricInc(deps.Metrics.LoginLocked)
		deps.EmitAudit(ctx, deps.Events.LoginFailure, false, user.UserID, "", lockErr, nil)
		return LoginOutput{}, lockErr
	}

	ok, err := deps.VerifyPassword(ctx, user.UserID, in.Password)
	if err != nil {
		return LoginOutput{}, wrapUnavailable(deps.Errors.Unavailable, err)
	}
	if !ok {
		deps.MetricInc(deps.Metrics.LoginFailure)
		deps.EmitAudit(ctx, deps.Events.LoginFailure, false, user.UserID, "", deps.Errors.InvalidCredentials, nil)
		decision, err := deps.RecordFailure(ctx, user.UserID)
		if err != nil {
			return LoginOutput{}, err
		}
		if decision.Locked {
			return LoginOutput{}, deps.Errors.Locked(decision.Until)
		}
		return LoginOutput{}, deps.Errors.InvalidCredentials
	}

	if deps.RequireConfirmedEmail && !user.EmailConfirmed {
		deps.EmitAudit(ctx, deps.Events.LoginFailure, false, user.UserID, "", deps.Errors.EmailNotConfirmed, nil)
		return LoginOutput{}, deps.Errors.EmailNotConfirmed
	}

	if !user.TwoFactorEnabled {
		return completeLogin(ctx, user.UserID, in.RememberMe, deps)
	}

	if in.DeviceToken != "" && deps.DeviceTrustEnabled && deps.ValidateDevice != nil {
		verr := deps.ValidateDevice(ctx, user.UserID, in.DeviceToken, in.Fingerprint)
		switch {
		case verr == nil:
			out, err := completeLogin(ctx, user.UserID, in.RememberMe, deps)
			out.DeviceTrusted = err == nil
			return out, err
		case !deps.IsDeviceInvalid(verr):
			return LoginOutput{}, verr
		default:
			deps.EmitAudit(ctx, deps.Events.DeviceTrustFailed, false, user.UserID, "", verr, nil)
		}
	}

	now := deps.Now()
	challengeID := deps.NewChallengeID()
	challenge := LoginChallenge{
		UserID:     user.UserID,
		Persistent: in.RememberMe,
		ExpiresAt:  now.Add(deps.ChallengeTTL),
	}
	if err := deps.SaveChallenge(ctx, challengeID, challenge, deps.ChallengeTTL); err != nil {
		return LoginOutput{}, wrapUnavailable(deps.Errors.Unavailable, err)
	}

	deps.MetricInc(deps.Metrics.TwoFactorRequired)
	deps.EmitAudit(ctx, deps.Events.TwoFactorRequired, true, user.UserID, "", nil, nil)
	return LoginOutput{
		TwoFactorRequired:  true,
		UserID:             user.UserID,
		Persistent:         in.RememberMe,
		ChallengeID:        challengeID,
		ChallengeExpiresAt: challenge.ExpiresAt,
	}, nil
}

// RunCompleteTwoFactor performs the second step against a challenge issued
// by RunLogin. Wrong codes count toward the account lockout and toward the
// challenge's own attempt cap.
func RunCompleteTwoFactor(ctx context.Context, in TwoFactorInput, deps LoginDeps) (LoginOutput, error) {
	normalizeLoginDeps(&deps)

	if deps.GetChallenge == nil || deps.DeleteChallenge == nil || deps.FindByID == nil ||
		deps.CheckLocked == nil || deps.RecordFailure == nil || deps.RecordSuccess == nil ||
		deps.VerifyTOTP == nil || deps.ConsumeRecoveryCode == nil || deps.RecordChallengeFailure == nil {
		return LoginOutput{}, deps.Errors.EngineNotReady
	}

	if !deps.ValidChallengeID(in.ChallengeID) {
		deps.MetricInc(deps.Metrics.ChallengeExpired)
		return LoginOutput{}, deps.Errors.ChallengeExpired
	}

	now := deps.Now()
	challenge, err := deps.GetChallenge(ctx, in.ChallengeID, now)
	if err != nil {
		if deps.IsChallengeGone(err) {
			deps.MetricInc(deps.Metrics.ChallengeExpired)
			return LoginOutput{}, deps.Errors.ChallengeExpired
		}
		return LoginOutput{}, wrapUnavailable(deps.Errors.Unavailable, err)
	}

	until, locked, err := deps.CheckLocked(ctx, challenge.UserID)
	if err != nil {
		return LoginOutput{}, err
	}
	if locked {
		_, _ = deps.DeleteChallenge(ctx, in.ChallengeID)
		lockErr := deps.Errors.Locked(until)
		deps.MetricInc(deps.Metrics.LoginLocked)
		deps.EmitAudit(ctx, deps.Events.TwoFactorFailure, false, challenge.UserID, "", lockErr, nil)
		return LoginOutput{}, lockErr
	}

	user, err := deps.FindByID(ctx, challenge.UserID)
	if err != nil {
		if deps.IsUserNotFound(err) {
			_, _ = deps.DeleteChallenge(ctx, in.ChallengeID)
			return LoginOutput{}, deps.Errors.ChallengeExpired
		}
		return LoginOutput{}, wrapUnavailable(deps.Errors.Unavailable, err)
	}

	usedRecovery, verr := verifySecondFactor(ctx, user, in, deps)
	if verr != nil {
		if errors.Is(verr, deps.Errors.InvalidCodeFormat) {
			return LoginOutput{}, verr
		}
		if !errors.Is(verr, deps.Errors.InvalidTOTPCode) && !errors.Is(verr, deps.Errors.RecoveryCodeInvalid) {
			return LoginOutput{}, verr
		}
		return LoginOutput{}, rejectSecondFactor(ctx, in.ChallengeID, user.UserID, verr, now, deps)
	}

	removed, err := deps.DeleteChallenge(ctx, in.ChallengeID)
	if err != nil {
		return LoginOutput{}, wrapUnavailable(deps.Errors.Unavailable, err)
	}
	if !removed {
		// Another request completed this challenge first.
		deps.MetricInc(deps.Metrics.ChallengeExpired)
		return LoginOutput{}, deps.Errors.ChallengeExpired
	}

	deps.MetricInc(deps.Metrics.TwoFactorSuccess)
	deps.EmitAudit(ctx, deps.Events.TwoFactorSuccess, true, user.UserID, "", nil, func() map[string]string {
		if usedRecovery {
			return map[string]string{"method": "recovery_code"}
		}
		return map[string]string{"method": "totp"}
	})

	out, err := completeLogin(ctx, user.UserID, challenge.Persistent, deps)
	if err != nil {
		return LoginOutput{}, err
	}
	out.UsedRecoveryCode = usedRecovery

	if in.RememberDevice && deps.DeviceTrustEnabled && deps.IssueDevice != nil {
		token, expiresAt, err := deps.IssueDevice(ctx, user.UserID, in.Fingerprint)
		if err != nil {
			// The login stands; the client simply is not remembered.
			deps.EmitAudit(ctx, deps.Events.DeviceTrustFailed, false, user.UserID, "", err, nil)
		} else {
			out.DeviceToken = token
			out.DeviceTokenExpiresAt = expiresAt
		}
	}
	return out, nil
}

// verifySecondFactor checks the code. In auto mode a code shaped like a
// TOTP code is only tried as TOTP; recovery codes are never six digits.
func verifySecondFactor(ctx context.Context, user TwoFactorUser, in TwoFactorInput, deps LoginDeps) (bool, error) {
	switch in.Mode {
	case SecondFactorTOTP:
		return false, deps.VerifyTOTP(ctx, user, in.Code)
	case SecondFactorRecovery:
		if err := deps.ConsumeRecoveryCode(ctx, user.UserID, in.Code); err != nil {
			return false, err
		}
		return true, nil
	default:
		if deps.IsTOTPFormat(in.Code) {
			return false, deps.VerifyTOTP(ctx, user, in.Code)
		}
		if err := deps.ConsumeRecoveryCode(ctx, user.UserID, in.Code); err != nil {
			return false, err
		}
		return true, nil
	}
}

func rejectSecondFactor(ctx context.Context, challengeID, userID string, cause error, now time.Time, deps LoginDeps) error {
	deps.MetricInc(deps.Metrics.TwoFactorFailure)
	deps.EmitAudit(ctx, deps.Events.TwoFactorFailure, false, userID, "", cause, nil)

	decision, err := deps.RecordFailure(ctx, userID)
	if err != nil {
		return err
	}
	if decision.Locked {
		_, _ = deps.DeleteChallenge(ctx, challengeID)
		return deps.Errors.Locked(decision.Until)
	}

	exceeded, err := deps.RecordChallengeFailure(ctx, challengeID, deps.ChallengeMaxAttempts, now)
	if err != nil {
		if deps.IsChallengeGone(err) {
			return deps.Errors.ChallengeExpired
		}
		return wrapUnavailable(deps.Errors.Unavailable, err)
	}
	if exceeded {
		return deps.Errors.ChallengeExpired
	}
	return cause
}

func completeLogin(ctx context.Context, userID string, persistent bool, deps LoginDeps) (LoginOutput, error) {
	if err := deps.RecordSuccess(ctx, userID); err != nil {
		return LoginOutput{}, err
	}
	deps.MetricInc(deps.Metrics.LoginSuccess)
	deps.EmitAudit(ctx, deps.Events.LoginSuccess, true, userID, "", nil, nil)
	return LoginOutput{
		Authenticated: true,
		UserID:        userID,
		Persistent:    persistent,
	}, nil
}

func normalizeLoginDeps(deps *LoginDeps) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.IsUserNotFound == nil {
		deps.IsUserNotFound = func(error) bool { return false }
	}
	if deps.IsDeviceInvalid == nil {
		deps.IsDeviceInvalid = func(error) bool { return true }
	}
	if deps.IsChallengeGone == nil {
		deps.IsChallengeGone = func(error) bool { return false }
	}
	if deps.ValidChallengeID == nil {
		deps.ValidChallengeID = func(id string) bool { return id != "" }
	}
	if deps.IsTOTPFormat == nil {
		deps.IsTOTPFormat = func(string) bool { return true }
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = noopAudit
	}
	if deps.Errors.Locked == nil {
		deps.Errors.Locked = func(time.Time) error { return deps.Errors.InvalidCredentials }
	}
}
