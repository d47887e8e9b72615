package goGuard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrEthical07/goGuard/internal/audit"
	"github.com/MrEthical07/goGuard/internal/flows"
	"github.com/MrEthical07/goGuard/internal/limiters"
	"github.com/MrEthical07/goGuard/internal/stores"
	"github.com/MrEthical07/goGuard/totp"
)

// Engine is the account-security core. Create it with New().Build().
type Engine struct {
	config Config
	logger *slog.Logger
	clock  func() time.Time

	credentials CredentialStore
	admin       AccountAdminStore
	catalog     ConfigCatalog
	cipher      SecretCipher

	totp          *totp.Engine
	challenges    *stores.ChallengeStore
	enrollments   *stores.EnrollmentStore
	replay        *stores.ReplayGuard
	devices       *stores.DeviceTrustStore
	lockout       lockoutBackend
	revealLimiter *limiters.AttemptLimiter
	setupLimiter  *limiters.AttemptLimiter

	audit   *audit.Dispatcher
	metrics *Metrics

	// adminMu serializes last-administrator checks within this process.
	adminMu sync.Mutex

	deps flows.Deps
}

// Close flushes queued audit events and stops the dispatcher. Stores and
// the redis client are owned by the caller and stay open.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were discarded because the
// dispatcher buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Metrics returns the live counter set, for exporters.
func (e *Engine) Metrics() *Metrics {
	if e == nil {
		return nil
	}
	return e.metrics
}

// Config returns a copy of the policy the engine was built with.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) flowMetricInc(id int) {
	e.metricInc(MetricID(id))
}

func (e *Engine) now() time.Time {
	return e.clock()
}

// twoFactorUser loads userID and maps a miss to ErrUserNotFound.
func (e *Engine) twoFactorUser(ctx context.Context, userID string) (flows.TwoFactorUser, error) {
	cred, err := e.credentials.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return flows.TwoFactorUser{}, ErrUserNotFound
		}
		return flows.TwoFactorUser{}, wrapBackend(err)
	}
	if cred == nil {
		return flows.TwoFactorUser{}, ErrUserNotFound
	}
	return toTwoFactorUser(cred), nil
}

func (e *Engine) twoFactorUserByEmail(ctx context.Context, email string) (flows.TwoFactorUser, error) {
	cred, err := e.credentials.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return flows.TwoFactorUser{}, ErrUserNotFound
		}
		return flows.TwoFactorUser{}, wrapBackend(err)
	}
	if cred == nil {
		return flows.TwoFactorUser{}, ErrUserNotFound
	}
	return toTwoFactorUser(cred), nil
}

func (e *Engine) userExists(ctx context.Context, userID string) error {
	_, err := e.twoFactorUser(ctx, userID)
	return err
}

func toTwoFactorUser(cred *UserCredential) flows.TwoFactorUser {
	return flows.TwoFactorUser{
		UserID:           cred.UserID,
		Email:            cred.Email,
		EmailConfirmed:   cred.EmailConfirmed,
		TwoFactorEnabled: cred.TwoFactorEnabled && len(cred.TOTPSecret) > 0,
		SealedSecret:     cred.TOTPSecret,
	}
}

func isUserNotFound(err error) bool {
	return errors.Is(err, ErrUserNotFound)
}

// wrapBackend tags err as ErrBackendUnavailable unless it already is.
func wrapBackend(err error) error {
	if err == nil || errors.Is(err, ErrBackendUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
}

// replayRetention keeps a claimed step until no code of that step or an
// earlier one can verify.
func (e *Engine) replayRetention() time.Duration {
	return time.Duration(2*e.config.TOTP.Skew+2) * e.config.TOTP.Period
}
