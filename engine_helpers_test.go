package goGuard

import (
	"context"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goGuard/secretbox"
	"github.com/MrEthical07/goGuard/totp"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, rdb
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	// Aligned to a 30 second step boundary plus one second.
	return &testClock{now: time.Unix(1_700_000_011, 0)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type memoryUser struct {
	cred     UserCredential
	password string
	roles    []string
	codes    map[[32]byte]bool
}

// memoryCredentialStore is a CredentialStore and AccountAdminStore backed by
// maps. Lockout counters are not kept here; see memoryLockoutStore.
type memoryCredentialStore struct {
	mu    sync.Mutex
	users map[string]*memoryUser
}

func newMemoryCredentialStore() *memoryCredentialStore {
	return &memoryCredentialStore{users: map[string]*memoryUser{}}
}

func (s *memoryCredentialStore) add(userID, email, password string, roles ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[userID] = &memoryUser{
		cred: UserCredential{
			UserID:         userID,
			Email:          email,
			EmailConfirmed: true,
		},
		password: password,
		roles:    roles,
		codes:    map[[32]byte]bool{},
	}
}

func (s *memoryCredentialStore) FindByEmail(_ context.Context, email string) (*UserCredential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.cred.Email, email) {
			cred := u.cred
			return &cred, nil
		}
	}
	return nil, ErrUserNotFound
}

func (s *memoryCredentialStore) FindByID(_ context.Context, userID string) (*UserCredential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	cred := u.cred
	return &cred, nil
}

func (s *memoryCredentialStore) VerifyPassword(_ context.Context, userID, password string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	return ok && u.password == password, nil
}

func (s *memoryCredentialStore) EnableTwoFactor(_ context.Context, userID string, sealedSecret []byte, codeHashes [][32]byte, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.cred.TwoFactorEnabled = true
	u.cred.TOTPSecret = append([]byte(nil), sealedSecret...)
	u.codes = map[[32]byte]bool{}
	for _, h := range codeHashes {
		u.codes[h] = true
	}
	return nil
}

func (s *memoryCredentialStore) DisableTwoFactor(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.cred.TwoFactorEnabled = false
	u.cred.TOTPSecret = nil
	u.codes = map[[32]byte]bool{}
	return nil
}

func (s *memoryCredentialStore) ReplaceRecoveryCodes(_ context.Context, userID string, codeHashes [][32]byte, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.codes = map[[32]byte]bool{}
	for _, h := range codeHashes {
		u.codes[h] = true
	}
	return nil
}

func (s *memoryCredentialStore) ConsumeRecoveryCode(_ context.Context, userID string, codeHash [32]byte, _ time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok || !u.codes[codeHash] {
		return false, nil
	}
	u.codes[codeHash] = false
	return true, nil
}

func (s *memoryCredentialStore) CountRecoveryCodes(_ context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return 0, nil
	}
	n := 0
	for _, unused := range u.codes {
		if unused {
			n++
		}
	}
	return n, nil
}

func (s *memoryCredentialStore) UserRoles(_ context.Context, userID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	return append([]string(nil), u.roles...), nil
}

func (s *memoryCredentialStore) AddRole(_ context.Context, userID, role string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	for _, r := range u.roles {
		if r == role {
			return nil
		}
	}
	u.roles = append(u.roles, role)
	return nil
}

func (s *memoryCredentialStore) RemoveRole(_ context.Context, userID, role string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	kept := u.roles[:0]
	for _, r := range u.roles {
		if r != role {
			kept = append(kept, r)
		}
	}
	u.roles = kept
	return nil
}

func (s *memoryCredentialStore) RemoveRoleUnlessLast(_ context.Context, userID, role string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return false, ErrUserNotFound
	}
	if !slices.Contains(u.roles, role) {
		return true, nil
	}
	if s.activeHoldersExcept(userID, role, now) == 0 {
		return false, nil
	}
	u.roles = slices.DeleteFunc(u.roles, func(r string) bool { return r == role })
	return true, nil
}

func (s *memoryCredentialStore) LockUnlessLastHolder(_ context.Context, userID, role string, until, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return false, ErrUserNotFound
	}
	if slices.Contains(u.roles, role) && s.activeHoldersExcept(userID, role, now) == 0 {
		return false, nil
	}
	u.cred.LockoutEnd = until
	return true, nil
}

// activeHoldersExcept requires s.mu.
func (s *memoryCredentialStore) activeHoldersExcept(userID, role string, now time.Time) int {
	n := 0
	for id, other := range s.users {
		if id != userID && slices.Contains(other.roles, role) && !other.cred.LockoutEnd.After(now) {
			n++
		}
	}
	return n
}

func (s *memoryCredentialStore) CountUsersInRole(_ context.Context, role string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, u := range s.users {
		for _, r := range u.roles {
			if r == role {
				n++
				break
			}
		}
	}
	return n, nil
}

func (s *memoryCredentialStore) sealedSecret(userID string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.users[userID].cred.TOTPSecret...)
}

// memoryLockoutStore adds LockoutStore to memoryCredentialStore so the
// engine keeps counters next to the user instead of in redis.
type memoryLockoutStore struct {
	*memoryCredentialStore
}

func (s memoryLockoutStore) RecordFailedAccess(_ context.Context, userID string, threshold int, duration time.Duration, now time.Time) (LockoutState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return LockoutState{}, ErrUserNotFound
	}
	u.cred.FailedAccessCount++
	if u.cred.FailedAccessCount >= threshold && !u.cred.LockoutEnd.After(now) {
		u.cred.LockoutEnd = now.Add(duration)
	}
	return LockoutState{FailedCount: u.cred.FailedAccessCount, LockedUntil: u.cred.LockoutEnd}, nil
}

func (s memoryLockoutStore) ResetFailedAccess(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[userID]; ok {
		u.cred.FailedAccessCount = 0
		u.cred.LockoutEnd = time.Time{}
	}
	return nil
}

func (s memoryLockoutStore) LockoutState(_ context.Context, userID string) (LockoutState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return LockoutState{}, nil
	}
	return LockoutState{FailedCount: u.cred.FailedAccessCount, LockedUntil: u.cred.LockoutEnd}, nil
}

func (s memoryLockoutStore) SetLockoutEnd(_ context.Context, userID string, until time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[userID]; ok {
		u.cred.LockoutEnd = until
	}
	return nil
}

type memoryCatalog map[string]map[string]string

func (c memoryCatalog) Entries(_ context.Context, service string) ([]ConfigEntry, error) {
	values := c[service]
	out := make([]ConfigEntry, 0, len(values))
	for k, v := range values {
		out = append(out, ConfigEntry{Key: k, Value: v, Source: "memory"})
	}
	return out, nil
}

func (c memoryCatalog) Lookup(_ context.Context, service, key string) (string, error) {
	v, ok := c[service][key]
	if !ok {
		return "", ErrSecretNotFound
	}
	return v, nil
}

func newTestCipher(key []byte) (*secretbox.Box, error) {
	return secretbox.New(key, "totp")
}

type testEnv struct {
	engine *Engine
	store  *memoryCredentialStore
	clock  *testClock
	cipher *secretbox.Box
	redis  *redis.Client
	mr     *miniredis.Miniredis
}

func testConfig() Config {
	cfg := defaultConfig()
	cfg.TOTP.QRCodeSize = 0
	return cfg
}

type envOption func(*Builder, *memoryCredentialStore)

func withLockoutStore() envOption {
	return func(b *Builder, s *memoryCredentialStore) {
		b.WithCredentialStore(memoryLockoutStore{s})
	}
}

func withAuditSink(sink AuditSink) envOption {
	return func(b *Builder, _ *memoryCredentialStore) {
		b.WithAuditSink(sink)
	}
}

func withCatalog(catalog ConfigCatalog) envOption {
	return func(b *Builder, _ *memoryCredentialStore) {
		b.WithConfigCatalog(catalog)
	}
}

func newTestEnv(t *testing.T, cfg Config, opts ...envOption) (*testEnv, func()) {
	t.Helper()

	mr, rdb := newTestRedis(t)
	clock := newTestClock()
	store := newMemoryCredentialStore()
	store.add("u-alice", "alice@example.com", "correct-password-123")
	store.add("u-bob", "bob@example.com", "bob-password-456")
	store.add("u-admin", "admin@example.com", "admin-password-789", RoleAdministrator)

	key, err := secretbox.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	box, err := newTestCipher(key)
	if err != nil {
		t.Fatalf("secretbox.New failed: %v", err)
	}

	builder := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithCredentialStore(store).
		WithAdminStore(store).
		WithCipher(box).
		WithClock(clock.Now)
	for _, opt := range opts {
		opt(builder, store)
	}

	engine, err := builder.Build()
	if err != nil {
		mr.Close()
		t.Fatalf("Build failed: %v", err)
	}

	env := &testEnv{engine: engine, store: store, clock: clock, cipher: box, redis: rdb, mr: mr}
	return env, func() {
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	}
}

// enableTOTP runs setup for userID and returns the raw secret and the
// recovery codes. The clock is moved to the next step afterwards so the
// confirmation code's step is behind the caller.
func (env *testEnv) enableTOTP(t *testing.T, userID string) ([]byte, []string) {
	t.Helper()
	ctx := context.Background()

	if _, err := env.engine.BeginTOTPSetup(ctx, userID); err != nil {
		t.Fatalf("BeginTOTPSetup failed: %v", err)
	}
	secret := env.pendingSecret(t, userID)
	codes, err := env.engine.ConfirmTOTPSetup(ctx, userID, env.code(t, secret, 0))
	if err != nil {
		t.Fatalf("ConfirmTOTPSetup failed: %v", err)
	}
	env.clock.Advance(env.engine.config.TOTP.Period)
	return secret, codes
}

// pendingSecret opens the enrollment record the way the engine does.
func (env *testEnv) pendingSecret(t *testing.T, userID string) []byte {
	t.Helper()
	record, err := env.engine.enrollments.Get(context.Background(), userID, env.clock.Now())
	if err != nil {
		t.Fatalf("enrollment lookup failed: %v", err)
	}
	secret, err := env.cipher.Open(record.SealedSecret)
	if err != nil {
		t.Fatalf("open enrollment failed: %v", err)
	}
	return secret
}

func (env *testEnv) activeSecret(t *testing.T, userID string) []byte {
	t.Helper()
	secret, err := env.cipher.Open(env.store.sealedSecret(userID))
	if err != nil {
		t.Fatalf("open secret failed: %v", err)
	}
	return secret
}

// code returns the code for the current step plus offset steps.
func (env *testEnv) code(t *testing.T, secret []byte, offset int) string {
	t.Helper()
	at := env.clock.Now().Add(time.Duration(offset) * env.engine.config.TOTP.Period)
	code, err := env.engine.totp.ComputeCode(secret, at)
	if err != nil {
		t.Fatalf("ComputeCode failed: %v", err)
	}
	if len(code) != totp.CodeDigits {
		t.Fatalf("unexpected code length %d", len(code))
	}
	return code
}
