package gormstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/password"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Store implements the goGuard durable store interfaces on a *gorm.DB.
type Store struct {
	DB     *gorm.DB
	hasher *password.Hasher
	logger *slog.Logger
}

var (
	_ goGuard.CredentialStore   = (*Store)(nil)
	_ goGuard.LockoutStore      = (*Store)(nil)
	_ goGuard.AccountAdminStore = (*Store)(nil)
	_ goGuard.PasswordEqualizer = (*Store)(nil)
)

// New returns a Store. A nil hasher uses password.DefaultConfig.
func New(db *gorm.DB, hasher *password.Hasher) (*Store, error) {
	if db == nil {
		return nil, errors.New("gormstore: nil database")
	}
	if hasher == nil {
		h, err := password.NewHasher(password.DefaultConfig())
		if err != nil {
			return nil, err
		}
		hasher = h
	}
	return &Store{DB: db, hasher: hasher, logger: slog.Default()}, nil
}

// WithLogger sets the logger for failures the store does not return, such
// as a failed password rehash. Nil keeps the current logger.
func (s *Store) WithLogger(logger *slog.Logger) *Store {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// WithTx runs fn inside one transaction with a Store bound to it.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Store) error) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{DB: tx, hasher: s.hasher, logger: s.logger})
	})
}

// NewUser is the input of CreateUser.
type NewUser struct {
	ID             string
	Email          string
	Password       string
	EmailConfirmed bool
	Roles          []string
}

// CreateUser hashes the password and inserts the user with its roles. An
// empty ID gets a random UUID.
func (s *Store) CreateUser(ctx context.Context, in NewUser) (*User, error) {
	email := normalizeEmail(in.Email)
	if email == "" {
		return nil, errors.New("gormstore: email required")
	}
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}
	if in.ID == "" {
		in.ID = uuid.NewString()
	}

	now := time.Now().UTC()
	usr := &User{
		ID:             in.ID,
		Email:          email,
		EmailConfirmed: in.EmailConfirmed,
		PasswordHash:   hash,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	err = s.WithTx(ctx, func(tx *Store) error {
		if err := tx.DB.Create(usr).Error; err != nil {
			return err
		}
		for _, role := range in.Roles {
			if err := tx.DB.Create(&UserRole{UserID: usr.ID, Role: role}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if isDuplicateKey(err) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	return usr, nil
}

func (s *Store) FindByEmail(ctx context.Context, email string) (*goGuard.UserCredential, error) {
	return s.findOne(ctx, "email = ?", normalizeEmail(email))
}

func (s *Store) FindByID(ctx context.Context, userID string) (*goGuard.UserCredential, error) {
	return s.findOne(ctx, "id = ?", userID)
}

func (s *Store) findOne(ctx context.Context, query string, arg string) (*goGuard.UserCredential, error) {
	var usr User
	if err := s.DB.WithContext(ctx).Where(query, arg).First(&usr).Error; err != nil {
		return nil, notFound(err)
	}
	return toCredential(&usr), nil
}

// VerifyPassword checks password against the stored Argon2id hash. A hash
// produced with older parameters is re-hashed after a successful match; a
// failed rehash is logged and the match still succeeds.
func (s *Store) VerifyPassword(ctx context.Context, userID, pw string) (bool, error) {
	var usr User
	err := s.DB.WithContext(ctx).Select("id", "password_hash").Where("id = ?", userID).First(&usr).Error
	if err != nil {
		return false, notFound(err)
	}
	ok, err := s.hasher.Verify(pw, usr.PasswordHash)
	if err != nil || !ok {
		return false, err
	}

	if err := s.rehash(ctx, userID, pw, usr.PasswordHash); err != nil {
		s.logger.WarnContext(ctx, "password rehash failed", "user_id", userID, "error", err)
	}
	return true, nil
}

func (s *Store) rehash(ctx context.Context, userID, pw, current string) error {
	stale, err := s.hasher.NeedsUpgrade(current)
	if err != nil || !stale {
		return err
	}
	hash, err := s.hasher.Hash(pw)
	if err != nil {
		return err
	}
	return s.DB.WithContext(ctx).Model(&User{}).Where("id = ?", userID).
		Updates(map[string]any{"password_hash": hash, "updated_at": time.Now().UTC()}).Error
}

// EqualizePassword spends one Argon2id verification for a login with no
// matching account.
func (s *Store) EqualizePassword(_ context.Context, pw string) {
	s.hasher.Equalize(pw)
}

func (s *Store) EnableTwoFactor(ctx context.Context, userID string, sealedSecret []byte, codeHashes [][32]byte, now time.Time) error {
	return s.WithTx(ctx, func(tx *Store) error {
		res := tx.DB.Model(&User{}).Where("id = ?", userID).Updates(map[string]any{
			"two_factor_enabled": true,
			"totp_secret":        sealedSecret,
			"updated_at":         now.UTC(),
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return goGuard.ErrUserNotFound
		}
		return tx.replaceCodes(userID, codeHashes, now)
	})
}

func (s *Store) DisableTwoFactor(ctx context.Context, userID string) error {
	return s.WithTx(ctx, func(tx *Store) error {
		res := tx.DB.Model(&User{}).Where("id = ?", userID).Updates(map[string]any{
			"two_factor_enabled": false,
			"totp_secret":        nil,
			"updated_at":         time.Now().UTC(),
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return goGuard.ErrUserNotFound
		}
		return tx.DB.Where("user_id = ?", userID).Delete(&RecoveryCode{}).Error
	})
}

func (s *Store) ReplaceRecoveryCodes(ctx context.Context, userID string, codeHashes [][32]byte, now time.Time) error {
	return s.WithTx(ctx, func(tx *Store) error {
		var n int64
		if err := tx.DB.Model(&User{}).Where("id = ?", userID).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return goGuard.ErrUserNotFound
		}
		return tx.replaceCodes(userID, codeHashes, now)
	})
}

func (s *Store) replaceCodes(userID string, codeHashes [][32]byte, now time.Time) error {
	if err := s.DB.Where("user_id = ?", userID).Delete(&RecoveryCode{}).Error; err != nil {
		return err
	}
	if len(codeHashes) == 0 {
		return nil
	}
	rows := make([]RecoveryCode, 0, len(codeHashes))
	for _, h := range codeHashes {
		rows = append(rows, RecoveryCode{
			ID:        uuid.NewString(),
			UserID:    userID,
			CodeHash:  append([]byte(nil), h[:]...),
			CreatedAt: now.UTC(),
		})
	}
	if err := s.DB.Create(&rows).Error; err != nil {
		return fmt.Errorf("insert recovery codes: %w", err)
	}
	return nil
}

// ConsumeRecoveryCode marks the code used with one conditional UPDATE.
func (s *Store) ConsumeRecoveryCode(ctx context.Context, userID string, codeHash [32]byte, usedAt time.Time) (bool, error) {
	res := s.DB.WithContext(ctx).Model(&RecoveryCode{}).
		Where("user_id = ? AND code_hash = ? AND used_at IS NULL", userID, codeHash[:]).
		Update("used_at", usedAt.UTC())
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (s *Store) CountRecoveryCodes(ctx context.Context, userID string) (int, error) {
	var n int64
	err := s.DB.WithContext(ctx).Model(&RecoveryCode{}).
		Where("user_id = ? AND used_at IS NULL", userID).Count(&n).Error
	return int(n), err
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func toCredential(u *User) *goGuard.UserCredential {
	cred := &goGuard.UserCredential{
		UserID:            u.ID,
		Email:             u.Email,
		EmailConfirmed:    u.EmailConfirmed,
		TwoFactorEnabled:  u.TwoFactorEnabled,
		TOTPSecret:        u.TOTPSecret,
		FailedAccessCount: u.FailedAccessCount,
	}
	if u.LockoutEnd != nil {
		cred.LockoutEnd = u.LockoutEnd.UTC()
	}
	return cred
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return goGuard.ErrUserNotFound
	}
	return err
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
