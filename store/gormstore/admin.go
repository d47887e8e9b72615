package gormstore

import (
	"context"
	"time"

	goGuard "github.com/MrEthical07/goGuard"
	"gorm.io/gorm/clause"
)

var _ goGuard.AdministratorLockoutStore = (*Store)(nil)

func (s *Store) UserRoles(ctx context.Context, userID string) ([]string, error) {
	var roles []string
	err := s.DB.WithContext(ctx).Model(&UserRole{}).
		Where("user_id = ?", userID).Order("role").Pluck("role", &roles).Error
	return roles, err
}

// AddRole is idempotent.
func (s *Store) AddRole(ctx context.Context, userID, role string) error {
	return s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&UserRole{UserID: userID, Role: role}).Error
}

func (s *Store) RemoveRole(ctx context.Context, userID, role string) error {
	return s.DB.WithContext(ctx).
		Where("user_id = ? AND role = ?", userID, role).
		Delete(&UserRole{}).Error
}

// RemoveRoleUnlessLast deletes the membership only while another holder of
// role has no active lockout. Removing a role the user does not hold
// succeeds.
func (s *Store) RemoveRoleUnlessLast(ctx context.Context, userID, role string, now time.Time) (bool, error) {
	removed := false
	err := s.WithTx(ctx, func(tx *Store) error {
		holders, err := tx.lockHolders(role)
		if err != nil {
			return err
		}
		if !holders.has(userID) {
			removed = true
			return nil
		}
		if holders.activeExcept(userID, now) == 0 {
			return nil
		}
		if err := tx.DB.Where("user_id = ? AND role = ?", userID, role).
			Delete(&UserRole{}).Error; err != nil {
			return err
		}
		removed = true
		return nil
	})
	return removed, err
}

// LockUnlessLastHolder sets the lockout end of userID. For a holder of role
// it is refused unless another holder has no active lockout. Users outside
// role are always locked.
func (s *Store) LockUnlessLastHolder(ctx context.Context, userID, role string, until, now time.Time) (bool, error) {
	locked := false
	err := s.WithTx(ctx, func(tx *Store) error {
		holders, err := tx.lockHolders(role)
		if err != nil {
			return err
		}
		if holders.has(userID) && holders.activeExcept(userID, now) == 0 {
			return nil
		}
		res := tx.DB.Model(&User{}).Where("id = ?", userID).
			UpdateColumn("lockout_end", until.UTC())
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return goGuard.ErrUserNotFound
		}
		locked = true
		return nil
	})
	return locked, err
}

func (s *Store) CountUsersInRole(ctx context.Context, role string) (int, error) {
	var n int64
	err := s.DB.WithContext(ctx).Model(&UserRole{}).Where("role = ?", role).Count(&n).Error
	return int(n), err
}

type roleHolder struct {
	UserID     string
	LockoutEnd *time.Time
}

type roleHolders []roleHolder

func (h roleHolders) has(userID string) bool {
	for _, r := range h {
		if r.UserID == userID {
			return true
		}
	}
	return false
}

func (h roleHolders) activeExcept(userID string, now time.Time) int {
	n := 0
	for _, r := range h {
		if r.UserID != userID && (r.LockoutEnd == nil || !r.LockoutEnd.After(now)) {
			n++
		}
	}
	return n
}

// lockHolders reads the holders of role with their lockout ends. On
// PostgreSQL the membership and user rows stay locked until the
// transaction ends; SQLite serializes writers on its own.
func (s *Store) lockHolders(role string) (roleHolders, error) {
	q := s.DB.Table("user_roles").
		Select("user_roles.user_id, users.lockout_end").
		Joins("JOIN users ON users.id = user_roles.user_id").
		Where("user_roles.role = ?", role)
	if s.DB.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var holders roleHolders
	err := q.Scan(&holders).Error
	return holders, err
}
