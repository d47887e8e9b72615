package gormstore

import (
	"context"
	"time"

	goGuard "github.com/MrEthical07/goGuard"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RecordFailedAccess increments the counter and opens a lockout window at
// threshold unless one is already active at now. The row is locked for the
// duration of the transaction on PostgreSQL.
func (s *Store) RecordFailedAccess(ctx context.Context, userID string, threshold int, duration time.Duration, now time.Time) (goGuard.LockoutState, error) {
	var st goGuard.LockoutState
	err := s.WithTx(ctx, func(tx *Store) error {
		res := tx.DB.Model(&User{}).Where("id = ?", userID).
			UpdateColumn("failed_access_count", gorm.Expr("failed_access_count + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return goGuard.ErrUserNotFound
		}

		var usr User
		q := tx.DB.Select("id", "failed_access_count", "lockout_end").Where("id = ?", userID)
		if tx.DB.Dialector.Name() == "postgres" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		if err := q.First(&usr).Error; err != nil {
			return notFound(err)
		}

		active := usr.LockoutEnd != nil && usr.LockoutEnd.After(now)
		if usr.FailedAccessCount >= threshold && !active {
			end := now.Add(duration).UTC()
			if err := tx.DB.Model(&User{}).Where("id = ?", userID).
				UpdateColumn("lockout_end", end).Error; err != nil {
				return err
			}
			usr.LockoutEnd = &end
		}

		st = lockoutState(&usr)
		return nil
	})
	return st, err
}

// ResetFailedAccess clears the counter and any lockout end.
func (s *Store) ResetFailedAccess(ctx context.Context, userID string) error {
	return s.DB.WithContext(ctx).Model(&User{}).Where("id = ?", userID).
		UpdateColumns(map[string]any{"failed_access_count": 0, "lockout_end": nil}).Error
}

// LockoutState returns the zero state for unknown users.
func (s *Store) LockoutState(ctx context.Context, userID string) (goGuard.LockoutState, error) {
	var usr User
	err := s.DB.WithContext(ctx).Select("id", "failed_access_count", "lockout_end").
		Where("id = ?", userID).Limit(1).Find(&usr).Error
	if err != nil {
		return goGuard.LockoutState{}, err
	}
	return lockoutState(&usr), nil
}

// SetLockoutEnd overwrites the lockout end without touching the counter.
func (s *Store) SetLockoutEnd(ctx context.Context, userID string, until time.Time) error {
	return s.DB.WithContext(ctx).Model(&User{}).Where("id = ?", userID).
		UpdateColumn("lockout_end", until.UTC()).Error
}

func lockoutState(u *User) goGuard.LockoutState {
	st := goGuard.LockoutState{FailedCount: u.FailedAccessCount}
	if u.LockoutEnd != nil {
		st.LockedUntil = u.LockoutEnd.UTC()
	}
	return st
}
