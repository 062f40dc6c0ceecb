package entity

import (
	"context"
	"time"

	"github.com/agentctx/platform/internal/errs"
	"github.com/agentctx/platform/internal/store"
)

// UserRepo is the typed accessor for User rows.
type UserRepo struct {
	db store.Store
}

func NewUserRepo(db store.Store) *UserRepo { return &UserRepo{db: db} }

// ValidTimezone reports whether tz is a loadable IANA timezone name.
func ValidTimezone(tz string) bool {
	if tz == "" {
		return false
	}
	_, err := time.LoadLocation(tz)
	return err == nil
}

func (r *UserRepo) Create(ctx context.Context, u *User) (*User, error) {
	if u.UserID == "" {
		return nil, errs.Validation("user: user_id is required")
	}
	if u.Timezone == "" {
		u.Timezone = "UTC"
	} else if !ValidTimezone(u.Timezone) {
		return nil, errs.Validation("user: invalid IANA timezone " + u.Timezone)
	}
	_, err := r.db.Insert(ctx, TableUsers, store.Row{
		"id":            u.UserID,
		"type":          u.Type,
		"display_name":  u.DisplayName,
		"timezone":      u.Timezone,
		"status":        u.Status,
		"last_login_at": u.LastLoginAt,
	})
	if err != nil {
		return nil, errs.Internal("user: insert failed", err)
	}
	return u, nil
}

func (r *UserRepo) Get(ctx context.Context, userID string) (*User, error) {
	row, err := r.db.GetOne(ctx, TableUsers, store.Filters{"id": userID})
	if err != nil {
		return nil, errs.Internal("user: get failed", err)
	}
	if row == nil {
		return nil, errs.NotFound("user")
	}
	return rowToUser(row), nil
}

// SetTimezone updates a user's authoritative timezone, rejecting invalid
// IANA strings.
func (r *UserRepo) SetTimezone(ctx context.Context, userID, tz string) error {
	if !ValidTimezone(tz) {
		return errs.Validation("user: invalid IANA timezone " + tz)
	}
	_, err := r.db.Update(ctx, TableUsers, store.Filters{"id": userID}, store.Row{"timezone": tz})
	if err != nil {
		return errs.Internal("user: update timezone failed", err)
	}
	return nil
}

// Location resolves the user's timezone to a *time.Location, defaulting to
// UTC if unset or invalid.
func (u *User) Location() *time.Location {
	tz := u.Timezone
	if tz == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}

func rowToUser(row store.Row) *User {
	return &User{
		UserID:      stringOr(row, "id"),
		Type:        stringOr(row, "type"),
		DisplayName: stringOr(row, "display_name"),
		Timezone:    stringOr(row, "timezone"),
		Status:      stringOr(row, "status"),
		LastLoginAt: timePtrOr(row, "last_login_at"),
	}
}
