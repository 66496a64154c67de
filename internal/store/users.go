package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

const userColumns = `id, platform, external_id, channel_id, native_lang,
	interface_lang, tz, notifications_on, last_active_at, created_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Platform, &u.ExternalID, &u.ChannelID,
		&u.NativeLang, &u.InterfaceLang, &u.TZ, &u.NotificationsOn,
		&u.LastActiveAt, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}

// FindUserByChat looks up a user by platform identity.
func (s *Store) FindUserByChat(ctx context.Context, platform, externalID string) (*User, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE platform = $1 AND external_id = $2`,
		platform, externalID)
	return scanUser(row)
}

// GetUser looks up a user by id.
func (s *Store) GetUser(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// CreateUser inserts a new user. Duplicate platform identity maps to ErrConflict.
func (s *Store) CreateUser(ctx context.Context, u *User) (*User, error) {
	row := s.db.QueryRow(ctx, `
		INSERT INTO users (platform, external_id, channel_id, native_lang,
			interface_lang, tz, notifications_on, last_active_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+userColumns,
		u.Platform, u.ExternalID, u.ChannelID, u.NativeLang,
		u.InterfaceLang, u.TZ, u.NotificationsOn, u.LastActiveAt)
	created, err := scanUser(row)
	if err != nil {
		if isUniqueViolation(err, "") {
			return nil, fmt.Errorf("user %s/%s: %w", u.Platform, u.ExternalID, ErrConflict)
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return created, nil
}

// TouchUser updates last_active_at and the reply channel for a user.
func (s *Store) TouchUser(ctx context.Context, userID, channelID string, at time.Time) error {
	_, err := s.db.Exec(ctx,
		`UPDATE users SET last_active_at = $2, channel_id = $3 WHERE id = $1`,
		userID, at, channelID)
	if err != nil {
		return fmt.Errorf("touch user: %w", err)
	}
	return nil
}

// SetNativeLang updates the user's native language.
func (s *Store) SetNativeLang(ctx context.Context, userID, lang string) error {
	_, err := s.db.Exec(ctx,
		`UPDATE users SET native_lang = $2 WHERE id = $1`, userID, lang)
	if err != nil {
		return fmt.Errorf("set native lang: %w", err)
	}
	return nil
}

// SetInterfaceLang switches the language the bot speaks to the user.
func (s *Store) SetInterfaceLang(ctx context.Context, userID, lang string) error {
	_, err := s.db.Exec(ctx,
		`UPDATE users SET interface_lang = $2 WHERE id = $1`, userID, lang)
	if err != nil {
		return fmt.Errorf("set interface lang: %w", err)
	}
	return nil
}

// SetNotifications flips the reminder opt-in flag.
func (s *Store) SetNotifications(ctx context.Context, userID string, on bool) error {
	_, err := s.db.Exec(ctx,
		`UPDATE users SET notifications_on = $2 WHERE id = $1`, userID, on)
	if err != nil {
		return fmt.Errorf("set notifications: %w", err)
	}
	return nil
}

// ListInactiveUsers returns reminder candidates: notifications on and no
// activity since the cutoff.
func (s *Store) ListInactiveUsers(ctx context.Context, cutoff time.Time) ([]*User, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE notifications_on AND last_active_at < $1`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list inactive users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

const profileColumns = `id, user_id, target_lang, cefr, active, created_at`

func scanProfile(row pgx.Row) (*Profile, error) {
	var p Profile
	err := row.Scan(&p.ID, &p.UserID, &p.TargetLang, &p.CEFR, &p.Active, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan profile: %w", err)
	}
	return &p, nil
}

// ActiveProfile returns the user's single active learning profile.
func (s *Store) ActiveProfile(ctx context.Context, userID string) (*Profile, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE user_id = $1 AND active`,
		userID)
	return scanProfile(row)
}

// GetProfile looks up a profile by id.
func (s *Store) GetProfile(ctx context.Context, id string) (*Profile, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE id = $1`, id)
	return scanProfile(row)
}

// SwitchActiveProfile deactivates the user's current profile and activates (or
// creates) the profile for targetLang, all in one transaction.
func (s *Store) SwitchActiveProfile(ctx context.Context, userID, targetLang, cefr string) (*Profile, error) {
	var result *Profile
	err := s.withTx(ctx, func(q dbtx) error {
		if _, err := q.Exec(ctx,
			`UPDATE profiles SET active = FALSE WHERE user_id = $1 AND active`,
			userID); err != nil {
			return fmt.Errorf("deactivate profiles: %w", err)
		}
		row := q.QueryRow(ctx, `
			INSERT INTO profiles (user_id, target_lang, cefr, active)
			VALUES ($1, $2, $3, TRUE)
			ON CONFLICT (user_id, target_lang)
			DO UPDATE SET active = TRUE
			RETURNING `+profileColumns,
			userID, targetLang, cefr)
		p, err := scanProfile(row)
		if err != nil {
			return fmt.Errorf("activate profile: %w", err)
		}
		result = p
		return nil
	})
	return result, err
}
