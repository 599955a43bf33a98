// Package sqlite provides a SQLite-backed calendar storage implementation.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sqlitemigrate "github.com/mirakulix/play-together-api/internal/platform/storage/sqlitemigrate"
	"github.com/mirakulix/play-together-api/internal/services/calendar/domain"
	"github.com/mirakulix/play-together-api/internal/services/calendar/storage"
	"github.com/mirakulix/play-together-api/internal/services/calendar/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store persists calendar state in SQLite.
type Store struct {
	sqlDB *sql.DB
}

var _ storage.Store = (*Store)(nil)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite calendar store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

// PutEvent upserts one event row.
func (s *Store) PutEvent(ctx context.Context, event domain.Event) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	eventID := strings.TrimSpace(event.EventID)
	if eventID == "" {
		return fmt.Errorf("event id is required")
	}
	if strings.TrimSpace(event.CreatedByUserID) == "" {
		return fmt.Errorf("event creator is required")
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO events (event_id, title, description, game_id, created_by_user_id, starts_at, ends_at, friends_only, call_to_arms, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(event_id) DO UPDATE SET
    title = excluded.title,
    description = excluded.description,
    game_id = excluded.game_id,
    starts_at = excluded.starts_at,
    ends_at = excluded.ends_at,
    friends_only = excluded.friends_only,
    call_to_arms = excluded.call_to_arms,
    updated_at = excluded.updated_at
`, eventID, event.Title, event.Description, event.GameID, event.CreatedByUserID,
		toMillis(event.StartsAt), toMillis(event.EndsAt), boolToInt(event.FriendsOnly),
		boolToInt(event.CallToArms), toMillis(event.CreatedAt), toMillis(event.UpdatedAt))
	if err != nil {
		return fmt.Errorf("put event: %w", err)
	}
	return nil
}

// GetEvent loads one event by id.
func (s *Store) GetEvent(ctx context.Context, eventID string) (domain.Event, error) {
	if err := s.ready(ctx); err != nil {
		return domain.Event{}, err
	}
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return domain.Event{}, fmt.Errorf("event id is required")
	}
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT event_id, title, description, game_id, created_by_user_id, starts_at, ends_at, friends_only, call_to_arms, created_at, updated_at
FROM events WHERE event_id = ?
`, eventID)
	event, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Event{}, storage.ErrNotFound
	}
	if err != nil {
		return domain.Event{}, fmt.Errorf("get event: %w", err)
	}
	return event, nil
}

// DeleteEvent removes one event row.
func (s *Store) DeleteEvent(ctx context.Context, eventID string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return fmt.Errorf("event id is required")
	}
	result, err := s.sqlDB.ExecContext(ctx, `DELETE FROM events WHERE event_id = ?`, eventID)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete event rows: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListEvents returns events matching an optional condition, ordered by start
// time then id so pagination stays stable.
func (s *Store) ListEvents(ctx context.Context, query storage.EventQuery) ([]domain.Event, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	sqlQuery := `
SELECT event_id, title, description, game_id, created_by_user_id, starts_at, ends_at, friends_only, call_to_arms, created_at, updated_at
FROM events`
	params := append([]any(nil), query.Params...)
	if where := strings.TrimSpace(query.Where); where != "" {
		sqlQuery += " WHERE " + where
	}
	sqlQuery += " ORDER BY starts_at ASC, event_id ASC"
	if query.Limit > 0 {
		sqlQuery += " LIMIT ?"
		params = append(params, query.Limit)
	}
	rows, err := s.sqlDB.QueryContext(ctx, sqlQuery, params...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list events rows: %w", err)
	}
	return events, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (domain.Event, error) {
	var event domain.Event
	var startsAt, endsAt, createdAt, updatedAt int64
	var friendsOnly, callToArms int
	err := row.Scan(&event.EventID, &event.Title, &event.Description, &event.GameID,
		&event.CreatedByUserID, &startsAt, &endsAt, &friendsOnly, &callToArms,
		&createdAt, &updatedAt)
	if err != nil {
		return domain.Event{}, err
	}
	event.StartsAt = fromMillis(startsAt)
	event.EndsAt = fromMillis(endsAt)
	event.FriendsOnly = friendsOnly != 0
	event.CallToArms = callToArms != 0
	event.CreatedAt = fromMillis(createdAt)
	event.UpdatedAt = fromMillis(updatedAt)
	return event, nil
}

// PutUser upserts one user row.
func (s *Store) PutUser(ctx context.Context, user domain.User) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	userID := strings.TrimSpace(user.UserID)
	if userID == "" {
		return fmt.Errorf("user id is required")
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO users (user_id, display_name, display_id, email, avatar_filename, utc_offset_seconds, device_token, soft_deleted, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(user_id) DO UPDATE SET
    display_name = excluded.display_name,
    display_id = excluded.display_id,
    email = excluded.email,
    avatar_filename = excluded.avatar_filename,
    utc_offset_seconds = excluded.utc_offset_seconds,
    device_token = excluded.device_token,
    soft_deleted = excluded.soft_deleted,
    updated_at = excluded.updated_at
`, userID, user.DisplayName, user.DisplayID, user.Email, user.AvatarFilename,
		int64(user.UTCOffset/time.Second), user.DeviceToken, boolToInt(user.SoftDeleted),
		toMillis(user.CreatedAt), toMillis(user.UpdatedAt))
	if err != nil {
		return fmt.Errorf("put user: %w", err)
	}
	return nil
}

// GetUser loads one user by id.
func (s *Store) GetUser(ctx context.Context, userID string) (domain.User, error) {
	if err := s.ready(ctx); err != nil {
		return domain.User{}, err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.User{}, fmt.Errorf("user id is required")
	}
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT user_id, display_name, display_id, email, avatar_filename, utc_offset_seconds, device_token, soft_deleted, created_at, updated_at
FROM users WHERE user_id = ?
`, userID)
	var user domain.User
	var offsetSeconds, createdAt, updatedAt int64
	var softDeleted int
	err := row.Scan(&user.UserID, &user.DisplayName, &user.DisplayID, &user.Email,
		&user.AvatarFilename, &offsetSeconds, &user.DeviceToken, &softDeleted,
		&createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, storage.ErrNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("get user: %w", err)
	}
	user.UTCOffset = time.Duration(offsetSeconds) * time.Second
	user.SoftDeleted = softDeleted != 0
	user.CreatedAt = fromMillis(createdAt)
	user.UpdatedAt = fromMillis(updatedAt)
	return user, nil
}

// PutSignup upserts one signup row.
func (s *Store) PutSignup(ctx context.Context, signup domain.UserEventSignup) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	eventID := strings.TrimSpace(signup.EventID)
	userID := strings.TrimSpace(signup.UserID)
	if eventID == "" || userID == "" {
		return fmt.Errorf("event id and user id are required")
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO user_event_signups (event_id, user_id, status, signed_up_at, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(event_id, user_id) DO UPDATE SET
    status = excluded.status,
    updated_at = excluded.updated_at
`, eventID, userID, string(signup.Status), toMillis(signup.SignedUpAt), toMillis(signup.UpdatedAt))
	if err != nil {
		return fmt.Errorf("put signup: %w", err)
	}
	return nil
}

// GetSignup loads one signup by its event and user pair.
func (s *Store) GetSignup(ctx context.Context, eventID, userID string) (domain.UserEventSignup, error) {
	if err := s.ready(ctx); err != nil {
		return domain.UserEventSignup{}, err
	}
	eventID = strings.TrimSpace(eventID)
	userID = strings.TrimSpace(userID)
	if eventID == "" || userID == "" {
		return domain.UserEventSignup{}, fmt.Errorf("event id and user id are required")
	}
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT event_id, user_id, status, signed_up_at, updated_at
FROM user_event_signups WHERE event_id = ? AND user_id = ?
`, eventID, userID)
	signup, err := scanSignup(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.UserEventSignup{}, storage.ErrNotFound
	}
	if err != nil {
		return domain.UserEventSignup{}, fmt.Errorf("get signup: %w", err)
	}
	return signup, nil
}

// DeleteSignup removes one signup row.
func (s *Store) DeleteSignup(ctx context.Context, eventID, userID string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	eventID = strings.TrimSpace(eventID)
	userID = strings.TrimSpace(userID)
	if eventID == "" || userID == "" {
		return fmt.Errorf("event id and user id are required")
	}
	result, err := s.sqlDB.ExecContext(ctx, `DELETE FROM user_event_signups WHERE event_id = ? AND user_id = ?`, eventID, userID)
	if err != nil {
		return fmt.Errorf("delete signup: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete signup rows: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// DeleteSignupsForEvent removes every signup attached to an event.
func (s *Store) DeleteSignupsForEvent(ctx context.Context, eventID string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return fmt.Errorf("event id is required")
	}
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM user_event_signups WHERE event_id = ?`, eventID); err != nil {
		return fmt.Errorf("delete event signups: %w", err)
	}
	return nil
}

// ListSignupsForEvent returns every signup on an event, oldest first.
func (s *Store) ListSignupsForEvent(ctx context.Context, eventID string) ([]domain.UserEventSignup, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return nil, fmt.Errorf("event id is required")
	}
	return s.listSignups(ctx, `WHERE event_id = ?`, eventID)
}

// ListSignupsForUser returns every signup made by a user, oldest first.
func (s *Store) ListSignupsForUser(ctx context.Context, userID string) ([]domain.UserEventSignup, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	return s.listSignups(ctx, `WHERE user_id = ?`, userID)
}

func (s *Store) listSignups(ctx context.Context, where string, param any) ([]domain.UserEventSignup, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT event_id, user_id, status, signed_up_at, updated_at
FROM user_event_signups `+where+` ORDER BY signed_up_at ASC, user_id ASC`, param)
	if err != nil {
		return nil, fmt.Errorf("list signups: %w", err)
	}
	defer rows.Close()

	var signups []domain.UserEventSignup
	for rows.Next() {
		signup, err := scanSignup(rows)
		if err != nil {
			return nil, fmt.Errorf("scan signup: %w", err)
		}
		signups = append(signups, signup)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list signups rows: %w", err)
	}
	return signups, nil
}

func scanSignup(row rowScanner) (domain.UserEventSignup, error) {
	var signup domain.UserEventSignup
	var status string
	var signedUpAt, updatedAt int64
	if err := row.Scan(&signup.EventID, &signup.UserID, &status, &signedUpAt, &updatedAt); err != nil {
		return domain.UserEventSignup{}, err
	}
	signup.Status = domain.SignupStatus(status)
	signup.SignedUpAt = fromMillis(signedUpAt)
	signup.UpdatedAt = fromMillis(updatedAt)
	return signup, nil
}

// PutRelation upserts one relation row. The pair is normalized before writing
// so both orderings address the same row.
func (s *Store) PutRelation(ctx context.Context, relation domain.UserRelation) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	userAID, userBID, ok := domain.NormalizeRelationPair(relation.UserAID, relation.UserBID)
	if !ok {
		return fmt.Errorf("relation requires two distinct user ids")
	}
	if userAID != relation.UserAID {
		return fmt.Errorf("relation pair is not normalized")
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO user_relations (user_a_id, user_b_id, status, created_at, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(user_a_id, user_b_id) DO UPDATE SET
    status = excluded.status,
    updated_at = excluded.updated_at
`, userAID, userBID, int(relation.Status), toMillis(relation.CreatedAt), toMillis(relation.UpdatedAt))
	if err != nil {
		return fmt.Errorf("put relation: %w", err)
	}
	return nil
}

// GetRelation loads the relation between two users in either order.
func (s *Store) GetRelation(ctx context.Context, userAID, userBID string) (domain.UserRelation, error) {
	if err := s.ready(ctx); err != nil {
		return domain.UserRelation{}, err
	}
	userAID, userBID, ok := domain.NormalizeRelationPair(userAID, userBID)
	if !ok {
		return domain.UserRelation{}, fmt.Errorf("relation requires two distinct user ids")
	}
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT user_a_id, user_b_id, status, created_at, updated_at
FROM user_relations WHERE user_a_id = ? AND user_b_id = ?
`, userAID, userBID)
	relation, err := scanRelation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.UserRelation{}, storage.ErrNotFound
	}
	if err != nil {
		return domain.UserRelation{}, fmt.Errorf("get relation: %w", err)
	}
	return relation, nil
}

// DeleteRelation removes the relation between two users in either order.
func (s *Store) DeleteRelation(ctx context.Context, userAID, userBID string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	userAID, userBID, ok := domain.NormalizeRelationPair(userAID, userBID)
	if !ok {
		return fmt.Errorf("relation requires two distinct user ids")
	}
	result, err := s.sqlDB.ExecContext(ctx, `DELETE FROM user_relations WHERE user_a_id = ? AND user_b_id = ?`, userAID, userBID)
	if err != nil {
		return fmt.Errorf("delete relation: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete relation rows: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListRelationsForUser returns every relation touching a user.
func (s *Store) ListRelationsForUser(ctx context.Context, userID string) ([]domain.UserRelation, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT user_a_id, user_b_id, status, created_at, updated_at
FROM user_relations WHERE user_a_id = ? OR user_b_id = ?
ORDER BY user_a_id ASC, user_b_id ASC
`, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("list relations: %w", err)
	}
	defer rows.Close()

	var relations []domain.UserRelation
	for rows.Next() {
		relation, err := scanRelation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan relation: %w", err)
		}
		relations = append(relations, relation)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list relations rows: %w", err)
	}
	return relations, nil
}

func scanRelation(row rowScanner) (domain.UserRelation, error) {
	var relation domain.UserRelation
	var status int
	var createdAt, updatedAt int64
	if err := row.Scan(&relation.UserAID, &relation.UserBID, &status, &createdAt, &updatedAt); err != nil {
		return domain.UserRelation{}, err
	}
	relation.Status = domain.RelationStatus(status)
	relation.CreatedAt = fromMillis(createdAt)
	relation.UpdatedAt = fromMillis(updatedAt)
	return relation, nil
}

// PutStatistics upserts one statistics row.
func (s *Store) PutStatistics(ctx context.Context, stats domain.UserStatistics) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	userID := strings.TrimSpace(stats.UserID)
	if userID == "" {
		return fmt.Errorf("user id is required")
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO user_statistics (user_id, friends_current_count, events_created_total_count, signups_upcoming_count, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(user_id) DO UPDATE SET
    friends_current_count = excluded.friends_current_count,
    events_created_total_count = excluded.events_created_total_count,
    signups_upcoming_count = excluded.signups_upcoming_count,
    updated_at = excluded.updated_at
`, userID, stats.FriendsCurrentCount, stats.EventsCreatedTotalCount,
		stats.SignupsUpcomingCount, toMillis(stats.UpdatedAt))
	if err != nil {
		return fmt.Errorf("put statistics: %w", err)
	}
	return nil
}

// GetStatistics loads one user's statistics.
func (s *Store) GetStatistics(ctx context.Context, userID string) (domain.UserStatistics, error) {
	if err := s.ready(ctx); err != nil {
		return domain.UserStatistics{}, err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.UserStatistics{}, fmt.Errorf("user id is required")
	}
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT user_id, friends_current_count, events_created_total_count, signups_upcoming_count, updated_at
FROM user_statistics WHERE user_id = ?
`, userID)
	var stats domain.UserStatistics
	var updatedAt int64
	err := row.Scan(&stats.UserID, &stats.FriendsCurrentCount, &stats.EventsCreatedTotalCount,
		&stats.SignupsUpcomingCount, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.UserStatistics{}, storage.ErrNotFound
	}
	if err != nil {
		return domain.UserStatistics{}, fmt.Errorf("get statistics: %w", err)
	}
	stats.UpdatedAt = fromMillis(updatedAt)
	return stats, nil
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
