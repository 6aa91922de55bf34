package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/alam-gir/wafipix-backend/internal/model"
	"github.com/alam-gir/wafipix-backend/internal/util"
)

// SessionRepository stores refresh sessions keyed by (user, device).
// The INSERT is a plain upsert, so re-login on the same device
// overwrites the existing row rather than adding one.
type SessionRepository struct {
	client *ScyllaClient
}

func NewSessionRepository(client *ScyllaClient, logger *zap.Logger) *SessionRepository {
	return &SessionRepository{
		client: client,
	}
}

func (r *SessionRepository) UpsertSession(ctx context.Context, s *model.RefreshSession) error {
	if s.SessionID == "" {
		s.SessionID = uuid.New().String()
	}

	now := time.Now().UTC()
	if s.IssuedAt.IsZero() {
		s.IssuedAt = now
	}
	s.LastRotatedAt = now

	query := r.client.Query(r.client.Stmts.UpsertSession,
		s.UserID, s.DeviceID, s.SessionID, s.RefreshToken,
		s.IssuedAt, s.LastRotatedAt, s.SourceIP).WithContext(ctx)

	if err := r.client.ExecuteWithRetry(query, 2); err != nil {
		util.Error("failed to upsert refresh session",
			zap.String("user_id", s.UserID),
			zap.String("device_id", s.DeviceID),
			zap.Error(err))
		return fmt.Errorf("failed to upsert refresh session: %w", err)
	}

	util.Debug("refresh session upserted",
		zap.String("user_id", s.UserID),
		zap.String("device_id", s.DeviceID))

	return nil
}

func (r *SessionRepository) GetSession(ctx context.Context, userID, deviceID string) (*model.RefreshSession, error) {
	s := &model.RefreshSession{}

	query := r.client.Query(r.client.Stmts.GetSession, userID, deviceID).WithContext(ctx)

	err := r.client.ScanWithRetry(query,
		&s.UserID, &s.DeviceID, &s.SessionID, &s.RefreshToken,
		&s.IssuedAt, &s.LastRotatedAt, &s.SourceIP)
	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, model.ErrSessionNotFound
		}
		util.Error("failed to get refresh session",
			zap.String("user_id", userID),
			zap.String("device_id", deviceID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get refresh session: %w", err)
	}

	return s, nil
}

func (r *SessionRepository) DeleteSession(ctx context.Context, userID, deviceID string) error {
	query := r.client.Query(r.client.Stmts.DeleteSession, userID, deviceID).WithContext(ctx)

	if err := r.client.ExecuteWithRetry(query, 2); err != nil {
		util.Error("failed to delete refresh session",
			zap.String("user_id", userID),
			zap.String("device_id", deviceID),
			zap.Error(err))
		return fmt.Errorf("failed to delete refresh session: %w", err)
	}

	util.Info("refresh session deleted",
		zap.String("user_id", userID),
		zap.String("device_id", deviceID))

	return nil
}

func (r *SessionRepository) ListSessions(ctx context.Context, userID string) ([]*model.RefreshSession, error) {
	iter := r.client.Query(r.client.Stmts.ListSessions, userID).WithContext(ctx).Iter()

	var sessions []*model.RefreshSession
	for {
		s := &model.RefreshSession{}
		if !iter.Scan(
			&s.UserID, &s.DeviceID, &s.SessionID, &s.RefreshToken,
			&s.IssuedAt, &s.LastRotatedAt, &s.SourceIP) {
			break
		}
		sessions = append(sessions, s)
	}

	if err := iter.Close(); err != nil {
		util.Error("failed to list refresh sessions",
			zap.String("user_id", userID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to list refresh sessions: %w", err)
	}

	return sessions, nil
}
