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

type OTPRepository struct {
	client *ScyllaClient
}

func NewOTPRepository(client *ScyllaClient, logger *zap.Logger) *OTPRepository {
	return &OTPRepository{
		client: client,
	}
}

func (r *OTPRepository) CreateChallenge(ctx context.Context, ch *model.OTPChallenge) error {
	if ch.ChallengeID == "" {
		ch.ChallengeID = uuid.New().String()
	}

	if ch.CreatedAt.IsZero() {
		ch.CreatedAt = time.Now().UTC()
	}

	query := r.client.Query(r.client.Stmts.CreateChallenge,
		ch.Email, ch.CreatedAt, ch.ChallengeID, ch.CodeHash, ch.CodeSalt,
		ch.HashAlgorithm, ch.PepperVersion, ch.ExpiresAt, ch.AttemptCount,
		ch.MaxAttempts, ch.IsUsed, ch.DeviceID, ch.SourceIP).WithContext(ctx)

	if err := r.client.ExecuteWithRetry(query, 2); err != nil {
		util.Error("failed to create otp challenge",
			zap.String("challenge_id", ch.ChallengeID),
			zap.Error(err))
		return fmt.Errorf("failed to create otp challenge: %w", err)
	}

	util.Info("otp challenge created",
		zap.String("challenge_id", ch.ChallengeID),
		zap.Time("expires_at", ch.ExpiresAt))

	return nil
}

// NewestValidChallenge scans the newest rows for the address and returns
// the first one that is still actionable.
func (r *OTPRepository) NewestValidChallenge(ctx context.Context, email string) (*model.OTPChallenge, error) {
	iter := r.client.Query(r.client.Stmts.RecentChallenges, email).WithContext(ctx).Iter()
	defer iter.Close()

	now := time.Now().UTC()
	for {
		ch := &model.OTPChallenge{}
		if !iter.Scan(
			&ch.Email, &ch.CreatedAt, &ch.ChallengeID, &ch.CodeHash, &ch.CodeSalt,
			&ch.HashAlgorithm, &ch.PepperVersion, &ch.ExpiresAt, &ch.AttemptCount,
			&ch.MaxAttempts, &ch.IsUsed, &ch.DeviceID, &ch.SourceIP) {
			break
		}
		if ch.Valid(now) {
			return ch, nil
		}
	}

	if err := iter.Close(); err != nil {
		util.Error("failed to scan otp challenges", zap.Error(err))
		return nil, fmt.Errorf("failed to scan otp challenges: %w", err)
	}

	return nil, model.ErrChallengeNotFound
}

func (r *OTPRepository) IncrementAttempts(ctx context.Context, ch *model.OTPChallenge) error {
	ch.AttemptCount++

	query := r.client.Query(r.client.Stmts.UpdateAttemptCount,
		ch.AttemptCount, ch.Email, ch.CreatedAt, ch.ChallengeID).WithContext(ctx)

	if err := r.client.ExecuteWithRetry(query, 2); err != nil {
		util.Error("failed to increment otp attempts",
			zap.String("challenge_id", ch.ChallengeID),
			zap.Error(err))
		return fmt.Errorf("failed to increment otp attempts: %w", err)
	}

	return nil
}

func (r *OTPRepository) MarkUsed(ctx context.Context, ch *model.OTPChallenge) error {
	query := r.client.Query(r.client.Stmts.MarkChallengeUsed,
		ch.Email, ch.CreatedAt, ch.ChallengeID).WithContext(ctx)

	if err := r.client.ExecuteWithRetry(query, 2); err != nil {
		util.Error("failed to mark otp challenge used",
			zap.String("challenge_id", ch.ChallengeID),
			zap.Error(err))
		return fmt.Errorf("failed to mark otp challenge used: %w", err)
	}

	ch.IsUsed = true
	util.Info("otp challenge consumed",
		zap.String("challenge_id", ch.ChallengeID))

	return nil
}

// DeleteForEmail drops the whole partition for the address. Called
// before a new challenge is written so at most one is ever live.
func (r *OTPRepository) DeleteForEmail(ctx context.Context, email string) error {
	query := r.client.Query(r.client.Stmts.DeleteForEmail, email).WithContext(ctx)

	if err := r.client.ExecuteWithRetry(query, 2); err != nil {
		util.Error("failed to purge otp challenges", zap.Error(err))
		return fmt.Errorf("failed to purge otp challenges: %w", err)
	}

	return nil
}

// DeleteExpired sweeps expired and consumed rows. Runs from a background
// ticker; relies on paging so large tables do not blow memory.
func (r *OTPRepository) DeleteExpired(ctx context.Context) (int, error) {
	iter := r.client.Query(`
        SELECT email, created_at, challenge_id, expires_at, is_used
        FROM otp_challenges`).WithContext(ctx).PageSize(1000).Iter()

	type rowKey struct {
		email       string
		createdAt   time.Time
		challengeID string
	}

	now := time.Now().UTC()
	var stale []rowKey

	var (
		email       string
		createdAt   time.Time
		challengeID string
		expiresAt   time.Time
		isUsed      bool
	)
	for iter.Scan(&email, &createdAt, &challengeID, &expiresAt, &isUsed) {
		if isUsed || now.After(expiresAt) {
			stale = append(stale, rowKey{email, createdAt, challengeID})
		}
	}
	if err := iter.Close(); err != nil {
		return 0, fmt.Errorf("failed to scan for expired challenges: %w", err)
	}

	deleted := 0
	batch := r.client.Batch(gocql.UnloggedBatch)
	for _, k := range stale {
		batch.Query(`DELETE FROM otp_challenges WHERE email = ? AND created_at = ? AND challenge_id = ?`,
			k.email, k.createdAt, k.challengeID)
		if len(batch.Entries) >= 100 {
			if err := r.client.ExecuteBatch(batch); err != nil {
				return deleted, fmt.Errorf("failed to delete expired challenges: %w", err)
			}
			deleted += len(batch.Entries)
			batch = r.client.Batch(gocql.UnloggedBatch)
		}
	}
	if len(batch.Entries) > 0 {
		if err := r.client.ExecuteBatch(batch); err != nil {
			return deleted, fmt.Errorf("failed to delete expired challenges: %w", err)
		}
		deleted += len(batch.Entries)
	}

	if deleted > 0 {
		util.Info("expired otp challenges deleted", zap.Int("count", deleted))
	}

	return deleted, nil
}
