package otp

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"

	"github.com/alam-gir/wafipix-backend/internal/apperr"
	"github.com/alam-gir/wafipix-backend/internal/audit"
	"github.com/alam-gir/wafipix-backend/internal/config"
	"github.com/alam-gir/wafipix-backend/internal/hashing"
	"github.com/alam-gir/wafipix-backend/internal/model"
	"github.com/alam-gir/wafipix-backend/internal/notify"
	"github.com/alam-gir/wafipix-backend/internal/util"
)

const rateWindow = time.Hour

// Engine owns the OTP challenge lifecycle: creation with purge of
// predecessors, bounded verification, and expiry sweeping. Codes leave
// the process only through the notifier; no API response ever carries
// one.
type Engine struct {
	challenges model.OTPChallengeRepository
	limiter    model.OTPRateLimiter
	hasher     *hashing.Hasher
	pool       *notify.Pool
	recorder   audit.Recorder

	expiry      time.Duration
	hourlyLimit int
	maxAttempts int
}

func NewEngine(cfg *config.Config, challenges model.OTPChallengeRepository, limiter model.OTPRateLimiter,
	hasher *hashing.Hasher, pool *notify.Pool, recorder audit.Recorder) *Engine {
	return &Engine{
		challenges:  challenges,
		limiter:     limiter,
		hasher:      hasher,
		pool:        pool,
		recorder:    recorder,
		expiry:      cfg.Auth.OTPExpiry,
		hourlyLimit: cfg.Auth.OTPHourlyLimit,
		maxAttempts: cfg.Auth.OTPMaxAttempts,
	}
}

// RequestChallenge creates a fresh challenge for the address and hands
// the code to the delivery pool. Older challenges for the address are
// purged first, so at most one is ever actionable.
//
// The count-then-create sequence is not atomic across concurrent
// requests for the same address; the worst case is one extra email, not
// a verification bypass.
func (e *Engine) RequestChallenge(ctx context.Context, email, deviceID, sourceIP string) error {
	email = util.NormalizeEmail(email)

	count, err := e.limiter.IncrementSendCount(ctx, email, rateWindow)
	if err != nil {
		return apperr.Wrap(err, apperr.KindUnexpected, "could not process request")
	}
	if count > e.hourlyLimit {
		e.recorder.Record(ctx, audit.NewEvent(audit.EventOTPRateLimited, email, "", deviceID, sourceIP, ""))
		return apperr.RateLimited("too many verification codes requested, try again later")
	}

	if err := e.challenges.DeleteForEmail(ctx, email); err != nil {
		return apperr.Wrap(err, apperr.KindUnexpected, "could not process request")
	}

	code, err := generateCode()
	if err != nil {
		return apperr.Wrap(err, apperr.KindUnexpected, "could not process request")
	}

	hashed, err := e.hasher.HashOTP(code)
	if err != nil {
		return apperr.Wrap(err, apperr.KindUnexpected, "could not process request")
	}

	now := time.Now().UTC()
	ch := &model.OTPChallenge{
		Email:         email,
		CodeHash:      hashed.Hash,
		CodeSalt:      hashed.Salt,
		HashAlgorithm: hashed.Algorithm,
		PepperVersion: hashed.PepperVersion,
		CreatedAt:     now,
		ExpiresAt:     now.Add(e.expiry),
		AttemptCount:  0,
		MaxAttempts:   e.maxAttempts,
		IsUsed:        false,
		DeviceID:      deviceID,
		SourceIP:      sourceIP,
	}

	if err := e.challenges.CreateChallenge(ctx, ch); err != nil {
		return apperr.Wrap(err, apperr.KindUnexpected, "could not process request")
	}

	e.pool.Enqueue(email, code, int(e.expiry.Minutes()))
	e.recorder.Record(ctx, audit.NewEvent(audit.EventOTPRequested, email, "", deviceID, sourceIP, ""))

	return nil
}

// VerifyChallenge checks a submitted code against the newest actionable
// challenge. It returns false for every failure mode alike: wrong code,
// no challenge, expired, already consumed, attempts exhausted. Callers
// must not be able to tell these apart.
//
// Every attempt against a found challenge consumes one try, and an
// increment that reaches the maximum rejects the call even when the
// code itself matches.
func (e *Engine) VerifyChallenge(ctx context.Context, email, code, deviceID, sourceIP string) (bool, error) {
	email = util.NormalizeEmail(email)

	ch, err := e.challenges.NewestValidChallenge(ctx, email)
	if err != nil {
		if errors.Is(err, model.ErrChallengeNotFound) {
			e.recorder.Record(ctx, audit.NewEvent(audit.EventOTPRejected, email, "", deviceID, sourceIP, "no actionable challenge"))
			return false, nil
		}
		return false, apperr.Wrap(err, apperr.KindUnexpected, "could not process request")
	}

	if err := e.challenges.IncrementAttempts(ctx, ch); err != nil {
		return false, apperr.Wrap(err, apperr.KindUnexpected, "could not process request")
	}

	match, err := e.hasher.VerifyOTP(code, &hashing.HashResult{
		Hash:          ch.CodeHash,
		Salt:          ch.CodeSalt,
		PepperVersion: ch.PepperVersion,
		Algorithm:     ch.HashAlgorithm,
	})
	if err != nil {
		// Peppers are process-local; a challenge minted before a
		// restart can no longer be checked and is rejected like any
		// other failed attempt, not surfaced as a server error.
		if errors.Is(err, hashing.ErrUnknownPepper) {
			e.recorder.Record(ctx, audit.NewEvent(audit.EventOTPRejected, email, "", deviceID, sourceIP, "unknown pepper version"))
			return false, nil
		}
		return false, apperr.Wrap(err, apperr.KindUnexpected, "could not process request")
	}

	if !match {
		e.recorder.Record(ctx, audit.NewEvent(audit.EventOTPRejected, email, "", deviceID, sourceIP, "code mismatch"))
		return false, nil
	}

	if ch.AttemptCount >= ch.MaxAttempts {
		e.recorder.Record(ctx, audit.NewEvent(audit.EventOTPRejected, email, "", deviceID, sourceIP, "attempts exhausted"))
		return false, nil
	}

	if err := e.challenges.MarkUsed(ctx, ch); err != nil {
		return false, apperr.Wrap(err, apperr.KindUnexpected, "could not process request")
	}

	e.recorder.Record(ctx, audit.NewEvent(audit.EventOTPVerified, email, "", deviceID, sourceIP, ""))
	return true, nil
}

// CleanupExpired deletes rows past expiry regardless of used or attempt
// state. Idempotent; meant for a periodic ticker.
func (e *Engine) CleanupExpired(ctx context.Context) (int, error) {
	count, err := e.challenges.DeleteExpired(ctx)
	if err != nil {
		return 0, fmt.Errorf("cleanup expired challenges: %w", err)
	}
	return count, nil
}

// StartCleanupLoop sweeps on the given interval until ctx is canceled.
func (e *Engine) StartCleanupLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if count, err := e.CleanupExpired(ctx); err != nil {
					util.Error("otp cleanup sweep failed", zap.Error(err))
				} else if count > 0 {
					util.Debug("otp cleanup sweep completed", zap.Int("deleted", count))
				}
			}
		}
	}()
}

// generateCode draws a uniform 6-digit code, left-padded with zeros.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", fmt.Errorf("failed to generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
