package hashing

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/argon2"

	"github.com/alam-gir/wafipix-backend/internal/config"
	"github.com/alam-gir/wafipix-backend/internal/util"
)

var (
	ErrInvalidHash   = errors.New("invalid hash format")
	ErrUnknownPepper = errors.New("pepper version not found")
)

type Argon2Params struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

type pepper struct {
	Value     string
	CreatedAt time.Time
	Version   int
}

// Hasher derives argon2id digests of one-time codes before they are
// written to storage. A process-local pepper is mixed in so a leaked
// table alone is not enough to brute-force six-digit codes.
type Hasher struct {
	params        Argon2Params
	currentPepper *pepper
	oldPeppers    []*pepper
	rotationDays  int
	mu            sync.RWMutex
}

type HashResult struct {
	Hash          string `json:"hash"`
	Salt          string `json:"salt"`
	PepperVersion int    `json:"pepper_version"`
	Algorithm     string `json:"algorithm"`
}

func NewHasher(cfg *config.Config) *Hasher {
	h := &Hasher{
		params: Argon2Params{
			Memory:      cfg.Hashing.ArgonMemory,
			Iterations:  cfg.Hashing.ArgonIterations,
			Parallelism: cfg.Hashing.ArgonParallelism,
			SaltLength:  cfg.Hashing.SaltLength,
			KeyLength:   cfg.Hashing.KeyLength,
		},
		rotationDays: cfg.Hashing.PepperRotationDays,
	}

	h.rotatePepper()

	return h
}

func (h *Hasher) rotatePepper() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.currentPepper != nil {
		h.oldPeppers = append(h.oldPeppers, h.currentPepper)
	}

	pepperBytes := make([]byte, 32)
	if _, err := rand.Read(pepperBytes); err != nil {
		util.Fatal("failed to generate pepper", zap.Error(err))
	}

	h.currentPepper = &pepper{
		Value:     base64.RawURLEncoding.EncodeToString(pepperBytes),
		CreatedAt: time.Now(),
		Version:   len(h.oldPeppers) + 1,
	}

	util.Info("pepper rotated",
		zap.Int("version", h.currentPepper.Version),
		zap.Time("created_at", h.currentPepper.CreatedAt),
	)
}

// StartPepperRotation rotates the pepper on a fixed interval. Old
// versions are retained so in-flight challenges keep verifying; only
// the last two are kept, which outlives any challenge expiry by far.
func (h *Hasher) StartPepperRotation() {
	ticker := time.NewTicker(time.Duration(h.rotationDays) * 24 * time.Hour)

	go func() {
		for range ticker.C {
			h.rotatePepper()

			h.mu.Lock()
			if len(h.oldPeppers) > 2 {
				h.oldPeppers = h.oldPeppers[len(h.oldPeppers)-2:]
			}
			h.mu.Unlock()
		}
	}()
}

func (h *Hasher) HashOTP(code string) (*HashResult, error) {
	return h.hashWithPepper(code, "otp")
}

func (h *Hasher) hashWithPepper(data, context string) (*HashResult, error) {
	h.mu.RLock()
	p := h.currentPepper
	h.mu.RUnlock()

	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	// Context tag prevents hash reuse across purposes
	contextualData := data + p.Value + context

	hash := argon2.IDKey(
		[]byte(contextualData),
		salt,
		h.params.Iterations,
		h.params.Memory,
		h.params.Parallelism,
		h.params.KeyLength,
	)

	return &HashResult{
		Hash:          base64.RawURLEncoding.EncodeToString(hash),
		Salt:          base64.RawURLEncoding.EncodeToString(salt),
		PepperVersion: p.Version,
		Algorithm:     "argon2id-v1",
	}, nil
}

func (h *Hasher) VerifyOTP(code string, hashResult *HashResult) (bool, error) {
	return h.verifyWithPepper(code, hashResult, "otp")
}

func (h *Hasher) verifyWithPepper(data string, hashResult *HashResult, context string) (bool, error) {
	pepperValue, err := h.getPepper(hashResult.PepperVersion)
	if err != nil {
		return false, err
	}

	salt, err := base64.RawURLEncoding.DecodeString(hashResult.Salt)
	if err != nil {
		return false, ErrInvalidHash
	}

	expectedHash, err := base64.RawURLEncoding.DecodeString(hashResult.Hash)
	if err != nil {
		return false, ErrInvalidHash
	}

	contextualData := data + pepperValue + context

	computedHash := argon2.IDKey(
		[]byte(contextualData),
		salt,
		h.params.Iterations,
		h.params.Memory,
		h.params.Parallelism,
		uint32(len(expectedHash)),
	)

	return subtle.ConstantTimeCompare(computedHash, expectedHash) == 1, nil
}

func (h *Hasher) getPepper(version int) (string, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.currentPepper != nil && h.currentPepper.Version == version {
		return h.currentPepper.Value, nil
	}

	for _, p := range h.oldPeppers {
		if p.Version == version {
			return p.Value, nil
		}
	}

	return "", ErrUnknownPepper
}
