package hashing

import (
	"testing"

	"github.com/alam-gir/wafipix-backend/internal/config"
)

func testHasher() *Hasher {
	cfg := &config.Config{}
	cfg.Hashing.ArgonMemory = 8 * 1024
	cfg.Hashing.ArgonIterations = 1
	cfg.Hashing.ArgonParallelism = 1
	cfg.Hashing.SaltLength = 16
	cfg.Hashing.KeyLength = 32
	cfg.Hashing.PepperRotationDays = 90
	return NewHasher(cfg)
}

func TestHashAndVerifyOTP(t *testing.T) {
	h := testHasher()

	result, err := h.HashOTP("483920")
	if err != nil {
		t.Fatalf("HashOTP: %v", err)
	}
	if result.Hash == "" || result.Salt == "" {
		t.Fatal("hash result incomplete")
	}
	if result.Algorithm != "argon2id-v1" {
		t.Errorf("algorithm = %q", result.Algorithm)
	}

	ok, err := h.VerifyOTP("483920", result)
	if err != nil {
		t.Fatalf("VerifyOTP: %v", err)
	}
	if !ok {
		t.Error("matching code should verify")
	}

	ok, err = h.VerifyOTP("483921", result)
	if err != nil {
		t.Fatalf("VerifyOTP: %v", err)
	}
	if ok {
		t.Error("wrong code must not verify")
	}
}

func TestHashIsSalted(t *testing.T) {
	h := testHasher()

	a, err := h.HashOTP("112233")
	if err != nil {
		t.Fatalf("HashOTP: %v", err)
	}
	b, err := h.HashOTP("112233")
	if err != nil {
		t.Fatalf("HashOTP: %v", err)
	}
	if a.Hash == b.Hash {
		t.Error("same code must hash differently under fresh salt")
	}
}

func TestVerifySurvivesPepperRotation(t *testing.T) {
	h := testHasher()

	result, err := h.HashOTP("654321")
	if err != nil {
		t.Fatalf("HashOTP: %v", err)
	}

	h.rotatePepper()

	ok, err := h.VerifyOTP("654321", result)
	if err != nil {
		t.Fatalf("VerifyOTP after rotation: %v", err)
	}
	if !ok {
		t.Error("code hashed under the previous pepper should still verify")
	}
}

func TestVerifyUnknownPepperVersion(t *testing.T) {
	h := testHasher()

	result, err := h.HashOTP("654321")
	if err != nil {
		t.Fatalf("HashOTP: %v", err)
	}
	result.PepperVersion = 99

	if _, err := h.VerifyOTP("654321", result); err != ErrUnknownPepper {
		t.Errorf("err = %v, want ErrUnknownPepper", err)
	}
}

func TestVerifyCorruptEncoding(t *testing.T) {
	h := testHasher()

	result, err := h.HashOTP("654321")
	if err != nil {
		t.Fatalf("HashOTP: %v", err)
	}
	result.Salt = "!!not base64!!"

	if _, err := h.VerifyOTP("654321", result); err != ErrInvalidHash {
		t.Errorf("err = %v, want ErrInvalidHash", err)
	}
}
