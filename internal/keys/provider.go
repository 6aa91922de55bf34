package keys

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"go.uber.org/zap"

	"github.com/alam-gir/wafipix-backend/internal/config"
	"github.com/alam-gir/wafipix-backend/internal/util"
)

var ErrNoSigningKey = errors.New("no signing key material available")

// Provider resolves the HMAC signing key for token issuance. In
// production the key lives as a KMS-encrypted blob in the environment
// and is decrypted once at startup; in development a plain secret is
// used directly.
type Provider struct {
	cfg       *config.Config
	kmsClient *kms.Client

	mu  sync.RWMutex
	key []byte
}

func NewProvider(ctx context.Context, cfg *config.Config) (*Provider, error) {
	p := &Provider{cfg: cfg}

	if cfg.KMS.Enabled {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		p.kmsClient = kms.NewFromConfig(awsCfg)
	}

	if err := p.load(ctx); err != nil {
		return nil, err
	}

	util.Info("signing key provider initialized",
		zap.Bool("kms_enabled", cfg.KMS.Enabled))

	return p, nil
}

func (p *Provider) load(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.cfg.KMS.Enabled {
		if p.cfg.Auth.SigningSecret == "" {
			return ErrNoSigningKey
		}
		p.key = []byte(p.cfg.Auth.SigningSecret)
		return nil
	}

	ciphertext, err := base64.StdEncoding.DecodeString(p.cfg.KMS.EncryptedSigningKey)
	if err != nil {
		return fmt.Errorf("failed to decode encrypted signing key: %w", err)
	}

	out, err := p.kmsClient.Decrypt(ctx, &kms.DecryptInput{
		CiphertextBlob: ciphertext,
		KeyId:          aws.String(p.cfg.KMS.KeyID),
	})
	if err != nil {
		return fmt.Errorf("failed to decrypt signing key via KMS: %w", err)
	}

	p.key = out.Plaintext
	return nil
}

// SigningKey returns the resolved key bytes. The slice must not be
// mutated by callers.
func (p *Provider) SigningKey() []byte {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.key
}
