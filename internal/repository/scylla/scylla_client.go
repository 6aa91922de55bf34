package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"github.com/alam-gir/wafipix-backend/internal/config"
	"github.com/alam-gir/wafipix-backend/internal/util"
)

// Statements holds the CQL text for every repository query. Each call
// builds its own *gocql.Query from these via Query(); gocql prepares
// once per statement text and caches on the session, so bind values
// are never shared between concurrent requests.
type Statements struct {
	GetPrincipalByEmail string
	GetPrincipalByID    string

	CreateChallenge    string
	RecentChallenges   string
	UpdateAttemptCount string
	MarkChallengeUsed  string
	DeleteForEmail     string

	UpsertSession string
	GetSession    string
	DeleteSession string
	ListSessions  string
}

type ScyllaClient struct {
	Session *gocql.Session
	config  *config.ScyllaConfig
	Stmts   *Statements
}

func NewScyllaClient(cfg *config.Config, logger *zap.Logger) (*ScyllaClient, error) {
	scyllaConfig := cfg.Scylla

	cluster := gocql.NewCluster(scyllaConfig.Nodes...)
	cluster.Keyspace = scyllaConfig.Keyspace
	cluster.Consistency = gocql.LocalQuorum
	cluster.Timeout = 10 * time.Second
	cluster.ConnectTimeout = 10 * time.Second
	cluster.NumConns = 4
	cluster.SocketKeepalive = 30 * time.Second
	cluster.MaxPreparedStmts = 1000
	cluster.MaxRoutingKeyInfo = 1000
	cluster.PageSize = 1000
	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		Min:        time.Second,
		Max:        10 * time.Second,
		NumRetries: 3,
	}

	if scyllaConfig.Username != "" && scyllaConfig.Password != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: scyllaConfig.Username,
			Password: scyllaConfig.Password,
		}
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create scylla session: %w", err)
	}

	client := &ScyllaClient{
		Session: session,
		config:  &scyllaConfig,
		Stmts:   newStatements(),
	}

	util.Info("ScyllaDB client initialized",
		zap.Strings("nodes", scyllaConfig.Nodes),
		zap.String("keyspace", scyllaConfig.Keyspace))

	return client, nil
}

func newStatements() *Statements {
	return &Statements{
		GetPrincipalByEmail: `
        SELECT user_id, email, role, is_active, created_at, updated_at
        FROM principals_by_email WHERE email = ?`,

		GetPrincipalByID: `
        SELECT user_id, email, role, is_active, created_at, updated_at
        FROM principals WHERE user_id = ?`,

		CreateChallenge: `
        INSERT INTO otp_challenges (
            email, created_at, challenge_id, code_hash, code_salt,
            hash_algorithm, pepper_version, expires_at, attempt_count,
            max_attempts, is_used, device_id, source_ip
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,

		// Clustered newest-first; a handful of rows is enough to find
		// the one actionable challenge since creation purges
		// predecessors.
		RecentChallenges: `
        SELECT email, created_at, challenge_id, code_hash, code_salt,
            hash_algorithm, pepper_version, expires_at, attempt_count,
            max_attempts, is_used, device_id, source_ip
        FROM otp_challenges WHERE email = ? LIMIT 10`,

		UpdateAttemptCount: `
        UPDATE otp_challenges SET attempt_count = ?
        WHERE email = ? AND created_at = ? AND challenge_id = ?`,

		MarkChallengeUsed: `
        UPDATE otp_challenges SET is_used = true
        WHERE email = ? AND created_at = ? AND challenge_id = ?`,

		DeleteForEmail: `
        DELETE FROM otp_challenges WHERE email = ?`,

		UpsertSession: `
        INSERT INTO refresh_sessions (
            user_id, device_id, session_id, refresh_token,
            issued_at, last_rotated_at, source_ip
        ) VALUES (?, ?, ?, ?, ?, ?, ?)`,

		GetSession: `
        SELECT user_id, device_id, session_id, refresh_token,
            issued_at, last_rotated_at, source_ip
        FROM refresh_sessions WHERE user_id = ? AND device_id = ?`,

		DeleteSession: `
        DELETE FROM refresh_sessions WHERE user_id = ? AND device_id = ?`,

		ListSessions: `
        SELECT user_id, device_id, session_id, refresh_token,
            issued_at, last_rotated_at, source_ip
        FROM refresh_sessions WHERE user_id = ?`,
	}
}

func (s *ScyllaClient) Close() {
	if s.Session != nil {
		s.Session.Close()
		util.Info("ScyllaDB client closed")
	}
}

func (s *ScyllaClient) Query(stmt string, values ...interface{}) *gocql.Query {
	return s.Session.Query(stmt, values...)
}

func (s *ScyllaClient) Batch(typ gocql.BatchType) *gocql.Batch {
	return s.Session.NewBatch(typ)
}

func (s *ScyllaClient) ExecuteBatch(batch *gocql.Batch) error {
	return s.Session.ExecuteBatch(batch)
}

func (s *ScyllaClient) HealthCheck() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var clusterName string
	err := s.Session.Query(`SELECT cluster_name FROM system.local`).WithContext(ctx).Scan(&clusterName)
	if err != nil {
		return fmt.Errorf("scylla health check failed: %w", err)
	}

	util.Debug("ScyllaDB health check passed", zap.String("cluster_name", clusterName))
	return nil
}

func (s *ScyllaClient) ExecuteWithRetry(query *gocql.Query, maxRetries int) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if err := query.Exec(); err != nil {
			lastErr = err
			if i < maxRetries {
				time.Sleep(time.Duration(i+1) * 100 * time.Millisecond)
				continue
			}
		} else {
			return nil
		}
	}
	return lastErr
}

func (s *ScyllaClient) ScanWithRetry(query *gocql.Query, dest ...interface{}) error {
	var lastErr error
	for i := 0; i < 3; i++ {
		if err := query.Scan(dest...); err != nil {
			lastErr = err
			if err == gocql.ErrNotFound {
				return err
			}
			if i < 2 {
				time.Sleep(time.Duration(i+1) * 100 * time.Millisecond)
				continue
			}
		} else {
			return nil
		}
	}
	return lastErr
}
