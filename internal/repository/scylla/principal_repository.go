package scylla

import (
	"context"
	"fmt"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"github.com/alam-gir/wafipix-backend/internal/model"
	"github.com/alam-gir/wafipix-backend/internal/util"
)

// PrincipalRepository reads principal rows. Writes belong to the
// provisioning and admin surfaces, not this subsystem.
type PrincipalRepository struct {
	client *ScyllaClient
}

func NewPrincipalRepository(client *ScyllaClient, logger *zap.Logger) *PrincipalRepository {
	return &PrincipalRepository{
		client: client,
	}
}

func (r *PrincipalRepository) GetByEmail(ctx context.Context, email string) (*model.Principal, error) {
	p := &model.Principal{}
	var role string

	query := r.client.Query(r.client.Stmts.GetPrincipalByEmail, email).WithContext(ctx)

	err := r.client.ScanWithRetry(query,
		&p.ID, &p.Email, &role, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, model.ErrPrincipalNotFound
		}
		util.Error("failed to get principal by email", zap.Error(err))
		return nil, fmt.Errorf("failed to get principal by email: %w", err)
	}

	p.Role = model.ParseRole(role)
	return p, nil
}

func (r *PrincipalRepository) GetByID(ctx context.Context, userID string) (*model.Principal, error) {
	p := &model.Principal{}
	var role string

	query := r.client.Query(r.client.Stmts.GetPrincipalByID, userID).WithContext(ctx)

	err := r.client.ScanWithRetry(query,
		&p.ID, &p.Email, &role, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, model.ErrPrincipalNotFound
		}
		util.Error("failed to get principal by id",
			zap.String("user_id", userID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get principal by id: %w", err)
	}

	p.Role = model.ParseRole(role)
	return p, nil
}

func (r *PrincipalRepository) HealthCheck(ctx context.Context) error {
	return r.client.HealthCheck()
}
