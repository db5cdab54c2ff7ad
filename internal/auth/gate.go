// Package auth implements the identity and access gate: the single
// translator between opaque request credentials and internal
// (tenant, user) identities.
package auth

import (
	"context"

	"go.uber.org/zap"

	"github.com/markdave123-py/memora/internal/apperr"
	"github.com/markdave123-py/memora/internal/core"
	"github.com/markdave123-py/memora/internal/models"
)

// permissiveExternalID names the auto-provisioned development user.
const permissiveExternalID = "local-dev"

type Gate struct {
	store core.ContextStore
	log   *zap.Logger
	// permissive accepts any non-empty credential and resolves it to an
	// auto-provisioned user in defaultTenant. It collapses tenant
	// isolation; only development configurations may turn it on.
	permissive    bool
	defaultTenant string
}

func NewGate(store core.ContextStore, log *zap.Logger, permissive bool, defaultTenant string) *Gate {
	if permissive {
		log.Warn("permissive auth enabled; any non-empty credential maps to a shared development user")
	}
	if defaultTenant == "" {
		defaultTenant = "default"
	}
	return &Gate{store: store, log: log, permissive: permissive, defaultTenant: defaultTenant}
}

// Resolve maps a credential (and an optional claimed user id) to an
// identity. A missing or unknown credential is Unauthorized; a claimed
// user id that disagrees with the resolved one is Forbidden. Resolution
// touches the user's last_active timestamp.
func (g *Gate) Resolve(ctx context.Context, credential string, claimedUserID *int64) (*models.Identity, error) {
	if credential == "" {
		return nil, apperr.New(apperr.Unauthorized, "missing credential")
	}

	id, err := g.store.ResolveCredential(ctx, credential)
	if err != nil {
		if !apperr.Is(err, apperr.NotFound) {
			return nil, err
		}
		if !g.permissive {
			return nil, apperr.New(apperr.Unauthorized, "invalid credential")
		}
		id, err = g.provisionDevUser(ctx)
		if err != nil {
			return nil, err
		}
	}

	if claimedUserID != nil && *claimedUserID != id.UserID {
		return nil, apperr.New(apperr.Forbidden, "credential does not match the claimed user")
	}

	if err := g.store.TouchLastActive(ctx, id.UserID); err != nil {
		return nil, err
	}
	return id, nil
}

func (g *Gate) provisionDevUser(ctx context.Context) (*models.Identity, error) {
	u, err := g.store.CreateOrGetUser(ctx, g.defaultTenant, permissiveExternalID, "")
	if err != nil {
		return nil, err
	}
	g.log.Debug("permissive auth resolved development user",
		zap.Int64("user_id", u.ID),
		zap.String("tenant_id", u.TenantID))
	return &models.Identity{TenantID: u.TenantID, UserID: u.ID}, nil
}
