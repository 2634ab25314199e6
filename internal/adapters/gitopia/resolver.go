package gitopia

import (
	"context"
	"fmt"

	"github.com/gitopia/gitopia-discord-bot/internal/domain"
	"github.com/gitopia/gitopia-discord-bot/internal/ports"
)

// Resolver maps owner references to display names on top of a Lookup.
type Resolver struct {
	lookup ports.Lookup
}

func NewResolver(lookup ports.Lookup) *Resolver {
	return &Resolver{lookup: lookup}
}

func (r *Resolver) GetUser(ctx context.Context, address string) (domain.User, error) {
	return r.lookup.GetUser(ctx, address)
}

// ResolveAddress returns the DAO name for DAO owners and the username otherwise.
func (r *Resolver) ResolveAddress(ctx context.Context, owner domain.Owner) (string, error) {
	if owner.Type == domain.OwnerTypeDAO {
		dao, err := r.lookup.GetDAO(ctx, owner.ID)
		if err != nil {
			return "", err
		}
		return dao.Name, nil
	}
	user, err := r.lookup.GetUser(ctx, owner.ID)
	if err != nil {
		return "", err
	}
	return user.Username, nil
}

// GetRepositoryOwnerAndName fetches a repository and resolves its owner name.
func (r *Resolver) GetRepositoryOwnerAndName(ctx context.Context, repositoryID string) (domain.RepositoryRef, error) {
	repo, err := r.lookup.GetRepository(ctx, repositoryID)
	if err != nil {
		return domain.RepositoryRef{}, err
	}
	ownerName, err := r.ResolveAddress(ctx, repo.Owner)
	if err != nil {
		return domain.RepositoryRef{}, fmt.Errorf("resolve owner of repository %s: %w", repositoryID, err)
	}
	return domain.RepositoryRef{OwnerName: ownerName, Name: repo.Name}, nil
}

var _ ports.Resolver = (*Resolver)(nil)
var _ ports.Lookup = (*Client)(nil)
