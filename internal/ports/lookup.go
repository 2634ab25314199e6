package ports

import (
	"context"

	"github.com/gitopia/gitopia-discord-bot/internal/domain"
)

// Lookup fetches user, DAO and repository metadata from the gitopia API.
type Lookup interface {
	GetUser(ctx context.Context, address string) (domain.User, error)
	GetDAO(ctx context.Context, address string) (domain.DAO, error)
	GetRepository(ctx context.Context, id string) (domain.Repository, error)
}

// Resolver turns owner references into display names.
type Resolver interface {
	GetUser(ctx context.Context, address string) (domain.User, error)
	ResolveAddress(ctx context.Context, owner domain.Owner) (string, error)
	GetRepositoryOwnerAndName(ctx context.Context, repositoryID string) (domain.RepositoryRef, error)
}
