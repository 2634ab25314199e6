package mapping

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gitopia/gitopia-discord-bot/internal/domain"
	"github.com/gitopia/gitopia-discord-bot/internal/ports"
)

// Result is a built notification plus the owner name subscriptions match on.
// MatchName is empty when the event carries no repository owner.
type Result struct {
	Notification *domain.Notification
	MatchName    string
}

// Mapper fetches what an action's rule needs and then formats it.
type Mapper struct {
	resolver  ports.Resolver
	formatter *Formatter
	timeout   time.Duration
}

// NewMapper returns a Mapper. timeout bounds all lookups of a single event;
// zero means no bound beyond the resolver's own.
func NewMapper(resolver ports.Resolver, formatter *Formatter, timeout time.Duration) *Mapper {
	return &Mapper{resolver: resolver, formatter: formatter, timeout: timeout}
}

// Map builds the notification for one event. Unknown actions return
// ErrUnhandledAction; lookup, parse and state errors abandon the event.
func (m *Mapper) Map(ctx context.Context, attrs domain.EventAttributes) (Result, error) {
	action := attrs.Action()
	r, ok := rules[action]
	if !ok {
		return Result{}, fmt.Errorf("%w %q", domain.ErrUnhandledAction, action)
	}

	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	l, matchName, err := m.fetch(ctx, r.needs, attrs)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", action, err)
	}
	n, err := m.formatter.format(r, attrs, l)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", action, err)
	}
	return Result{Notification: n, MatchName: matchName}, nil
}

func (m *Mapper) fetch(ctx context.Context, needs requirement, attrs domain.EventAttributes) (Lookups, string, error) {
	var (
		l   Lookups
		err error
	)

	if needs&needCreator != 0 {
		creator, ok := attrs[domain.AttrCreator]
		if !ok {
			return l, "", fmt.Errorf("%w: %s", domain.ErrMissingAttribute, domain.AttrCreator)
		}
		if l.Creator, err = m.resolver.GetUser(ctx, creator); err != nil {
			return l, "", fmt.Errorf("get creator: %w", err)
		}
	}

	owner, hasOwner := attrs.Owner()
	switch {
	case hasOwner:
		if l.OwnerName, err = m.resolver.ResolveAddress(ctx, owner); err != nil {
			return l, "", fmt.Errorf("resolve repository owner: %w", err)
		}
	case needs&needOwner != 0:
		return l, "", fmt.Errorf("%w: %s, %s", domain.ErrMissingAttribute,
			domain.AttrRepositoryOwnerID, domain.AttrRepositoryOwnerType)
	}

	if needs&needRepository != 0 {
		if l.Repository, err = m.repository(ctx, attrs, domain.AttrRepositoryID); err != nil {
			return l, "", err
		}
	}
	if needs&needParentRepository != 0 {
		if l.Repository, err = m.repository(ctx, attrs, domain.AttrParentRepositoryID); err != nil {
			return l, "", err
		}
	}
	if needs&needAssignees != 0 {
		if l.Assignees, err = m.users(ctx, attrs, domain.AttrAssignees); err != nil {
			return l, "", err
		}
	}
	if needs&needReviewers != 0 {
		if l.Reviewers, err = m.users(ctx, attrs, domain.AttrPullRequestReviewers); err != nil {
			return l, "", err
		}
	}
	return l, l.OwnerName, nil
}

func (m *Mapper) repository(ctx context.Context, attrs domain.EventAttributes, key string) (domain.RepositoryRef, error) {
	id, ok := attrs[key]
	if !ok {
		return domain.RepositoryRef{}, fmt.Errorf("%w: %s", domain.ErrMissingAttribute, key)
	}
	ref, err := m.resolver.GetRepositoryOwnerAndName(ctx, id)
	if err != nil {
		return domain.RepositoryRef{}, fmt.Errorf("get repository details: %w", err)
	}
	return ref, nil
}

// users resolves a JSON array of addresses, in order.
func (m *Mapper) users(ctx context.Context, attrs domain.EventAttributes, key string) ([]domain.User, error) {
	raw, ok := attrs[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrMissingAttribute, key)
	}
	var addresses []string
	if err := json.Unmarshal([]byte(raw), &addresses); err != nil {
		return nil, fmt.Errorf("parse %s: %w", key, err)
	}
	users := make([]domain.User, 0, len(addresses))
	for _, addr := range addresses {
		u, err := m.resolver.GetUser(ctx, addr)
		if err != nil {
			return nil, fmt.Errorf("get user %s: %w", addr, err)
		}
		users = append(users, u)
	}
	return users, nil
}
