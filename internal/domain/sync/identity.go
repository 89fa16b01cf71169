package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/ganot/taskdeck/internal/repository"
)

// resolvePersonID returns the person whose tasks are mirrored. A configured
// value wins; otherwise the cached lookup result is used, and only on a cold
// cache is the upstream API asked. The cache write is best effort.
func (s *Service) resolvePersonID(ctx context.Context) (string, error) {
	if s.settings.PersonID != "" {
		return s.settings.PersonID, nil
	}

	if s.cache != nil {
		cached, err := s.cache.Get(ctx, repository.CacheKeyPersonID)
		if err == nil && cached != "" {
			return cached, nil
		}
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return "", fmt.Errorf("reading cached person id: %w", err)
		}
	}

	identity, err := s.source.ResolveIdentity(ctx)
	if err != nil {
		return "", fmt.Errorf("resolving identity: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, repository.CacheKeyPersonID, identity.PersonID); err != nil {
			s.logger.Warn("failed to cache person id", "error", err)
		}
		if identity.OrgID != "" {
			if err := s.cache.Set(ctx, repository.CacheKeyOrgID, identity.OrgID); err != nil {
				s.logger.Warn("failed to cache org id", "error", err)
			}
		}
	}

	return identity.PersonID, nil
}
