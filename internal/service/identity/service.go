package identity

import (
	"context"
	"strings"

	"github.com/open-builders/feedback-relay/internal/common/logger"
	domain "github.com/open-builders/feedback-relay/internal/domain/profile"
)

// ProfileCache is the optional read-through cache in front of the profile repository.
// Set must keep whichever snapshot has the later UpdatedAt.
type ProfileCache interface {
	Set(ctx context.Context, p *domain.Profile) error
	GetByID(ctx context.Context, id int64) (*domain.Profile, error)
	Invalidate(ctx context.Context, id int64) error
}

// Service is the identity store: profile snapshots and the ban list.
// Ban state is always read from the repository, never from the cache.
type Service struct {
	profiles domain.Repository
	bans     domain.BanRepository
	cache    ProfileCache
}

// NewService wires the store. cache may be nil.
func NewService(profiles domain.Repository, bans domain.BanRepository, cache ProfileCache) *Service {
	return &Service{profiles: profiles, bans: bans, cache: cache}
}

// UpsertProfile records the latest display name and handle of userID.
func (s *Service) UpsertProfile(ctx context.Context, userID int64, displayName, handle string) error {
	p := &domain.Profile{
		ID:          userID,
		DisplayName: strings.TrimSpace(displayName),
		Handle:      strings.TrimPrefix(strings.TrimSpace(handle), "@"),
	}
	stored, err := s.profiles.Upsert(ctx, p)
	if err != nil {
		return err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, stored); err != nil {
			log := logger.Ctx(ctx).With().Int64("user_id", userID).Logger()
			log.Warn().Err(err).Msg("profile cache write failed")
			// An entry that cannot be refreshed must not outlive the write.
			if err := s.cache.Invalidate(ctx, userID); err != nil {
				log.Warn().Err(err).Msg("profile cache invalidate failed")
			}
		}
	}
	return nil
}

// GetProfile returns the stored profile or nil when the user is unknown.
// Banned users keep their profile.
func (s *Service) GetProfile(ctx context.Context, userID int64) (*domain.Profile, error) {
	if s.cache != nil {
		if p, err := s.cache.GetByID(ctx, userID); err == nil && p != nil {
			return p, nil
		}
	}
	p, err := s.profiles.GetByID(ctx, userID)
	if err != nil || p == nil {
		return p, err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, p); err != nil {
			logger.Ctx(ctx).Debug().Err(err).Int64("user_id", userID).Msg("profile cache fill failed")
		}
	}
	return p, nil
}

func (s *Service) Ban(ctx context.Context, userID int64) error {
	return s.bans.Ban(ctx, userID)
}

func (s *Service) Unban(ctx context.Context, userID int64) error {
	return s.bans.Unban(ctx, userID)
}

func (s *Service) IsBanned(ctx context.Context, userID int64) (bool, error) {
	return s.bans.IsBanned(ctx, userID)
}

// BanRecord returns when userID was banned, or nil when the user is not banned.
func (s *Service) BanRecord(ctx context.Context, userID int64) (*domain.BanRecord, error) {
	return s.bans.Get(ctx, userID)
}
