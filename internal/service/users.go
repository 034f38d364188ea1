package service

import (
	"Dyvine/internal/apperr"
	"Dyvine/model"
	"Dyvine/utils"
	"context"
	"strings"
)

// GetUserProfile returns the profile of userID, served from cache when
// possible.
func (s *Service) GetUserProfile(ctx context.Context, userID string) (model.UserProfile, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return model.UserProfile{}, apperr.New(apperr.Validation, "user id is required")
	}
	if cached, ok := utils.GetUserProfileFromCache(ctx, s.cache, userID); ok {
		return *cached, nil
	}
	profile, err := s.source.GetUser(ctx, userID)
	if err != nil {
		return model.UserProfile{}, err
	}
	if err := utils.SetUserProfileToCache(ctx, s.cache, &profile, s.profileTTL); err != nil {
		s.logger.Warn("cache user profile failed", "user_id", userID, "err", err)
	}
	return profile, nil
}
