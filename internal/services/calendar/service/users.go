package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/mirakulix/play-together-api/internal/platform/errors"
	"github.com/mirakulix/play-together-api/internal/services/calendar/domain"
)

const maxUTCOffset = 14 * time.Hour

// UpdateProfileInput carries the profile fields to change. Nil fields are
// left unchanged.
type UpdateProfileInput struct {
	DisplayName    *string
	Email          *string
	AvatarFilename *string
	UTCOffset      *time.Duration
	DeviceToken    *string
}

// UpdateProfile edits the caller's own profile and announces the change to
// the caller's related users.
func (s *Service) UpdateProfile(ctx context.Context, callerID string, in UpdateProfileInput) (domain.User, error) {
	user, err := s.requireUser(ctx, callerID)
	if err != nil {
		return domain.User{}, err
	}

	var fields domain.FieldSet

	if in.DisplayName != nil {
		name := strings.TrimSpace(*in.DisplayName)
		if len(name) < 2 {
			return domain.User{}, apperrors.New(apperrors.CodeUserDisplayNameTooShort, "display name is too short")
		}
		if name != user.DisplayName {
			user.DisplayName = name
			fields = fields.Add(domain.FieldProfile)
		}
	}
	if in.Email != nil {
		email := strings.TrimSpace(*in.Email)
		if email != "" && !strings.Contains(email, "@") {
			return domain.User{}, apperrors.New(apperrors.CodeUserEmailInvalid, "email address is invalid")
		}
		if email != user.Email {
			user.Email = email
			fields = fields.Add(domain.FieldProfile)
		}
	}
	if in.AvatarFilename != nil && *in.AvatarFilename != user.AvatarFilename {
		user.AvatarFilename = *in.AvatarFilename
		fields = fields.Add(domain.FieldProfile)
	}
	if in.UTCOffset != nil {
		offset := *in.UTCOffset
		if offset < -maxUTCOffset || offset > maxUTCOffset {
			return domain.User{}, apperrors.New(apperrors.CodeUserOffsetOutOfRange, "utc offset is out of range")
		}
		if offset != user.UTCOffset {
			user.UTCOffset = offset
			fields = fields.Add(domain.FieldProfile)
		}
	}
	if in.DeviceToken != nil && *in.DeviceToken != user.DeviceToken {
		user.DeviceToken = *in.DeviceToken
		fields = fields.Add(domain.FieldProfile)
	}

	if len(fields) == 0 {
		return user, nil
	}

	user.UpdatedAt = s.now()
	if err := s.store.PutUser(ctx, user); err != nil {
		return domain.User{}, fmt.Errorf("store user: %w", err)
	}

	friendIDs, err := s.friendIDsOf(ctx, user.UserID)
	if err != nil {
		return domain.User{}, err
	}
	s.bus.Users.Publish(domain.UserChange{
		User:          user,
		Actor:         userRef(user),
		Kind:          domain.ChangeUpdated,
		Fields:        fields,
		FriendsOfUser: friendIDs,
	})
	return user, nil
}
