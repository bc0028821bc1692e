package querycache

import (
	"context"
	"errors"
	"io"

	"github.com/MarcoPoloResearchLab/huddle/internal/social"
)

var errMissingProfileAPI = errors.New("querycache: profile api is required")

// ProfileAPI is the remote surface the profile updater drives.
type ProfileAPI interface {
	UpdateProfile(ctx context.Context, displayName, bio string) (social.UserView, error)
	UploadAvatar(ctx context.Context, filename string, content io.Reader) (string, error)
}

// ProfileUpdate carries the edited fields and an optional new avatar.
type ProfileUpdate struct {
	DisplayName  string
	Bio          string
	AvatarName   string
	AvatarReader io.Reader
}

// ProfileUpdateResult reports each step separately. AvatarErr is set when the fields were saved
// but the avatar upload failed.
type ProfileUpdateResult struct {
	User      social.UserView
	AvatarURL string
	AvatarErr error
}

// ProfileUpdater saves profile edits and patches the new profile into every cached copy.
type ProfileUpdater struct {
	api     ProfileAPI
	manager *Manager
}

func NewProfileUpdater(api ProfileAPI, manager *Manager) (*ProfileUpdater, error) {
	if api == nil {
		return nil, errMissingProfileAPI
	}
	if manager == nil {
		manager = NewManager()
	}
	return &ProfileUpdater{api: api, manager: manager}, nil
}

// Update saves the fields first and the avatar second. A failed field update returns its error
// with the cache untouched; a failed avatar upload keeps the saved fields.
func (p *ProfileUpdater) Update(ctx context.Context, update ProfileUpdate) (ProfileUpdateResult, error) {
	user, err := p.api.UpdateProfile(ctx, update.DisplayName, update.Bio)
	if err != nil {
		return ProfileUpdateResult{}, err
	}
	p.manager.Propagate(UserRef(user.ID), user)

	result := ProfileUpdateResult{User: user, AvatarURL: user.AvatarURL}
	if update.AvatarReader == nil {
		return result, nil
	}

	avatarURL, err := p.api.UploadAvatar(ctx, update.AvatarName, update.AvatarReader)
	if err != nil {
		result.AvatarErr = err
		return result, nil
	}
	result.User.AvatarURL = avatarURL
	result.AvatarURL = avatarURL
	p.manager.Propagate(UserRef(user.ID), result.User)
	return result, nil
}
