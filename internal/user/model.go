package user

import "swaft/internal/model"

// Identity is what an OAuth provider tells us about a user.
type Identity struct {
	Provider   string
	ProviderID string
	Email      string
	FullName   string
	AvatarURL  string
}

func (i Identity) toUser() *model.User {
	return &model.User{
		Email:     i.Email,
		FullName:  i.FullName,
		AvatarURL: i.AvatarURL,
	}
}
