package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"swaft/internal/user"

	"golang.org/x/oauth2"
)

// OAuthProvider is one third-party sign-in provider.
type OAuthProvider interface {
	Name() string
	AuthCodeURL(state string) string
	// Identify exchanges the authorization code and returns who signed in.
	Identify(ctx context.Context, code string) (user.Identity, error)
}

var discordEndpoint = oauth2.Endpoint{
	AuthURL:   "https://discord.com/oauth2/authorize",
	TokenURL:  "https://discord.com/api/oauth2/token",
	AuthStyle: oauth2.AuthStyleInParams,
}

const (
	discordUserURL = "https://discord.com/api/users/@me"
	discordCDN     = "https://cdn.discordapp.com"
)

type Discord struct {
	config  *oauth2.Config
	userURL string
}

func NewDiscord(clientID, clientSecret, redirectURL string) *Discord {
	return &Discord{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     discordEndpoint,
			Scopes:       []string{"identify", "email"},
		},
		userURL: discordUserURL,
	}
}

func (d *Discord) Name() string { return "discord" }

func (d *Discord) AuthCodeURL(state string) string {
	return d.config.AuthCodeURL(state)
}

type discordUser struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	GlobalName string `json:"global_name"`
	Avatar     string `json:"avatar"`
	Email      string `json:"email"`
}

func (d *Discord) Identify(ctx context.Context, code string) (user.Identity, error) {
	token, err := d.config.Exchange(ctx, code)
	if err != nil {
		return user.Identity{}, fmt.Errorf("discord: exchange code: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.userURL, nil)
	if err != nil {
		return user.Identity{}, err
	}
	resp, err := d.config.Client(ctx, token).Do(req)
	if err != nil {
		return user.Identity{}, fmt.Errorf("discord: fetch user: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return user.Identity{}, fmt.Errorf("discord: fetch user: unexpected status %d", resp.StatusCode)
	}

	var du discordUser
	if err := json.NewDecoder(resp.Body).Decode(&du); err != nil {
		return user.Identity{}, fmt.Errorf("discord: decode user: %w", err)
	}
	if du.ID == "" {
		return user.Identity{}, fmt.Errorf("discord: user id missing")
	}

	id := user.Identity{
		Provider:   d.Name(),
		ProviderID: du.ID,
		Email:      du.Email,
		FullName:   du.GlobalName,
	}
	if id.FullName == "" {
		id.FullName = du.Username
	}
	if du.Avatar != "" {
		id.AvatarURL = fmt.Sprintf("%s/avatars/%s/%s.png", discordCDN, du.ID, du.Avatar)
	}
	return id, nil
}
