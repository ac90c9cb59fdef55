package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/courierdesk/gateway/internal/config"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// GoogleService handles Google OAuth2 authentication
type GoogleService struct {
	config       *oauth2.Config
	userInfoURL  string
	stateManager *StateManager
}

// NewGoogleService creates a new Google OAuth service
func NewGoogleService(cfg config.GoogleConfig, stateManager *StateManager) *GoogleService {
	oauthConfig := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes: []string{
			"https://www.googleapis.com/auth/userinfo.email",
			"https://www.googleapis.com/auth/userinfo.profile",
		},
		Endpoint: google.Endpoint,
	}

	return &GoogleService{
		config:       oauthConfig,
		userInfoURL:  googleUserInfoURL,
		stateManager: stateManager,
	}
}

// AuthURL stores a fresh state with returnPath and returns the consent URL
func (gs *GoogleService) AuthURL(ctx context.Context, returnPath string) (string, error) {
	state, err := gs.stateManager.GenerateState()
	if err != nil {
		return "", err
	}

	if err := gs.stateManager.SaveState(ctx, state, returnPath); err != nil {
		return "", err
	}

	return gs.config.AuthCodeURL(state, oauth2.SetAuthURLParam("prompt", "select_account")), nil
}

// HandleCallback consumes the state, exchanges the code and returns the
// Google identity along with the stored return path
func (gs *GoogleService) HandleCallback(ctx context.Context, code, state string) (*UserInfo, string, error) {
	returnPath, err := gs.stateManager.ConsumeState(ctx, state)
	if err != nil {
		return nil, "", err
	}

	tok, err := gs.config.Exchange(ctx, code)
	if err != nil {
		return nil, "", fmt.Errorf("failed to exchange code: %w", err)
	}

	info, err := gs.fetchUserInfo(ctx, tok)
	if err != nil {
		return nil, "", err
	}

	return info, returnPath, nil
}

func (gs *GoogleService) fetchUserInfo(ctx context.Context, tok *oauth2.Token) (*UserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, gs.userInfoURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := gs.config.Client(ctx, tok).Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("google userinfo returned status %d: %s", resp.StatusCode, string(body))
	}

	var googleUser struct {
		ID            string `json:"id"`
		Email         string `json:"email"`
		VerifiedEmail bool   `json:"verified_email"`
		Name          string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&googleUser); err != nil {
		return nil, fmt.Errorf("failed to decode user info: %w", err)
	}

	return &UserInfo{
		ProviderUserID: googleUser.ID,
		Email:          googleUser.Email,
		Name:           googleUser.Name,
		EmailVerified:  googleUser.VerifiedEmail,
	}, nil
}
