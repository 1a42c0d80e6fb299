package bridge

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// CredentialIssuer creates client credentials for a freshly registered
// bridge. Satisfied by the token service.
type CredentialIssuer interface {
	IssueCredentials(ctx context.Context, bridgeID string) (clientID, clientSecret string, err error)
}

type Service struct {
	bridges Repository
	creds   CredentialIssuer
	now     func() time.Time
}

func NewService(bridges Repository, creds CredentialIssuer) *Service {
	return &Service{bridges: bridges, creds: creds, now: time.Now}
}

var validRoles = map[string]bool{RoleHIP: true, RoleHIU: true}

func validateCallbackURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("callbackUrl is required")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid callbackUrl: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("callbackUrl scheme must be http or https, got %q", u.Scheme)
	}
	return nil
}

// Register creates a bridge and, when a credential issuer is wired, mints the
// client credentials it will use against the token endpoint. The plaintext
// secret is returned exactly once.
func (s *Service) Register(ctx context.Context, bridgeID, role, callbackURL string, services []string) (*Bridge, string, string, error) {
	if bridgeID == "" {
		return nil, "", "", fmt.Errorf("bridgeId is required")
	}
	if !validRoles[role] {
		return nil, "", "", fmt.Errorf("role must be HIP or HIU, got %q", role)
	}
	if err := validateCallbackURL(callbackURL); err != nil {
		return nil, "", "", err
	}

	b := &Bridge{
		BridgeID:    bridgeID,
		Role:        role,
		CallbackURL: callbackURL,
		Services:    services,
		Status:      StatusActive,
		CreatedAt:   s.now(),
		UpdatedAt:   s.now(),
	}
	if err := s.bridges.Create(ctx, b); err != nil {
		return nil, "", "", err
	}

	var clientID, clientSecret string
	if s.creds != nil {
		var err error
		clientID, clientSecret, err = s.creds.IssueCredentials(ctx, bridgeID)
		if err != nil {
			return nil, "", "", fmt.Errorf("issue bridge credentials: %w", err)
		}
	}
	return b, clientID, clientSecret, nil
}

// UpdateCallback replaces the callback URL of an existing bridge.
func (s *Service) UpdateCallback(ctx context.Context, bridgeID, newURL string) (*Bridge, error) {
	if err := validateCallbackURL(newURL); err != nil {
		return nil, err
	}
	b, err := s.bridges.Get(ctx, bridgeID)
	if err != nil {
		return nil, err
	}
	b.CallbackURL = newURL
	b.UpdatedAt = s.now()
	if err := s.bridges.Update(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// Resolve returns the bridge regardless of status.
func (s *Service) Resolve(ctx context.Context, bridgeID string) (*Bridge, error) {
	return s.bridges.Get(ctx, bridgeID)
}

// ResolveActive returns the bridge only when it is ACTIVE; suspended bridges
// must not receive protocol traffic.
func (s *Service) ResolveActive(ctx context.Context, bridgeID string) (*Bridge, error) {
	b, err := s.bridges.Get(ctx, bridgeID)
	if err != nil {
		return nil, err
	}
	if b.Status != StatusActive {
		return nil, ErrBridgeSuspended
	}
	return b, nil
}

// Suspend soft-disables a bridge. Registration data is retained.
func (s *Service) Suspend(ctx context.Context, bridgeID string) (*Bridge, error) {
	return s.setStatus(ctx, bridgeID, StatusSuspended)
}

// Resume reactivates a suspended bridge.
func (s *Service) Resume(ctx context.Context, bridgeID string) (*Bridge, error) {
	return s.setStatus(ctx, bridgeID, StatusActive)
}

func (s *Service) setStatus(ctx context.Context, bridgeID, status string) (*Bridge, error) {
	b, err := s.bridges.Get(ctx, bridgeID)
	if err != nil {
		return nil, err
	}
	b.Status = status
	b.UpdatedAt = s.now()
	if err := s.bridges.Update(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// List returns registered bridges with pagination.
func (s *Service) List(ctx context.Context, limit, offset int) ([]*Bridge, int, error) {
	return s.bridges.List(ctx, limit, offset)
}
