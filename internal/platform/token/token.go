// Package token issues and verifies the bearer tokens bridges use on every
// gateway call. Bridges receive client credentials at registration time and
// exchange them for short-lived HS256 access tokens.
package token

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrUnknownClient      = errors.New("unknown client")
	ErrInvalidCredentials = errors.New("invalid client credentials")
	ErrInvalidToken       = errors.New("invalid token")
)

// Client is a registered bridge client. Only the SHA-256 hash of the secret
// is kept.
type Client struct {
	ClientID   string    `json:"client_id"`
	BridgeID   string    `json:"bridge_id"`
	SecretHash string    `json:"-"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

// AccessToken is the token response returned to bridge clients.
type AccessToken struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// Claims are the verified claims the middleware exposes to handlers.
type Claims struct {
	ClientID string
	BridgeID string
}

// ClientStore provides persistence for bridge client credentials.
type ClientStore interface {
	CreateClient(ctx context.Context, client *Client) error
	GetClient(ctx context.Context, clientID string) (*Client, error)
}

// InMemoryClientStore is a thread-safe in-memory implementation of
// ClientStore, suitable for development and testing.
type InMemoryClientStore struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

func NewInMemoryClientStore() *InMemoryClientStore {
	return &InMemoryClientStore{clients: make(map[string]*Client)}
}

func (s *InMemoryClientStore) CreateClient(_ context.Context, client *Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.clients[client.ClientID]; exists {
		return fmt.Errorf("client %q already registered", client.ClientID)
	}
	s.clients[client.ClientID] = client
	return nil
}

func (s *InMemoryClientStore) GetClient(_ context.Context, clientID string) (*Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	client, ok := s.clients[clientID]
	if !ok {
		return nil, ErrUnknownClient
	}
	return client, nil
}

// Service issues and verifies bridge access tokens.
type Service struct {
	store      ClientStore
	signingKey []byte
	issuer     string
	ttl        time.Duration
	now        func() time.Time
}

func NewService(store ClientStore, signingKey []byte, issuer string, ttl time.Duration) *Service {
	return &Service{
		store:      store,
		signingKey: signingKey,
		issuer:     issuer,
		ttl:        ttl,
		now:        time.Now,
	}
}

// SetClock overrides the service clock. Tests use this to control expiry.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// RegisterClient creates credentials for a bridge and returns the plaintext
// secret exactly once. Subsequent lookups only see the hash.
func (s *Service) RegisterClient(ctx context.Context, bridgeID string) (*Client, string, error) {
	if bridgeID == "" {
		return nil, "", fmt.Errorf("bridge id is required")
	}
	secret, err := generateSecret()
	if err != nil {
		return nil, "", fmt.Errorf("generate client secret: %w", err)
	}
	client := &Client{
		ClientID:   uuid.New().String(),
		BridgeID:   bridgeID,
		SecretHash: hashSecret(secret),
		Status:     "active",
		CreatedAt:  s.now(),
	}
	if err := s.store.CreateClient(ctx, client); err != nil {
		return nil, "", fmt.Errorf("registering bridge client: %w", err)
	}
	return client, secret, nil
}

// Issue exchanges client credentials for a signed access token.
func (s *Service) Issue(ctx context.Context, clientID, clientSecret string) (*AccessToken, error) {
	client, err := s.store.GetClient(ctx, clientID)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	if client.Status != "active" {
		return nil, ErrInvalidCredentials
	}
	if subtle.ConstantTimeCompare([]byte(client.SecretHash), []byte(hashSecret(clientSecret))) != 1 {
		return nil, ErrInvalidCredentials
	}

	now := s.now()
	claims := jwt.MapClaims{
		"iss":       s.issuer,
		"sub":       client.ClientID,
		"bridge_id": client.BridgeID,
		"jti":       uuid.New().String(),
		"iat":       now.Unix(),
		"exp":       now.Add(s.ttl).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
	if err != nil {
		return nil, fmt.Errorf("signing access token: %w", err)
	}

	return &AccessToken{
		AccessToken: signed,
		TokenType:   "Bearer",
		ExpiresIn:   int(s.ttl.Seconds()),
	}, nil
}

// Verify parses and validates a bearer token and returns its claims.
func (s *Service) Verify(tokenString string) (*Claims, error) {
	parsed, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %s", t.Method.Alg())
		}
		return s.signingKey, nil
	},
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return s.now() }),
	)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	sub, _ := claims["sub"].(string)
	bridgeID, _ := claims["bridge_id"].(string)
	if sub == "" || bridgeID == "" {
		return nil, ErrInvalidToken
	}
	return &Claims{ClientID: sub, BridgeID: bridgeID}, nil
}

func generateSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func hashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}
