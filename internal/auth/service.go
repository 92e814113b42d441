// Package auth passes broker credentials through to the lending backend and
// hands the access token back to the caller.
package auth

import (
	"context"

	brokererrors "ican-broker/internal/common/errors"
	"ican-broker/internal/common/logger"
	"ican-broker/internal/upstream"
)

// UpstreamClient is the unauthenticated verb surface the auth flows need.
type UpstreamClient interface {
	Post(ctx context.Context, path string, body interface{}) (*upstream.Envelope, error)
}

// Credentials is the username/password sign-in input.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// BrokerKey is the key-based broker login input.
type BrokerKey struct {
	BrokerKey string `json:"broker_key"`
}

// Token is the issued access token.
type Token struct {
	AccessToken string `json:"access_token"`
}

type Service struct {
	upstream UpstreamClient
	logger   logger.Logger
}

func NewService(uc UpstreamClient, log logger.Logger) *Service {
	return &Service{
		upstream: uc,
		logger:   log.WithFields(map[string]interface{}{"component": "auth"}),
	}
}

// SignIn exchanges username/password for an access token.
func (s *Service) SignIn(ctx context.Context, creds Credentials) (*Token, error) {
	return s.login(ctx, "/auth/sign-in", creds)
}

// BrokerLogin exchanges the broker key for an access token.
func (s *Service) BrokerLogin(ctx context.Context, key BrokerKey) (*Token, error) {
	return s.login(ctx, "/auth/broker-login", key)
}

func (s *Service) login(ctx context.Context, path string, body interface{}) (*Token, error) {
	env, err := s.upstream.Post(ctx, path, body)
	if err != nil {
		return nil, err
	}

	flag, ok := env.StatusCode.OK()
	if !ok || !flag || !env.HasResult() {
		message := env.Message
		if message == "" {
			message = "Authentication failed"
		}
		return nil, brokererrors.NewUpstreamRejected(0, message)
	}

	var token Token
	if err := env.DecodeResult(&token); err != nil {
		return nil, brokererrors.NewInternal(err)
	}
	return &token, nil
}
