package authz

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/energyos/espi-authz/internal/common/config"
	"github.com/energyos/espi-authz/internal/common/errorx"
	"github.com/energyos/espi-authz/internal/espi/scope"
	"github.com/energyos/espi-authz/internal/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// stateTokenPattern matches the URL-safe base64 alphabet; 32 random bytes
// encode to 43 characters, the minimum accepted here keeps room for other
// issuers while still guaranteeing 128 bits of entropy.
var stateTokenPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{22,128}$`)

// Service is the authorization lifecycle state machine. It owns every
// status transition of an Authorization record; the stores and the
// exchanger are injected, never reached through globals.
type Service struct {
	store     storage.Store
	exchanger Exchanger
	cfg       config.AuthzConfig
	baseURL   string
	authzURL  string // data custodian authorization endpoint
	logger    *zap.Logger

	wg sync.WaitGroup
}

// NewService creates the state machine with its collaborators.
func NewService(logger *zap.Logger, store storage.Store, exchanger Exchanger, cfg config.AuthzConfig, baseURL, authorizationEndpoint string) *Service {
	return &Service{
		store:     store,
		exchanger: exchanger,
		cfg:       cfg,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		authzURL:  authorizationEndpoint,
		logger:    logger.Named("authz"),
	}
}

// Wait blocks until all in-flight token exchanges have resolved. Used on
// shutdown so no record is left resting in CodeReceived.
func (s *Service) Wait() {
	s.wg.Wait()
}

// RedirectURI is the callback URL registered with the data custodian.
func (s *Service) RedirectURI() string {
	return s.baseURL + s.cfg.CallbackPath
}

// BeginAuthorization validates the requested scope, persists a Created
// record holding a fresh single-use state token and returns the redirect
// target for the customer's user agent. Nothing is written when validation
// fails.
func (s *Service) BeginAuthorization(ctx context.Context, client *storage.RegisteredClient, customerID, requestedScope string) (*BeginResult, error) {
	if customerID == "" {
		return nil, errorx.ErrValidation.WithDescription("retail customer id is required")
	}
	canonicalScope, err := scope.Canonicalize(requestedScope)
	if err != nil {
		return nil, err
	}
	granted, err := scope.Decide(canonicalScope, client.Scopes)
	if err != nil {
		return nil, err
	}

	state, err := newStateToken()
	if err != nil {
		return nil, err
	}

	authz := &storage.Authorization{
		ID:               uuid.NewString(),
		State:            state,
		Status:           storage.StatusCreated,
		RetailCustomerID: customerID,
		ClientID:         client.ClientID,
	}
	if err := s.store.Create(ctx, authz); err != nil {
		return nil, err
	}

	redirect := s.buildAuthorizationRedirect(client, strings.Join(granted, " "), state)
	s.logger.Info("authorization started",
		zap.String("authorization_id", authz.ID),
		zap.String("client_id", client.ClientID),
		zap.String("retail_customer_id", customerID))

	return &BeginResult{
		AuthorizationID: authz.ID,
		State:           state,
		RedirectURL:     redirect,
	}, nil
}

// HandleCallback consumes the state token and advances the record: Denied
// when the data custodian reported an error, CodeReceived plus an async
// token exchange otherwise. Malformed input is rejected before the token is
// consumed.
func (s *Service) HandleCallback(ctx context.Context, state, code, errCode, errDescription, errURI string) (*storage.Authorization, error) {
	if !stateTokenPattern.MatchString(state) {
		return nil, errorx.ErrValidation.WithDescription("malformed state token")
	}
	if errCode == "" && code == "" {
		return nil, errorx.ErrValidation.WithDescription("callback carries neither code nor error")
	}

	authz, err := s.store.ConsumeState(ctx, state)
	if err != nil {
		return nil, err
	}

	// Lazy expiry: a record that outlived the Created TTL is failed rather
	// than continued, whether or not the sweep already ran.
	if s.cfg.CreatedTTL > 0 && time.Since(authz.CreatedAt) > s.cfg.CreatedTTL {
		authz.Status = storage.StatusErrored
		authz.ErrorCode = "authorization_expired"
		authz.ErrorDescription = "authorization request expired before the callback arrived"
		err := s.store.UpdateIfStatus(ctx, authz, storage.StatusCreated)
		if err != nil && !errors.Is(err, errorx.ErrConflict) {
			return nil, err
		}
		return nil, errorx.ErrNotFound.WithDescription("authorization expired")
	}

	if errCode != "" {
		authz.Status = storage.StatusDenied
		authz.ErrorCode = errCode
		authz.ErrorDescription = errDescription
		authz.ErrorURI = errURI
		if err := s.store.UpdateIfStatus(ctx, authz, storage.StatusCreated); err != nil {
			if errors.Is(err, errorx.ErrConflict) {
				return nil, errorx.ErrNotFound.WithDescription("authorization expired")
			}
			return nil, err
		}
		s.logger.Info("authorization denied",
			zap.String("authorization_id", authz.ID),
			zap.String("error", errCode))
		return authz, nil
	}

	authz.Status = storage.StatusCodeReceived
	authz.Code = code
	authz.GrantType = "authorization_code"
	if err := s.store.UpdateIfStatus(ctx, authz, storage.StatusCreated); err != nil {
		if errors.Is(err, errorx.ErrConflict) {
			return nil, errorx.ErrNotFound.WithDescription("authorization expired")
		}
		return nil, err
	}

	s.startExchange(authz.ID, code)
	return authz, nil
}

// startExchange runs the token exchange off the callback goroutine, bounded
// by the configured timeout so CodeReceived is never a resting state.
func (s *Service) startExchange(authorizationID, code string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ExchangeTimeout)
		defer cancel()
		s.ExchangeAndComplete(ctx, authorizationID, code)
	}()
}

// ExchangeAndComplete performs the outbound exchange for a CodeReceived
// record and finalizes it. Upstream failures are absorbed into the record's
// terminal status, never returned to the caller's caller.
func (s *Service) ExchangeAndComplete(ctx context.Context, authorizationID, code string) {
	authz, found, err := s.store.Get(ctx, authorizationID)
	if err != nil || !found {
		s.logger.Error("authorization disappeared before exchange",
			zap.String("authorization_id", authorizationID), zap.Error(err))
		return
	}

	client, found, err := s.store.FindByClientID(ctx, authz.ClientID)
	if err != nil || !found {
		s.failExchange(ctx, authz, errorx.ErrNotFound.WithDescription("client %s not registered", authz.ClientID))
		return
	}

	token, err := s.exchanger.Exchange(ctx, client, code, s.RedirectURI())
	if err := s.CompleteTokenExchange(ctx, authorizationID, token, err); err != nil {
		s.logger.Error("failed to finalize token exchange",
			zap.String("authorization_id", authorizationID), zap.Error(err))
	}
}

// CompleteTokenExchange applies the exchange outcome to a CodeReceived
// record: Active with the granted scope on success, Errored with the
// captured failure otherwise.
func (s *Service) CompleteTokenExchange(ctx context.Context, authorizationID string, token *TokenResponse, exchangeErr error) error {
	authz, found, err := s.store.Get(ctx, authorizationID)
	if err != nil {
		return err
	}
	if !found {
		return errorx.ErrNotFound.WithDescription("authorization %s", authorizationID)
	}
	if authz.Status != storage.StatusCodeReceived {
		return errorx.ErrInvalidTransition.WithDescription("cannot complete exchange from %s", authz.Status)
	}

	if exchangeErr != nil || token == nil || token.AccessToken == "" {
		return s.failExchange(ctx, authz, exchangeErr)
	}

	grantedScope := token.Scope
	if client, found, err := s.store.FindByClientID(ctx, authz.ClientID); err == nil && found && token.Scope != "" {
		if granted, err := scope.GrantedString(token.Scope, client.Scopes); err == nil {
			grantedScope = granted
		}
	}

	authz.Status = storage.StatusActive
	authz.AccessToken = token.AccessToken
	authz.RefreshToken = token.RefreshToken
	authz.TokenType = token.TokenType
	authz.ExpiresIn = token.ExpiresIn
	authz.Scope = grantedScope
	authz.ResourceURI = token.ResourceURI
	authz.AuthorizationURI = token.AuthorizationURI
	if err := s.store.UpdateIfStatus(ctx, authz, storage.StatusCodeReceived); err != nil {
		return err
	}

	s.logger.Info("authorization active",
		zap.String("authorization_id", authz.ID),
		zap.String("scope", grantedScope))
	return nil
}

func (s *Service) failExchange(ctx context.Context, authz *storage.Authorization, cause error) error {
	authz.Status = storage.StatusErrored
	authz.ErrorCode = "server_error"
	if cause != nil {
		authz.ErrorDescription = cause.Error()
	} else {
		authz.ErrorDescription = "token response missing access_token"
	}
	if err := s.store.UpdateIfStatus(ctx, authz, storage.StatusCodeReceived); err != nil {
		return err
	}
	s.logger.Warn("authorization errored",
		zap.String("authorization_id", authz.ID),
		zap.String("reason", authz.ErrorDescription))
	return nil
}

// Revoke transitions an Active authorization to Revoked. Any other source
// status is an invalid transition; the record is never deleted.
func (s *Service) Revoke(ctx context.Context, authorizationID, reason string) error {
	authz, found, err := s.store.Get(ctx, authorizationID)
	if err != nil {
		return err
	}
	if !found {
		return errorx.ErrNotFound.WithDescription("authorization %s", authorizationID)
	}
	if authz.Status != storage.StatusActive {
		return errorx.ErrInvalidTransition.WithDescription("cannot revoke from %s", authz.Status)
	}

	authz.Status = storage.StatusRevoked
	if err := s.store.UpdateIfStatus(ctx, authz, storage.StatusActive); err != nil {
		return err
	}

	s.logger.Info("authorization revoked",
		zap.String("authorization_id", authorizationID),
		zap.String("reason", reason))
	return nil
}

func (s *Service) buildAuthorizationRedirect(client *storage.RegisteredClient, grantedScope, state string) string {
	query := url.Values{}
	query.Set("client_id", client.ClientID)
	query.Set("redirect_uri", s.RedirectURI())
	query.Set("response_type", "code")
	if grantedScope != "" {
		query.Set("scope", grantedScope)
	}
	query.Set("state", state)
	return s.authzURL + "?" + query.Encode()
}

// newStateToken returns 32 bytes of entropy in URL-safe encoding.
func newStateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
