package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jsmooother/ej-development-sub001/internal/auth"
	"github.com/jsmooother/ej-development-sub001/internal/models"
	"github.com/jsmooother/ej-development-sub001/internal/provider"
	apperrors "github.com/jsmooother/ej-development-sub001/pkg/errors"
	"github.com/jsmooother/ej-development-sub001/pkg/logger"
)

// CallbackParams are the query parameters the provider sends to the redirect URI.
type CallbackParams struct {
	Code             string
	State            string
	Error            string
	ErrorReason      string
	ErrorDescription string
}

// AuthorizationResult is the typed outcome of an authorization callback. Kind is
// nil on success and one of the authorization sentinels otherwise.
type AuthorizationResult struct {
	Kind       *apperrors.AppError
	Message    string
	Diagnostic string
	Username   string
	ReturnPath string
}

// Connected reports whether the flow stored a usable credential.
func (r AuthorizationResult) Connected() bool {
	return r.Kind == nil
}

// ConnectionOptions configures the authorization flow.
type ConnectionOptions struct {
	RedirectURI  string
	RequireState bool
}

// ConnectionService runs the consent flow: code, short-lived token, long-lived
// token, profile, then a single credential write. Any failure leaves the stored
// credential as it was.
type ConnectionService struct {
	exchanger provider.OAuthExchanger
	creds     *CredentialStore
	syncs     *SyncService
	signer    *auth.StateSigner
	opts      ConnectionOptions
	now       func() time.Time
	log       *zap.Logger
}

// NewConnectionService constructs a ConnectionService. signer may be nil, in which
// case state values are neither issued nor checked.
func NewConnectionService(exchanger provider.OAuthExchanger, creds *CredentialStore, syncs *SyncService, signer *auth.StateSigner, opts ConnectionOptions) (*ConnectionService, error) {
	switch {
	case exchanger == nil:
		return nil, errors.New("connection service: provider client is required")
	case creds == nil:
		return nil, errors.New("connection service: credential store is required")
	case syncs == nil:
		return nil, errors.New("connection service: sync service is required")
	case opts.RequireState && signer == nil:
		return nil, errors.New("connection service: state signer is required when state is enforced")
	}
	return &ConnectionService{
		exchanger: exchanger,
		creds:     creds,
		syncs:     syncs,
		signer:    signer,
		opts:      opts,
		now:       time.Now,
		log:       logger.WithModule("connection"),
	}, nil
}

// Begin returns the provider consent URL.
func (s *ConnectionService) Begin(returnPath string) (string, error) {
	state := ""
	if s.signer != nil {
		issued, err := s.signer.Issue(s.creds.Provider(), returnPath)
		if err != nil {
			return "", apperrors.ErrInternalServer.WithInternal(err)
		}
		state = issued
	}
	return s.exchanger.AuthCodeURL(state), nil
}

// Complete handles the provider callback.
func (s *ConnectionService) Complete(ctx context.Context, params CallbackParams) AuthorizationResult {
	if params.Error != "" || params.ErrorReason != "" {
		message := firstNonBlank(params.ErrorDescription, params.ErrorReason, params.Error)
		s.log.Info("authorization denied",
			zap.String("error", params.Error),
			zap.String("reason", params.ErrorReason),
		)
		return AuthorizationResult{
			Kind:       ErrAuthorizationDenied,
			Message:    message,
			Diagnostic: strings.TrimSpace(params.Error + " " + params.ErrorReason),
		}
	}

	var returnPath string
	if s.signer != nil && (params.State != "" || s.opts.RequireState) {
		claims, err := s.signer.Verify(params.State, s.creds.Provider())
		if err != nil {
			s.log.Warn("rejected authorization callback state", zap.Error(err))
			return s.failure(ErrInvalidState, err, "")
		}
		returnPath = claims.ReturnPath
	}

	code := strings.TrimSpace(params.Code)
	if code == "" {
		return s.failure(ErrCodeExchangeFailed, errors.New("authorization code missing from callback"), "No authorization code was received")
	}

	short, err := s.exchanger.ExchangeCode(ctx, code, s.opts.RedirectURI)
	if err != nil {
		return s.failure(ErrCodeExchangeFailed, err, providerMessage(err))
	}

	long, err := s.exchanger.ExchangeForLongLived(ctx, short.AccessToken)
	if err != nil {
		return s.failure(ErrTokenExchangeFailed, err, providerMessage(err))
	}
	expiresAt := long.ExpiresAt(s.now()).UTC()

	profile, err := s.exchanger.FetchProfile(ctx, long.AccessToken)
	if err != nil {
		return s.failure(ErrTokenExchangeFailed, err, providerMessage(err))
	}

	var saved *models.ProviderCredential
	switched := false
	err = s.syncs.Exclusive(func() error {
		current, err := s.creds.Load(ctx)
		if err != nil {
			return err
		}
		if current != nil && current.ProviderUserID != "" && current.ProviderUserID != profile.UserID {
			// only an explicit disconnect erases the token and releases the account
			if current.IsConnected || current.AccessToken != "" {
				return errAccountMismatch
			}
			switched = true
		}

		cred := &models.ProviderCredential{
			ProviderUserID: profile.UserID,
			Username:       profile.Username,
			AccessToken:    long.AccessToken,
			TokenExpiresAt: &expiresAt,
			IsConnected:    true,
		}
		if current != nil && current.ProviderUserID == profile.UserID {
			cred.LastSync = current.LastSync
		}
		if err := s.creds.Save(ctx, cred); err != nil {
			return err
		}
		if switched {
			// the previous account's feed must not outlive its media rows
			s.syncs.ClearCache(ctx)
		}
		saved = cred
		return nil
	})
	if errors.Is(err, errAccountMismatch) {
		return s.failure(ErrTokenExchangeFailed, err, "A different account is still linked; disconnect it first")
	}
	if err != nil {
		s.log.Error("failed to store credential", zap.Error(err))
		return s.failure(ErrTokenExchangeFailed, err, "The credential could not be stored")
	}

	s.syncs.InvalidateStatus(ctx)
	s.log.Info("media provider connected",
		zap.String("username", saved.Username),
		zap.Bool("account_switched", switched),
		zap.Time("token_expires_at", expiresAt),
	)
	return AuthorizationResult{Username: saved.Username, ReturnPath: returnPath}
}

var errAccountMismatch = errors.New("account mismatch")

func (s *ConnectionService) failure(kind *apperrors.AppError, err error, message string) AuthorizationResult {
	if message == "" {
		message = kind.Message
	}
	diag := diagnostic(err)
	s.log.Warn("authorization flow failed", zap.String("kind", kind.Code), zap.String("diagnostic", diag))
	return AuthorizationResult{Kind: kind, Message: message, Diagnostic: diag}
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
