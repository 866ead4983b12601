package services

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/jsmooother/ej-development-sub001/internal/provider"
	apperrors "github.com/jsmooother/ej-development-sub001/pkg/errors"
)

var (
	// ErrAuthorizationDenied indicates the account owner rejected consent. A new consent attempt is required.
	ErrAuthorizationDenied = apperrors.New("AUTHORIZATION_DENIED", "Authorization was denied", http.StatusForbidden)
	// ErrInvalidState indicates the callback state was missing, forged or expired.
	ErrInvalidState = apperrors.New("INVALID_STATE", "Authorization request is invalid or has expired", http.StatusBadRequest)
	// ErrCodeExchangeFailed indicates the authorization code could not be redeemed. Codes are single use.
	ErrCodeExchangeFailed = apperrors.New("CODE_EXCHANGE_FAILED", "Authorization code exchange failed", http.StatusBadGateway)
	// ErrTokenExchangeFailed indicates the short-lived token could not be upgraded.
	ErrTokenExchangeFailed = apperrors.New("TOKEN_EXCHANGE_FAILED", "Long-lived token exchange failed", http.StatusBadGateway)
	// ErrNotConnected indicates no usable credential is stored.
	ErrNotConnected = apperrors.New("NOT_CONNECTED", "Media provider is not connected", http.StatusConflict)
	// ErrTokenExpired indicates the provider rejected the stored token as expired.
	ErrTokenExpired = apperrors.New("TOKEN_EXPIRED", "Access token has expired; reconnect required", http.StatusUnauthorized)
	// ErrRefreshFailed indicates the token refresh failed and the account must be reconnected.
	ErrRefreshFailed = apperrors.New("REFRESH_FAILED", "Token refresh failed; reconnect required", http.StatusUnauthorized)
	// ErrProviderAPI indicates a network, rate limit or server failure at the provider. Safe to retry later.
	ErrProviderAPI = apperrors.New("PROVIDER_API_ERROR", "Media provider request failed", http.StatusBadGateway)
	// ErrCacheUnavailable is absorbed by the cache client and only surfaces in health output.
	ErrCacheUnavailable = apperrors.New("CACHE_UNAVAILABLE", "Cache backend unavailable", http.StatusServiceUnavailable)
)

// SyncStage names a step of the sync state machine.
type SyncStage string

const (
	StageCheckCache SyncStage = "check_cache"
	StageCheckToken SyncStage = "check_token"
	StageRefresh    SyncStage = "refresh"
	StageFetch      SyncStage = "fetch"
	StageTransform  SyncStage = "transform"
	StagePersist    SyncStage = "persist"
	StageWriteCache SyncStage = "write_cache"
)

// SyncError is a terminal sync failure. Kind is one of the sentinel errors above and
// Diagnostic preserves the provider's own explanation.
type SyncError struct {
	Kind       *apperrors.AppError
	Stage      SyncStage
	Diagnostic string
	Err        error
}

func (e *SyncError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("sync %s: %s: %v", e.Stage, e.Kind.Message, e.Err)
	}
	return fmt.Sprintf("sync %s: %s", e.Stage, e.Kind.Message)
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *SyncError) Unwrap() []error {
	errs := []error{e.Kind}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// AppError renders the failure for API consumers with the diagnostic attached.
func (e *SyncError) AppError() *apperrors.AppError {
	return e.Kind.WithInternal(e.Err).WithDetails(e.Diagnostic)
}

// Retryable reports whether the same sync may succeed later without reconnecting.
func (e *SyncError) Retryable() bool {
	if !errors.Is(e.Kind, ErrProviderAPI) {
		return false
	}
	var apiErr *provider.APIError
	if errors.As(e.Err, &apiErr) {
		return apiErr.Temporary()
	}
	return true
}

func newSyncError(kind *apperrors.AppError, stage SyncStage, err error) *SyncError {
	return &SyncError{Kind: kind, Stage: stage, Diagnostic: diagnostic(err), Err: err}
}

// diagnostic extracts the most useful provider supplied text from err.
func diagnostic(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *provider.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Body != "" {
			return apiErr.Body
		}
		return apiErr.Error()
	}
	return err.Error()
}

// providerMessage returns a short human readable explanation suitable for a redirect.
func providerMessage(err error) string {
	var apiErr *provider.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	if provider.IsTimeout(err) {
		return "the provider did not respond in time"
	}
	return ""
}

// tokenRejected reports whether the provider refused the token itself (OAuth code 190).
func tokenRejected(err error) bool {
	var apiErr *provider.APIError
	return errors.As(err, &apiErr) && apiErr.Code == 190
}

// isUniqueConstraintError detects database uniqueness constraint violations across vendors.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr != nil && pgErr.Code == "23505" {
		return true
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr != nil && myErr.Number == 1062 {
		return true
	}

	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "unique") ||
		strings.Contains(lower, "duplicate") ||
		strings.Contains(lower, "constraint")
}
