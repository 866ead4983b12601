package checks

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jsmooother/ej-development-sub001/internal/monitoring"
	"github.com/jsmooother/ej-development-sub001/internal/services"
)

// ProviderConfig reports whether the provider application credentials are present.
// Bootstrap refuses to start without them, so this mostly documents the active provider.
func ProviderConfig(name, appID, appSecret string) monitoring.Check {
	return monitoring.NewCheck("provider_config", func(context.Context) monitoring.ProbeResult {
		if strings.TrimSpace(appID) == "" || strings.TrimSpace(appSecret) == "" {
			return monitoring.ProbeResult{Status: monitoring.StatusDown, Details: name + ": app id/secret missing"}
		}
		return monitoring.ProbeResult{Status: monitoring.StatusUp, Details: name}
	})
}

// StatusReader exposes the connection state of the media provider.
type StatusReader interface {
	Status(ctx context.Context) (*services.ConnectionStatus, error)
}

// Credential reports degraded while no usable credential exists or the token is
// close to expiring, so operators notice before the public feed goes stale.
func Credential(reader StatusReader, warnWithin time.Duration, now func() time.Time) monitoring.Check {
	if now == nil {
		now = time.Now
	}
	return monitoring.NewCheck("media_credential", func(ctx context.Context) monitoring.ProbeResult {
		if reader == nil {
			return monitoring.ProbeResult{Status: monitoring.StatusDegraded, Details: "sync service unavailable"}
		}
		status, err := reader.Status(ctx)
		if err != nil {
			return monitoring.ResultFromError("media_credential", err, 0)
		}

		switch {
		case !status.IsConnected:
			details := "not connected"
			if status.LastError != "" {
				details += ": " + status.LastError
			}
			return monitoring.ProbeResult{Status: monitoring.StatusDegraded, Details: details}
		case status.TokenExpired:
			return monitoring.ProbeResult{Status: monitoring.StatusDegraded, Details: "access token expired"}
		case status.TokenExpiresAt != nil && warnWithin > 0 && status.TokenExpiresAt.Sub(now()) < warnWithin:
			return monitoring.ProbeResult{
				Status:  monitoring.StatusDegraded,
				Details: fmt.Sprintf("access token expires at %s", status.TokenExpiresAt.UTC().Format(time.RFC3339)),
			}
		}
		return monitoring.ProbeResult{Status: monitoring.StatusUp, Details: status.Username}
	})
}
