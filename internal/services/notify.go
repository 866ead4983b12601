package services

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const notifyTimeout = 30 * time.Second

// ReconnectNotice describes a credential that stopped working and needs a new consent.
type ReconnectNotice struct {
	Provider string
	Username string
	Reason   string
	At       time.Time
}

// ReconnectNotifier tells an operator the provider account must be reconnected.
type ReconnectNotifier interface {
	ReconnectRequired(ctx context.Context, notice ReconnectNotice) error
}

// SetNotifier registers n to be told when a refresh failure disconnects the account.
// Must be called before the service handles requests.
func (s *SyncService) SetNotifier(n ReconnectNotifier) {
	s.notifier = n
}

// WaitNotifications blocks until in-flight notifications have been delivered or given up.
func (s *SyncService) WaitNotifications() {
	s.notifyWG.Wait()
}

// notifyReconnect delivers in the background so a slow mail relay never delays the
// sync response. Delivery outlives the request context.
func (s *SyncService) notifyReconnect(ctx context.Context, notice ReconnectNotice) {
	if s.notifier == nil {
		return
	}

	s.notifyWG.Add(1)
	go func() {
		defer s.notifyWG.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
		defer cancel()
		if err := s.notifier.ReconnectRequired(ctx, notice); err != nil {
			s.log.Warn("reconnect notification failed", zap.String("provider", notice.Provider), zap.Error(err))
			return
		}
		s.log.Info("reconnect notification sent", zap.String("provider", notice.Provider))
	}()
}
