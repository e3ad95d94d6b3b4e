package app

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/airwatch-iot/gasmon/internal/api"
	"github.com/airwatch-iot/gasmon/internal/live"
	"github.com/airwatch-iot/gasmon/internal/state"
)

// startLive mirrors the push connection state into the store and dials in
// the background. It returns immediately; the channel keeps reconnecting on
// its own after a failed first dial.
func startLive(ctx context.Context, ch live.Channel, store *state.Store, logger *zap.Logger) {
	ch.OnConnect(func() {
		logger.Debug("live channel connected")
		store.SetLiveConnected(true)
	})
	ch.OnDisconnect(func(err error) {
		logger.Warn("live channel dropped", zap.Error(err))
		store.SetLiveConnected(false)
	})
	go func() {
		if err := ch.Connect(ctx); err != nil {
			logger.Warn("live channel connect failed", zap.Error(err))
		}
	}()
}

// bearerHeader builds handshake headers from the current access token, so a
// reconnect after a token refresh uses the new token.
func bearerHeader(tokens api.TokenStore) func() http.Header {
	return func() http.Header {
		h := http.Header{}
		if access := tokens.Load().Access; access != "" {
			h.Set("Authorization", "Bearer "+access)
		}
		return h
	}
}
