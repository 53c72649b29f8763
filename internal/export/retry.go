package export

import (
	"context"

	"activity-export/internal/common/errors"
	"activity-export/internal/common/logger"
	"activity-export/internal/common/metrics"
)

// Refresher renews the upstream access token.
type Refresher interface {
	RefreshCredentials(ctx context.Context) error
}

// AuthRetry is the refresh-and-retry policy for calls that may report an
// expired access token.
type AuthRetry struct {
	Refresher  Refresher
	MaxRetries int
	Logger     logger.Logger
	// OnRefresh runs after every successful refresh.
	OnRefresh func()
}

// CallWithAuthRetry repeats call after refreshing credentials while the upstream
// reports an expired token, up to MaxRetries consecutive times. Any other
// upstream failure is returned as MARKETO_API_ERROR.
func CallWithAuthRetry[T any](ctx context.Context, policy AuthRetry, operation string, call func() (T, bool, []errors.APIError, error)) (T, error) {
	var zero T
	maxRetries := policy.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxAuthRetries
	}
	log := policy.Logger
	if log == nil {
		log = logger.NewNoOpLogger()
	}

	for attempt := 0; ; attempt++ {
		resp, ok, apiErrors, err := call()
		if err != nil {
			return zero, err
		}
		if ok {
			return resp, nil
		}
		for _, e := range apiErrors {
			metrics.UpstreamErrors.WithLabelValues(e.Code).Inc()
		}
		if !errors.IsAuthExpired(apiErrors) {
			return zero, errors.NewAPIError(operation, apiErrors)
		}
		if attempt >= maxRetries {
			return zero, errors.NewAuthRetriesExhaustedError(attempt)
		}

		log.Info("Access token expired, refreshing", map[string]interface{}{
			"operation": operation,
			"attempt":   attempt + 1,
		})
		if err := policy.Refresher.RefreshCredentials(ctx); err != nil {
			return zero, err
		}
		metrics.CredentialRefreshes.Inc()
		if policy.OnRefresh != nil {
			policy.OnRefresh()
		}
	}
}
