package sqlcache

import (
	"context"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
)

// databaseRetryOptions retries transient lock errors with a short backoff.
func databaseRetryOptions(ctx context.Context) []retry.Option {
	return []retry.Option{
		retry.Attempts(4),
		retry.Delay(100 * time.Millisecond),
		retry.MaxDelay(400 * time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(isDatabaseLocked),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	}
}

func isDatabaseLocked(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "database table is locked")
}
