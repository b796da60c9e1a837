package testutil

import (
	"context"
	"testing"
	"time"
)

// Context returns a context that is canceled after dur or when the test
// finishes, whichever comes first.
func Context(t testing.TB, dur time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), dur)
	t.Cleanup(cancel)
	return ctx
}
