package httpapi

import "context"

// serverBaseCtx is canceled when the daemon begins shutdown so in-flight
// handlers stop waiting on long compositions.
var serverBaseCtx = context.Background()

// SetBaseContext installs the process lifetime context. A nil ctx resets
// to Background.
func SetBaseContext(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	serverBaseCtx = ctx
}

// joinContexts derives a context canceled as soon as either parent is done.
// Callers must invoke the cancel func to free the watcher goroutine.
func joinContexts(a, b context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-a.Done():
		case <-b.Done():
		case <-ctx.Done():
		}
		cancel()
	}()
	return ctx, cancel
}
