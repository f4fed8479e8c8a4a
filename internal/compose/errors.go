package compose

// buildTimeoutError signals a composition build exceeding its deadline.
// The cache stays consistent: timed-out builds never populate it, so the
// caller may retry with backoff.
type buildTimeoutError struct{ key string }

func (e buildTimeoutError) Error() string { return "composition build timeout: " + e.key }

// ErrBuildTimeout constructs a buildTimeoutError for the given key.
func ErrBuildTimeout(key string) error { return buildTimeoutError{key: key} }

// IsBuildTimeout reports whether err indicates a build deadline overrun.
func IsBuildTimeout(err error) bool {
	_, ok := err.(buildTimeoutError)
	return ok
}

// buildFailedError wraps a transient engine failure during a build.
// Failures are never cached; the next request triggers a fresh build.
type buildFailedError struct {
	key   string
	cause error
}

func (e buildFailedError) Error() string { return "composition build failed: " + e.key + ": " + e.cause.Error() }
func (e buildFailedError) Unwrap() error { return e.cause }

// ErrBuildFailed constructs a buildFailedError.
func ErrBuildFailed(key string, cause error) error { return buildFailedError{key: key, cause: cause} }

// IsBuildFailed reports whether err indicates a failed engine build.
func IsBuildFailed(err error) bool {
	_, ok := err.(buildFailedError)
	return ok
}

// backpressureError signals a full async queue for 429 mapping.
type backpressureError struct{ key string }

func (e backpressureError) Error() string { return "composition queue full: " + e.key }

// ErrBackpressure constructs a backpressureError for the given key.
func ErrBackpressure(key string) error { return backpressureError{key: key} }

// IsBackpressure reports whether err indicates queue overflow.
func IsBackpressure(err error) bool {
	_, ok := err.(backpressureError)
	return ok
}

// invalidStrategyError signals an unknown composition strategy.
type invalidStrategyError struct{ strategy string }

func (e invalidStrategyError) Error() string { return "unknown composition strategy: " + e.strategy }

// IsInvalidStrategy reports whether err indicates an unknown strategy string.
func IsInvalidStrategy(err error) bool {
	_, ok := err.(invalidStrategyError)
	return ok
}
