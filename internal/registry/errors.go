package registry

// adapterNotFoundError signals an unknown adapter id for 404 mapping.
type adapterNotFoundError struct{ id string }

func (e adapterNotFoundError) Error() string { return "adapter not found: " + e.id }

// ErrAdapterNotFound returns an error for a missing adapter id.
func ErrAdapterNotFound(id string) error { return adapterNotFoundError{id: id} }

// IsAdapterNotFound reports whether the error indicates a missing adapter id.
func IsAdapterNotFound(err error) bool {
	_, ok := err.(adapterNotFoundError)
	return ok
}

// duplicateAdapterError signals a conflicting re-registration.
type duplicateAdapterError struct{ id, have, want string }

func (e duplicateAdapterError) Error() string {
	return "duplicate adapter: " + e.id + " (registered version " + e.have + ", new version " + e.want + ")"
}

// IsDuplicateAdapter reports whether err indicates a version-conflicting registration.
func IsDuplicateAdapter(err error) bool {
	_, ok := err.(duplicateAdapterError)
	return ok
}

// adapterInUseError blocks deregistration while compositions reference the adapter.
type adapterInUseError struct{ id string }

func (e adapterInUseError) Error() string { return "adapter in use: " + e.id }

// IsAdapterInUse reports whether err indicates a deregistration blocked by live traffic.
func IsAdapterInUse(err error) bool {
	_, ok := err.(adapterInUseError)
	return ok
}

// invalidDescriptorError signals a malformed descriptor at registration time.
type invalidDescriptorError struct{ reason string }

func (e invalidDescriptorError) Error() string { return "invalid adapter descriptor: " + e.reason }

// IsInvalidDescriptor reports whether err indicates a malformed descriptor.
func IsInvalidDescriptor(err error) bool {
	_, ok := err.(invalidDescriptorError)
	return ok
}
