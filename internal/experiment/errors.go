package experiment

// experimentNotFoundError signals an unknown experiment id for 404 mapping.
type experimentNotFoundError struct{ id string }

func (e experimentNotFoundError) Error() string { return "experiment not found: " + e.id }

// ErrExperimentNotFound returns an error for a missing experiment id.
func ErrExperimentNotFound(id string) error { return experimentNotFoundError{id: id} }

// IsExperimentNotFound reports whether the error indicates a missing experiment.
func IsExperimentNotFound(err error) bool {
	_, ok := err.(experimentNotFoundError)
	return ok
}

// invalidConfigError signals a malformed experiment definition.
type invalidConfigError struct{ reason string }

func (e invalidConfigError) Error() string { return "invalid experiment config: " + e.reason }

// IsInvalidConfig reports whether err indicates a rejected experiment definition.
func IsInvalidConfig(err error) bool {
	_, ok := err.(invalidConfigError)
	return ok
}

// invalidStateError signals a lifecycle operation against the wrong status
// (e.g. assigning into a draft, starting a stopped experiment).
type invalidStateError struct{ id, status, op string }

func (e invalidStateError) Error() string {
	return "experiment " + e.id + " is " + e.status + ": cannot " + e.op
}

// IsInvalidState reports whether err indicates a lifecycle violation.
func IsInvalidState(err error) bool {
	_, ok := err.(invalidStateError)
	return ok
}

// variantNotFoundError signals an impression against an unknown variant.
type variantNotFoundError struct{ id, variant string }

func (e variantNotFoundError) Error() string {
	return "variant not found: " + e.variant + " in experiment " + e.id
}

// IsVariantNotFound reports whether err indicates an unknown variant id.
func IsVariantNotFound(err error) bool {
	_, ok := err.(variantNotFoundError)
	return ok
}
