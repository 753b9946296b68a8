package rating

import "errors"

// Reasons reported by ValidationError. Clients key form highlighting off them.
const (
	ReasonMissingFields   = "missing required fields"
	ReasonScoreOutOfRange = "score out of range"
	ReasonUserHashTooLong = "user_hash too long"
)

// ErrPostNotFound is returned when the referenced post is not registered.
var ErrPostNotFound = errors.New("post not found")

// ValidationError reports caller input that fails a precondition. It is never
// retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}
