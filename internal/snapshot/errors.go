package snapshot

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound indicates no checkpoint matched the given id, id prefix,
	// or name.
	ErrNotFound = errors.New("checkpoint not found")

	// ErrInvalidInput indicates malformed creation input: an empty file set,
	// an empty name, or an invalid file path.
	ErrInvalidInput = errors.New("invalid input")

	// ErrIDCollision indicates checkpoint id derivation kept colliding even
	// after salted retries. This should effectively never happen.
	ErrIDCollision = errors.New("checkpoint id collision")
)

// AmbiguousIDError is returned when an id prefix matches more than one
// checkpoint. Candidates holds the full ids of every match.
type AmbiguousIDError struct {
	Prefix     string
	Candidates []string
}

func (e *AmbiguousIDError) Error() string {
	return fmt.Sprintf("ambiguous checkpoint id %q: matches %s",
		e.Prefix, strings.Join(e.Candidates, ", "))
}
