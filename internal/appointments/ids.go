package appointments

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	idPrefix = "apt_"
	idHexLen = 12

	// DefaultIDAttempts bounds how many fresh ids Create tries before giving up.
	DefaultIDAttempts = 10
)

// IDGenerator returns a candidate appointment id.
type IDGenerator func() string

// RandomID returns "apt_" followed by 48 random bits from a v4 UUID.
func RandomID() string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return idPrefix + hex[:idHexLen]
}

// nextID draws candidates until one is unused. Exhaustion means the id space
// or the generator is broken, so it is reported as a runtime failure.
func nextID(gen IDGenerator, attempts int, taken func(string) bool) (string, error) {
	if attempts <= 0 {
		attempts = DefaultIDAttempts
	}
	for i := 0; i < attempts; i++ {
		id := gen()
		if id != "" && !taken(id) {
			return id, nil
		}
	}
	return "", &Error{
		Kind:    KindRuntime,
		Message: fmt.Sprintf("Unable to generate unique appointment ID after %d attempts", attempts),
	}
}
