package clock

import "time"

// Clock provides wall-clock time to the application. Audit timestamps go
// through this interface so tests can pin time deterministically.
type Clock interface {
	Now() time.Time
}
