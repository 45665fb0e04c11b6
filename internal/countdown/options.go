package countdown

import (
	"errors"
	"time"

	"github.com/mescon/tickr/internal/clock"
)

// ErrInvalidDuration is returned by New for a zero or negative duration.
var ErrInvalidDuration = errors.New("countdown: duration must be positive")

// Options configures a Timer. The zero value is a one-shot timer that counts
// immediately on Start using the real clock.
type Options struct {
	// Continue restarts a fresh cycle after every tick, turning the timer
	// into a periodic generator until it is stopped or paused.
	Continue bool

	// BeginTime defers the first cycle: Start only arms the timer and
	// counting begins at this instant. Zero means unset.
	BeginTime time.Time

	// Clock supplies time and scheduling. Nil selects clock.RealClock.
	Clock clock.Clock
}
