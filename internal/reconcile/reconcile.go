package reconcile

import (
	"sort"
	"time"

	"github.com/rs/zerolog/log"
)

// Params describes one bounded reconciliation: read the observed fields,
// compare against Expected, and run the corrective Apply at most MaxAttempts
// times with Backoff between apply and re-read. MaxAttempts of zero means
// observe-only.
type Params struct {
	Read     func() map[string]string
	Expected map[string]string
	Apply    func()

	MaxAttempts int
	Backoff     time.Duration

	Sleep func(time.Duration)
}

// Result reports whether the observed state converged and how many
// corrective attempts ran.
type Result struct {
	Converged bool
	Attempts  int
}

// Converge drives the read/apply loop. Worst-case latency is bounded by
// MaxAttempts; a persistent mismatch is reported, never retried further.
func Converge(p Params) Result {
	mismatched := diff(p.Expected, p.Read())
	if len(mismatched) == 0 {
		return Result{Converged: true}
	}

	res := Result{}
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		log.Warn().Msgf("reconcile.Converge drift attempt=%d fields=%v", attempt, mismatched)
		res.Attempts = attempt

		p.Apply()
		if p.Backoff > 0 {
			sleep := p.Sleep
			if sleep == nil {
				sleep = time.Sleep
			}
			sleep(p.Backoff)
		}

		mismatched = diff(p.Expected, p.Read())
		if len(mismatched) == 0 {
			res.Converged = true
			log.Info().Msgf("reconcile.Converge recovered attempt=%d", attempt)
			return res
		}
	}

	log.Warn().Msgf("reconcile.Converge persistent drift attempts=%d fields=%v", res.Attempts, mismatched)
	return res
}

// diff returns the sorted field names whose observed value differs from the
// expected one. Fields missing from observed count as mismatched.
func diff(expected, observed map[string]string) []string {
	var fields []string
	for name, want := range expected {
		if observed[name] != want {
			fields = append(fields, name)
		}
	}
	sort.Strings(fields)
	return fields
}
