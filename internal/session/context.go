package session

import (
	"os"
	"strings"

	"github.com/rs/zerolog/log"
)

const (
	envDisplay = "DISPLAY"
	envBus     = "DBUS_SESSION_BUS_ADDRESS"

	// degenerateBusAddress is the disable placeholder the container bootstrap
	// seeds when no session bus exists. It is never a usable address.
	degenerateBusAddress = "unix:path=/dev/null"
)

// Context carries the session addressing needed to reach the owner's display
// and session bus. BusAddress may be empty; every consumer tolerates its
// absence.
type Context struct {
	Display    string
	BusAddress string
}

// EnvironmentProvider exposes the environment block of the owner's running
// desktop session process, when one exists.
type EnvironmentProvider interface {
	SessionEnviron(owner string) (map[string]string, bool)
}

// Resolver derives a Context from the ambient environment, falling back to
// the live session process environ. Resolve never fails: when no session
// process is found the display defaults to DisplayFallback and the bus
// address stays unset.
type Resolver struct {
	Ambient         func(string) string // defaults to os.Getenv
	Provider        EnvironmentProvider
	DisplayFallback string
}

func (r Resolver) Resolve(owner string) Context {
	getenv := r.Ambient
	if getenv == nil {
		getenv = os.Getenv
	}

	ctx := Context{Display: getenv(envDisplay), BusAddress: getenv(envBus)}
	if ctx.Display != "" && wellFormedBus(ctx.BusAddress) {
		log.Debug().Msgf("session.Resolver.Resolve ambient display=%q", ctx.Display)
		return ctx
	}
	if !wellFormedBus(ctx.BusAddress) {
		ctx.BusAddress = ""
	}

	if r.Provider != nil {
		if env, ok := r.Provider.SessionEnviron(owner); ok {
			if v := env[envDisplay]; v != "" {
				ctx.Display = v
			}
			if v := env[envBus]; wellFormedBus(v) {
				ctx.BusAddress = v
			}
		}
	}

	if ctx.Display == "" {
		ctx.Display = r.fallbackDisplay()
	}
	log.Debug().Msgf(
		"session.Resolver.Resolve resolved display=%q bus_set=%v",
		ctx.Display,
		ctx.BusAddress != "",
	)
	return ctx
}

func (r Resolver) fallbackDisplay() string {
	if r.DisplayFallback != "" {
		return r.DisplayFallback
	}
	return ":0"
}

// wellFormedBus rejects empty values, values without an address separator,
// and the literal disable placeholder.
func wellFormedBus(v string) bool {
	return v != "" && strings.Contains(v, "=") && v != degenerateBusAddress
}
