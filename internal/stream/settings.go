package stream

import (
	"github.com/bryanchriswhite/FrameRelay/internal/cvar"
)

// Console variable names read by the provider.
const (
	FramerateVar = "remote.framerate"
	ResXVar      = "remote.framegrabber.resx"
	ResYVar      = "remote.framegrabber.resy"
)

// Settings are the runtime-tunable knobs of a Provider. They live in a cvar
// registry so the CLI, config file and HTTP API all write the same values.
type Settings struct {
	// Framerate is the target send rate in frames/sec; 0 means unset and
	// disables sending.
	Framerate *cvar.Var
	// ResX and ResY override the capture width and height when > 0.
	ResX *cvar.Var
	ResY *cvar.Var
}

// NewSettings registers (or looks up) the stream variables in reg.
func NewSettings(reg *cvar.Registry) Settings {
	return Settings{
		Framerate: reg.Register(FramerateVar, 0, "Sets framerate", cvar.Min(0)),
		ResX:      reg.Register(ResXVar, 0, "Sets the desired X resolution", cvar.Min(0)),
		ResY:      reg.Register(ResYVar, 0, "Sets the desired Y resolution", cvar.Min(0)),
	}
}

// DefaultSettings are the process-wide stream variables.
var DefaultSettings = NewSettings(cvar.Default)
