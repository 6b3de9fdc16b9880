package coach

import "github.com/rs/zerolog"

// componentLogger tags l with the SDK component name.
func componentLogger(l zerolog.Logger, component string) zerolog.Logger {
	return l.With().Str("component", component).Logger()
}
