package sink

import (
	"os"

	"golang.org/x/term"

	"contourtrack/internal/config"
)

// NewStdoutWriter picks the colour writer when STDOUT is a terminal and
// plain JSON lines otherwise.
func NewStdoutWriter(cfg *config.StationConfig) Writer {
	if term.IsTerminal(int(os.Stdout.Fd())) {
		return NewColorStdoutWriter(cfg)
	}
	return NewJSONStdoutWriter()
}
