package debuglog

import (
	"io"
	"os"

	"github.com/anyclaude/anyclaude/internal/config"
	"github.com/rs/zerolog"
	"golang.org/x/term"
)

// BuildOutput resolves cfg.Destination/Format into the io.Writer(s)
// zerolog should write to, auto-detecting human vs. json when Format was
// left empty: a tty gets the console writer, anything else gets raw JSON
// lines, following the teacher's term.IsTerminal check in its status bar
// code, repurposed here for the logger's own format decision.
func BuildOutput(cfg config.DebugConfig) (io.Writer, func() error, error) {
	format := cfg.Format
	if format == "" {
		if term.IsTerminal(int(os.Stderr.Fd())) {
			format = "human"
		} else {
			format = "json"
		}
	}

	var writers []io.Writer
	var closer func() error = func() error { return nil }

	if cfg.Destination == "stderr" || cfg.Destination == "both" || cfg.Destination == "" {
		writers = append(writers, os.Stderr)
	}
	if cfg.Destination == "file" || cfg.Destination == "both" {
		rw, err := newRotatingWriter(cfg.Rotation, cfg.FilePath)
		if err != nil {
			return nil, nil, err
		}
		writers = append(writers, rw)
		closer = rw.Close
	}

	var out io.Writer
	switch len(writers) {
	case 0:
		out = io.Discard
	case 1:
		out = writers[0]
	default:
		out = io.MultiWriter(writers...)
	}

	if format == "human" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}

	return out, closer, nil
}
