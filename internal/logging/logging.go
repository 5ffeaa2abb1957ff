// Package logging configures the process-wide slog logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/lmittmann/tint"
)

// Setup installs a tint handler writing to w. Output is colored only when
// color is true.
func Setup(w io.Writer, level string, color bool) error {
	lvl := slog.LevelInfo
	if level != "" {
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			return fmt.Errorf("invalid log level: %s", level)
		}
	}

	replacer := func(_ []string, a slog.Attr) slog.Attr {
		if err, ok := a.Value.Any().(error); ok {
			aErr := tint.Err(err)
			aErr.Key = a.Key
			return aErr
		}
		return a
	}

	slog.SetDefault(slog.New(tint.NewHandler(w, &tint.Options{
		Level:       lvl,
		TimeFormat:  time.TimeOnly,
		ReplaceAttr: replacer,
		AddSource:   lvl == slog.LevelDebug,
		NoColor:     !color,
	})))
	return nil
}
