// Package logging defines the log levels used by depresolve and wires them to [log/slog].
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"strings"
)

const (
	LevelTrace   = slog.LevelDebug - 4 // -8
	LevelDebug   = slog.LevelDebug     // -4
	LevelVerbose = slog.LevelDebug + 2 // -2
	LevelInfo    = slog.LevelInfo      // 0
	LevelNotice  = slog.LevelInfo + 2  // 2
	LevelWarn    = slog.LevelWarn      // 4
	LevelError   = slog.LevelError     // 8
	LevelFatal   = slog.LevelError + 4 // 12
)

var levelNames = map[slog.Level]string{
	LevelTrace:   "trace",
	LevelDebug:   "debug",
	LevelVerbose: "verbose",
	LevelInfo:    "info",
	LevelNotice:  "notice",
	LevelWarn:    "warn",
	LevelError:   "error",
	LevelFatal:   "fatal",
}

var validLevels = []string{"trace", "debug", "verbose", "info", "notice", "warn", "error", "fatal"}

// BumpLevel returns lvl bumped to the next higher (more severe) or lower (less severe) named level.
// Beyond the ends of the named levels it steps by 4.
func BumpLevel(lvl slog.Level, lower bool) slog.Level {
	named := slices.Sorted(maps.Keys(levelNames))
	if lower {
		i, _ := slices.BinarySearch(named, lvl)
		if i == 0 {
			return lvl - 4
		}
		return named[i-1]
	}
	i, found := slices.BinarySearch(named, lvl)
	if found {
		i++
	}
	if i == len(named) {
		return lvl + 4
	}
	return named[i]
}

func StringToLevel(arg string) (slog.Level, error) {
	arg = strings.ToLower(arg)
	for lvl, name := range levelNames {
		if name == arg {
			return lvl, nil
		}
	}
	if slices.Contains(validLevels, arg) {
		panic("need to update levelNames")
	}
	return 0, fmt.Errorf("invalid log level; expected one of: %v", strings.Join(validLevels, ", "))
}

// LevelString names lvl, or describes it relative to the nearest lower named level.
func LevelString(lvl slog.Level) string {
	if name, ok := levelNames[lvl]; ok {
		return name
	}
	base := LevelTrace
	for l := range levelNames {
		if l <= lvl && l > base {
			base = l
		}
	}
	if lvl < base {
		return fmt.Sprintf("%s%d", levelNames[base], lvl-base)
	}
	return fmt.Sprintf("%s+%d", levelNames[base], lvl-base)
}

// NewHandler returns a text handler writing to w that filters by lvl and prints the custom level
// names.
func NewHandler(w io.Writer, lvl slog.Leveler) slog.Handler {
	return slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) == 0 && a.Key == slog.LevelKey {
				if l, ok := a.Value.Any().(slog.Level); ok {
					a.Value = slog.StringValue(strings.ToUpper(LevelString(l)))
				}
			}
			return a
		},
	})
}

// VerbosityFlag returns a [flag.BoolFunc] callback that bumps lvl one level quieter (or louder if
// lower is true) when given no argument, or sets lvl to the named level otherwise.
func VerbosityFlag(lvl *slog.LevelVar, lower bool) func(string) error {
	return func(arg string) error {
		switch arg {
		case "", "true":
			slog.Debug("log level pre-change", "level", lvl.Level())
			lvl.Set(BumpLevel(lvl.Level(), lower))
			slog.Debug("log level post-change", "level", lvl.Level())
			return nil
		}
		l, err := StringToLevel(arg)
		if err != nil {
			return err
		}
		lvl.Set(l)
		return nil
	}
}
