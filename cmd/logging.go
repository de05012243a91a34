package main

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/scitags/gonl/message"
)

const (
	MsgTypeKey  string = "type"
	MsgFlagsKey string = "flags"
)

func logReplacements(groups []string, a slog.Attr) slog.Attr {
	// Remove time.
	if a.Key == slog.TimeKey && len(groups) == 0 && !logTimeFlag {
		return slog.Attr{}
	}

	// Remove the directory from the source's filename.
	if a.Key == slog.SourceKey {
		source := a.Value.Any().(*slog.Source)
		source.File = filepath.Base(source.File)
	}

	// Show message types both raw and by name when they have one
	if a.Key == MsgTypeKey {
		if t, ok := a.Value.Any().(message.Type); ok {
			return slog.String(a.Key, fmt.Sprintf("%#04x(%s)", uint16(t), t))
		}
	}

	// Same for the flags so that the overloaded bits can be told apart
	if a.Key == MsgFlagsKey {
		if f, ok := a.Value.Any().(message.Flags); ok {
			return slog.String(a.Key, fmt.Sprintf("%#04x(%s)", uint16(f), f))
		}
	}

	return a
}
