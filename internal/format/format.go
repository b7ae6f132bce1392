// Package format lists the container plugins built into vdemux. The
// plugins themselves live in the sub-packages.
package format

import (
	"github.com/zsiec/vdemux/internal/demux"
	"github.com/zsiec/vdemux/internal/format/rawaudio"
	"github.com/zsiec/vdemux/internal/format/rtpdump"
	"github.com/zsiec/vdemux/internal/format/subrip"
	"github.com/zsiec/vdemux/internal/format/ts"
)

// Builtin returns the plugins in probe order. Formats with strong magic
// come first; subrip matches only when guessing hard.
func Builtin() []demux.Format {
	return []demux.Format{
		ts.Format{},
		rtpdump.Format{},
		rawaudio.Format{},
		subrip.Format{},
	}
}

// Names returns the names of the built-in plugins in probe order.
func Names() []string {
	b := Builtin()
	names := make([]string, len(b))
	for i, f := range b {
		names[i] = f.Name()
	}
	return names
}
