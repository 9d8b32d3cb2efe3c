package telemetry

import (
	"context"

	"github.com/modoterra/logcatotel/pkg/core"
	"github.com/modoterra/logcatotel/pkg/logcat"
)

type fanout []core.Emitter

// Fanout delivers each record to every non-nil emitter, in argument order.
func Fanout(emitters ...core.Emitter) core.Emitter {
	var f fanout
	for _, e := range emitters {
		if e != nil {
			f = append(f, e)
		}
	}
	if len(f) == 1 {
		return f[0]
	}
	return f
}

func (f fanout) Emit(ctx context.Context, line logcat.LogLine) {
	for _, e := range f {
		e.Emit(ctx, line)
	}
}
