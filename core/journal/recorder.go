package journal

import (
	"context"

	"github.com/kilianp07/taxidispatch/core/logger"
	"github.com/kilianp07/taxidispatch/core/model"
)

// Recorder copies events from a subscription into a Store.
type Recorder struct {
	store Store
	log   logger.Logger
}

func NewRecorder(store Store, log logger.Logger) *Recorder {
	return &Recorder{store: store, log: logger.OrNop(log)}
}

// Run appends every event received on events until the channel is closed.
// Events still buffered when ctx ends are written with a background context
// so the trail stays complete.
func (r *Recorder) Run(ctx context.Context, events <-chan model.HistoryEvent) {
	for ev := range events {
		wctx := ctx
		if ctx.Err() != nil {
			wctx = context.Background()
		}
		if err := r.store.Append(wctx, ev); err != nil {
			r.log.Errorf("journal append %s #%d: %v", ev.Kind, ev.RequestID, err)
		}
	}
}
