package pipeline

import (
	"streamwatch/internal/model"
	"time"
)

// Debounce collapses bursts of events for the same path into one, emitted
// once the path has been quiet for delay. Remaining events are flushed when
// inCh closes.
func Debounce(inCh <-chan model.FileEvent, delay time.Duration) <-chan model.FileEvent {
	outCh := make(chan model.FileEvent, cap(inCh))

	if delay <= 0 {
		go func() {
			defer close(outCh)
			for event := range inCh {
				outCh <- event
			}
		}()
		return outCh
	}

	go func() {
		defer close(outCh)

		type pending struct {
			event model.FileEvent
			last  time.Time
		}
		events := make(map[string]pending)

		ticker := time.NewTicker(max(delay/2, time.Millisecond))
		defer ticker.Stop()

		for {
			select {
			case event, ok := <-inCh:
				if !ok {
					for _, p := range events {
						outCh <- p.event
					}
					return
				}

				p, seen := events[event.Path]
				// a create followed by writes is still reported as a create
				if !seen || p.event.Kind != model.EventCreate {
					p.event = event
				}
				p.last = time.Now()
				events[event.Path] = p

			case now := <-ticker.C:
				for path, p := range events {
					if now.Sub(p.last) >= delay {
						outCh <- p.event
						delete(events, path)
					}
				}
			}
		}
	}()

	return outCh
}
