package bind

import "context"

// ChannelWatcher adapts an existing byte channel to a Watcher. It suits
// tests and custom transports that already deliver whole documents.
type ChannelWatcher struct {
	ch <-chan []byte
}

// NewChannelWatcher creates a ChannelWatcher over ch.
func NewChannelWatcher(ch <-chan []byte) *ChannelWatcher {
	return &ChannelWatcher{ch: ch}
}

// Watch forwards documents from the wrapped channel until it is closed or
// ctx is canceled. Empty documents are dropped.
func (w *ChannelWatcher) Watch(ctx context.Context) (<-chan []byte, error) {
	out := make(chan []byte)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case v, ok := <-w.ch:
				if !ok {
					return
				}
				if len(v) == 0 {
					continue
				}
				select {
				case out <- v:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
