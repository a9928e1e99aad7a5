package downloader

import "sync"

// Dispatcher is a serial update queue. Report never blocks the caller; a
// single goroutine delivers updates to the sink in the order they arrived.
type Dispatcher struct {
	sink Reporter

	mu      sync.Mutex
	pending []Update
	closed  bool
	notify  chan struct{}
	done    chan struct{}
}

// NewDispatcher starts a dispatcher delivering to sink
func NewDispatcher(sink Reporter) *Dispatcher {
	d := &Dispatcher{
		sink:   sink,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go d.loop()
	return d
}

// Report queues u for delivery. Updates reported after Close are dropped.
func (d *Dispatcher) Report(u Update) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.pending = append(d.pending, u)
	select {
	case d.notify <- struct{}{}:
	default:
	}
	d.mu.Unlock()
}

// Close delivers everything already queued and stops the dispatcher
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		<-d.done
		return
	}
	d.closed = true
	close(d.notify)
	d.mu.Unlock()

	<-d.done
}

func (d *Dispatcher) loop() {
	defer close(d.done)

	for {
		_, ok := <-d.notify

		d.mu.Lock()
		batch := d.pending
		d.pending = nil
		d.mu.Unlock()

		for _, u := range batch {
			d.sink.Report(u)
		}

		if !ok {
			return
		}
	}
}
