package engine

import "sync"

// listenerBuffer is how many lines a slow listener may lag before lines are
// dropped for it.
const listenerBuffer = 64

// LogBroker relays engine stderr lines from a running job to any number of
// listeners. It is safe for concurrent use.
type LogBroker struct {
	mu      sync.Mutex
	streams map[string]*jobStream
}

// jobStream is the listener set of one job. A finished stream is kept until
// the job is purged so that late listeners see it as already ended.
type jobStream struct {
	listeners map[chan string]struct{}
	finished  bool
}

// NewLogBroker creates an empty broker.
func NewLogBroker() *LogBroker {
	return &LogBroker{streams: make(map[string]*jobStream)}
}

func (b *LogBroker) streamLocked(jobID string) *jobStream {
	s, ok := b.streams[jobID]
	if !ok {
		s = &jobStream{listeners: make(map[chan string]struct{})}
		b.streams[jobID] = s
	}
	return s
}

// Subscribe registers a listener for jobID. The channel is closed when the
// job's engine run ends, or immediately if it already has. The returned
// func detaches the listener and is safe to call more than once.
func (b *LogBroker) Subscribe(jobID string) (<-chan string, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan string, listenerBuffer)
	s := b.streamLocked(jobID)
	if s.finished {
		close(ch)
		return ch, func() {}
	}
	s.listeners[ch] = struct{}{}

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		delete(s.listeners, ch)
		if !s.finished && len(s.listeners) == 0 && b.streams[jobID] == s {
			delete(b.streams, jobID)
		}
	}
}

// Publish hands line to every listener of jobID without blocking.
func (b *LogBroker) Publish(jobID string, line string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.streams[jobID]
	if !ok || s.finished {
		return
	}
	for ch := range s.listeners {
		select {
		case ch <- line:
		default:
		}
	}
}

// Close ends jobID's stream: current listeners are closed and later ones
// get a closed channel.
func (b *LogBroker) Close(jobID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.streamLocked(jobID)
	if s.finished {
		return
	}
	s.finished = true
	for ch := range s.listeners {
		close(ch)
	}
	clear(s.listeners)
}

// Remove drops jobID's stream once the job is purged, closing any listener
// still attached.
func (b *LogBroker) Remove(jobID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.streams[jobID]
	if !ok {
		return
	}
	if !s.finished {
		for ch := range s.listeners {
			close(ch)
		}
	}
	delete(b.streams, jobID)
}

// Topics returns the number of jobs with a stream.
func (b *LogBroker) Topics() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.streams)
}
