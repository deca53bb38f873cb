package notifications

import (
	"container/list"
	"fmt"
	"sync"

	events "github.com/docker/go-events"
	"github.com/sirupsen/logrus"
)

// eventQueue accepts all messages into a queue for asynchronous consumption
// by a sink. It is unbounded and thread safe but the sink must be reliable
// or events will be dropped, grounded directly on the teacher's
// notifications/sinks.go eventQueue.
type eventQueue struct {
	sink      events.Sink
	events    *list.List
	listeners []eventQueueListener
	cond      *sync.Cond
	mu        sync.Mutex
	closed    bool
}

// eventQueueListener is called when various events happen on the queue.
type eventQueueListener interface {
	ingress(events ...Event)
	egress(events ...Event)
}

// newEventQueue returns a queue writing to sink. Each listener is notified
// on ingress and egress so metrics can track pending depth.
func newEventQueue(sink events.Sink, listeners ...eventQueueListener) *eventQueue {
	eq := eventQueue{
		sink:      sink,
		events:    list.New(),
		listeners: listeners,
	}

	eq.cond = sync.NewCond(&eq.mu)
	go eq.run()
	return &eq
}

// Write accepts the event into the queue, only failing if the queue has
// been closed.
func (eq *eventQueue) Write(event events.Event) error {
	eq.mu.Lock()
	defer eq.mu.Unlock()

	if eq.closed {
		return ErrSinkClosed
	}

	for _, listener := range eq.listeners {
		listener.ingress(event.(Event))
	}
	eq.events.PushBack(event)
	eq.cond.Signal()

	return nil
}

// Close shuts down the event queue, flushing any pending events before
// closing the target sink.
func (eq *eventQueue) Close() error {
	eq.mu.Lock()
	defer eq.mu.Unlock()

	if eq.closed {
		return fmt.Errorf("eventqueue: already closed")
	}

	eq.closed = true
	eq.cond.Signal()
	eq.cond.Wait()

	return eq.sink.Close()
}

// run is the main goroutine flushing events to the target sink.
func (eq *eventQueue) run() {
	for {
		event := eq.next()
		if event == nil {
			return
		}

		if err := eq.sink.Write(event); err != nil {
			logrus.Warnf("eventqueue: error writing event to %v, event will be lost: %v", eq.sink, err)
		}

		for _, listener := range eq.listeners {
			listener.egress(event.(Event))
		}
	}
}

// next encompasses the critical section of the run loop: block on the
// condition while empty, returning nil once closed and drained.
func (eq *eventQueue) next() events.Event {
	eq.mu.Lock()
	defer eq.mu.Unlock()

	for eq.events.Len() < 1 {
		if eq.closed {
			eq.cond.Broadcast()
			return nil
		}
		eq.cond.Wait()
	}

	front := eq.events.Front()
	event := front.Value.(events.Event)
	eq.events.Remove(front)

	return event
}

// ignoredSink discards events with ignored target media types or actions,
// passing the rest along.
type ignoredSink struct {
	events.Sink
	ignoreMediaTypes map[string]bool
	ignoreActions    map[string]bool
}

func newIgnoredSink(sink events.Sink, ignoreMediaTypes, ignoreActions []string) events.Sink {
	if len(ignoreMediaTypes) == 0 && len(ignoreActions) == 0 {
		return sink
	}

	mediaTypes := make(map[string]bool, len(ignoreMediaTypes))
	for _, mt := range ignoreMediaTypes {
		mediaTypes[mt] = true
	}

	actions := make(map[string]bool, len(ignoreActions))
	for _, a := range ignoreActions {
		actions[a] = true
	}

	return &ignoredSink{
		Sink:             sink,
		ignoreMediaTypes: mediaTypes,
		ignoreActions:    actions,
	}
}

func (s *ignoredSink) Write(event events.Event) error {
	e := event.(Event)
	if s.ignoreMediaTypes[e.Target.MediaType] || s.ignoreActions[e.Action] {
		return nil
	}
	return s.Sink.Write(event)
}

func (s *ignoredSink) Close() error {
	return nil
}
