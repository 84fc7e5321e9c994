// Package eventloop provides the single-threaded event loop that runs a node.
// All events, whether messages from other nodes or ticks from timers, are queued
// and handled one at a time by the goroutine that calls Run.
package eventloop

import (
	"context"
	"reflect"
	"sync"
	"time"
)

type handlerOpts struct {
	priority bool
}

// HandlerOption sets configuration options for event handlers.
type HandlerOption func(*handlerOpts)

// Prioritize instructs the event loop to run the handler before handlers that do not have priority.
// It should only be used if you must look at an event before other handlers get to look at it.
func Prioritize() HandlerOption {
	return func(ho *handlerOpts) {
		ho.priority = true
	}
}

type tickerOpts struct {
	delay time.Duration
}

// TickerOption sets configuration options for tickers.
type TickerOption func(*tickerOpts)

// WithInitialDelay postpones the first tick of a ticker by d, in addition to its interval.
func WithInitialDelay(d time.Duration) TickerOption {
	return func(to *tickerOpts) {
		to.delay = d
	}
}

type ticker struct {
	interval time.Duration
	opts     tickerOpts
	callback func(time.Time) any
	cancel   context.CancelFunc
}

type startTickerEvent struct {
	tickerID int
}

// EventHandler processes an event.
type EventHandler func(event any)

type handler struct {
	callback EventHandler
	opts     handlerOpts
}

// EventLoop accepts events of any type and executes the handlers registered for the event's type.
type EventLoop struct {
	eventQ *queue

	mut sync.Mutex // protects the following:

	ctx context.Context // set by Run or Tick, inherited by tickers

	handlers map[reflect.Type][]handler

	tickers  map[int]*ticker
	tickerID int
}

// New returns a new event loop whose queue initially has room for bufferSize events.
// The queue grows as needed.
func New(bufferSize uint) *EventLoop {
	return &EventLoop{
		ctx:      context.Background(),
		eventQ:   newQueue(bufferSize),
		handlers: make(map[reflect.Type][]handler),
		tickers:  make(map[int]*ticker),
	}
}

// Register registers a handler for events of type T.
func Register[T any](el *EventLoop, handler func(T), opts ...HandlerOption) int {
	var zero T
	return el.RegisterHandler(zero, func(event any) {
		handler(event.(T))
	}, opts...)
}

// RegisterHandler registers the given event handler for the type of eventType.
// If no handler options are provided, the default handler options will be used.
func (el *EventLoop) RegisterHandler(eventType any, callback EventHandler, opts ...HandlerOption) int {
	h := handler{callback: callback}
	for _, opt := range opts {
		opt(&h.opts)
	}

	el.mut.Lock()
	defer el.mut.Unlock()

	t := reflect.TypeOf(eventType)
	handlers := el.handlers[t]

	// search for a free slot for the handler
	i := 0
	for ; i < len(handlers); i++ {
		if handlers[i].callback == nil {
			break
		}
	}
	if i == len(handlers) {
		handlers = append(handlers, h)
	} else {
		handlers[i] = h
	}
	el.handlers[t] = handlers
	return i
}

// UnregisterHandler unregisters the handler for the given event type with the given id.
func (el *EventLoop) UnregisterHandler(eventType any, id int) {
	el.mut.Lock()
	defer el.mut.Unlock()
	t := reflect.TypeOf(eventType)
	if handlers := el.handlers[t]; id >= 0 && id < len(handlers) {
		handlers[id].callback = nil
	}
}

// AddEvent adds an event to the event queue. It is safe to call from any goroutine.
func (el *EventLoop) AddEvent(event any) {
	if event != nil {
		el.eventQ.push(event)
	}
}

func (el *EventLoop) setContext(ctx context.Context) {
	el.mut.Lock()
	defer el.mut.Unlock()
	el.ctx = ctx
}

// Run runs the event loop until ctx is canceled. Events still queued at that point are discarded.
func (el *EventLoop) Run(ctx context.Context) {
	el.setContext(ctx)

	for {
		event, ok := el.eventQ.pop()
		if !ok {
			select {
			case <-el.eventQ.ready():
				continue
			case <-ctx.Done():
				return
			}
		}
		if ctx.Err() != nil {
			return
		}
		el.dispatch(event)
	}
}

// Tick processes a single event. Returns true if an event was handled.
func (el *EventLoop) Tick(ctx context.Context) bool {
	el.setContext(ctx)

	event, ok := el.eventQ.pop()
	if !ok {
		return false
	}
	el.dispatch(event)
	return true
}

func (el *EventLoop) dispatch(event any) {
	if e, ok := event.(startTickerEvent); ok {
		el.startTicker(e.tickerID)
		return
	}
	el.processEvent(event)
}

// processEvent runs the handlers registered for the event's type, prioritized handlers first.
func (el *EventLoop) processEvent(event any) {
	var priorityList, handlerList []EventHandler

	// copy the handlers so that they can run without holding the mutex
	el.mut.Lock()
	for _, h := range el.handlers[reflect.TypeOf(event)] {
		if h.callback == nil {
			continue
		}
		if h.opts.priority {
			priorityList = append(priorityList, h.callback)
		} else {
			handlerList = append(handlerList, h.callback)
		}
	}
	el.mut.Unlock()

	for _, h := range priorityList {
		h(event)
	}
	for _, h := range handlerList {
		h(event)
	}
}

// AddTicker adds a ticker with the specified interval and returns the ticker id.
// The ticker adds the event returned by callback to the event loop at regular intervals,
// starting one interval (plus any initial delay) after the ticker is started.
// The ticker will not be started before the event loop is running.
func (el *EventLoop) AddTicker(interval time.Duration, callback func(tick time.Time) (event any), opts ...TickerOption) int {
	t := &ticker{
		interval: interval,
		callback: callback,
		cancel:   func() {}, // initialized to empty function to avoid nil
	}
	for _, opt := range opts {
		opt(&t.opts)
	}

	el.mut.Lock()
	id := el.tickerID
	el.tickerID++
	el.tickers[id] = t
	el.mut.Unlock()

	// We want the ticker to inherit the context of the event loop,
	// so we need to start the ticker from the run loop.
	el.eventQ.push(startTickerEvent{id})
	return id
}

// RemoveTicker removes the ticker with the specified id.
// If the ticker does not exist, false will be returned.
func (el *EventLoop) RemoveTicker(id int) bool {
	el.mut.Lock()
	defer el.mut.Unlock()
	t, ok := el.tickers[id]
	if !ok {
		return false
	}
	t.cancel()
	delete(el.tickers, id)
	return true
}

func (el *EventLoop) startTicker(id int) {
	// lock the mutex such that the ticker cannot be removed until we have started it
	el.mut.Lock()
	defer el.mut.Unlock()
	t, ok := el.tickers[id]
	if !ok {
		return
	}
	var ctx context.Context
	ctx, t.cancel = context.WithCancel(el.ctx)
	go el.runTicker(ctx, t)
}

func (el *EventLoop) runTicker(ctx context.Context, t *ticker) {
	if t.opts.delay > 0 {
		timer := time.NewTimer(t.opts.delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}

	tk := time.NewTicker(t.interval)
	defer tk.Stop()

	for {
		select {
		case tick := <-tk.C:
			el.AddEvent(t.callback(tick))
		case <-ctx.Done():
			return
		}
	}
}
