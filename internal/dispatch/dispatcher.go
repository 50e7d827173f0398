// The callback dispatcher routes inbound protocol events to the registered
// event translators. One Run loop exists per connection, so handlers run
// sequentially in arrival order for a given server while different servers
// proceed fully independently.

package dispatch

import (
	"Paddock/internal/control"
	"Paddock/internal/metrics"
	"Paddock/pkg/log"
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Handler consumes one inbound event. Errors are isolated at the dispatch
// boundary: logged, counted and swallowed, never allowed to stall the
// connection's event stream.
type Handler func(ctx context.Context, serverID string, cb control.Callback) error

type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	logger   log.Logger
}

func New(logger log.Logger) *Dispatcher {
	return &Dispatcher{
		handlers: make(map[string][]Handler),
		logger:   logger,
	}
}

// Register adds a handler for an event name. Multiple handlers per name are
// invoked in registration order.
func (d *Dispatcher) Register(name string, handler Handler) {
	d.mu.Lock()
	d.handlers[name] = append(d.handlers[name], handler)
	d.mu.Unlock()
}

// Run consumes the callback stream of one connection until it closes.
// Meant to run on its own goroutine, one per connection.
func (d *Dispatcher) Run(ctx context.Context, conn *control.Conn) {
	serverID := conn.Identity().ID
	logger := d.logger.WithServer(serverID)
	logger.Info().Msg("Dispatcher loop started.")
	for cb := range conn.Callbacks() {
		if cb.Name == control.CbModeScriptCallback {
			d.dispatchScriptEvent(ctx, serverID, cb, logger)
			continue
		}
		d.dispatch(ctx, serverID, cb, logger)
	}
	logger.Info().Msg("Dispatcher loop finished, callback stream closed.")
}

// dispatchScriptEvent unpacks the nested mode-script envelope: a
// [name, JSON-string] pair carried inside the outer callback. Only
// recognized sub-event names are decoded, unknown ones are skipped
// without error for forward compatibility.
func (d *Dispatcher) dispatchScriptEvent(ctx context.Context, serverID string, cb control.Callback, logger log.Logger) {
	if len(cb.Params) < 2 {
		logger.Warn().Msg("Malformed mode-script envelope, expected [name, payload] pair.")
		return
	}
	var name string
	if umerr := json.Unmarshal(cb.Params[0], &name); umerr != nil {
		logger.Warn().Err(umerr).Msg("Couldn't decode mode-script event name.")
		return
	}

	d.mu.RLock()
	_, known := d.handlers[name]
	d.mu.RUnlock()
	if !known {
		// Unknown sub-events are expected, game modes emit plenty.
		logger.Debug().Msg(fmt.Sprintf("Ignoring unknown mode-script event %s", name))
		return
	}

	// The inner payload is an independently JSON-encoded string.
	var payload string
	if umerr := json.Unmarshal(cb.Params[1], &payload); umerr != nil {
		logger.Warn().Err(umerr).Msg(fmt.Sprintf("Couldn't decode payload of mode-script event %s", name))
		return
	}
	d.dispatch(ctx, serverID, control.Callback{
		Name:   name,
		Params: []json.RawMessage{json.RawMessage(payload)},
	}, logger)
}

func (d *Dispatcher) dispatch(ctx context.Context, serverID string, cb control.Callback, logger log.Logger) {
	metrics.CallbacksTotal.WithLabelValues(cb.Name).Inc()

	d.mu.RLock()
	handlers := d.handlers[cb.Name]
	d.mu.RUnlock()

	for _, handler := range handlers {
		d.invoke(ctx, serverID, cb, handler, logger)
	}
}

// invoke isolates one handler: an error result or a panic is logged and
// counted, delivery to the remaining handlers continues.
func (d *Dispatcher) invoke(ctx context.Context, serverID string, cb control.Callback, handler Handler, logger log.Logger) {
	defer func() {
		if rec := recover(); rec != nil {
			metrics.HandlerFailures.WithLabelValues(cb.Name).Inc()
			logger.Error().Msg(fmt.Sprintf("Handler panic on event %s: %v", cb.Name, rec))
		}
	}()
	if herr := handler(ctx, serverID, cb); herr != nil {
		metrics.HandlerFailures.WithLabelValues(cb.Name).Inc()
		logger.Error().Err(herr).Msg(fmt.Sprintf("Handler failed on event %s", cb.Name))
	}
}
