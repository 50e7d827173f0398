// The Registry is the single mutable owner of "which control connection
// exists per server". It guarantees at most one live connection per identity
// even under concurrent get-or-connect calls.

package fleet

import (
	"Paddock/internal/control"
	"Paddock/internal/entity"
	"Paddock/internal/errors"
	"Paddock/internal/metrics"
	"Paddock/pkg/log"
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Dialer opens a ready-to-use control connection. Injectable so tests can
// swap the network out.
type Dialer func(ctx context.Context, identity entity.ServerIdentity) (*control.Conn, error)

// EstablishHook runs exactly once per freshly established connection, before
// the connection is handed to any waiting caller. Paddock wires the initial
// full resync and the dispatcher loop here. Failures inside the hook are the
// hook's own business, they never tear the new connection down.
type EstablishHook func(ctx context.Context, conn *control.Conn)

type entry struct {
	identity    entity.ServerIdentity
	ready       chan struct{}
	conn        *control.Conn
	err         error
	connectedAt time.Time
	// Set under Registry.mu when the entry is disconnected while its dial
	// is still in flight. establish closes the fresh connection instead of
	// publishing it.
	doomed bool
}

type Registry struct {
	mu          sync.Mutex
	entries     map[string]*entry
	dial        Dialer
	onEstablish EstablishHook
	logger      log.Logger
}

// NewRegistry returns a Registry constructed once at process start and
// injected into every component that needs a connection.
func NewRegistry(dial Dialer, logger log.Logger) *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		dial:    dial,
		logger:  logger,
	}
}

// SetEstablishHook wires the post-handshake hook. Must be called before the
// first GetOrConnect.
func (r *Registry) SetEstablishHook(hook EstablishHook) {
	r.onEstablish = hook
}

// GetOrConnect returns the live connection for identity, dialing a new one
// if none exists. Concurrent callers racing on the same identity share one
// dial attempt; losers block until the winner's handshake settles.
func (r *Registry) GetOrConnect(ctx context.Context, identity entity.ServerIdentity) (*control.Conn, error) {
	for {
		r.mu.Lock()
		e, ok := r.entries[identity.ID]
		if !ok {
			e = &entry{identity: identity, ready: make(chan struct{})}
			r.entries[identity.ID] = e
			r.mu.Unlock()
			return r.establish(ctx, e)
		}
		r.mu.Unlock()

		select {
		case <-e.ready:
		case <-ctx.Done():
			return nil, errors.ConnectionClosed(ctx.Err().Error())
		}
		if e.err != nil {
			// The dial attempt we waited on failed and removed itself.
			return nil, e.err
		}
		if e.conn.Connected() {
			return e.conn, nil
		}
		// Stale connection, drop the entry and dial fresh on next loop.
		r.mu.Lock()
		if r.entries[identity.ID] == e {
			delete(r.entries, identity.ID)
			metrics.ConnectedServers.Dec()
		}
		r.mu.Unlock()
	}
}

// establish dials, runs the establish hook and publishes the result. A dial
// that settles after its entry was disconnected closes the fresh connection
// and reports ConnectionClosed to its waiters.
func (r *Registry) establish(ctx context.Context, e *entry) (*control.Conn, error) {
	conn, dlerr := r.dial(ctx, e.identity)
	if dlerr != nil {
		e.err = dlerr
		r.removeEntry(e.identity.ID, e)
		close(e.ready)
		r.logger.WithServer(e.identity.ID).Error().Err(dlerr).Msg("Couldn't establish control connection.")
		return nil, dlerr
	}

	r.mu.Lock()
	if e.doomed {
		r.mu.Unlock()
		conn.Close()
		e.err = errors.ConnectionClosed("server disconnected during connect")
		close(e.ready)
		r.logger.WithServer(e.identity.ID).Warn().Msg("Dial settled after a disconnect, closing the fresh connection.")
		return nil, e.err
	}
	e.conn = conn
	e.connectedAt = time.Now()
	r.mu.Unlock()

	metrics.ConnectedServers.Inc()
	if r.onEstablish != nil {
		r.onEstablish(ctx, e.conn)
	}
	close(e.ready)
	r.logger.WithServer(e.identity.ID).Info().Msg("Control connection established.")
	return e.conn, nil
}

func (r *Registry) removeEntry(id string, e *entry) {
	r.mu.Lock()
	if r.entries[id] == e {
		delete(r.entries, id)
	}
	r.mu.Unlock()
}

// Get returns the live connection for a server ID without dialing.
func (r *Registry) Get(id string) (*control.Conn, bool) {
	r.mu.Lock()
	e, ok := r.entries[id]
	r.mu.Unlock()
	if !ok {
		return nil, false
	}
	select {
	case <-e.ready:
	default:
		return nil, false
	}
	if e.err != nil || !e.conn.Connected() {
		return nil, false
	}
	return e.conn, true
}

// Disconnect closes the connection of a server and removes it from the
// Registry. All in-flight calls on it resolve with ConnectionClosed. A dial
// still in flight is marked doomed so its connection never goes live.
func (r *Registry) Disconnect(id string) {
	var conn *control.Conn
	r.mu.Lock()
	if e, ok := r.entries[id]; ok {
		delete(r.entries, id)
		if e.conn == nil {
			e.doomed = true
		}
		conn = e.conn
	}
	r.mu.Unlock()
	if conn == nil {
		return
	}
	conn.Close()
	metrics.ConnectedServers.Dec()
	r.logger.WithServer(id).Info().Msg("Control connection closed.")
}

// Invoke calls a remote method through the get-or-connect path. A broken
// connection detected by the failed call triggers a full disconnect and
// reconnect, then the original request is retried exactly once.
func (r *Registry) Invoke(ctx context.Context, identity entity.ServerIdentity, method string, args ...any) (json.RawMessage, error) {
	conn, cnerr := r.GetOrConnect(ctx, identity)
	if cnerr != nil {
		return nil, cnerr
	}
	res, callerr := conn.Call(ctx, method, args...)
	if callerr == nil || !isBrokenConn(callerr) {
		return res, callerr
	}

	r.logger.WithServer(identity.ID).Warn().Err(callerr).Msg("Call failed on a broken connection, reconnecting once.")
	r.Disconnect(identity.ID)
	conn, cnerr = r.GetOrConnect(ctx, identity)
	if cnerr != nil {
		return nil, cnerr
	}
	return conn.Call(ctx, method, args...)
}

// InvokeInto performs Invoke and decodes the result into dest.
func (r *Registry) InvokeInto(ctx context.Context, identity entity.ServerIdentity, dest any, method string, args ...any) error {
	raw, callerr := r.Invoke(ctx, identity, method, args...)
	if callerr != nil {
		return callerr
	}
	return json.Unmarshal(raw, dest)
}

// Shutdown closes every live connection. Used during graceful shutdown.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	for _, id := range ids {
		r.Disconnect(id)
	}
	return nil
}

// ConnectedAt returns when the server's current connection was established.
func (r *Registry) ConnectedAt(id string) (time.Time, bool) {
	r.mu.Lock()
	e, ok := r.entries[id]
	r.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	select {
	case <-e.ready:
	default:
		// Dial still in flight, nothing established yet.
		return time.Time{}, false
	}
	return e.connectedAt, e.err == nil && !e.connectedAt.IsZero()
}

// RemoteFault means the connection itself is healthy. Everything that looks
// like a dead socket triggers the reconnect-and-retry-once policy.
func isBrokenConn(err error) bool {
	return errors.IsKind(err, errors.KindConnectionClosed) ||
		errors.IsKind(err, errors.KindRequestTimeout)
}
