// Connection manager for one dedicated server: dial, handshake, request
// correlation and the read loop feeding the callback dispatcher.

package control

import (
	"Paddock/internal/entity"
	"Paddock/internal/errors"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	stderrors "errors"

	"Paddock/pkg/log"
)

// Options tune one control connection. Zero values fall back to defaults.
type Options struct {
	DialTimeout    time.Duration
	CallTimeout    time.Duration
	APIVersion     string
	CallbackBuffer int
}

func (o Options) withDefaults() Options {
	if o.DialTimeout == 0 {
		o.DialTimeout = 5 * time.Second
	}
	if o.CallTimeout == 0 {
		o.CallTimeout = 10 * time.Second
	}
	if o.APIVersion == "" {
		o.APIVersion = "2023-04-16"
	}
	if o.CallbackBuffer == 0 {
		o.CallbackBuffer = 256
	}
	return o
}

// Caller is the narrow calling surface the event translators depend on.
// Satisfied by *Conn and by the in-memory fakes used in tests.
type Caller interface {
	Identity() entity.ServerIdentity
	Call(ctx context.Context, method string, args ...any) (json.RawMessage, error)
	CallInto(ctx context.Context, dest any, method string, args ...any) error
}

type pendingResult struct {
	resp response
	err  error
}

// Conn owns the persistent control socket of one dedicated server.
// At most one Conn exists per ServerIdentity, enforced by fleet.Registry.
type Conn struct {
	identity entity.ServerIdentity
	logger   log.Logger
	opts     Options
	sock     net.Conn

	writeMu sync.Mutex
	handle  uint32

	pendingMu sync.Mutex
	pending   map[uint32]chan pendingResult
	broken    bool

	callbacks chan Callback
	done      chan struct{}
	closeOnce sync.Once
	connected atomic.Bool
}

// Dial opens the control socket of identity, verifies the protocol greeting,
// authenticates, negotiates the API version and enables server-side callback
// emission. The returned Conn is ready for Call and its callback stream is
// already flowing.
func Dial(ctx context.Context, identity entity.ServerIdentity, logger log.Logger, opts Options) (*Conn, error) {
	opts = opts.withDefaults()
	dialer := net.Dialer{Timeout: opts.DialTimeout}
	sock, dialerr := dialer.DialContext(ctx, "tcp", identity.Addr())
	if dialerr != nil {
		if nerr, ok := dialerr.(net.Error); ok && nerr.Timeout() {
			return nil, errors.ConnectionTimeout(fmt.Sprintf("dialing %s: %v", identity.Addr(), dialerr))
		}
		if stderrors.Is(dialerr, syscall.ECONNREFUSED) {
			return nil, errors.ConnectionRefused(fmt.Sprintf("dialing %s: %v", identity.Addr(), dialerr))
		}
		return nil, errors.ConnectionRefused(fmt.Sprintf("dialing %s: %v", identity.Addr(), dialerr))
	}

	// The greeting must arrive within the dial window too.
	sock.SetReadDeadline(time.Now().Add(opts.DialTimeout))
	if grerr := readGreeting(sock); grerr != nil {
		sock.Close()
		return nil, errors.ConnectionRefused(grerr.Error())
	}
	sock.SetReadDeadline(time.Time{})

	c := &Conn{
		identity:  identity,
		logger:    logger.WithServer(identity.ID),
		opts:      opts,
		sock:      sock,
		handle:    clientHandleBase,
		pending:   make(map[uint32]chan pendingResult),
		callbacks: make(chan Callback, opts.CallbackBuffer),
		done:      make(chan struct{}),
	}
	c.connected.Store(true)
	go c.readLoop()

	if hserr := c.handshake(ctx); hserr != nil {
		c.Close()
		return nil, hserr
	}
	return c, nil
}

// handshake authenticates and switches the server into callback mode.
func (c *Conn) handshake(ctx context.Context) error {
	if _, autherr := c.Call(ctx, MethodAuthenticate, c.identity.Login, c.identity.Password); autherr != nil {
		if errors.IsKind(autherr, errors.KindRemoteFault) {
			return errors.AuthenticationFailed(autherr.(*errors.ConnError).Message)
		}
		return autherr
	}
	if _, verr := c.Call(ctx, MethodSetApiVersion, c.opts.APIVersion); verr != nil {
		return verr
	}
	if _, cberr := c.Call(ctx, MethodEnableCallbacks, true); cberr != nil {
		return cberr
	}
	return nil
}

// Identity returns the immutable identity this connection was dialed with.
func (c *Conn) Identity() entity.ServerIdentity {
	return c.identity
}

// Connected reports whether the socket is still believed to be healthy.
func (c *Conn) Connected() bool {
	return c.connected.Load()
}

// Callbacks returns the stream of unsolicited events pushed by the server.
// The channel is closed when the connection tears down.
func (c *Conn) Callbacks() <-chan Callback {
	return c.callbacks
}

// Call sends one request frame and waits for the correlated response.
// Concurrent calls are safe; writes are serialized, responses are matched by
// handle. Fails with RequestTimeout when no response arrives in time, with
// RemoteFault when the server answers with a protocol-level error and with
// ConnectionClosed when the connection tears down mid-flight.
func (c *Conn) Call(ctx context.Context, method string, args ...any) (json.RawMessage, error) {
	if args == nil {
		args = []any{}
	}
	payload, mrerr := json.Marshal(request{Method: method, Params: args})
	if mrerr != nil {
		return nil, errors.New(fmt.Sprintf("couldn't encode request %s: %v", method, mrerr))
	}

	handle := atomic.AddUint32(&c.handle, 1)
	result := make(chan pendingResult, 1)

	c.pendingMu.Lock()
	if c.broken {
		c.pendingMu.Unlock()
		return nil, errors.ConnectionClosed("")
	}
	c.pending[handle] = result
	c.pendingMu.Unlock()

	c.writeMu.Lock()
	c.sock.SetWriteDeadline(time.Now().Add(c.opts.CallTimeout))
	wrerr := writeFrame(c.sock, handle, payload)
	c.writeMu.Unlock()
	if wrerr != nil {
		// A failed write means the socket is gone. Tear down so the
		// registry's next get-or-connect rebuilds the connection.
		c.unregister(handle)
		c.Close()
		return nil, errors.ConnectionClosed(wrerr.Error())
	}

	timer := time.NewTimer(c.opts.CallTimeout)
	defer timer.Stop()
	select {
	case res := <-result:
		if res.err != nil {
			return nil, res.err
		}
		if res.resp.Fault != nil {
			return nil, errors.RemoteFault(res.resp.Fault.Code, res.resp.Fault.Unwrap())
		}
		return res.resp.Result, nil
	case <-timer.C:
		c.unregister(handle)
		return nil, errors.RequestTimeout(fmt.Sprintf("no response for %s within %s", method, c.opts.CallTimeout))
	case <-ctx.Done():
		c.unregister(handle)
		return nil, errors.ConnectionClosed(ctx.Err().Error())
	}
}

// CallInto performs Call and decodes the result into dest.
func (c *Conn) CallInto(ctx context.Context, dest any, method string, args ...any) error {
	raw, callerr := c.Call(ctx, method, args...)
	if callerr != nil {
		return callerr
	}
	if umerr := json.Unmarshal(raw, dest); umerr != nil {
		return errors.New(fmt.Sprintf("couldn't decode response of %s: %v", method, umerr))
	}
	return nil
}

// Close tears the connection down: the socket is closed, the read loop
// exits, every in-flight call resolves with ConnectionClosed and the
// callback channel is closed.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.connected.Store(false)
		close(c.done)
		c.sock.Close()
	})
	return nil
}

func (c *Conn) unregister(handle uint32) {
	c.pendingMu.Lock()
	delete(c.pending, handle)
	c.pendingMu.Unlock()
}

// readLoop is the single reader of the socket. It splits inbound frames into
// responses (routed to the matching pending call) and callbacks (pushed to
// the dispatcher's channel in arrival order).
func (c *Conn) readLoop() {
	defer c.teardown()
	for {
		handle, payload, rderr := readFrame(c.sock)
		if rderr != nil {
			select {
			case <-c.done:
				// Expected, Close() pulled the socket away.
			default:
				c.logger.Warn().Err(rderr).Msg("Control socket read failed, tearing connection down.")
			}
			return
		}

		if isResponseHandle(handle) {
			var resp response
			if umerr := json.Unmarshal(payload, &resp); umerr != nil {
				c.logger.Error().Err(umerr).Msg("Couldn't decode response frame, skipping it.")
				continue
			}
			c.pendingMu.Lock()
			result, ok := c.pending[handle]
			delete(c.pending, handle)
			c.pendingMu.Unlock()
			if ok {
				result <- pendingResult{resp: resp}
			}
			continue
		}

		var cb Callback
		if umerr := json.Unmarshal(payload, &cb); umerr != nil {
			c.logger.Error().Err(umerr).Msg("Couldn't decode callback frame, skipping it.")
			continue
		}
		select {
		case c.callbacks <- cb:
		case <-c.done:
			return
		}
	}
}

// teardown cancels all in-flight requests and closes the callback stream.
func (c *Conn) teardown() {
	c.connected.Store(false)
	c.Close()

	c.pendingMu.Lock()
	c.broken = true
	for handle, result := range c.pending {
		delete(c.pending, handle)
		result <- pendingResult{err: errors.ConnectionClosed("")}
	}
	c.pendingMu.Unlock()

	close(c.callbacks)
}
