// Control connection tests in Paddock, run against an in-process fake
// dedicated server speaking the real wire protocol.

package control

import (
	"Paddock/internal/entity"
	"Paddock/internal/errors"
	"Paddock/pkg/log"
	"context"
	"encoding/binary"
	"encoding/json"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// Global instance of log.Logger to be used during control tests.
var logger log.Logger = log.New("test")

// Global context
var ctx context.Context = context.Background()

// fakeServer speaks the control protocol from the server side: greeting on
// accept, then answers every request frame. Per-method behavior can be
// overridden before dialing.
type fakeServer struct {
	t  *testing.T
	ln net.Listener

	mu      sync.Mutex
	socks   []net.Conn
	results map[string]any
	faults  map[string]fault
	hangs   map[string]bool
}

func startFakeServer(t *testing.T) *fakeServer {
	ln, lnerr := net.Listen("tcp", "127.0.0.1:0")
	if lnerr != nil {
		t.Fatalf("couldn't listen: %v", lnerr)
	}
	fs := &fakeServer{
		t:       t,
		ln:      ln,
		results: make(map[string]any),
		faults:  make(map[string]fault),
		hangs:   make(map[string]bool),
	}
	go fs.acceptLoop()
	t.Cleanup(fs.stop)
	return fs
}

func (fs *fakeServer) identity() entity.ServerIdentity {
	addr := fs.ln.Addr().(*net.TCPAddr)
	return entity.ServerIdentity{
		ID:       "tm-test-01",
		Host:     "127.0.0.1",
		Port:     addr.Port,
		Login:    "SuperAdmin",
		Password: "SuperAdmin",
	}
}

func (fs *fakeServer) stop() {
	fs.ln.Close()
	fs.mu.Lock()
	for _, sock := range fs.socks {
		sock.Close()
	}
	fs.mu.Unlock()
}

func (fs *fakeServer) acceptLoop() {
	for {
		sock, acerr := fs.ln.Accept()
		if acerr != nil {
			return
		}
		fs.mu.Lock()
		fs.socks = append(fs.socks, sock)
		fs.mu.Unlock()
		go fs.serve(sock)
	}
}

func (fs *fakeServer) serve(sock net.Conn) {
	banner := []byte(protocolGreeting)
	var size [4]byte
	binary.LittleEndian.PutUint32(size[:], uint32(len(banner)))
	sock.Write(size[:])
	sock.Write(banner)

	for {
		handle, payload, rderr := readFrame(sock)
		if rderr != nil {
			return
		}
		var req struct {
			Method string `json:"method"`
		}
		if umerr := json.Unmarshal(payload, &req); umerr != nil {
			continue
		}

		fs.mu.Lock()
		flt, isFault := fs.faults[req.Method]
		hang := fs.hangs[req.Method]
		result, hasResult := fs.results[req.Method]
		fs.mu.Unlock()

		if hang {
			continue
		}
		var resp []byte
		switch {
		case isFault:
			resp, _ = json.Marshal(map[string]any{"fault": map[string]any{
				"faultCode":   flt.Code,
				"faultString": flt.Message,
			}})
		case hasResult:
			resp, _ = json.Marshal(map[string]any{"result": result})
		default:
			resp = []byte(`{"result":true}`)
		}
		fs.write(sock, handle, resp)
	}
}

// push emits an unsolicited callback frame on the last accepted socket.
func (fs *fakeServer) push(name string, params ...any) {
	payload, _ := json.Marshal(map[string]any{"method": name, "params": params})
	fs.mu.Lock()
	sock := fs.socks[len(fs.socks)-1]
	fs.mu.Unlock()
	// Server-originated handles live below the client handle range.
	fs.write(sock, 0x80, payload)
}

func (fs *fakeServer) write(sock net.Conn, handle uint32, payload []byte) {
	fs.mu.Lock()
	writeFrame(sock, handle, payload)
	fs.mu.Unlock()
}

func TestDialAndCall(t *testing.T) {
	fs := startFakeServer(t)
	fs.mu.Lock()
	fs.results[MethodGetPlayerList] = []map[string]any{{"Login": "alice"}}
	fs.mu.Unlock()

	conn, dialerr := Dial(ctx, fs.identity(), logger, Options{})
	assert.Nil(t, dialerr)
	defer conn.Close()
	assert.True(t, conn.Connected())
	assert.Equal(t, "tm-test-01", conn.Identity().ID)

	var players []map[string]any
	callerr := conn.CallInto(ctx, &players, MethodGetPlayerList, -1, 0)
	assert.Nil(t, callerr)
	assert.Len(t, players, 1)
	assert.Equal(t, "alice", players[0]["Login"])
}

func TestCallRemoteFaultUnwrapped(t *testing.T) {
	fs := startFakeServer(t)
	fs.mu.Lock()
	fs.faults[MethodChooseNextMap] = fault{Code: 23, Message: "XML-RPC fault: Map not in the selection."}
	fs.mu.Unlock()

	conn, dialerr := Dial(ctx, fs.identity(), logger, Options{})
	assert.Nil(t, dialerr)
	defer conn.Close()

	_, callerr := conn.Call(ctx, MethodChooseNextMap, "bad.Map.Gbx")
	assert.True(t, errors.IsKind(callerr, errors.KindRemoteFault))
	cerr := callerr.(*errors.ConnError)
	assert.Equal(t, 23, cerr.Code)
	// The transport wrapper text never reaches callers.
	assert.Equal(t, "Map not in the selection.", cerr.Message)
}

func TestCallbackDelivery(t *testing.T) {
	fs := startFakeServer(t)
	conn, dialerr := Dial(ctx, fs.identity(), logger, Options{})
	assert.Nil(t, dialerr)
	defer conn.Close()

	fs.push(CbPlayerConnect, "alice", false)

	select {
	case cb := <-conn.Callbacks():
		assert.Equal(t, CbPlayerConnect, cb.Name)
		var login string
		assert.Nil(t, json.Unmarshal(cb.Params[0], &login))
		assert.Equal(t, "alice", login)
	case <-time.After(2 * time.Second):
		t.Fatal("callback never arrived")
	}
}

func TestRequestTimeout(t *testing.T) {
	fs := startFakeServer(t)
	fs.mu.Lock()
	fs.hangs[MethodGetCurrentMapInfo] = true
	fs.mu.Unlock()

	conn, dialerr := Dial(ctx, fs.identity(), logger, Options{CallTimeout: 200 * time.Millisecond})
	assert.Nil(t, dialerr)
	defer conn.Close()

	_, callerr := conn.Call(ctx, MethodGetCurrentMapInfo)
	assert.True(t, errors.IsKind(callerr, errors.KindRequestTimeout))
	// The connection survives a single slow call.
	assert.True(t, conn.Connected())
}

func TestCloseFailsPendingCalls(t *testing.T) {
	fs := startFakeServer(t)
	fs.mu.Lock()
	fs.hangs[MethodGetCurrentMapInfo] = true
	fs.mu.Unlock()

	conn, dialerr := Dial(ctx, fs.identity(), logger, Options{})
	assert.Nil(t, dialerr)

	callerrs := make(chan error, 1)
	go func() {
		_, callerr := conn.Call(ctx, MethodGetCurrentMapInfo)
		callerrs <- callerr
	}()
	time.Sleep(100 * time.Millisecond)
	conn.Close()

	select {
	case callerr := <-callerrs:
		assert.True(t, errors.IsKind(callerr, errors.KindConnectionClosed))
	case <-time.After(2 * time.Second):
		t.Fatal("pending call never resolved")
	}
	assert.False(t, conn.Connected())

	// The callback stream closes on teardown too.
	select {
	case _, open := <-conn.Callbacks():
		assert.False(t, open)
	case <-time.After(2 * time.Second):
		t.Fatal("callback stream never closed")
	}
}

func TestCallAfterCloseFailsFast(t *testing.T) {
	fs := startFakeServer(t)
	conn, dialerr := Dial(ctx, fs.identity(), logger, Options{})
	assert.Nil(t, dialerr)

	conn.Close()
	// Give the read loop a moment to finish its teardown.
	for i := 0; i < 50 && conn.Connected(); i++ {
		time.Sleep(10 * time.Millisecond)
	}

	_, callerr := conn.Call(ctx, MethodGetPlayerList, -1, 0)
	assert.True(t, errors.IsKind(callerr, errors.KindConnectionClosed))
}

func TestDialAuthenticationFailed(t *testing.T) {
	fs := startFakeServer(t)
	fs.mu.Lock()
	fs.faults[MethodAuthenticate] = fault{Code: -1000, Message: "Login or password invalid."}
	fs.mu.Unlock()

	conn, dialerr := Dial(ctx, fs.identity(), logger, Options{})
	assert.Nil(t, conn)
	assert.True(t, errors.IsKind(dialerr, errors.KindAuthenticationFailed))
}

func TestDialConnectionRefused(t *testing.T) {
	// Reserve a port, then free it so nobody listens there.
	ln, lnerr := net.Listen("tcp", "127.0.0.1:0")
	assert.Nil(t, lnerr)
	addr := ln.Addr().(*net.TCPAddr)
	ln.Close()

	identity := entity.ServerIdentity{
		ID:       "tm-test-02",
		Host:     "127.0.0.1",
		Port:     addr.Port,
		Login:    "SuperAdmin",
		Password: "SuperAdmin",
	}
	conn, dialerr := Dial(ctx, identity, logger, Options{DialTimeout: time.Second})
	assert.Nil(t, conn)
	assert.True(t, errors.IsConnError(dialerr))
}
