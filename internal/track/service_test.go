// Track service tests in Paddock.

package track

import (
	"Paddock/internal/control"
	"Paddock/internal/entity"
	"Paddock/internal/test"
	"Paddock/pkg/log"
	"Paddock/pkg/validation"
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

// Global instance of log.Logger to be used during track tests.
var logger log.Logger = log.New("test")

// Global context
var ctx context.Context = context.Background()

func init() {
	validation.RegisterCustomValidations()
}

// fakeRepo is an in-memory Repository for tests.
type fakeRepo struct {
	mu        sync.Mutex
	activeMap map[string]entity.ActiveMapRecord
	jukebox   map[string][]entity.JukeboxEntry
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		activeMap: make(map[string]entity.ActiveMapRecord),
		jukebox:   make(map[string][]entity.JukeboxEntry),
	}
}

func (r *fakeRepo) SetActiveMap(ctx context.Context, logger log.Logger, serverID string, rec entity.ActiveMapRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.activeMap[serverID] = rec
	return nil
}

func (r *fakeRepo) GetActiveMap(ctx context.Context, logger log.Logger, serverID string) (entity.ActiveMapRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activeMap[serverID], nil
}

func (r *fakeRepo) PushJukebox(ctx context.Context, logger log.Logger, serverID string, jbentry entity.JukeboxEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jukebox[serverID] = append(r.jukebox[serverID], jbentry)
	return nil
}

func (r *fakeRepo) PopJukebox(ctx context.Context, logger log.Logger, serverID string) (entity.JukeboxEntry, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	queue := r.jukebox[serverID]
	if len(queue) == 0 {
		return entity.JukeboxEntry{}, false, nil
	}
	head := queue[0]
	r.jukebox[serverID] = queue[1:]
	return head, true, nil
}

func (r *fakeRepo) UnshiftJukebox(ctx context.Context, logger log.Logger, serverID string, jbentry entity.JukeboxEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jukebox[serverID] = append([]entity.JukeboxEntry{jbentry}, r.jukebox[serverID]...)
	return nil
}

func (r *fakeRepo) ListJukebox(ctx context.Context, logger log.Logger, serverID string) ([]entity.JukeboxEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]entity.JukeboxEntry(nil), r.jukebox[serverID]...), nil
}

// fakeMeta counts lookups and returns canned metadata.
type fakeMeta struct {
	mu      sync.Mutex
	lookups int
	metas   []MapMeta
}

func (m *fakeMeta) LookupBatch(ctx context.Context, uids []string) ([]MapMeta, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups++
	return m.metas, nil
}

// fakeCaller satisfies control.Caller with canned per-method responses.
type fakeCaller struct {
	identity entity.ServerIdentity
	results  map[string]any
}

func (c fakeCaller) Identity() entity.ServerIdentity { return c.identity }

func (c fakeCaller) Call(ctx context.Context, method string, args ...any) (json.RawMessage, error) {
	raw, mrerr := json.Marshal(c.results[method])
	return raw, mrerr
}

func (c fakeCaller) CallInto(ctx context.Context, dest any, method string, args ...any) error {
	raw, callerr := c.Call(ctx, method, args...)
	if callerr != nil {
		return callerr
	}
	return json.Unmarshal(raw, dest)
}

// noConns is a ConnSource with no live connections.
type noConns struct{}

func (noConns) Get(id string) (*control.Conn, bool) { return nil, false }

func mapCaller() fakeCaller {
	return fakeCaller{
		identity: entity.ServerIdentity{ID: "tm-test-01", Host: "localhost", Port: 5000, Login: "tmserver", Password: "secret"},
		results: map[string]any{
			control.MethodGetCurrentMapInfo: map[string]any{
				"UId":        "abc123",
				"FileName":   "Campaign\\A01.Map.Gbx",
				"Name":       "A01",
				"Author":     "nadeo",
				"AuthorTime": 31234,
				"GoldTime":   33000,
			},
		},
	}
}

func TestSyncMapCreatesUnknownMapOnce(t *testing.T) {
	repo := newFakeRepo()
	gateway := test.NewFakeGateway()
	meta := &fakeMeta{metas: []MapMeta{{UID: "abc123", Thumbnail: "https://cdn/thumb.jpg", DownloadURL: "https://cdn/map.gbx"}}}
	emitter := &test.FakeEmitter{}
	svc := NewService(repo, gateway, meta, noConns{}, emitter, logger)

	rec, syncerr := svc.SyncMap(ctx, mapCaller())
	assert.Nil(t, syncerr)
	assert.Equal(t, "abc123", rec.UID)
	assert.Equal(t, "https://cdn/thumb.jpg", rec.Thumbnail)
	assert.Equal(t, 1, gateway.CreatedMaps)
	assert.Equal(t, 1, meta.lookups)

	// Same map again: no second create, no second metadata lookup, but the
	// dashboard still hears about the (re)sync.
	_, syncerr = svc.SyncMap(ctx, mapCaller())
	assert.Nil(t, syncerr)
	assert.Equal(t, 1, gateway.CreatedMaps)
	assert.Equal(t, 1, meta.lookups)
	assert.Len(t, emitter.ByName(entity.EventBeginMap), 2)

	cached, _ := repo.GetActiveMap(ctx, logger, "tm-test-01")
	assert.Equal(t, "abc123", cached.UID)
}

func TestSyncMapKnownMapSkipsCreation(t *testing.T) {
	repo := newFakeRepo()
	gateway := test.NewFakeGateway()
	gateway.Maps["abc123"] = entity.ActiveMapRecord{UID: "abc123", Name: "A01 (stored)"}
	meta := &fakeMeta{}
	svc := NewService(repo, gateway, meta, noConns{}, &test.FakeEmitter{}, logger)

	rec, syncerr := svc.SyncMap(ctx, mapCaller())
	assert.Nil(t, syncerr)
	assert.Equal(t, "A01 (stored)", rec.Name)
	assert.Equal(t, 0, gateway.CreatedMaps)
	assert.Equal(t, 0, meta.lookups)
}

func TestQueueMapValidation(t *testing.T) {
	svc := NewService(newFakeRepo(), test.NewFakeGateway(), &fakeMeta{}, noConns{}, &test.FakeEmitter{}, logger)

	queueerr := svc.QueueMap(ctx, "tm-test-01", &entity.JukeboxEntry{MapUID: "abc123"})
	assert.NotNil(t, queueerr)

	queueerr = svc.QueueMap(ctx, "tm-test-01", &entity.JukeboxEntry{MapUID: "abc123", FileName: "A01.Map.Gbx"})
	assert.Nil(t, queueerr)
}

func TestJukeboxKeepsPlayOrder(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, test.NewFakeGateway(), &fakeMeta{}, noConns{}, &test.FakeEmitter{}, logger)

	assert.Nil(t, svc.QueueMap(ctx, "tm-test-01", &entity.JukeboxEntry{MapUID: "uid-a", FileName: "A.Map.Gbx"}))
	assert.Nil(t, svc.QueueMap(ctx, "tm-test-01", &entity.JukeboxEntry{MapUID: "uid-b", FileName: "B.Map.Gbx"}))

	queue, jberr := svc.Jukebox(ctx, "tm-test-01")
	assert.Nil(t, jberr)
	assert.Len(t, queue, 2)
	assert.Equal(t, "uid-a", queue[0].MapUID)
	assert.Equal(t, "uid-b", queue[1].MapUID)
}

func TestOnPodiumStartEmptyJukeboxIsNoop(t *testing.T) {
	svc := NewService(newFakeRepo(), test.NewFakeGateway(), &fakeMeta{}, noConns{}, &test.FakeEmitter{}, logger)
	// With nothing queued the handler returns before touching the
	// connection, so the absent connection never matters.
	cb := control.Callback{Name: control.ScriptPodiumStart}
	assert.Nil(t, svc.OnPodiumStart(ctx, "tm-test-01", cb))
}

func TestOnPodiumStartWithoutConnectionKeepsQueue(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, test.NewFakeGateway(), &fakeMeta{}, noConns{}, &test.FakeEmitter{}, logger)
	assert.Nil(t, svc.QueueMap(ctx, "tm-test-01", &entity.JukeboxEntry{MapUID: "uid-a", FileName: "A.Map.Gbx"}))
	assert.Nil(t, svc.QueueMap(ctx, "tm-test-01", &entity.JukeboxEntry{MapUID: "uid-b", FileName: "B.Map.Gbx"}))

	cb := control.Callback{Name: control.ScriptPodiumStart}
	assert.NotNil(t, svc.OnPodiumStart(ctx, "tm-test-01", cb))

	// The popped entry went back to the head, the next podium plays it.
	queue, jberr := svc.Jukebox(ctx, "tm-test-01")
	assert.Nil(t, jberr)
	assert.Len(t, queue, 2)
	assert.Equal(t, "uid-a", queue[0].MapUID)
	assert.Equal(t, "uid-b", queue[1].MapUID)
}
