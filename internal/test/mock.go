// Mock methods required in Paddock tests are all here.

package test

import (
	"Paddock/internal/entity"
	"context"
	"os"
	"sync"

	"github.com/gin-gonic/gin"
)

// Global instance of gin MockRouter to be used during API testing.
var testRouter *gin.Engine

// Singleton to make sure testRouter is initialized only once.
var once sync.Once

func MockRouter() *gin.Engine {
	once.Do(func() {
		// Initializing the gin test server
		ginMode := os.Getenv("GIN_MODE")
		gin.SetMode(ginMode)
		testRouter = gin.Default()
	})
	return testRouter
}

// FakeGateway is an in-memory stand-in for the CRUD collaborator, recording
// every call so tests can assert on exactly-once side effects.
type FakeGateway struct {
	mu sync.Mutex

	Maps          map[string]entity.ActiveMapRecord
	Records       []entity.RecordCandidate
	AdminCommands []entity.AdminCommand
	CreatedMaps   int
}

func NewFakeGateway() *FakeGateway {
	return &FakeGateway{Maps: make(map[string]entity.ActiveMapRecord)}
}

func (g *FakeGateway) FindMapByUID(ctx context.Context, uid string) (entity.ActiveMapRecord, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	rec, found := g.Maps[uid]
	return rec, found, nil
}

func (g *FakeGateway) CreateMap(ctx context.Context, rec entity.ActiveMapRecord) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Maps[rec.UID] = rec
	g.CreatedMaps++
	return nil
}

func (g *FakeGateway) CreateRecord(ctx context.Context, candidate entity.RecordCandidate) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Records = append(g.Records, candidate)
	return nil
}

func (g *FakeGateway) CreateAdminCommandNotification(ctx context.Context, cmd entity.AdminCommand) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.AdminCommands = append(g.AdminCommands, cmd)
	return nil
}

// FakeEmitter records live messages published during a test.
type FakeEmitter struct {
	mu       sync.Mutex
	Messages []entity.LiveMessage
}

func (e *FakeEmitter) Publish(msg entity.LiveMessage) {
	e.mu.Lock()
	e.Messages = append(e.Messages, msg)
	e.mu.Unlock()
}

// ByName returns the published messages carrying the given event name.
func (e *FakeEmitter) ByName(name string) []entity.LiveMessage {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []entity.LiveMessage
	for _, msg := range e.Messages {
		if msg.Name == name {
			out = append(out, msg)
		}
	}
	return out
}
