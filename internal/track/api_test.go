// Jukebox API tests in Paddock.

package track

import (
	"Paddock/internal/entity"
	"Paddock/internal/errors"
	"Paddock/internal/test"
	"bytes"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
)

// Global instance of gin MockRouter to be used during track API testing.
var mockRouter *gin.Engine

// fakeDirectory knows a single server.
type fakeDirectory struct{}

func (fakeDirectory) Identity(id string) (entity.ServerIdentity, error) {
	if id != "tm-eu-01" {
		return entity.ServerIdentity{}, errors.NotFound("Unknown server: " + id)
	}
	return entity.ServerIdentity{ID: id, Host: "localhost", Port: 5000, Login: "SuperAdmin", Password: "SuperAdmin"}, nil
}

// Helper to build up a mock router instance for testing Paddock.
func setupMockRouter(t *testing.T) {
	if mockRouter != nil {
		return
	}
	mockRouter = test.MockRouter()
	// The real service runs on top of in-memory fakes.
	service := NewService(newFakeRepo(), test.NewFakeGateway(), &fakeMeta{}, noConns{}, &test.FakeEmitter{}, logger)
	// Register internal package track handlers
	APIHandlers(mockRouter, service, fakeDirectory{}, logger)
}

func TestJukeboxListAPI(t *testing.T) {
	setupMockRouter(t)
	request := test.RequestAPITest{
		Method:       http.MethodGet,
		Path:         "/api/fleet/tm-eu-01/jukebox",
		Body:         bytes.NewReader(nil),
		WantResponse: []int{http.StatusOK},
	}
	test.ExecuteAPITest(logger, t, mockRouter, request)
}

func TestJukeboxQueueAPI(t *testing.T) {
	setupMockRouter(t)
	body, _ := json.Marshal(entity.JukeboxEntry{MapUID: "abc123", FileName: "A01.Map.Gbx", QueuedBy: "admin"})
	request := test.RequestAPITest{
		Method:       http.MethodPost,
		Path:         "/api/fleet/tm-eu-01/jukebox",
		Body:         bytes.NewReader(body),
		WantResponse: []int{http.StatusCreated},
		Headers:      map[string]string{"Content-Type": "application/json"},
	}
	test.ExecuteAPITest(logger, t, mockRouter, request)
}

func TestJukeboxQueueAPIInvalidEntry(t *testing.T) {
	setupMockRouter(t)
	// Missing map filename fails the entity validation tags.
	body, _ := json.Marshal(map[string]string{"map_uid": "abc123"})
	request := test.RequestAPITest{
		Method:       http.MethodPost,
		Path:         "/api/fleet/tm-eu-01/jukebox",
		Body:         bytes.NewReader(body),
		WantResponse: []int{http.StatusBadRequest},
		Headers:      map[string]string{"Content-Type": "application/json"},
	}
	test.ExecuteAPITest(logger, t, mockRouter, request)
}

func TestJukeboxAPIUnknownServer(t *testing.T) {
	setupMockRouter(t)
	request := test.RequestAPITest{
		Method:       http.MethodGet,
		Path:         "/api/fleet/tm-ghost/jukebox",
		Body:         bytes.NewReader(nil),
		WantResponse: []int{http.StatusNotFound},
	}
	test.ExecuteAPITest(logger, t, mockRouter, request)
}
