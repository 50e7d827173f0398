// Client of the cloud-provisioning HTTP API. Paddock only moves requests,
// the ordering rules of the provisioning workflow (network before database
// before server) belong to the collaborator driving this client.
// Every request leaves the process through the distributed rate limiter.

package provision

import (
	"Paddock/internal/ratelimit"
	"Paddock/pkg/log"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// NetworkRequest asks the provider for a private network.
type NetworkRequest struct {
	Name   string `json:"name"`
	Region string `json:"region"`
}

// DatabaseRequest asks the provider for a managed database.
type DatabaseRequest struct {
	Name      string `json:"name"`
	NetworkID string `json:"network_id"`
}

// ServerRequest asks the provider for a dedicated-server machine.
type ServerRequest struct {
	Name      string `json:"name"`
	NetworkID string `json:"network_id"`
	Plan      string `json:"plan"`
}

// Resource is the provider's handle for anything it created.
type Resource struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type Client interface {
	CreateNetwork(ctx context.Context, req NetworkRequest) (Resource, error)
	CreateDatabase(ctx context.Context, req DatabaseRequest) (Resource, error)
	CreateServer(ctx context.Context, req ServerRequest) (Resource, error)
}

type client struct {
	http    *http.Client
	baseURL string
	token   string
	limiter *ratelimit.Limiter
	logger  log.Logger
}

// NewClient returns a provisioning client rooted at baseURL whose every
// call is guarded by limiter.
func NewClient(baseURL, token string, limiter *ratelimit.Limiter, logger log.Logger) Client {
	return &client{
		http:    &http.Client{Timeout: 30 * time.Second},
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		limiter: limiter,
		logger:  logger,
	}
}

func (c *client) CreateNetwork(ctx context.Context, req NetworkRequest) (Resource, error) {
	return c.post(ctx, "/v1/networks", req)
}

func (c *client) CreateDatabase(ctx context.Context, req DatabaseRequest) (Resource, error) {
	return c.post(ctx, "/v1/databases", req)
}

func (c *client) CreateServer(ctx context.Context, req ServerRequest) (Resource, error) {
	return c.post(ctx, "/v1/servers", req)
}

func (c *client) post(ctx context.Context, path string, body any) (Resource, error) {
	var resource Resource
	lmerr := c.limiter.Do(ctx, func(ctx context.Context) error {
		payload, mrerr := json.Marshal(body)
		if mrerr != nil {
			return mrerr
		}
		req, rqerr := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
		if rqerr != nil {
			return rqerr
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.token)

		resp, herr := c.http.Do(req)
		if herr != nil {
			return herr
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
			return fmt.Errorf("provisioning call %s returned status %d", path, resp.StatusCode)
		}
		return json.NewDecoder(resp.Body).Decode(&resource)
	})
	if lmerr != nil {
		c.logger.WithCtx(ctx).Error().Err(lmerr).Msg(fmt.Sprintf("Provisioning call %s failed.", path))
		return Resource{}, lmerr
	}
	return resource, nil
}
