// HTTP implementation of the Gateway, talking to the CRUD collaborator's
// REST surface. Paddock owns no schema, it only moves records across.

package crud

import (
	"Paddock/internal/entity"
	"Paddock/pkg/log"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type httpGateway struct {
	http    *http.Client
	baseURL string
	logger  log.Logger
}

// NewHTTPGateway returns a Gateway rooted at the collaborator's base URL.
func NewHTTPGateway(baseURL string, logger log.Logger) Gateway {
	return &httpGateway{
		http:    &http.Client{Timeout: 15 * time.Second},
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
	}
}

func (g *httpGateway) FindMapByUID(ctx context.Context, uid string) (entity.ActiveMapRecord, bool, error) {
	var rec entity.ActiveMapRecord
	endpoint := g.baseURL + "/maps/" + url.PathEscape(uid)
	req, rqerr := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if rqerr != nil {
		return rec, false, rqerr
	}
	resp, herr := g.http.Do(req)
	if herr != nil {
		return rec, false, herr
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return rec, false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return rec, false, fmt.Errorf("map lookup returned status %d", resp.StatusCode)
	}
	if dcerr := json.NewDecoder(resp.Body).Decode(&rec); dcerr != nil {
		return rec, false, dcerr
	}
	return rec, true, nil
}

func (g *httpGateway) CreateMap(ctx context.Context, rec entity.ActiveMapRecord) error {
	return g.post(ctx, "/maps", rec)
}

func (g *httpGateway) CreateRecord(ctx context.Context, candidate entity.RecordCandidate) error {
	return g.post(ctx, "/records", candidate)
}

func (g *httpGateway) CreateAdminCommandNotification(ctx context.Context, cmd entity.AdminCommand) error {
	return g.post(ctx, "/admin-commands", cmd)
}

func (g *httpGateway) post(ctx context.Context, path string, body any) error {
	payload, mrerr := json.Marshal(body)
	if mrerr != nil {
		return mrerr
	}
	req, rqerr := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(payload))
	if rqerr != nil {
		return rqerr
	}
	req.Header.Set("Content-Type", "application/json")
	resp, herr := g.http.Do(req)
	if herr != nil {
		return herr
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("crud call %s returned status %d", path, resp.StatusCode)
	}
	return nil
}
