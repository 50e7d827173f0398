// Client of the external map-metadata API. Every request leaves the process
// through the distributed rate limiter, the metadata provider enforces a
// fleet-wide quota.

package track

import (
	"Paddock/internal/ratelimit"
	"Paddock/pkg/log"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// MapMeta is one metadata record as returned by the provider.
type MapMeta struct {
	UID         string `json:"uid"`
	Name        string `json:"name"`
	Author      string `json:"author"`
	AuthorTime  int    `json:"author_time"`
	GoldTime    int    `json:"gold_time"`
	Thumbnail   string `json:"thumbnail_url"`
	DownloadURL string `json:"download_url"`
}

// MetadataClient looks map metadata up by unique id batch.
type MetadataClient interface {
	LookupBatch(ctx context.Context, uids []string) ([]MapMeta, error)
}

type metadataClient struct {
	http    *http.Client
	baseURL string
	limiter *ratelimit.Limiter
	logger  log.Logger
}

// NewMetadataClient returns a metadata client rooted at baseURL whose every
// call is guarded by limiter.
func NewMetadataClient(baseURL string, limiter *ratelimit.Limiter, logger log.Logger) MetadataClient {
	return &metadataClient{
		http:    &http.Client{Timeout: 15 * time.Second},
		baseURL: strings.TrimSuffix(baseURL, "/"),
		limiter: limiter,
		logger:  logger,
	}
}

func (c *metadataClient) LookupBatch(ctx context.Context, uids []string) ([]MapMeta, error) {
	var metas []MapMeta
	lmerr := c.limiter.Do(ctx, func(ctx context.Context) error {
		endpoint := c.baseURL + "/api/maps?uids=" + url.QueryEscape(strings.Join(uids, ","))
		req, rqerr := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if rqerr != nil {
			return rqerr
		}
		resp, herr := c.http.Do(req)
		if herr != nil {
			return herr
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("metadata lookup returned status %d", resp.StatusCode)
		}
		return json.NewDecoder(resp.Body).Decode(&metas)
	})
	if lmerr != nil {
		c.logger.WithCtx(ctx).Error().Err(lmerr).Msg("Metadata batch lookup failed.")
		return nil, lmerr
	}
	return metas, nil
}
