package kraken

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultPairsURL is Kraken's public reference data endpoint.
const DefaultPairsURL = "https://api.kraken.com/0/public/AssetPairs"

// PairsClient resolves tradable pair names against the venue's
// reference data. Results are cached so the endpoint is hit at most
// once per TTL.
type PairsClient struct {
	url  string
	ttl  time.Duration
	http *http.Client

	mu        sync.Mutex
	known     map[string]struct{}
	fetchedAt time.Time
}

func NewPairsClient(url string, ttl time.Duration) *PairsClient {
	if url == "" {
		url = DefaultPairsURL
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &PairsClient{
		url:  url,
		ttl:  ttl,
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

type assetPairsResponse struct {
	Error  []string `json:"error"`
	Result map[string]struct {
		WSName string `json:"wsname"`
	} `json:"result"`
}

// Known reports whether the venue lists the pair. A stale cache is
// refreshed first; a refresh failure is returned so the caller can fall
// back to format-only validation.
func (p *PairsClient) Known(ctx context.Context, pair string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.known == nil || time.Since(p.fetchedAt) > p.ttl {
		if err := p.refresh(ctx); err != nil {
			return false, err
		}
	}
	_, ok := p.known[pair]
	return ok, nil
}

// refresh reloads the wsname set. Callers must hold p.mu.
func (p *PairsClient) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return err
	}
	resp, err := p.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("asset pairs request: status %d", resp.StatusCode)
	}

	var decoded assetPairsResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return err
	}
	if len(decoded.Error) > 0 {
		return fmt.Errorf("asset pairs request: %v", decoded.Error)
	}

	known := make(map[string]struct{}, len(decoded.Result))
	for _, entry := range decoded.Result {
		if entry.WSName != "" {
			known[entry.WSName] = struct{}{}
		}
	}
	p.known = known
	p.fetchedAt = time.Now()

	log.Info().Int("pairs", len(known)).Msg("refreshed tradable pairs")
	return nil
}
