package semantic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/WessleyAI/docqa/engine/domain"
)

// OpenSearch is a Collection backed by an OpenSearch k-NN index. Documents
// have the fields text, vector_field, source_file and timestamp_ms.
type OpenSearch struct {
	baseURL  string
	index    string
	username string
	password string
	client   *http.Client

	mu  sync.Mutex
	dim int
}

var _ Collection = (*OpenSearch)(nil)

// OpenSearchConfig configures NewOpenSearch.
type OpenSearchConfig struct {
	URL      string
	Index    string
	Username string
	Password string
	Client   *http.Client
}

func NewOpenSearch(cfg OpenSearchConfig) *OpenSearch {
	c := cfg.Client
	if c == nil {
		c = &http.Client{Timeout: 30 * time.Second}
	}
	return &OpenSearch{
		baseURL:  strings.TrimRight(cfg.URL, "/"),
		index:    cfg.Index,
		username: cfg.Username,
		password: cfg.Password,
		client:   c,
	}
}

func (o *OpenSearch) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, o.baseURL+path, r)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if o.username != "" {
		req.SetBasicAuth(o.username, o.password)
	}
	return o.client.Do(req)
}

func statusError(op string, resp *http.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return fmt.Errorf("semantic: %s failed (%d): %s", op, resp.StatusCode, bytes.TrimSpace(msg))
}

// EnsureIndex creates the k-NN index with a cosine vector_field if missing.
func (o *OpenSearch) EnsureIndex(ctx context.Context, dims int) error {
	if dims <= 0 {
		return fmt.Errorf("semantic: ensure index %s: dimension must be positive, got %d", o.index, dims)
	}
	resp, err := o.do(ctx, http.MethodHead, "/"+o.index, nil)
	if err != nil {
		return fmt.Errorf("semantic: check index %s: %w", o.index, err)
	}
	resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		return nil
	}

	mapping := map[string]any{
		"settings": map[string]any{"index.knn": true},
		"mappings": map[string]any{
			"properties": map[string]any{
				"text":         map[string]string{"type": "text"},
				"source_file":  map[string]string{"type": "keyword"},
				"timestamp_ms": map[string]string{"type": "date", "format": "epoch_millis"},
				"vector_field": map[string]any{
					"type":      "knn_vector",
					"dimension": dims,
					"method": map[string]any{
						"name":       "hnsw",
						"space_type": "cosinesimil",
						"engine":     "lucene",
					},
				},
			},
		},
	}
	resp, err = o.do(ctx, http.MethodPut, "/"+o.index, mapping)
	if err != nil {
		return fmt.Errorf("semantic: create index %s: %w", o.index, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return statusError("create index", resp)
	}
	o.mu.Lock()
	o.dim = dims
	o.mu.Unlock()
	return nil
}

// Dimension reads vector_field's dimension from the index mapping. A missing
// index reports 0.
func (o *OpenSearch) Dimension(ctx context.Context) (int, error) {
	o.mu.Lock()
	dim := o.dim
	o.mu.Unlock()
	if dim > 0 {
		return dim, nil
	}

	resp, err := o.do(ctx, http.MethodGet, "/"+o.index+"/_mapping", nil)
	if err != nil {
		return 0, fmt.Errorf("semantic: mapping %s: %w", o.index, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return 0, nil
	}
	if resp.StatusCode != http.StatusOK {
		return 0, statusError("get mapping", resp)
	}

	var mappings map[string]struct {
		Mappings struct {
			Properties struct {
				Vector struct {
					Dimension int `json:"dimension"`
				} `json:"vector_field"`
			} `json:"properties"`
		} `json:"mappings"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&mappings); err != nil {
		return 0, fmt.Errorf("semantic: decode mapping: %w", err)
	}
	dim = mappings[o.index].Mappings.Properties.Vector.Dimension
	if dim > 0 {
		o.mu.Lock()
		o.dim = dim
		o.mu.Unlock()
	}
	return dim, nil
}

// Append indexes rec as a new document; OpenSearch assigns the id.
func (o *OpenSearch) Append(ctx context.Context, rec domain.IndexRecord) error {
	resp, err := o.do(ctx, http.MethodPost, "/"+o.index+"/_doc?refresh=wait_for", rec)
	if err != nil {
		return fmt.Errorf("semantic: append %s: %w", rec.SourceFile, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return statusError("append "+rec.SourceFile, resp)
	}
	return nil
}

// Query runs a k-NN query on vector_field.
func (o *OpenSearch) Query(ctx context.Context, vector []float32, k int) ([]domain.Hit, error) {
	if k <= 0 {
		return []domain.Hit{}, nil
	}
	query := map[string]any{
		"size":    k,
		"_source": []string{"text", "source_file", "timestamp_ms"},
		"query": map[string]any{
			"knn": map[string]any{
				"vector_field": map[string]any{"vector": vector, "k": k},
			},
		},
	}
	resp, err := o.do(ctx, http.MethodPost, "/"+o.index+"/_search", query)
	if err != nil {
		return nil, fmt.Errorf("semantic: search: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, statusError("search", resp)
	}

	var out struct {
		Hits struct {
			Hits []struct {
				Score  float32            `json:"_score"`
				Source domain.IndexRecord `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("semantic: decode search: %w", err)
	}
	hits := make([]domain.Hit, 0, len(out.Hits.Hits))
	for _, h := range out.Hits.Hits {
		hits = append(hits, domain.Hit{Record: h.Source, Score: h.Score})
	}
	return hits, nil
}
