package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"mesh-agent/internal/models"
)

// ESSearcher is the Elasticsearch-backed free-text containment search over
// product name/alias/size fields.
type ESSearcher struct {
	client *elasticsearch.Client
	index  string
}

func NewESSearcher(client *elasticsearch.Client, index string) *ESSearcher {
	return &ESSearcher{client: client, index: index}
}

func (s *ESSearcher) Search(ctx context.Context, query string) ([]models.Product, error) {
	body := map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"should": []map[string]interface{}{
					{"match": map[string]interface{}{"name": query}},
					{"match": map[string]interface{}{"alias": query}},
					{"match": map[string]interface{}{"size_text": query}},
				},
				"minimum_should_match": 1,
				"filter": []map[string]interface{}{
					{"term": map[string]interface{}{"active": true}},
				},
			},
		},
	}

	raw, _ := json.Marshal(body)
	size := 50
	req := esapi.SearchRequest{
		Index: []string{s.index},
		Body:  strings.NewReader(string(raw)),
		Size:  &size,
	}

	res, err := req.Do(ctx, s.client)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("search failed: %s", res.Status())
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				Source models.Product `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	out := make([]models.Product, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		out = append(out, hit.Source)
	}
	return out, nil
}
