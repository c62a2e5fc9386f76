package weaviate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/syntropic/vecfeed/vectordb"
)

// DefaultQueryLimit caps NearText results when the caller passes no
// limit.
const DefaultQueryLimit = 5

type graphqlRequest struct {
	Query string `json:"query"`
}

type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// graphql posts one query and decodes the data payload into out.
// GraphQL-level errors arrive with HTTP 200, so they are checked here
// rather than in the status classifier.
func (c *Client) graphql(ctx context.Context, query string, out any) error {
	var resp graphqlResponse
	if err := c.do(ctx, http.MethodPost, "/v1/graphql", graphqlRequest{Query: query}, &resp); err != nil {
		return err
	}
	if len(resp.Errors) > 0 {
		return fmt.Errorf("%w: graphql: %s", vectordb.ErrRejected, resp.Errors[0].Message)
	}
	if out != nil && len(resp.Data) > 0 {
		if err := json.Unmarshal(resp.Data, out); err != nil {
			return fmt.Errorf("decoding graphql response: %w", err)
		}
	}
	return nil
}

// Count returns the number of objects stored in the class.
func (c *Client) Count(ctx context.Context) (int, error) {
	var resp struct {
		Aggregate map[string][]struct {
			Meta struct {
				Count int `json:"count"`
			} `json:"meta"`
		} `json:"Aggregate"`
	}

	query := fmt.Sprintf("{ Aggregate { %s { meta { count } } } }", c.class)
	if err := c.graphql(ctx, query, &resp); err != nil {
		return 0, err
	}

	entries := resp.Aggregate[c.class]
	if len(entries) == 0 {
		return 0, nil
	}
	return entries[0].Meta.Count, nil
}

// SearchResult is one semantic match with its provenance.
type SearchResult struct {
	ChunkID    string
	DocID      string
	Text       string
	FileName   string
	Source     string
	Role       string
	ChunkIndex int
	Distance   float64
}

// NearText runs a semantic search through the backend's vectorizer and
// returns up to limit matches ordered by distance. Retrieval quality is
// the backend's business; this is a verification passthrough.
func (c *Client) NearText(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = DefaultQueryLimit
	}

	gq := fmt.Sprintf(
		"{ Get { %s(nearText: {concepts: [%s]}, limit: %d) { text chunk_id doc_id file_name source role chunk_index _additional { distance } } } }",
		c.class, strconv.Quote(query), limit)

	var resp struct {
		Get map[string][]struct {
			Text       string `json:"text"`
			ChunkID    string `json:"chunk_id"`
			DocID      string `json:"doc_id"`
			FileName   string `json:"file_name"`
			Source     string `json:"source"`
			Role       string `json:"role"`
			ChunkIndex int    `json:"chunk_index"`
			Additional struct {
				Distance float64 `json:"distance"`
			} `json:"_additional"`
		} `json:"Get"`
	}
	if err := c.graphql(ctx, gq, &resp); err != nil {
		return nil, err
	}

	rows := resp.Get[c.class]
	results := make([]SearchResult, len(rows))
	for i, row := range rows {
		results[i] = SearchResult{
			ChunkID:    row.ChunkID,
			DocID:      row.DocID,
			Text:       row.Text,
			FileName:   row.FileName,
			Source:     row.Source,
			Role:       row.Role,
			ChunkIndex: row.ChunkIndex,
			Distance:   row.Additional.Distance,
		}
	}
	return results, nil
}
