package weaviate

import (
	"context"
	"net/http"

	"github.com/syntropic/vecfeed/vectordb"
)

// Wire shapes for POST /v1/batch/objects. The response carries one item
// per posted object, in request order, each with its own status.
type batchObject struct {
	Class      string         `json:"class"`
	ID         string         `json:"id,omitempty"`
	Properties map[string]any `json:"properties"`
	Vector     []float32      `json:"vector,omitempty"`
}

type batchRequest struct {
	Objects []batchObject `json:"objects"`
}

type batchResultItem struct {
	ID     string `json:"id"`
	Result struct {
		Status string `json:"status"`
		Errors *struct {
			Error []struct {
				Message string `json:"message"`
			} `json:"error"`
		} `json:"errors"`
	} `json:"result"`
}

// UpsertBatch delivers one batch of objects. The call either fails as a
// whole (throttled, unavailable, auth, malformed) or succeeds with
// per-item results; items the backend refused come back in Rejected
// with the backend's reason. Posting an existing object ID overwrites
// the stored object.
func (c *Client) UpsertBatch(ctx context.Context, objects []vectordb.Object) (*vectordb.BatchResult, error) {
	if len(objects) == 0 {
		return &vectordb.BatchResult{}, nil
	}

	req := batchRequest{Objects: make([]batchObject, len(objects))}
	for i, obj := range objects {
		req.Objects[i] = batchObject{
			Class:      c.class,
			ID:         obj.UUID,
			Properties: obj.Properties,
			Vector:     obj.Vector,
		}
	}

	var items []batchResultItem
	if err := c.do(ctx, http.MethodPost, "/v1/batch/objects", req, &items); err != nil {
		return nil, err
	}

	result := &vectordb.BatchResult{}
	for i, obj := range objects {
		if i < len(items) && failed(items[i]) {
			result.Rejected = append(result.Rejected, vectordb.Rejection{
				ChunkID: obj.ChunkID,
				Reason:  failureReason(items[i]),
			})
			continue
		}
		// An item past the end of the response was accepted: the
		// backend reports failures explicitly, never by omission.
		result.Delivered = append(result.Delivered, obj.ChunkID)
	}

	if len(result.Rejected) > 0 {
		c.logger.Warn("batch upsert rejected items",
			"rejected", len(result.Rejected),
			"delivered", len(result.Delivered))
	}
	return result, nil
}

func failed(item batchResultItem) bool {
	return item.Result.Status == "FAILED"
}

func failureReason(item batchResultItem) string {
	if e := item.Result.Errors; e != nil && len(e.Error) > 0 {
		return e.Error[0].Message
	}
	return "rejected by backend"
}
