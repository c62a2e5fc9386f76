// Copyright 2025 Syntropic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package weaviate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/syntropic/vecfeed/vectordb"
)

// Class is a collection definition on the wire.
type Class struct {
	Class        string         `json:"class"`
	Description  string         `json:"description,omitempty"`
	Vectorizer   string         `json:"vectorizer,omitempty"`
	ModuleConfig map[string]any `json:"moduleConfig,omitempty"`
	Properties   []Property     `json:"properties"`
}

// Property is one field of a class definition.
type Property struct {
	Name        string   `json:"name"`
	DataType    []string `json:"dataType"`
	Description string   `json:"description,omitempty"`
}

type schemaResponse struct {
	Classes []Class `json:"classes"`
}

// expectedProperties is the persisted property contract for chunk
// objects. Changing it strands existing collections, so EnsureSchema
// treats any divergence as a conflict rather than patching in place.
func expectedProperties() []Property {
	return []Property{
		{Name: "text", DataType: []string{"text"}, Description: "Chunk content"},
		{Name: "chunk_id", DataType: []string{"text"}, Description: "Stable chunk identifier"},
		{Name: "doc_id", DataType: []string{"text"}, Description: "Stable document identifier"},
		{Name: "source", DataType: []string{"text"}, Description: "Source path or URI"},
		{Name: "file_name", DataType: []string{"text"}, Description: "Original file name"},
		{Name: "file_ext", DataType: []string{"text"}, Description: "File extension"},
		{Name: "role", DataType: []string{"text"}, Description: "Corpus role for access filtering"},
		{Name: "chunk_index", DataType: []string{"int"}, Description: "Chunk position within the document"},
		{Name: "ingested_at", DataType: []string{"int"}, Description: "Ingestion time, unix seconds"},
	}
}

// classDefinition builds the class this client writes to.
func (c *Client) classDefinition() Class {
	def := Class{
		Class:       c.class,
		Description: "Document chunks for semantic retrieval",
		Vectorizer:  c.vectorizer,
		Properties:  expectedProperties(),
	}
	if c.vectorizer == DefaultVectorizer {
		def.ModuleConfig = map[string]any{
			DefaultVectorizer: map[string]any{
				"model": "text-embedding-3-small",
				"type":  "text",
			},
		}
	}
	return def
}

// Schema fetches the current definition of the target class.
// Returns nil, nil when the class does not exist.
func (c *Client) Schema(ctx context.Context) (*Class, error) {
	var schema schemaResponse
	if err := c.do(ctx, http.MethodGet, "/v1/schema", nil, &schema); err != nil {
		return nil, err
	}
	for i := range schema.Classes {
		if schema.Classes[i].Class == c.class {
			return &schema.Classes[i], nil
		}
	}
	return nil, nil
}

// EnsureSchema makes sure the target class exists with the expected
// property set. Absent: created. Present and matching: no-op. Present
// with a diverging property set: vectordb.ErrSchemaConflict, and the
// existing data is left untouched. Safe to call on every startup.
func (c *Client) EnsureSchema(ctx context.Context) error {
	existing, err := c.Schema(ctx)
	if err != nil {
		return err
	}

	if existing == nil {
		err := c.do(ctx, http.MethodPost, "/v1/schema", c.classDefinition(), nil)
		if err == nil {
			c.logger.Info("created class", "class", c.class, "vectorizer", c.vectorizer)
			return nil
		}
		// A concurrent creator can win between the check and the
		// create; the backend answers 422 "already exists". Re-read
		// and fall through to the comparison.
		if !errors.Is(err, vectordb.ErrRejected) || !strings.Contains(err.Error(), "already exists") {
			return err
		}
		if existing, err = c.Schema(ctx); err != nil {
			return err
		}
		if existing == nil {
			return fmt.Errorf("%w: class %q reported as existing but not readable", vectordb.ErrSchemaConflict, c.class)
		}
	}

	if err := matchProperties(existing.Properties); err != nil {
		return fmt.Errorf("class %q: %w", c.class, err)
	}
	c.logger.Debug("class already present", "class", c.class)
	return nil
}

// ResetSchema drops the target class and everything stored in it, then
// recreates it empty. Destructive; callers gate it behind an explicit
// confirmation.
func (c *Client) ResetSchema(ctx context.Context) error {
	err := c.do(ctx, http.MethodDelete, "/v1/schema/"+c.class, nil, nil)
	if err != nil && !errors.Is(err, vectordb.ErrNotFound) {
		return err
	}
	if err == nil {
		c.logger.Warn("dropped class", "class", c.class)
	}
	return c.do(ctx, http.MethodPost, "/v1/schema", c.classDefinition(), nil)
}

// matchProperties compares a stored property set against the expected
// contract by name and primary data type. Extra stored properties are
// conflicts too: they mean the class is owned by something else. Legacy
// "string" satisfies "text" so collections created before the string
// type was deprecated keep working.
func matchProperties(stored []Property) error {
	expected := expectedProperties()
	want := make(map[string]string, len(expected))
	for _, p := range expected {
		want[p.Name] = p.DataType[0]
	}

	got := make(map[string]string, len(stored))
	for _, p := range stored {
		if len(p.DataType) > 0 {
			got[p.Name] = p.DataType[0]
		}
	}

	for name, wantType := range want {
		gotType, ok := got[name]
		if !ok {
			return fmt.Errorf("%w: property %q missing, want %s", vectordb.ErrSchemaConflict, name, wantType)
		}
		if gotType != wantType && !(gotType == "string" && wantType == "text") {
			return fmt.Errorf("%w: property %q has type %s, want %s", vectordb.ErrSchemaConflict, name, gotType, wantType)
		}
	}
	for name := range got {
		if _, ok := want[name]; !ok {
			return fmt.Errorf("%w: unexpected property %q", vectordb.ErrSchemaConflict, name)
		}
	}
	return nil
}
