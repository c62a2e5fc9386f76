package weaviate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syntropic/vecfeed/vectordb"
)

// fakeSchema is a minimal in-memory stand-in for the schema endpoints.
type fakeSchema struct {
	mu      sync.Mutex
	classes map[string]Class
	creates int
	deletes int
}

func newFakeSchema() *fakeSchema {
	return &fakeSchema{classes: make(map[string]Class)}
}

func (f *fakeSchema) seed(mutate func(*Class)) {
	cls := Class{Class: DefaultClass, Vectorizer: "none", Properties: expectedProperties()}
	if mutate != nil {
		mutate(&cls)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.classes[cls.Class] = cls
}

func (f *fakeSchema) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/v1/schema":
		resp := schemaResponse{}
		for _, cls := range f.classes {
			resp.Classes = append(resp.Classes, cls)
		}
		json.NewEncoder(w).Encode(resp)

	case r.Method == http.MethodPost && r.URL.Path == "/v1/schema":
		f.creates++
		var cls Class
		if err := json.NewDecoder(r.Body).Decode(&cls); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if _, exists := f.classes[cls.Class]; exists {
			w.WriteHeader(http.StatusUnprocessableEntity)
			fmt.Fprintf(w, `{"error":[{"message":"class name %s already exists"}]}`, cls.Class)
			return
		}
		f.classes[cls.Class] = cls

	case r.Method == http.MethodDelete && strings.HasPrefix(r.URL.Path, "/v1/schema/"):
		f.deletes++
		name := strings.TrimPrefix(r.URL.Path, "/v1/schema/")
		if _, exists := f.classes[name]; !exists {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		delete(f.classes, name)

	default:
		http.NotFound(w, r)
	}
}

func (f *fakeSchema) stored(name string) (Class, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cls, ok := f.classes[name]
	return cls, ok
}

func TestEnsureSchemaCreatesClass(t *testing.T) {
	fake := newFakeSchema()
	client := newTestClient(t, fake, Config{})

	require.NoError(t, client.EnsureSchema(context.Background()))

	assert.Equal(t, 1, fake.creates)
	cls, ok := fake.stored(DefaultClass)
	require.True(t, ok)
	assert.Equal(t, "none", cls.Vectorizer)
	assert.Len(t, cls.Properties, 9)
}

func TestEnsureSchemaIsIdempotent(t *testing.T) {
	fake := newFakeSchema()
	client := newTestClient(t, fake, Config{})

	require.NoError(t, client.EnsureSchema(context.Background()))
	require.NoError(t, client.EnsureSchema(context.Background()))

	assert.Equal(t, 1, fake.creates, "second ensure must not re-create")
}

func TestEnsureSchemaSetsVectorizerModule(t *testing.T) {
	fake := newFakeSchema()
	client := newTestClient(t, fake, Config{Vectorizer: DefaultVectorizer})

	require.NoError(t, client.EnsureSchema(context.Background()))

	cls, ok := fake.stored(DefaultClass)
	require.True(t, ok)
	assert.Equal(t, DefaultVectorizer, cls.Vectorizer)
	require.Contains(t, cls.ModuleConfig, DefaultVectorizer)
}

func TestEnsureSchemaAcceptsLegacyStringType(t *testing.T) {
	fake := newFakeSchema()
	fake.seed(func(cls *Class) {
		for i := range cls.Properties {
			if cls.Properties[i].DataType[0] == "text" {
				cls.Properties[i].DataType = []string{"string"}
			}
		}
	})
	client := newTestClient(t, fake, Config{})

	assert.NoError(t, client.EnsureSchema(context.Background()))
}

func TestEnsureSchemaConflictOnTypeMismatch(t *testing.T) {
	fake := newFakeSchema()
	fake.seed(func(cls *Class) {
		for i := range cls.Properties {
			if cls.Properties[i].Name == "chunk_index" {
				cls.Properties[i].DataType = []string{"text"}
			}
		}
	})
	client := newTestClient(t, fake, Config{})

	err := client.EnsureSchema(context.Background())
	require.ErrorIs(t, err, vectordb.ErrSchemaConflict)
	assert.Contains(t, err.Error(), "chunk_index")
}

func TestEnsureSchemaConflictOnMissingProperty(t *testing.T) {
	fake := newFakeSchema()
	fake.seed(func(cls *Class) {
		kept := cls.Properties[:0]
		for _, p := range cls.Properties {
			if p.Name != "role" {
				kept = append(kept, p)
			}
		}
		cls.Properties = kept
	})
	client := newTestClient(t, fake, Config{})

	err := client.EnsureSchema(context.Background())
	require.ErrorIs(t, err, vectordb.ErrSchemaConflict)
	assert.Contains(t, err.Error(), "role")
}

func TestEnsureSchemaConflictOnForeignProperty(t *testing.T) {
	fake := newFakeSchema()
	fake.seed(func(cls *Class) {
		cls.Properties = append(cls.Properties, Property{Name: "summary", DataType: []string{"text"}})
	})
	client := newTestClient(t, fake, Config{})

	err := client.EnsureSchema(context.Background())
	require.ErrorIs(t, err, vectordb.ErrSchemaConflict)
	assert.Contains(t, err.Error(), "summary")
}

// A concurrent creator winning between the existence check and the
// create must not fail the ensure: the 422 is re-checked against the
// now-present class.
func TestEnsureSchemaLosesCreateRace(t *testing.T) {
	fake := newFakeSchema()
	var gets int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet && r.URL.Path == "/v1/schema" {
			gets++
			if gets == 1 {
				// First check: class not there yet.
				w.Write([]byte(`{"classes":[]}`))
				return
			}
			fake.seed(nil)
		}
		if r.Method == http.MethodPost && r.URL.Path == "/v1/schema" {
			// The racing creator got here first.
			fake.seed(nil)
		}
		fake.ServeHTTP(w, r)
	})
	client := newTestClient(t, handler, Config{})

	require.NoError(t, client.EnsureSchema(context.Background()))
	assert.GreaterOrEqual(t, gets, 2, "the 422 must trigger a re-read")
}

func TestResetSchemaDropsAndRecreates(t *testing.T) {
	fake := newFakeSchema()
	fake.seed(func(cls *Class) {
		cls.Properties = []Property{{Name: "legacy", DataType: []string{"text"}}}
	})
	client := newTestClient(t, fake, Config{})

	require.NoError(t, client.ResetSchema(context.Background()))

	assert.Equal(t, 1, fake.deletes)
	assert.Equal(t, 1, fake.creates)
	cls, ok := fake.stored(DefaultClass)
	require.True(t, ok)
	assert.Len(t, cls.Properties, 9)
}

func TestResetSchemaToleratesAbsentClass(t *testing.T) {
	fake := newFakeSchema()
	client := newTestClient(t, fake, Config{})

	require.NoError(t, client.ResetSchema(context.Background()))
	assert.Equal(t, 1, fake.creates)
}

func TestSchemaReturnsNilForAbsentClass(t *testing.T) {
	fake := newFakeSchema()
	client := newTestClient(t, fake, Config{})

	cls, err := client.Schema(context.Background())
	require.NoError(t, err)
	assert.Nil(t, cls)
}
