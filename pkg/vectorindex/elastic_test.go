package vectorindex

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFakeES(t *testing.T, handler http.HandlerFunc) *elasticsearch.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)
	return client
}

func TestElasticSearchAppliesPostFilterAndRescalesScore(t *testing.T) {
	var gotBody map[string]interface{}
	client := newFakeES(t, func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasSuffix(r.URL.Path, "/_search"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &gotBody))
		_, _ = io.WriteString(w, `{"hits":{"hits":[
			{"_id":"1","_score":0.95,"_source":{"item_id":"1","title":"iPhone 13","price":450,"status":"available"}},
			{"_id":"2","_score":0.90,"_source":{"item_id":"2","title":"Galaxy S21","price":400,"status":"sold"}}
		]}}`)
	})

	idx := NewElasticIndex(client, "offers_vectors", 2)
	results, err := idx.Search(context.Background(), []float32{3, 4}, 2, &Filter{Status: "available"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "1", results[0].ID)
	assert.InDelta(t, 0.9, results[0].Score, 1e-9)

	knn, ok := gotBody["knn"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(2), knn["k"])
	vec := knn["query_vector"].([]interface{})
	assert.InDelta(t, 0.6, vec[0].(float64), 1e-6)
	assert.InDelta(t, 0.8, vec[1].(float64), 1e-6)
}

func TestElasticAddRejectsWrongDimensionWithoutCallingServer(t *testing.T) {
	called := false
	client := newFakeES(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
		_, _ = io.WriteString(w, `{}`)
	})
	idx := NewElasticIndex(client, "offers_vectors", 3)
	err := idx.Add(context.Background(), "1", []float32{1, 2}, Metadata{})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	assert.False(t, called)
}

func TestElasticAddIndexesByItemID(t *testing.T) {
	var path string
	var doc esDocument
	client := newFakeES(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &doc)
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"result":"created"}`)
	})
	idx := NewElasticIndex(client, "offers_vectors", 2)
	require.NoError(t, idx.Add(context.Background(), "42", []float32{0, 2}, Metadata{Title: "MacBook Pro", Brand: "Apple"}))

	assert.Equal(t, "/offers_vectors/_doc/42", path)
	assert.Equal(t, "42", doc.ItemID)
	assert.Equal(t, "Apple", doc.Brand)
	assert.InDelta(t, 1.0, doc.Vector[1], 1e-6)
}

func TestElasticDeleteReportsMissingDocument(t *testing.T) {
	var method, path string
	status := http.StatusOK
	client := newFakeES(t, func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		w.WriteHeader(status)
		_, _ = io.WriteString(w, `{"result":"deleted"}`)
	})
	idx := NewElasticIndex(client, "offers_vectors", 2)

	ok, err := idx.Delete(context.Background(), "42")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, http.MethodDelete, method)
	assert.Equal(t, "/offers_vectors/_doc/42", path)

	status = http.StatusNotFound
	ok, err = idx.Delete(context.Background(), "43")
	require.NoError(t, err)
	assert.False(t, ok)

	status = http.StatusInternalServerError
	_, err = idx.Delete(context.Background(), "44")
	assert.Error(t, err)
}
