package embedding

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"myreprise-chatbot-go/internal/config"
)

func TestCreateEmbeddingNormalizesVector(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"iphone pas cher"}, req.Input)
		assert.Equal(t, "mini", req.Model)
		_, _ = io.WriteString(w, `{"data":[{"embedding":[3,4]}]}`)
	}))
	defer srv.Close()

	c := NewClient(config.EmbeddingConfig{BaseURL: srv.URL, APIKey: "secret", Model: "mini"})
	vec, err := c.CreateEmbedding(context.Background(), "iphone pas cher")
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{0.6, 0.8}, vec, 1e-6)
}

func TestCreateEmbeddingErrors(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, `{}`},
		{"empty data", http.StatusOK, `{"data":[]}`},
		{"zero vector", http.StatusOK, `{"data":[{"embedding":[0,0]}]}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			}))
			defer srv.Close()

			c := NewClient(config.EmbeddingConfig{BaseURL: srv.URL})
			_, err := c.CreateEmbedding(context.Background(), "x")
			assert.Error(t, err)
		})
	}
}

func TestCleanText(t *testing.T) {
	assert.Equal(t, "iPhone 13 - Prix 300 , état neuf!", CleanText("  iPhone 13 - Prix: 300€, état neuf!  "))
	assert.Equal(t, "Téléphone Catégorie Électronique", CleanText("Téléphone\n\tCatégorie: Électronique"))
	assert.Empty(t, CleanText("€€ ##"))
}

func TestCreateEmbeddingRejectsEmptyText(t *testing.T) {
	c := NewClient(config.EmbeddingConfig{BaseURL: "http://127.0.0.1:0"})
	_, err := c.CreateEmbedding(context.Background(), " €€ ")
	assert.Error(t, err)
}
