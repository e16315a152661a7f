package adapters

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zduanx/jobtrawl/internal/models"
)

func TestJSONAPIAdapterListJobsAppliesFilters(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"id": "1", "title": "Senior Backend Engineer", "location": "Remote", "url": "https://acme.example/1"},
			{"id": "2", "title": "Sales Development Representative", "location": "NYC", "url": "https://acme.example/2"}
		]`))
	}))
	defer server.Close()

	adapter := NewJSONAPIAdapter("acme", server.URL, JSONAPIFields{
		ExternalID: "id", Title: "title", Location: "location", URL: "url",
	}, server.Client(), "jobtrawl-test")

	listed, err := adapter.ListJobs(context.Background(), models.TitleFilters{Include: []string{"engineer"}})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	require.Equal(t, "1", listed[0].ExternalID)
}

func TestJSONAPIAdapterRateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	adapter := NewJSONAPIAdapter("acme", server.URL, JSONAPIFields{}, server.Client(), "jobtrawl-test")

	_, err := adapter.ListJobs(context.Background(), models.TitleFilters{})
	require.Error(t, err)
}

func TestRegistryRejectsDuplicateCompany(t *testing.T) {
	a1 := NewJSONAPIAdapter("acme", "http://example.com", JSONAPIFields{}, http.DefaultClient, "ua")
	a2 := NewJSONAPIAdapter("acme", "http://example.com", JSONAPIFields{}, http.DefaultClient, "ua")

	_, err := NewRegistry(a1, a2)
	require.Error(t, err)
}

func TestRegistryGet(t *testing.T) {
	a1 := NewJSONAPIAdapter("acme", "http://example.com", JSONAPIFields{}, http.DefaultClient, "ua")
	reg, err := NewRegistry(a1)
	require.NoError(t, err)

	got, ok := reg.Get("acme")
	require.True(t, ok)
	require.Equal(t, "acme", got.Company())

	_, ok = reg.Get("unknown")
	require.False(t, ok)
}
