package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gigsafe/internal/regional/models"
)

const sampleResponse = `{
  "updated_date": "2024-03-18T10:11:12Z",
  "records": [
    {"sl__no_": "1", "state_ut": "Andhra Pradesh", "_2021": "25847", "_2022": "26543"},
    {"sl__no_": "2", "state_ut": "Tamil Nadu", "_2021": 54234, "_2022": 55678},
    {"sl__no_": "3", "state_ut": "Total", "_2021": "100000", "_2022": "110000"},
    {"sl__no_": "4", "state_ut": "Goa", "_2021": "NA", "_2022": "2,234"}
  ]
}`

func TestDataGovClientFetch(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		assert.Equal(t, "/"+AccidentResourceID, r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(sampleResponse))
	}))
	defer srv.Close()

	client := NewDataGovClient(srv.URL, "k-123")
	ds, err := client.Fetch(context.Background())
	require.NoError(t, err)

	assert.Contains(t, gotQuery, "api-key=k-123")
	assert.Contains(t, gotQuery, "format=json")
	assert.Equal(t, time.Date(2024, 3, 18, 10, 11, 12, 0, time.UTC), ds.AsOf)
	assert.Len(t, ds.Records, 5)

	snap, err := models.BuildSnapshot(ds)
	require.NoError(t, err)
	assert.Equal(t, 2022, snap.Year)
	assert.Equal(t, 100.0, snap.Regions["tamil nadu"].Index)
	_, hasTotal := snap.Regions["total"]
	assert.False(t, hasTotal)

	goa, ok := snap.Find("Goa")
	require.True(t, ok)
	assert.Equal(t, 2234, goa.Accidents)
	_, yoyOK := snap.YearOverYear("Goa")
	assert.False(t, yoyOK)
}

func TestDataGovClientErrors(t *testing.T) {
	t.Run("rate limited", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer srv.Close()

		_, err := NewDataGovClient(srv.URL, "k").Fetch(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "429")
	})

	t.Run("empty records", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"records": []}`))
		}))
		defer srv.Close()

		_, err := NewDataGovClient(srv.URL, "k").Fetch(context.Background())
		assert.ErrorIs(t, err, models.ErrNoRecords)
	})

	t.Run("cancelled context", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-r.Context().Done()
		}))
		defer srv.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		_, err := NewDataGovClient(srv.URL, "k").Fetch(ctx)
		assert.Error(t, err)
	})
}
