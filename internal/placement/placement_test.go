package placement

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sunbk201/tilespoof/internal/common"
)

func TestMapLookup(t *testing.T) {
	m := Map{"7": {"2": {Coords: []int{1, 1, 2, 2}, Colors: []int{10, 20}}}}

	p, err := m.Lookup("7", "2")
	require.NoError(t, err)
	assert.Equal(t, []int{10, 20}, p.Colors)

	var idxErr *common.IndexError
	_, err = m.Lookup("7", "3")
	require.ErrorAs(t, err, &idxErr)
	assert.Equal(t, "3", idxErr.Col)

	_, err = m.Lookup("8", "2")
	require.ErrorAs(t, err, &idxErr)
	assert.Equal(t, "8", idxErr.Row)
}

func TestMapAdd(t *testing.T) {
	m := Map{}
	m.Add("1", "2", 5, 6, 9)
	m.Add("1", "2", 7, 8, 10)
	m.Add("3", "4", 0, 0, 1)

	assert.Equal(t, Placement{Coords: []int{5, 6, 7, 8}, Colors: []int{9, 10}}, m["1"]["2"])
	assert.Equal(t, 3, m.Pixels())
}

func TestClientFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"7":{"2":{"coords":[1,1,2,2,3,3],"colors":[10,20,30]}}}`))
	}))
	defer srv.Close()

	m, err := NewClient(srv.URL+"/colors", srv.Client()).Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1, 2, 2, 3, 3}, m["7"]["2"].Coords)
	assert.Equal(t, []int{10, 20, 30}, m["7"]["2"].Colors)
}

func TestClientFetchFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}},
		{"not json", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`<html>`))
		}},
		{"wrong shape", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`[1,2,3]`))
		}},
		{"null", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`null`))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := NewClient(srv.URL, srv.Client()).Fetch(context.Background())
			var provErr *common.ProviderUnavailableError
			require.True(t, errors.As(err, &provErr), "got %v", err)
			assert.Equal(t, srv.URL, provErr.URL)
		})
	}
}

func TestClientFetchUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	_, err := NewClient(addr, nil).Fetch(context.Background())
	var provErr *common.ProviderUnavailableError
	assert.ErrorAs(t, err, &provErr)
}
