package location

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPZipResolver(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		want    ZipInfo
		wantErr error
	}{
		{
			name:   "found",
			status: http.StatusOK,
			body:   `{"zipCode":"84049","city":"Midway","state":"UT","latitude":40.51,"longitude":-111.47}`,
			want:   ZipInfo{ZipCode: "84049", City: "Midway", State: "UT", Latitude: 40.51, Longitude: -111.47},
		},
		{
			name:   "zip filled in from request",
			status: http.StatusOK,
			body:   `{"city":"Midway","state":"UT"}`,
			want:   ZipInfo{ZipCode: "84049", City: "Midway", State: "UT"},
		},
		{name: "not found", status: http.StatusNotFound, wantErr: ErrNotFound},
		{name: "empty answer", status: http.StatusOK, body: `{}`, wantErr: ErrNotFound},
		{name: "server error", status: http.StatusInternalServerError, wantErr: ErrServiceUnavailable},
		{name: "bad json", status: http.StatusOK, body: `not json`, wantErr: ErrServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/zips/84049", r.URL.Path)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			z := NewHTTPZipResolver(server.URL+"/zips/", server.Client(), discardLogger())
			got, err := z.Lookup(context.Background(), "84049")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHTTPZipResolverUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	z := NewHTTPZipResolver(url, http.DefaultClient, discardLogger())
	_, err := z.Lookup(context.Background(), "84049")
	assert.ErrorIs(t, err, ErrServiceUnavailable)
}

func TestLookupOutcome(t *testing.T) {
	assert.Equal(t, "ok", lookupOutcome(nil))
	assert.Equal(t, "not_found", lookupOutcome(ErrNotFound))
	assert.Equal(t, "unavailable", lookupOutcome(ErrServiceUnavailable))
}
