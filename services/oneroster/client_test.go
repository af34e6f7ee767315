package onerostersvc

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core"
)

type roundTripFunc func(req *http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

func jsonResponse(status int, body string, header ...http.Header) *http.Response {
	h := http.Header{"Content-Type": []string{"application/json"}}
	if len(header) > 0 {
		for k, v := range header[0] {
			h[k] = v
		}
	}
	return &http.Response{
		StatusCode: status,
		Header:     h,
		Body:       io.NopCloser(bytes.NewReader([]byte(body))),
	}
}

func resetTokenCache() {
	tokenCacheMu.Lock()
	tokenCache = make(map[string]cachedToken)
	tokenCacheMu.Unlock()
}

func newTestClient(t *testing.T, rt roundTripFunc) *Client {
	t.Helper()
	resetTokenCache()
	c, err := NewClient("https://roster.example.com", "cid", "secret", Options{
		PageLimit: 2,
		Timeout:   time.Second,
		Transport: rt,
	})
	require.NoError(t, err)
	return c
}

func TestClient_tokenCaching(t *testing.T) {
	var tokenCalls, listCalls int
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if req.URL.Path == "/token" {
			tokenCalls++
			user, pwd, ok := req.BasicAuth()
			require.True(t, ok)
			assert.Equal(t, "cid", user)
			assert.Equal(t, "secret", pwd)
			return jsonResponse(200, `{"access_token":"tok1","expires_in":3600}`), nil
		}
		listCalls++
		assert.Equal(t, "Bearer tok1", req.Header.Get("Authorization"))
		return jsonResponse(200, `{"users":[]}`), nil
	})

	c := newTestClient(t, rt)
	ctx := context.Background()

	_, err := c.Users(ctx)
	require.NoError(t, err)
	_, err = c.Orgs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, tokenCalls)
	assert.Equal(t, 2, listCalls)

	// a second client against the same provider shares the cached token
	c2, err := NewClient("https://roster.example.com", "cid", "secret", Options{
		PageLimit: 2,
		Timeout:   time.Second,
		Transport: rt,
	})
	require.NoError(t, err)
	_, err = c2.Users(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, tokenCalls)
}

func TestClient_retriesOnceOn401(t *testing.T) {
	var tokenCalls int
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if req.URL.Path == "/token" {
			tokenCalls++
			return jsonResponse(200, fmt.Sprintf(`{"access_token":"tok%d","expires_in":3600}`, tokenCalls)), nil
		}
		if req.Header.Get("Authorization") == "Bearer tok1" {
			return jsonResponse(401, `{}`), nil
		}
		return jsonResponse(200, `{"users":[{"sourcedId":"u1"}]}`), nil
	})

	c := newTestClient(t, rt)
	users, err := c.Users(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "u1", users[0].SourcedID)
	assert.Equal(t, 2, tokenCalls)
}

func TestClient_persistent401IsAuthFailure(t *testing.T) {
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if req.URL.Path == "/token" {
			return jsonResponse(200, `{"access_token":"tok","expires_in":3600}`), nil
		}
		return jsonResponse(401, `{}`), nil
	})

	c := newTestClient(t, rt)
	_, err := c.Users(context.Background())
	assert.Equal(t, ErrAuthFailed, errors.Cause(err))
}

func TestClient_tokenEndpointFailure(t *testing.T) {
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(500, `oops`), nil
	})

	c := newTestClient(t, rt)
	_, err := c.Users(context.Background())
	assert.Equal(t, ErrAuthFailed, errors.Cause(err))
}

func TestClient_paginationLinkHeader(t *testing.T) {
	var paths []string
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if req.URL.Path == "/token" {
			return jsonResponse(200, `{"access_token":"tok","expires_in":3600}`), nil
		}
		paths = append(paths, req.URL.RequestURI())
		if req.URL.Query().Get("page") == "2" {
			return jsonResponse(200, `{"users":[{"sourcedId":"u3"}]}`), nil
		}
		return jsonResponse(200, `{"users":[{"sourcedId":"u1"},{"sourcedId":"u2"}]}`, http.Header{
			"Link": []string{`<https://roster.example.com/ims/oneroster/v1p1/users?page=2>; rel="next"`},
		}), nil
	})

	c := newTestClient(t, rt)
	users, err := c.Users(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 3)
	assert.Equal(t, "u3", users[2].SourcedID)
	require.Len(t, paths, 2)
	assert.Contains(t, paths[0], "limit=2")
	assert.Contains(t, paths[1], "page=2")
}

func TestClient_paginationOffsetFallback(t *testing.T) {
	var offsets []string
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if req.URL.Path == "/token" {
			return jsonResponse(200, `{"access_token":"tok","expires_in":3600}`), nil
		}
		offset := req.URL.Query().Get("offset")
		offsets = append(offsets, offset)
		if offset == "0" {
			return jsonResponse(200, `{"users":[{"sourcedId":"u1"},{"sourcedId":"u2"}]}`), nil
		}
		return jsonResponse(200, `{"users":[{"sourcedId":"u3"}]}`), nil
	})

	c := newTestClient(t, rt)
	users, err := c.Users(context.Background())
	require.NoError(t, err)
	assert.Len(t, users, 3)
	// a full page triggers one more fetch; a short page stops the walk
	assert.Equal(t, []string{"0", "2"}, offsets)
}

func TestClient_transportError(t *testing.T) {
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	})

	c := newTestClient(t, rt)
	_, err := c.Users(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestValidateBaseURL(t *testing.T) {
	orig := core.Conf.Sync.AllowPrivateAddresses
	core.Conf.Sync.AllowPrivateAddresses = false
	defer func() { core.Conf.Sync.AllowPrivateAddresses = orig }()

	tests := []struct {
		name    string
		rawURL  string
		wantErr bool
	}{
		{name: "public https", rawURL: "https://roster.example.com"},
		{name: "public http", rawURL: "http://roster.example.com"},
		{name: "localhost", rawURL: "http://localhost:8080", wantErr: true},
		{name: "localhost subdomain", rawURL: "http://api.localhost", wantErr: true},
		{name: "loopback", rawURL: "http://127.0.0.1", wantErr: true},
		{name: "unspecified", rawURL: "http://0.0.0.0", wantErr: true},
		{name: "rfc1918 10/8", rawURL: "https://10.0.0.5", wantErr: true},
		{name: "rfc1918 172.16/12", rawURL: "https://172.16.1.1", wantErr: true},
		{name: "rfc1918 192.168/16", rawURL: "https://192.168.1.10", wantErr: true},
		{name: "link local", rawURL: "http://169.254.169.254", wantErr: true},
		{name: "carrier grade nat", rawURL: "http://100.64.0.1", wantErr: true},
		{name: "ipv6 loopback", rawURL: "http://[::1]", wantErr: true},
		{name: "ipv6 unique local", rawURL: "http://[fc00::1]", wantErr: true},
		{name: "bad scheme", rawURL: "ftp://roster.example.com", wantErr: true},
		{name: "no host", rawURL: "https://", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBaseURL(tt.rawURL)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
