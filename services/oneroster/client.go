package onerostersvc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/trezcool/shule/core"
)

const basePath = "/ims/oneroster/v1p1"

var (
	ErrAuthFailed     = errors.New("oneroster: authentication failed")
	ErrBlockedBaseURL = errors.New("oneroster: base URL resolves to a blocked address")

	// tokens are cached per (base_url, client_id) so concurrent runs against
	// the same provider share one credential exchange.
	tokenCache   = make(map[string]cachedToken)
	tokenCacheMu sync.Mutex

	// tokenSafetyMargin is subtracted from the provider's stated expiry.
	tokenSafetyMargin = 60 * time.Second
	tokenMinTTL       = 60 * time.Second

	privateNets = mustParseCIDRs(
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"100.64.0.0/10",
		"169.254.0.0/16",
		"fc00::/7",
		"fe80::/10",
	)
)

type (
	cachedToken struct {
		token     string
		expiresAt time.Time
	}

	// Client is a paginated, authenticated OneRoster REST API client.
	// All list calls accumulate every page in memory before returning.
	Client struct {
		baseURL      string
		clientID     string
		clientSecret string
		pageLimit    int
		http         *http.Client
		limiter      *rate.Limiter
	}

	// Options tune a Client; zero values take defaults from core.Conf.
	Options struct {
		PageLimit int
		Timeout   time.Duration
		// Transport allows injecting a stub transport in tests.
		Transport http.RoundTripper
	}
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic(err)
		}
		nets = append(nets, n)
	}
	return nets
}

// ValidateBaseURL rejects base URLs pointing at loopback, link-local or
// private addresses, so a connector can never be aimed at internal
// infrastructure. Checked eagerly at client construction.
func ValidateBaseURL(rawURL string) error {
	if core.Conf.Sync.AllowPrivateAddresses {
		return nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return errors.Wrap(err, "parsing base URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.Errorf("unsupported URL scheme %q", u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return errors.New("base URL has no host")
	}
	if strings.EqualFold(host, "localhost") || strings.HasSuffix(strings.ToLower(host), ".localhost") {
		return ErrBlockedBaseURL
	}

	ips := []net.IP{}
	if ip := net.ParseIP(host); ip != nil {
		ips = append(ips, ip)
	} else if resolved, err := net.LookupIP(host); err == nil {
		ips = append(ips, resolved...)
	}
	for _, ip := range ips {
		if ip.IsLoopback() || ip.IsUnspecified() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
			return ErrBlockedBaseURL
		}
		for _, n := range privateNets {
			if n.Contains(ip) {
				return ErrBlockedBaseURL
			}
		}
	}
	return nil
}

func NewClient(baseURL, clientID, clientSecret string, opts ...Options) (*Client, error) {
	if err := ValidateBaseURL(baseURL); err != nil {
		return nil, err
	}

	var o Options
	if len(opts) > 0 {
		o = opts[0]
	}
	if o.PageLimit == 0 {
		o.PageLimit = core.Conf.Sync.PageLimit
	}
	if o.Timeout == 0 {
		o.Timeout = core.Conf.Sync.RequestTimeout
	}

	return &Client{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		clientID:     clientID,
		clientSecret: clientSecret,
		pageLimit:    o.PageLimit,
		http: &http.Client{
			Timeout:   o.Timeout,
			Transport: o.Transport,
		},
		limiter: rate.NewLimiter(rate.Limit(10), 5),
	}, nil
}

func (c *Client) cacheKey() string {
	sum := sha256.Sum256([]byte(c.baseURL + "|" + c.clientID))
	return hex.EncodeToString(sum[:])
}

// token returns a cached bearer token, authenticating synchronously on a miss.
func (c *Client) token(ctx context.Context) (string, error) {
	key := c.cacheKey()

	tokenCacheMu.Lock()
	cached, ok := tokenCache[key]
	tokenCacheMu.Unlock()
	if ok && time.Now().Before(cached.expiresAt) {
		return cached.token, nil
	}
	return c.authenticate(ctx)
}

// authenticate performs the client-credentials exchange and refreshes the
// cache. TTL is the provider's stated expiry minus a safety margin, never
// below one minute.
func (c *Client) authenticate(ctx context.Context) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", errors.Wrap(err, "building token request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.clientID, c.clientSecret)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "requesting token")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrap(err, "reading token response")
	}
	if resp.StatusCode != http.StatusOK {
		return "", errors.Wrapf(ErrAuthFailed, "token endpoint returned %d", resp.StatusCode)
	}

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", errors.Wrap(err, "decoding token response")
	}
	if tok.AccessToken == "" {
		return "", errors.Wrap(ErrAuthFailed, "empty access token")
	}

	ttl := time.Duration(tok.ExpiresIn)*time.Second - tokenSafetyMargin
	if ttl < tokenMinTTL {
		ttl = tokenMinTTL
	}
	tokenCacheMu.Lock()
	tokenCache[c.cacheKey()] = cachedToken{token: tok.AccessToken, expiresAt: time.Now().Add(ttl)}
	tokenCacheMu.Unlock()

	return tok.AccessToken, nil
}

// get performs one authenticated GET. A 401 triggers exactly one
// re-authentication and one retry; a second 401 is fatal.
func (c *Client) get(ctx context.Context, rawURL string) (*http.Response, error) {
	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := c.doGet(ctx, rawURL, token)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		_ = resp.Body.Close()
		if token, err = c.authenticate(ctx); err != nil {
			return nil, err
		}
		if resp, err = c.doGet(ctx, rawURL, token); err != nil {
			return nil, err
		}
		if resp.StatusCode == http.StatusUnauthorized {
			_ = resp.Body.Close()
			return nil, errors.Wrap(ErrAuthFailed, "401 after re-authentication")
		}
	}
	if resp.StatusCode != http.StatusOK {
		code := resp.StatusCode
		_ = resp.Body.Close()
		return nil, errors.Errorf("oneroster: GET %s returned %d", rawURL, code)
	}
	return resp, nil
}

func (c *Client) doGet(ctx context.Context, rawURL, token string) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "building request")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "GET %s", rawURL)
	}
	return resp, nil
}

// paginate walks every page of a list endpoint. The next page comes from the
// response's `Link: rel="next"` header when present, falling back to offset
// arithmetic when absent.
func (c *Client) paginate(ctx context.Context, path string, collect func(body []byte) (int, error)) error {
	offset := 0
	next := ""
	for {
		rawURL := next
		if rawURL == "" {
			q := url.Values{}
			q.Set("limit", strconv.Itoa(c.pageLimit))
			q.Set("offset", strconv.Itoa(offset))
			rawURL = c.baseURL + basePath + path + "?" + q.Encode()
		}

		resp, err := c.get(ctx, rawURL)
		if err != nil {
			return err
		}
		body, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			return errors.Wrap(err, "reading response body")
		}

		count, err := collect(body)
		if err != nil {
			return errors.Wrapf(err, "decoding %s page", path)
		}

		next = nextLink(resp.Header)
		if next != "" {
			continue
		}
		if count < c.pageLimit {
			return nil
		}
		offset += c.pageLimit
	}
}

// nextLink extracts the rel="next" URL from a Link header, if any.
func nextLink(h http.Header) string {
	for _, link := range h.Values("Link") {
		for _, part := range strings.Split(link, ",") {
			fields := strings.Split(part, ";")
			if len(fields) < 2 {
				continue
			}
			urlPart := strings.Trim(strings.TrimSpace(fields[0]), "<>")
			for _, param := range fields[1:] {
				if strings.EqualFold(strings.TrimSpace(param), `rel="next"`) {
					return urlPart
				}
			}
		}
	}
	return ""
}

func (c *Client) Orgs(ctx context.Context) ([]Org, error) {
	var out []Org
	err := c.paginate(ctx, "/orgs", func(body []byte) (int, error) {
		var env orgsEnvelope
		if err := json.Unmarshal(body, &env); err != nil {
			return 0, err
		}
		out = append(out, env.Orgs...)
		return len(env.Orgs), nil
	})
	return out, err
}

func (c *Client) AcademicSessions(ctx context.Context) ([]AcademicSession, error) {
	var out []AcademicSession
	err := c.paginate(ctx, "/academicSessions", func(body []byte) (int, error) {
		var env sessionsEnvelope
		if err := json.Unmarshal(body, &env); err != nil {
			return 0, err
		}
		out = append(out, env.AcademicSessions...)
		return len(env.AcademicSessions), nil
	})
	return out, err
}

func (c *Client) Users(ctx context.Context) ([]User, error) {
	var out []User
	err := c.paginate(ctx, "/users", func(body []byte) (int, error) {
		var env usersEnvelope
		if err := json.Unmarshal(body, &env); err != nil {
			return 0, err
		}
		out = append(out, env.Users...)
		return len(env.Users), nil
	})
	return out, err
}

func (c *Client) Classes(ctx context.Context) ([]Class, error) {
	var out []Class
	err := c.paginate(ctx, "/classes", func(body []byte) (int, error) {
		var env classesEnvelope
		if err := json.Unmarshal(body, &env); err != nil {
			return 0, err
		}
		out = append(out, env.Classes...)
		return len(env.Classes), nil
	})
	return out, err
}

func (c *Client) Enrollments(ctx context.Context) ([]Enrollment, error) {
	var out []Enrollment
	err := c.paginate(ctx, "/enrollments", func(body []byte) (int, error) {
		var env enrollmentsEnvelope
		if err := json.Unmarshal(body, &env); err != nil {
			return 0, err
		}
		out = append(out, env.Enrollments...)
		return len(env.Enrollments), nil
	})
	return out, err
}
