package integration

import (
	"time"
)

// Provider identifies an external system a tenant can connect to.
type Provider string

const (
	ProviderOneRoster Provider = "oneroster"
	ProviderClassroom Provider = "classroom"
)

func (p Provider) Valid() bool {
	switch p {
	case ProviderOneRoster, ProviderClassroom:
		return true
	}
	return false
}

// Status gates whether connectors may run for a Config. The sync engine reads
// it but never mutates it.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Settings holds provider connection settings. Which fields are required
// depends on the provider.
type Settings struct {
	// DomainAllowlist restricts which roster email domains are imported.
	// Empty means no filtering.
	DomainAllowlist []string `json:"domain_allowlist,omitempty"`

	// OneRoster REST API
	BaseURL      string `json:"base_url,omitempty"`
	ClientID     string `json:"client_id,omitempty"`
	ClientSecret string `json:"client_secret,omitempty"`

	// OneRoster CSV bundle
	BundleURL string `json:"bundle_url,omitempty"`

	// Classroom-style provider
	APIBaseURL  string `json:"api_base_url,omitempty"`
	AccessToken string `json:"access_token,omitempty"`
}

// DomainAllowed reports whether an email address passes the domain allowlist.
func (s Settings) DomainAllowed(email string) bool {
	if len(s.DomainAllowlist) == 0 {
		return true
	}
	at := -1
	for i, c := range email {
		if c == '@' {
			at = i
		}
	}
	if at < 0 || at == len(email)-1 {
		return false
	}
	domain := email[at+1:]
	for _, allowed := range s.DomainAllowlist {
		if domain == allowed {
			return true
		}
	}
	return false
}

// Config is a tenant-scoped provider connection. Owned by the platform's
// admin surface; consumed read-only by the sync engine.
type Config struct {
	ID        string    `json:"id"`
	Tenant    string    `json:"tenant"`
	Provider  Provider  `json:"provider"`
	Status    Status    `json:"status"`
	Settings  Settings  `json:"settings"`
	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

func (c Config) Active() bool { return c.Status == StatusActive }
