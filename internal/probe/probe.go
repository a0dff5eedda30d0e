package probe

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/nao1215/osintnexus/internal/module"
)

// Names of the built-in probes.
const (
	NameEmailSplit      = "Email Split"
	NameDomainHierarchy = "Domain Hierarchy"
	NameDNSResolver     = "DNS Resolver"
	NameReverseDNS      = "Reverse DNS"
	NamePhoneNormalizer = "Phone Normalizer"
	NameProfileURLs     = "Profile URL Builder"
	NameWebFootprint    = "Web Footprint"
	NameImageForensics  = "Image Forensics"
	NameShodanLookup    = "Shodan Lookup"
)

// Default limits used when Options leaves them unset.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxBodySize = 5 * 1024 * 1024
	DefaultMaxImages   = 10
	DefaultUserAgent   = "osintnexus/1.0 (+https://github.com/nao1215/osintnexus)"
)

var (
	// ErrMissingAPIKey is returned by probes that need an API key when none
	// is configured.
	ErrMissingAPIKey = errors.New("api key is not configured")

	// ErrUnexpectedStatus is returned when a remote service answers with a
	// non-success HTTP status.
	ErrUnexpectedStatus = errors.New("unexpected HTTP status")
)

// Options holds the collaborators and limits shared by the built-in probes.
type Options struct {
	// HTTPClient performs every HTTP request. Nil means a client built by
	// NewHTTPClient with no proxy.
	HTTPClient *http.Client
	// Resolver performs DNS lookups. Nil means net.DefaultResolver.
	Resolver Resolver
	// Logger receives debug output. Nil means slog.Default().
	Logger *slog.Logger

	// UserAgent is sent with every HTTP request.
	UserAgent string
	// Timeout bounds each network call.
	Timeout time.Duration
	// MaxBodySize caps the number of bytes read from a response body.
	MaxBodySize int64
	// MaxImages caps how many images Image Forensics inspects per page.
	MaxImages int

	// ShodanAPIKey authenticates Shodan Lookup.
	ShodanAPIKey string
	// ShodanBaseURL overrides the Shodan API endpoint.
	ShodanBaseURL string
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: o.Timeout}
	}
	if o.Resolver == nil {
		o.Resolver = net.DefaultResolver
	}
	if o.UserAgent == "" {
		o.UserAgent = DefaultUserAgent
	}
	if o.MaxBodySize <= 0 {
		o.MaxBodySize = DefaultMaxBodySize
	}
	if o.MaxImages <= 0 {
		o.MaxImages = DefaultMaxImages
	}
	if o.ShodanBaseURL == "" {
		o.ShodanBaseURL = DefaultShodanBaseURL
	}
	return o
}

// Builtins returns every built-in probe configured with opts.
func Builtins(opts Options) []module.Module {
	return []module.Module{
		NewEmailSplit(),
		NewDomainHierarchy(),
		NewDNSResolver(opts),
		NewReverseDNS(opts),
		NewPhoneNormalizer(),
		NewProfileURLBuilder(),
		NewWebFootprint(opts),
		NewImageForensics(opts),
		NewShodanLookup(opts),
	}
}

// reporter returns progress, or a no-op when progress is nil.
func reporter(progress module.ProgressFunc) module.ProgressFunc {
	if progress == nil {
		return module.NopProgress
	}
	return progress
}
