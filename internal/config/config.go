package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "osintnexus"

	// DefaultMaxConcurrency bounds how many modules run at the same time.
	// It applies to a whole workflow run, not to each step.
	DefaultMaxConcurrency = 8

	// DefaultModuleTimeout is the HTTP and DNS timeout handed to probes.
	DefaultModuleTimeout = 30 * time.Second

	// DefaultScanDepth is the recursion hint passed to modules.
	DefaultScanDepth = 1

	// DefaultResultLimit caps how many items a module collects per list.
	DefaultResultLimit = 50

	// DefaultProjectName is the project used when none is given.
	DefaultProjectName = "default"

	// DefaultUserAgent identifies osintnexus in HTTP requests.
	DefaultUserAgent = "osintnexus/1.0 (+https://github.com/nao1215/osintnexus)"

	// DefaultMaxBodySize limits the response body size read by probes.
	DefaultMaxBodySize = 5 * 1024 * 1024 // 5MB

	// DefaultMaxImages limits how many images the image forensics probe
	// downloads per page.
	DefaultMaxImages = 10

	// ShodanAPIKeyEnv overrides the Shodan API key of the config file.
	ShodanAPIKeyEnv = "OSINTNEXUS_SHODAN_API_KEY"
)

// Config holds all configuration options for osintnexus.
// It is populated from the config file and CLI flags and passed down
// explicitly rather than kept in global state.
type Config struct {
	// MaxConcurrency is the scheduler bound K.
	MaxConcurrency int

	// ModuleTimeout is the network timeout of each probe request.
	ModuleTimeout time.Duration

	// Depth and Limit are copied into every scan target.
	Depth int
	Limit int

	// UserAgent is the User-Agent header sent by HTTP probes.
	UserAgent string

	// MaxBodySize is the maximum response body size in bytes to read.
	MaxBodySize int64

	// MaxImages is the number of images inspected per page.
	MaxImages int

	// Proxy is an optional SOCKS5 proxy for probe traffic, "host:port" or
	// "socks5://[user:pass@]host:port". Point it at a local Tor daemon to
	// route probes through Tor.
	Proxy string

	// ShodanAPIKey enables the Shodan Lookup probe.
	ShodanAPIKey string

	// ProjectName selects the project scans are stored in.
	ProjectName string

	// DBDir is the directory of the SQLite database.
	// Defaults to the XDG data directory (~/.local/share/osintnexus on Linux).
	DBDir string

	// ConfigFilePath is the explicit configuration file path, if any.
	ConfigFilePath string

	// File is the loaded configuration file. It is never nil after
	// NewConfig.
	File *File

	// Verbose enables debug logging; LogJSON switches logs to JSON.
	Verbose bool
	LogJSON bool

	// JSONReport and MarkdownReport select the output format.
	// They are mutually exclusive; neither means the simple text report.
	JSONReport     bool
	MarkdownReport bool

	// ReportFile is the output file path for the report. Empty means stdout.
	ReportFile string

	// MetricsFile, when set, receives the Prometheus text exposition of
	// the run.
	MetricsFile string
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		MaxConcurrency: DefaultMaxConcurrency,
		ModuleTimeout:  DefaultModuleTimeout,
		Depth:          DefaultScanDepth,
		Limit:          DefaultResultLimit,
		UserAgent:      DefaultUserAgent,
		MaxBodySize:    DefaultMaxBodySize,
		MaxImages:      DefaultMaxImages,
		ProjectName:    DefaultProjectName,
		DBDir:          XDGDataDir(),
		File:           &File{},
	}
}

// ApplyFile overlays the settings of f onto c. Zero values in f leave the
// current setting untouched.
func (c *Config) ApplyFile(f *File) {
	if f == nil {
		return
	}
	c.File = f

	s := f.Scan
	if s.MaxConcurrency != 0 {
		c.MaxConcurrency = s.MaxConcurrency
	}
	if s.ModuleTimeout != 0 {
		c.ModuleTimeout = s.ModuleTimeout
	}
	if s.Depth != 0 {
		c.Depth = s.Depth
	}
	if s.Limit != 0 {
		c.Limit = s.Limit
	}
	if s.UserAgent != "" {
		c.UserAgent = s.UserAgent
	}
	if s.Proxy != "" {
		c.Proxy = s.Proxy
	}
	if s.MaxImages != 0 {
		c.MaxImages = s.MaxImages
	}
	if s.Project != "" {
		c.ProjectName = s.Project
	}
	if f.APIKeys.Shodan != "" {
		c.ShodanAPIKey = f.APIKeys.Shodan
	}
}

// ApplyEnv reads API keys from the environment. Environment values win
// over the config file.
func (c *Config) ApplyEnv() {
	if key, ok := os.LookupEnv(ShodanAPIKeyEnv); ok && key != "" {
		c.ShodanAPIKey = key
	}
}

// XDGDataDir returns the XDG data directory for osintnexus.
// On Linux: ~/.local/share/osintnexus
// On macOS: ~/Library/Application Support/osintnexus
// On Windows: %LOCALAPPDATA%\osintnexus
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for osintnexus.
// On Linux: ~/.config/osintnexus
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks if the configuration is valid and returns the first
// violated rule.
func (c *Config) Validate() error {
	if c.MaxConcurrency <= 0 {
		return ErrInvalidConcurrency
	}
	if c.ModuleTimeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.Depth < 0 {
		return ErrInvalidDepth
	}
	if c.Limit < 0 {
		return ErrInvalidLimit
	}
	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}
	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}
	if strings.TrimSpace(c.ProjectName) == "" {
		return ErrEmptyProjectName
	}
	if c.Proxy != "" {
		if err := validateProxy(c.Proxy); err != nil {
			return err
		}
	}
	return nil
}

// validateProxy accepts "host:port" and socks5:// URLs.
func validateProxy(address string) error {
	if !strings.Contains(address, "://") {
		if _, port, err := net.SplitHostPort(address); err != nil || port == "" {
			return fmt.Errorf("%w: %q", ErrInvalidProxy, address)
		}
		return nil
	}
	u, err := url.Parse(address)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidProxy, err)
	}
	if (u.Scheme != "socks5" && u.Scheme != "socks5h") || u.Port() == "" {
		return fmt.Errorf("%w: %s", ErrInvalidProxy, u.Redacted())
	}
	return nil
}
