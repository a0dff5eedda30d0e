package probe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/nao1215/osintnexus/internal/model"
	"github.com/nao1215/osintnexus/internal/module"
)

// DefaultShodanBaseURL is the Shodan REST API endpoint.
const DefaultShodanBaseURL = "https://api.shodan.io"

// shodanHost is the subset of the /shodan/host response the probe uses.
type shodanHost struct {
	IP          string   `json:"ip_str"`
	Ports       []int    `json:"ports"`
	Hostnames   []string `json:"hostnames"`
	Org         string   `json:"org"`
	ISP         string   `json:"isp"`
	OS          string   `json:"os"`
	CountryCode string   `json:"country_code"`
	CountryName string   `json:"country_name"`
	City        string   `json:"city"`
	Data        []struct {
		Port      int    `json:"port"`
		Transport string `json:"transport"`
		Product   string `json:"product"`
		Version   string `json:"version"`
	} `json:"data"`
}

// ShodanLookup queries the Shodan host API for an IP address.
type ShodanLookup struct {
	client      *http.Client
	apiKey      string
	baseURL     string
	userAgent   string
	maxBodySize int64
}

// NewShodanLookup creates the Shodan Lookup probe.
func NewShodanLookup(opts Options) *ShodanLookup {
	opts = opts.withDefaults()
	return &ShodanLookup{
		client:      opts.HTTPClient,
		apiKey:      opts.ShodanAPIKey,
		baseURL:     strings.TrimSuffix(opts.ShodanBaseURL, "/"),
		userAgent:   opts.UserAgent,
		maxBodySize: opts.MaxBodySize,
	}
}

// Name implements module.Module.
func (*ShodanLookup) Name() string { return NameShodanLookup }

// Description implements module.Module.
func (*ShodanLookup) Description() string {
	return "Looks up open ports, hostnames and owner of an IP address on Shodan"
}

// InputTypes implements module.Module.
func (*ShodanLookup) InputTypes() []string { return []string{model.InputIP} }

// Run implements module.Module.
func (s *ShodanLookup) Run(ctx context.Context, target model.Target, progress module.ProgressFunc) ([]model.Entity, []model.Relation, error) {
	report := reporter(progress)
	report(0, 2)

	if s.apiKey == "" {
		return nil, nil, fmt.Errorf("%s: %w", NameShodanLookup, ErrMissingAPIKey)
	}
	addr := net.ParseIP(strings.TrimSpace(target.IP))
	if addr == nil {
		return nil, nil, fmt.Errorf("invalid IP address %q", target.IP)
	}

	host, err := s.lookup(ctx, addr.String())
	if err != nil {
		return nil, nil, err
	}
	report(1, 2)

	ip := model.NewEntity(model.EntityIP, addr.String()).WithAttribute("source", "shodan")
	if host == nil {
		report(2, 2)
		return []model.Entity{ip.WithAttribute("shodan_found", false)}, nil, nil
	}

	ip = ip.WithAttribute("shodan_found", true).WithAttribute("ports", host.Ports)
	if host.OS != "" {
		ip = ip.WithAttribute("os", host.OS)
	}
	if host.ISP != "" {
		ip = ip.WithAttribute("isp", host.ISP)
	}
	if host.City != "" {
		ip = ip.WithAttribute("city", host.City)
	}

	entities := []model.Entity{ip}
	var relations []model.Relation

	for _, h := range dedupe(trimDots(host.Hostnames)) {
		e := model.NewEntity(model.EntityDomain, h).WithAttribute("source", "shodan")
		entities = append(entities, e)
		relations = append(relations, model.NewRelation(ip, e, "has_hostname"))
	}
	if host.Org != "" {
		org := model.NewEntity(model.EntityCompany, host.Org).WithAttribute("source", "shodan")
		entities = append(entities, org)
		relations = append(relations, model.NewRelation(ip, org, "owned_by"))
	}
	if host.CountryCode != "" {
		label := host.CountryName
		if label == "" {
			label = countryName(host.CountryCode)
		}
		country := model.NewEntity(model.EntityCountry, strings.ToUpper(host.CountryCode)).WithLabel(label)
		entities = append(entities, country)
		relations = append(relations, model.NewRelation(ip, country, "located_in"))
	}
	for _, svc := range host.Data {
		if svc.Product == "" {
			continue
		}
		name := strings.TrimSpace(svc.Product + " " + svc.Version)
		sw := model.NewEntity(model.EntitySoftware, name).
			WithAttribute("port", svc.Port).
			WithAttribute("transport", svc.Transport).
			WithAttribute("source", "shodan")
		entities = append(entities, sw)
		relations = append(relations, model.NewRelation(ip, sw, "runs_software"))
	}

	report(2, 2)
	return entities, relations, nil
}

// lookup fetches the host record of ip. It returns nil, nil when Shodan has
// no record. Errors never include the request URL, which carries the key.
func (s *ShodanLookup) lookup(ctx context.Context, ip string) (*shodanHost, error) {
	endpoint := s.baseURL + "/shodan/host/" + url.PathEscape(ip) + "?" + url.Values{"key": {s.apiKey}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.New("failed to create shodan request")
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return nil, fmt.Errorf("shodan request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: shodan rejected the api key (%d)", ErrUnexpectedStatus, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("%w: shodan returned %s", ErrUnexpectedStatus, strconv.Itoa(resp.StatusCode))
	}

	var host shodanHost
	if err := json.NewDecoder(io.LimitReader(resp.Body, s.maxBodySize)).Decode(&host); err != nil {
		return nil, fmt.Errorf("failed to decode shodan response: %w", err)
	}
	return &host, nil
}
