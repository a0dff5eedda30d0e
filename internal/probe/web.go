package probe

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/nao1215/osintnexus/internal/model"
	"github.com/nao1215/osintnexus/internal/module"
)

// urlOption names the Target option that overrides the page to fetch.
const urlOption = "url"

// WebFootprint fetches a domain's home page and extracts what it exposes:
// title, server software, email addresses, external domains and onion
// addresses.
type WebFootprint struct {
	client      *http.Client
	userAgent   string
	maxBodySize int64
	logger      *slog.Logger
}

// NewWebFootprint creates the Web Footprint probe.
func NewWebFootprint(opts Options) *WebFootprint {
	opts = opts.withDefaults()
	return &WebFootprint{
		client:      opts.HTTPClient,
		userAgent:   opts.UserAgent,
		maxBodySize: opts.MaxBodySize,
		logger:      opts.Logger,
	}
}

// Name implements module.Module.
func (*WebFootprint) Name() string { return NameWebFootprint }

// Description implements module.Module.
func (*WebFootprint) Description() string {
	return "Fetches a domain's web page and extracts emails, links, software and onion addresses"
}

// InputTypes implements module.Module.
func (*WebFootprint) InputTypes() []string { return []string{model.InputDomain} }

// Run implements module.Module.
func (w *WebFootprint) Run(ctx context.Context, target model.Target, progress module.ProgressFunc) ([]model.Entity, []model.Relation, error) {
	report := reporter(progress)
	report(0, 3)

	name, pageURL, err := pageTarget(target)
	if err != nil {
		return nil, nil, err
	}

	resp, err := fetch(ctx, w.client, pageURL, w.userAgent, w.maxBodySize)
	if err != nil {
		return nil, nil, err
	}
	report(1, 3)

	base, err := url.Parse(resp.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid page URL %q: %w", resp.URL, err)
	}
	doc, err := parsePage(base, bytes.NewReader(resp.Body))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse %s: %w", resp.URL, err)
	}
	report(2, 3)

	domain := model.NewEntity(model.EntityDomain, name).WithAttribute("source", "input")
	pageEntity := model.NewEntity(model.EntityURL, resp.URL).
		WithAttribute("status_code", resp.StatusCode).
		WithAttribute("content_type", resp.Header.Get("Content-Type")).
		WithAttribute("content_sha3", contentHash(resp.Body))
	if doc.Title != "" {
		pageEntity = pageEntity.WithLabel(doc.Title).WithAttribute("title", doc.Title)
	}

	entities := []model.Entity{domain, pageEntity}
	relations := []model.Relation{model.NewRelation(domain, pageEntity, "hosts_page")}

	for _, sw := range dedupe([]string{
		resp.Header.Get("Server"),
		resp.Header.Get("X-Powered-By"),
		doc.Generator,
	}) {
		e := model.NewEntity(model.EntitySoftware, sw).WithAttribute("source", "http")
		entities = append(entities, e)
		relations = append(relations, model.NewRelation(pageEntity, e, "runs_software"))
	}

	for _, addr := range doc.Emails {
		e := model.NewEntity(model.EntityEmail, addr).WithAttribute("source", "web_page")
		entities = append(entities, e)
		relations = append(relations, model.NewRelation(pageEntity, e, "mentions_email"))
	}

	limit := target.EffectiveLimit()
	for _, host := range externalHosts(doc.Links, name, limit) {
		e := model.NewEntity(model.EntityDomain, host).WithAttribute("source", "web_link")
		entities = append(entities, e)
		relations = append(relations, model.NewRelation(pageEntity, e, "links_to"))
	}

	for _, onion := range doc.Onions {
		valid := IsValidOnionV3(onion)
		if !valid {
			w.logger.Debug("onion address with bad checksum", "address", onion, "page", resp.URL)
		}
		e := model.NewEntity(model.EntityOnion, onion).
			WithAttribute("version", 3).
			WithAttribute("valid_checksum", valid)
		entities = append(entities, e)
		relations = append(relations, model.NewRelation(pageEntity, e, "references_onion"))
	}

	report(3, 3)
	return entities, relations, nil
}

// pageTarget returns the normalized domain of target and the URL to fetch
// for it.
func pageTarget(target model.Target) (string, string, error) {
	name, err := normalizeDomain(target.Domain)
	if err != nil {
		return "", "", err
	}
	if override := strings.TrimSpace(target.Option(urlOption)); override != "" {
		return name, override, nil
	}
	return name, "https://" + name + "/", nil
}

// externalHosts returns up to limit distinct hosts of http(s) links that do
// not belong to domain.
func externalHosts(links []string, domain string, limit int) []string {
	var hosts []string
	for _, link := range links {
		u, err := url.Parse(link)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			continue
		}
		host, err := normalizeDomain(u.Hostname())
		if err != nil || host == domain || strings.HasSuffix(host, "."+domain) || strings.HasSuffix(host, onionSuffix) {
			continue
		}
		hosts = append(hosts, host)
	}
	hosts = dedupe(hosts)
	if limit > 0 && len(hosts) > limit {
		hosts = hosts[:limit]
	}
	return hosts
}
