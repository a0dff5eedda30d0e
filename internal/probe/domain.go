package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/idna"
	"golang.org/x/net/publicsuffix"

	"github.com/nao1215/osintnexus/internal/model"
	"github.com/nao1215/osintnexus/internal/module"
)

// ErrInvalidDomain is returned for input that is not a domain name.
var ErrInvalidDomain = errors.New("invalid domain")

// DomainHierarchy maps a domain onto its parents and its public suffix.
type DomainHierarchy struct{}

// NewDomainHierarchy creates the Domain Hierarchy probe.
func NewDomainHierarchy() *DomainHierarchy { return &DomainHierarchy{} }

// Name implements module.Module.
func (*DomainHierarchy) Name() string { return NameDomainHierarchy }

// Description implements module.Module.
func (*DomainHierarchy) Description() string {
	return "Derives parent domains, registrable domain and public suffix"
}

// InputTypes implements module.Module.
func (*DomainHierarchy) InputTypes() []string { return []string{model.InputDomain} }

// Run implements module.Module.
func (*DomainHierarchy) Run(ctx context.Context, target model.Target, progress module.ProgressFunc) ([]model.Entity, []model.Relation, error) {
	report := reporter(progress)
	report(0, 2)

	name, err := normalizeDomain(target.Domain)
	if err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	suffix, icann := publicsuffix.PublicSuffix(name)
	registrable, err := publicsuffix.EffectiveTLDPlusOne(name)
	if err != nil {
		// The name is itself a public suffix.
		registrable = ""
	}

	root := model.NewEntity(model.EntityDomain, name).
		WithAttribute("public_suffix", suffix).
		WithAttribute("icann", icann)
	if registrable != "" {
		root = root.WithAttribute("registrable_domain", registrable)
	}
	if unicode, err := idna.Lookup.ToUnicode(name); err == nil && unicode != name {
		root = root.WithLabel(unicode).WithAttribute("unicode", unicode)
	}

	entities := []model.Entity{root}
	var relations []model.Relation
	report(1, 2)

	// Walk up one label at a time until the registrable domain.
	child := root
	for parent := parentDomain(name); registrable != "" && parent != "" && len(parent) >= len(registrable); parent = parentDomain(parent) {
		e := model.NewEntity(model.EntityDomain, parent).WithAttribute("source", "hierarchy")
		if parent == registrable {
			e = e.WithAttribute("registrable", true)
		}
		entities = append(entities, e)
		relations = append(relations, model.NewRelation(child, e, "subdomain_of"))
		child = e
	}

	if suffix != "" && suffix != name {
		s := model.NewEntity(model.EntityDomain, suffix).
			WithAttribute("public_suffix", true).
			WithAttribute("icann", icann)
		entities = append(entities, s)
		relations = append(relations, model.NewRelation(child, s, "under_suffix"))
	}

	report(2, 2)
	return entities, relations, nil
}

func parentDomain(name string) string {
	_, parent, ok := strings.Cut(name, ".")
	if !ok {
		return ""
	}
	return parent
}

// normalizeDomain lowercases raw, strips any URL scheme, path or port and
// converts it to its ASCII (punycode) form.
func normalizeDomain(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return "", fmt.Errorf("%w: %q", ErrInvalidDomain, raw)
		}
		s = u.Host
	}
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	if host, _, err := net.SplitHostPort(s); err == nil {
		s = host
	}
	s = strings.TrimSuffix(strings.ToLower(s), ".")
	if s == "" || net.ParseIP(s) != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidDomain, raw)
	}

	ascii, err := idna.Lookup.ToASCII(s)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %w", ErrInvalidDomain, raw, err)
	}
	return ascii, nil
}
