package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/osintnexus/internal/model"
	"github.com/nao1215/osintnexus/internal/module"
)

// Resolver is the subset of *net.Resolver the DNS probes use.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
	LookupMX(ctx context.Context, name string) ([]*net.MX, error)
	LookupNS(ctx context.Context, name string) ([]*net.NS, error)
	LookupAddr(ctx context.Context, addr string) ([]string, error)
}

var _ Resolver = (*net.Resolver)(nil)

// DNSResolver resolves a domain to its addresses, mail exchangers and name
// servers.
type DNSResolver struct {
	resolver Resolver
	timeout  time.Duration
	logger   *slog.Logger
}

// NewDNSResolver creates the DNS Resolver probe.
func NewDNSResolver(opts Options) *DNSResolver {
	opts = opts.withDefaults()
	return &DNSResolver{
		resolver: opts.Resolver,
		timeout:  opts.Timeout,
		logger:   opts.Logger,
	}
}

// Name implements module.Module.
func (*DNSResolver) Name() string { return NameDNSResolver }

// Description implements module.Module.
func (*DNSResolver) Description() string {
	return "Resolves A/AAAA, MX and NS records of a domain"
}

// InputTypes implements module.Module.
func (*DNSResolver) InputTypes() []string { return []string{model.InputDomain} }

// Run implements module.Module.
//
// The three lookups run concurrently. A lookup that finds no records is not
// an error; the run fails only when every lookup fails.
func (r *DNSResolver) Run(ctx context.Context, target model.Target, progress module.ProgressFunc) ([]model.Entity, []model.Relation, error) {
	report := reporter(progress)

	name, err := normalizeDomain(target.Domain)
	if err != nil {
		return nil, nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var (
		mu       sync.Mutex
		done     int
		failures []error
		addrs    []net.IPAddr
		mxs      []*net.MX
		nss      []*net.NS
	)
	finish := func(kind string, err error) {
		mu.Lock()
		defer mu.Unlock()
		done++
		if err != nil && !isNotFound(err) {
			failures = append(failures, fmt.Errorf("%s lookup: %w", kind, err))
			r.logger.Debug("dns lookup failed", "domain", name, "kind", kind, "error", err)
		}
		report(done, 3)
	}

	report(0, 3)
	// Lookups never return an error to the group so one failure does not
	// cancel the others.
	var g errgroup.Group
	g.Go(func() error {
		res, err := r.resolver.LookupIPAddr(ctx, name)
		addrs = res
		finish("address", err)
		return nil
	})
	g.Go(func() error {
		res, err := r.resolver.LookupMX(ctx, name)
		mxs = res
		finish("mx", err)
		return nil
	})
	g.Go(func() error {
		res, err := r.resolver.LookupNS(ctx, name)
		nss = res
		finish("ns", err)
		return nil
	})
	_ = g.Wait() //nolint:errcheck // the goroutines above never fail

	if err := ctx.Err(); err != nil && len(failures) > 0 {
		return nil, nil, err
	}
	if len(failures) == 3 {
		return nil, nil, errors.Join(failures...)
	}

	domain := model.NewEntity(model.EntityDomain, name).WithAttribute("source", "input")
	entities := []model.Entity{domain}
	var relations []model.Relation

	sort.Slice(addrs, func(i, j int) bool { return addrs[i].IP.String() < addrs[j].IP.String() })
	for _, a := range addrs {
		version := "ipv4"
		if a.IP.To4() == nil {
			version = "ipv6"
		}
		ip := model.NewEntity(model.EntityIP, a.IP.String()).
			WithAttribute("version", version).
			WithAttribute("source", "dns")
		entities = append(entities, ip)
		relations = append(relations, model.NewRelation(domain, ip, "resolves_to"))
	}
	for _, mx := range mxs {
		host := strings.TrimSuffix(strings.ToLower(mx.Host), ".")
		if host == "" {
			continue
		}
		e := model.NewEntity(model.EntityDomain, host).
			WithAttribute("mx_preference", int(mx.Pref)).
			WithAttribute("source", "dns")
		entities = append(entities, e)
		relations = append(relations, model.NewRelation(domain, e, "mail_handled_by"))
	}
	for _, ns := range nss {
		host := strings.TrimSuffix(strings.ToLower(ns.Host), ".")
		if host == "" {
			continue
		}
		e := model.NewEntity(model.EntityDomain, host).WithAttribute("source", "dns")
		entities = append(entities, e)
		relations = append(relations, model.NewRelation(domain, e, "name_served_by"))
	}

	return entities, relations, nil
}

// ReverseDNS looks up the PTR names of an IP address.
type ReverseDNS struct {
	resolver Resolver
	timeout  time.Duration
}

// NewReverseDNS creates the Reverse DNS probe.
func NewReverseDNS(opts Options) *ReverseDNS {
	opts = opts.withDefaults()
	return &ReverseDNS{resolver: opts.Resolver, timeout: opts.Timeout}
}

// Name implements module.Module.
func (*ReverseDNS) Name() string { return NameReverseDNS }

// Description implements module.Module.
func (*ReverseDNS) Description() string {
	return "Looks up PTR hostnames of an IP address"
}

// InputTypes implements module.Module.
func (*ReverseDNS) InputTypes() []string { return []string{model.InputIP} }

// Run implements module.Module.
func (r *ReverseDNS) Run(ctx context.Context, target model.Target, progress module.ProgressFunc) ([]model.Entity, []model.Relation, error) {
	report := reporter(progress)
	report(0, 1)

	addr := net.ParseIP(strings.TrimSpace(target.IP))
	if addr == nil {
		return nil, nil, fmt.Errorf("invalid IP address %q", target.IP)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	names, err := r.resolver.LookupAddr(ctx, addr.String())
	if err != nil && !isNotFound(err) {
		return nil, nil, fmt.Errorf("reverse lookup of %s: %w", addr, err)
	}

	ip := model.NewEntity(model.EntityIP, addr.String()).WithAttribute("source", "input")
	entities := []model.Entity{ip}
	var relations []model.Relation
	for _, n := range dedupe(trimDots(names)) {
		host := model.NewEntity(model.EntityDomain, n).WithAttribute("source", "ptr")
		entities = append(entities, host)
		relations = append(relations, model.NewRelation(ip, host, "reverse_resolves_to"))
	}

	report(1, 1)
	return entities, relations, nil
}

func trimDots(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = strings.TrimSuffix(strings.ToLower(n), ".")
	}
	return out
}

// isNotFound reports whether err is a DNS "no such host" answer.
func isNotFound(err error) bool {
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr) && dnsErr.IsNotFound
}
