package probe

import (
	"context"
	"io"
	"log/slog"
	"net"

	"github.com/nao1215/osintnexus/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeResolver answers DNS lookups from maps.
type fakeResolver struct {
	addrs map[string][]net.IPAddr
	mx    map[string][]*net.MX
	ns    map[string][]*net.NS
	ptr   map[string][]string
	err   error
}

func notFound(name string) error {
	return &net.DNSError{Err: "no such host", Name: name, IsNotFound: true}
}

func (r *fakeResolver) LookupIPAddr(_ context.Context, host string) ([]net.IPAddr, error) {
	if r.err != nil {
		return nil, r.err
	}
	if v, ok := r.addrs[host]; ok {
		return v, nil
	}
	return nil, notFound(host)
}

func (r *fakeResolver) LookupMX(_ context.Context, name string) ([]*net.MX, error) {
	if r.err != nil {
		return nil, r.err
	}
	if v, ok := r.mx[name]; ok {
		return v, nil
	}
	return nil, notFound(name)
}

func (r *fakeResolver) LookupNS(_ context.Context, name string) ([]*net.NS, error) {
	if r.err != nil {
		return nil, r.err
	}
	if v, ok := r.ns[name]; ok {
		return v, nil
	}
	return nil, notFound(name)
}

func (r *fakeResolver) LookupAddr(_ context.Context, addr string) ([]string, error) {
	if r.err != nil {
		return nil, r.err
	}
	if v, ok := r.ptr[addr]; ok {
		return v, nil
	}
	return nil, notFound(addr)
}

// findEntity returns the first entity of entityType with value.
func findEntity(entities []model.Entity, entityType, value string) (model.Entity, bool) {
	for _, e := range entities {
		if e.Type == entityType && e.Value == value {
			return e, true
		}
	}
	return model.Entity{}, false
}

// hasRelation reports whether relations contain source -rel-> target, by value.
func hasRelation(relations []model.Relation, source, rel, target string) bool {
	for _, r := range relations {
		if r.Source.Value == source && r.Relationship == rel && r.Target.Value == target {
			return true
		}
	}
	return false
}

func valuesOf(entities []model.Entity, entityType string) []string {
	var out []string
	for _, e := range entities {
		if e.Type == entityType {
			out = append(out, e.Value)
		}
	}
	return out
}

// progressLog records progress reports.
type progressLog struct {
	calls [][2]int
}

func (p *progressLog) report(current, total int) {
	p.calls = append(p.calls, [2]int{current, total})
}

func (p *progressLog) last() [2]int {
	if len(p.calls) == 0 {
		return [2]int{}
	}
	return p.calls[len(p.calls)-1]
}

// testOnion returns a valid v3 onion address.
func testOnion() string {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	return onionFromPublicKey(key)
}
