// Package probe provides the built-in modules of osintnexus.
//
// Each probe turns one Target field into entities and relations. Probes
// never persist anything and never talk to each other; the scheduler runs
// them in isolation and the aggregator stores what they return.
//
// Network access goes through an injectable *http.Client and Resolver, so
// probes can be routed through a SOCKS5 proxy (for example a local Tor
// daemon) and tested without touching the network.
package probe
