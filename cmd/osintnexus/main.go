// Package main provides the entry point for the osintnexus CLI.
//
// osintnexus runs OSINT collection modules against a target (username,
// email, phone, domain or IP), links what they discover into a per-project
// entity graph stored in SQLite, and chains modules into multi-step
// workflows called machines.
//
// Usage:
//
//	osintnexus scan --domain example.com
//	osintnexus machine run "Footprint Domain L1" --domain example.com
//	osintnexus project export default --format markdown
//
// See --help for all available options.
package main

// main is the entry point for osintnexus.
func main() {
	Execute()
}
