// Package report renders scan runs and project exports.
//
// Three writers share the Writer interface:
//   - SimpleWriter: plain text for terminals
//   - JSONWriter: structured JSON for other tools
//   - MarkdownWriter: GitHub Flavored Markdown with a mermaid chart of
//     entity types
//
// A ScanReport covers both single scans and workflow runs; the workflow
// fields are empty for a single scan.
package report
