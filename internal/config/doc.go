// Package config provides configuration structures and utilities for
// osintnexus. It defines the scan defaults, the YAML configuration file
// (API keys, scan settings and user-defined machines) and the XDG
// directories used for the database and the configuration file.
package config
