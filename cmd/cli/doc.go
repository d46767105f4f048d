// Package cli assembles the grove root command: configuration loading,
// structured logging, and registration of the sync subcommand.
package cli
