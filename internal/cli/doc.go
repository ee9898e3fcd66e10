// Package cli parses command-line arguments, validates user input and maps
// failures to process exit codes. It merges flags over the configuration
// file into a config.Config.
package cli
