// Package app wires a run together: it loads fixtures, builds the writer
// pipeline from the configuration and executes the plan.
package app
