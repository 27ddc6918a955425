// Package blockscrub provides the command-line interface for blockscrub.
// It wires configuration, the format registry, batch sanitizing and the
// HTTP service into cobra subcommands.
//
// Typical usage from a main package:
//
//	package main
//	import "github.com/varalys/blockscrub/cmd/blockscrub"
//	func main() { blockscrub.Execute() }
package blockscrub
