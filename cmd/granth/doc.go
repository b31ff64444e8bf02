// Package main hosts the granth CLI entrypoint and command graph.
//
// The Cobra-based command tree covers the pipeline run itself, ledger and
// transliteration cache maintenance, progress reporting, and configuration
// scaffolding. It centralizes configuration resolution and structured
// logging setup so subcommands can focus on user experience instead of
// wiring.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
