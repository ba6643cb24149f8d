// Package main hosts the docdrop CLI entrypoint and command graph.
//
// The Cobra-based command tree translates terminal invocations into IPC
// calls against the daemon, with a direct-store fallback so documents can
// be captured while the daemon is down. It centralizes configuration
// resolution and socket discovery so subcommands can focus on user
// experience instead of wiring.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
