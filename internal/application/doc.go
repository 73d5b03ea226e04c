// Package application provides application initialization and dependency wiring.
// It runs the one-shot solve pipeline (decode, solve, encode) and assembles
// the storage, solver, handlers, router and HTTP server of the solve service,
// keeping the main package focused on CLI parsing and orchestration.
package application
