// Package server hosts the short-lived HTTP listener used during the
// Spotify login flow. The CLI starts it on the configured redirect address,
// waits for the provider to bounce the browser back with an authorization
// code, and shuts it down again. Nothing here outlives the auth command.
package server
