// Package server implements the hearth room-chat service: the room registry,
// the per-connection session router, the hub event loop that fans messages out
// to room broadcast groups, and the HTTP/WebSocket surface in front of them.
//
// The implementation is organized into specialized files for configuration,
// the registry, the hub, clients, the wire protocol, routing, and HTTP
// handlers to keep the codebase maintainable and testable as the project
// grows.
package server
