// Package server implements the relay core: the room registry and broadcast
// hub, per-connection sessions with their read/write pumps, the frame
// dispatcher, and the HTTP endpoints that accept WebSocket upgrades.
package server
