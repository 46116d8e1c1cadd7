// Package server implements the WebSocket and HTTP surface of the realtime
// gateway.
//
// The Hub owns every socket session and implements the delivery primitives
// the presence and notification packages write through. Clients run the
// read/write pumps of one connection. The remaining files hold configuration,
// origin checks, rate limiting, routing and HTTP handlers.
package server
