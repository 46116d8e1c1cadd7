// Package presence tracks which users are connected, which room each user is
// viewing, and relays presence and typing events to their peers.
//
// All state is in memory and owned by the values constructed here. Nothing is
// persisted: a restarted process rebuilds presence from fresh connections.
package presence
