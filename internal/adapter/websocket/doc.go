// Package websocket connects browser viewers to the tag coordinator.
//
// Handler upgrades the request, wraps the connection in a clientWriter and registers it
// as a subscriber. Each clientWriter owns one goroutine that performs all writes, so
// the coordinator only ever enqueues. The handler's read loop is what notices a closed
// or broken connection and unsubscribes it.
package websocket
