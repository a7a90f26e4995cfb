// Package tag implements the tag coordinator using the actor pattern.
//
// One goroutine owns the tag state and the subscriber set. Reset, Status, Subscribe and
// Unsubscribe are commands on a channel and run one at a time in arrival order, so two
// resets can never both pass the minimum-interval check. The first thing the goroutine
// does is load the persisted state; commands sent meanwhile wait in the channel.
//
// A reset is written to the store before it is applied in memory or broadcast. Sends to
// subscribers are non-blocking and a failed send only evicts that subscriber.
package tag
