// Package domain defines the tag state types, the storage contract and the error sentinels.
//
// No implementation code lives here. The coordinator, the stores and the HTTP adapters
// all depend on this package, never on each other.
package domain
