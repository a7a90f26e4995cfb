// Package redis implements the tag store on Redis. The lastReset and streaks
// keys change together in one MULTI/EXEC transaction, and the client carries a
// circuit breaker and a metrics hook.
package redis
