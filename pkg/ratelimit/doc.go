// Package ratelimit paces outgoing requests.
//
// Pacer inserts the randomized delay the platform tolerates before every
// API call; TokenBucket caps throughput of the image downloader. Both wait
// through a context so a cancelled harvest stops sleeping immediately.
package ratelimit
