// Package bilibili is the HTTP adapter for the Bilibili web API.
//
// Every request carries browser-like headers and the session cookie, waits
// on the configured pacer first, and is decoded into a typed Envelope whose
// Err method classifies non-zero codes. Endpoints that require it are WBI
// signed through a key cache fed by the nav endpoint.
//
//	client := bilibili.NewClient(cfg.Bilibili, log,
//		bilibili.WithPacer(ratelimit.NewPacer(min, max)))
//	count, err := client.FetchCommentCount(ctx, oid)
package bilibili
