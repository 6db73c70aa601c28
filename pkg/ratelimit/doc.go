// Package ratelimit keeps request rates under the limits the Bluesky API
// enforces.
//
// The only implementation is a token bucket: a fixed number of tokens that
// refill together once per period. Wait blocks until a token is free or the
// context ends.
//
//	limiter := ratelimit.PerMinute(30)
//	if err := limiter.Wait(ctx); err != nil {
//		return err
//	}
package ratelimit
