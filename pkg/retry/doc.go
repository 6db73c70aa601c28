// Package retry runs operations again after transient failures, backing off
// between attempts.
//
// Delays grow exponentially with jitter. ErrorTypeBackoff picks a longer base
// delay for rate limit errors and gives up at once on authentication and
// validation errors.
//
//	cfg := retry.FromSettings(ctx, settings.Retry, log)
//	page, err := retry.DoWithResult(func() (models.Page, error) {
//		return client.FetchPage(ctx, key, cursor, pageSize)
//	}, cfg)
//
// Do wraps the last error once every attempt has failed.
package retry
