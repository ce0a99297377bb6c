// Package calendar serves a day's calendar events through the TTL cache.
//
// Days are keyed as YYYY-MM-DD in the configured zone. A miss
// authenticates through the Authenticator, lists the day's events with the
// Fetcher and prefetches the previous and next day in the background. An
// access token rejected by the provider is refreshed once before the fetch
// is retried.
package calendar
