// Package cache implements the read-through TTL cache shared by the
// calendar and message services.
//
// A Cache is generic over its value type and is driven by a FetchFunc:
//
//	events := cache.New("events", fetchDay, cache.Options[[]calendar.Event]{
//	    TTL:       5 * time.Minute,
//	    Neighbors: calendar.AdjacentDays,
//	    Clone:     slices.Clone[[]calendar.Event],
//	})
//
//	day, err := events.Get(ctx, "2024-01-01")
//
// Freshness is checked lazily on read (now - fetchedAt < TTL); nothing is
// evicted in the background. After a miss is filled, the keys returned by
// Neighbors are fetched in the background unless already fresh. Prefetch
// failures are logged and leave no entry behind.
//
// Concurrent misses for the same key are coalesced with singleflight, so
// a slow fetch cannot overwrite a fresher one. InvalidateAll bumps a
// generation counter; fetches begun under an older generation discard
// their results instead of storing them.
package cache
