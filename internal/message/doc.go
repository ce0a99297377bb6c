// Package message generates and caches a short commentary on a day's
// calendar events.
//
// Messages are cached per day and Variant (past, present or future) under
// the key "YYYY-MM-DD:variant". A miss reads the day's events from the
// calendar service and asks the Generator for text. OpenAIGenerator renders
// an embedded persona prompt (text/template with sprig functions) and calls
// an OpenAI-compatible chat completions endpoint with the key kept in the
// secret store.
package message
