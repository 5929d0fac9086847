// Package reply turns the agent endpoint's responses into one canonical shape.
//
// The endpoint's schema has drifted over time and four layouts are live:
//
//	{"result": {"answer": ..., "sources": ..., "confidence": ..., "suggested_actions": ...}}
//	{"result": {...}}                          (any other object)
//	{"success": true, "response": ...}         (string or several object layouts)
//	{"raw_response": ...}                      (string or object)
//
// Normalize tries these in order and falls back to a fixed apology when
// nothing matches. It never returns an error: a support widget renders
// something for every payload.
package reply
