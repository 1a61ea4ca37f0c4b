// Package connection owns the single WebSocket to the feed server: the
// lifecycle state machine (disconnected → connecting → connected →
// error/disconnected), the reader loop that feeds the dispatcher, and the
// outbound SUBSCRIBE/UNSUBSCRIBE control frames.
package connection
