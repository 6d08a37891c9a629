// Package trace records device session lifecycle transitions.
//
// Records are CBOR encoded with integer keys and appended to a file, one
// after another. Writing happens on a background goroutine so that driver
// callbacks never wait on disk; when the buffer is full, records are
// dropped and counted.
//
//	rec, _ := trace.NewFileRecorder("/var/log/ridelogger/session.trace", 256)
//	defer rec.Close()
//
// ReadAll decodes a trace file back into records.
package trace
