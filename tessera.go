// Package tessera is the naming and row-key layer of a distributed time
// series database built on a wide-column store. It covers three concerns:
// bidirectional name/UID translation with concurrent-safe assignment (uid),
// the binary row-key codec with optional salting and rollup awareness (schema,
// rollup), and tiered query scanning that reassembles salted and rolled-up
// data back into series (scan).
package tessera

// Build information, overridden at link time.
var (
	Version = "unknown"
	Commit  = "unknown"
)
