// Package payload defines the in-memory model of everything the wire layer
// can carry: discovery results, device and platform metadata, resource
// representations, presence announcements and opaque security blobs.
//
// # Variants
//
// Payload is a closed sum type. Each variant is its own struct and owns its
// own fields:
//   - *Discovery: flat resource list or collection form (never both)
//   - *Device / *Platform: identity plus string metadata
//   - *Representation: ordered sequence of representation nodes
//   - *Presence: sequence number, max age, trigger, resource type
//   - *Security: opaque blob
//
// Dispatch with a type switch:
//
//	switch p := pl.(type) {
//	case *payload.Representation:
//	    for _, n := range p.Nodes { ... }
//	case *payload.Presence:
//	    fmt.Println(p.Trigger)
//	}
//
// # Property Values
//
// Representation nodes hold named Values. Value is also a sum type: Null,
// Int, Double, Bool, String, Object (a nested *Node) and *Array. Arrays have
// up to three dimensions, a single element kind, and row-major storage.
//
// # Lifecycle
//
// Payloads are built immediately before encoding or returned by decoding and
// are treated as immutable afterwards. Nothing in this package is safe for
// concurrent mutation.
package payload
