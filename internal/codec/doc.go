// Package codec converts payload trees to and from their CBOR wire form.
//
// # Wire Layout
//
// Every payload is a single top-level CBOR array. Inside it:
//
//	Representation  [_ {href?, prop?{rt?, if?}, rep{name: value, ...}} ...]
//	Discovery flat  [ {di: h'16 bytes', links: [{href, rt?, if?, p{bm, sec?, port?}}]} ...]
//	Discovery coll. [ [tags{di, n?, bm, sec?, port?, ttl?}, {href, rt?, if?, rel?, ins?} ...] ...]
//	Device          [ {href?, rep{di, n?, icv?, dmv?}} ]
//	Platform        [ {href?, rep{pi, mnmn, mnml?, mnmo?, ...}} ]
//	Presence        [ {non, ttl, trg, rt?} ]
//	Security        [ {rep: "blob"} ]
//
// The representation array is indefinite-length so nodes can be streamed.
// Resource types and interfaces travel as single space-joined strings.
// Property arrays are nested definite-length arrays, at most three deep,
// with one element type throughout.
//
// # Encoding
//
// Encode writes into a bounded scratch buffer (DefaultBufferGuess bytes).
// When the payload does not fit, the writer has counted how many bytes were
// missing and the encode is repeated exactly once into a buffer of the
// corrected size. The result never carries spare capacity.
//
//	data, err := codec.Encode(payload.NewRepresentation(node))
//	if err != nil {
//	    return err
//	}
//
// # Decoding
//
// The wire format does not say which variant it carries, so Decode takes the
// kind the exchange expects:
//
//	p, err := codec.Decode(data, payload.KindRepresentation)
//	if errors.Is(err, codec.ErrMalformedResponse) {
//	    // drop the packet
//	}
//
// Input is checked for CBOR well-formedness before it is walked. Any
// structural mismatch aborts the whole decode; no partial payload is ever
// returned.
//
// # Thread Safety
//
// Encode and Decode are stateless and safe for concurrent use.
package codec
