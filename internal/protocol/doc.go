// Package protocol owns the squirrel wire text and its property tree.
//
// Ownership boundary:
// - message grammar (encode.go, decode.go)
// - property tree values (types.go)
// - per-type required properties (semantic.go)
//
// A message is the 8-byte magic "squirrel" followed by one root object:
//
//	squirrel{type:"broadcast",name:"alice",ip:"10.0.0.5"}
//
// There is no whitespace, escaping or padding. Names run up to the next ':'
// and strings up to the next '"'.
package protocol
