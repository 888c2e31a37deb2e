// Package machine defines the identity types shared by the cluster state
// machine, the content merge algebra, and the sharding scheme: a dense
// non-zero integer id and its canonical network location.
package machine

import "fmt"

// ID is a small dense non-zero integer assigned by the cluster state
// machine. Zero is never a valid assigned id.
type ID uint32

// Location is a network endpoint canonicalized as grpc://host:port/.
type Location string

// Canonicalize builds a Location in the grpc://host:port/ shape expected
// throughout the cluster state contract.
func Canonicalize(host string, port int) Location {
	return Location(fmt.Sprintf("grpc://%s:%d/", host, port))
}
