// Package kvdomain holds the value types shared by every other kvgrid
// package: partition and node identifiers, topology snapshots, the request/
// response wire values, commit tokens, migration records, and the domain
// error taxonomy. Nothing in here touches the network or disk; it is the
// vocabulary the rest of the module is written in.
package kvdomain
