// Package nodeserver implements the server-side request handler: it
// accepts framed connections, decodes a Request, checks local partition
// ownership and mastership against the cluster's topology, executes
// against the Replicated Environment Manager (internal/storage), and
// returns a Response carrying any topology or group-state delta the
// caller's declared sequence number has not yet seen. It also answers
// the migration control calls internal/migration's coordinator issues
// against a group's master.
package nodeserver
