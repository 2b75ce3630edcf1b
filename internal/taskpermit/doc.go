// Package taskpermit bounds how many background maintenance tasks —
// stats collection, key-distribution scans, migration transfer shards —
// run at once, using a buffered-channel semaphore wrapped in a reusable
// Coordinator with a bounded acquire timeout: a caller that can't get a
// permit in time reports kvdomain.ErrThreadInterrupted rather than
// blocking indefinitely.
package taskpermit
