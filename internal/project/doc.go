// Package project wraps one manifest-declared repository with the network-half
// and local-half synchronization operations the orchestrator drives.
package project
