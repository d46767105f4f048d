// Package syncer drives the two-phase workspace synchronization: the bounded
// concurrent fetch phase, project-set reconciliation, and the ledgered
// local-update phase, together with the sync command wiring.
package syncer
