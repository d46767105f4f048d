// Package smartsync retrieves centrally approved manifest snapshots from the
// manifest service so a sync run can pin to a known-good project set.
package smartsync
