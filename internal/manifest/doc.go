// Package manifest parses workspace manifest documents and manages the active
// manifest file, including smart-sync override switching.
package manifest
