package manifest

import (
	"errors"
	"path/filepath"
)

const manifestNotLoadedMessageConstant = "manifest has not been loaded"

// ErrManifestNotLoaded indicates Current was called before a successful Load.
var ErrManifestNotLoaded = errors.New(manifestNotLoadedMessageConstant)

// Loader manages the active manifest file for a workspace.
//
// The active file normally sits in workspace metadata; Override switches it to a
// file inside the manifest project working tree, as smart-sync does with the
// approved snapshot it downloads.
type Loader struct {
	activeManifestPath string
	currentManifest    *Manifest
}

// NewLoader creates a loader bound to the given manifest file path.
func NewLoader(manifestPath string) *Loader {
	return &Loader{activeManifestPath: manifestPath}
}

// Load parses the active manifest file, reusing the cached parse when available.
func (loader *Loader) Load() (*Manifest, error) {
	if loader.currentManifest != nil {
		return loader.currentManifest, nil
	}
	return loader.Reload()
}

// Reload discards any cached parse and reparses the active manifest file.
func (loader *Loader) Reload() (*Manifest, error) {
	reloadedManifest, loadError := Load(loader.activeManifestPath)
	if loadError != nil {
		return nil, loadError
	}
	loader.currentManifest = reloadedManifest
	return reloadedManifest, nil
}

// Override switches the active manifest to another file and reparses it.
func (loader *Loader) Override(overrideManifestPath string) (*Manifest, error) {
	previousManifestPath := loader.activeManifestPath
	loader.activeManifestPath = overrideManifestPath
	overriddenManifest, loadError := loader.Reload()
	if loadError != nil {
		loader.activeManifestPath = previousManifestPath
		return nil, loadError
	}
	return overriddenManifest, nil
}

// Current returns the most recently parsed manifest.
func (loader *Loader) Current() (*Manifest, error) {
	if loader.currentManifest == nil {
		return nil, ErrManifestNotLoaded
	}
	return loader.currentManifest, nil
}

// ActivePath returns the path of the manifest file the loader currently reads.
func (loader *Loader) ActivePath() string {
	return loader.activeManifestPath
}

// ActiveFileName returns the base name of the active manifest file.
func (loader *Loader) ActiveFileName() string {
	return filepath.Base(loader.activeManifestPath)
}
