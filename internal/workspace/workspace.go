package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const (
	// MetadataDirectoryName is the directory marking a workspace root.
	MetadataDirectoryName = ".grove"

	manifestFileNameConstant           = "manifest.xml"
	manifestsDirectoryNameConstant     = "manifests"
	manifestsGitDirectoryNameConstant  = "manifests.git"
	toolDirectoryNameConstant          = "grove"
	projectsDirectoryNameConstant      = "projects"
	projectListFileNameConstant        = "project.list"
	gitDirectoryNameConstant           = ".git"
	gitDirectorySuffixConstant         = ".git"
	workspaceNotFoundMessageConstant   = "no workspace metadata directory found"
	resolveStartErrorTemplateConstant  = "unable to resolve starting directory %s: %w"
)

// ErrWorkspaceNotFound indicates no ancestor of the starting directory holds workspace metadata.
var ErrWorkspaceNotFound = errors.New(workspaceNotFoundMessageConstant)

// Workspace exposes the filesystem layout of one located workspace.
type Workspace struct {
	rootDirectory string
}

// Locate walks upward from the starting directory until it finds workspace metadata.
func Locate(startDirectory string) (*Workspace, error) {
	absoluteStartDirectory, absoluteError := filepath.Abs(startDirectory)
	if absoluteError != nil {
		return nil, fmt.Errorf(resolveStartErrorTemplateConstant, startDirectory, absoluteError)
	}

	candidateDirectory := absoluteStartDirectory
	for {
		metadataCandidate := filepath.Join(candidateDirectory, MetadataDirectoryName)
		metadataInfo, statError := os.Stat(metadataCandidate)
		if statError == nil && metadataInfo.IsDir() {
			return &Workspace{rootDirectory: candidateDirectory}, nil
		}

		parentDirectory := filepath.Dir(candidateDirectory)
		if parentDirectory == candidateDirectory {
			return nil, ErrWorkspaceNotFound
		}
		candidateDirectory = parentDirectory
	}
}

// RootDirectory returns the workspace root.
func (locatedWorkspace *Workspace) RootDirectory() string {
	return locatedWorkspace.rootDirectory
}

// MetadataDirectory returns the workspace metadata directory.
func (locatedWorkspace *Workspace) MetadataDirectory() string {
	return filepath.Join(locatedWorkspace.rootDirectory, MetadataDirectoryName)
}

// ManifestPath returns the active manifest file path inside workspace metadata.
func (locatedWorkspace *Workspace) ManifestPath() string {
	return filepath.Join(locatedWorkspace.MetadataDirectory(), manifestFileNameConstant)
}

// ManifestsWorkTree returns the manifest project working tree.
func (locatedWorkspace *Workspace) ManifestsWorkTree() string {
	return filepath.Join(locatedWorkspace.MetadataDirectory(), manifestsDirectoryNameConstant)
}

// ManifestsGitDirectory returns the manifest project metadata directory.
func (locatedWorkspace *Workspace) ManifestsGitDirectory() string {
	return filepath.Join(locatedWorkspace.MetadataDirectory(), manifestsGitDirectoryNameConstant)
}

// ToolWorkTree returns the working tree of the tool's own repository.
func (locatedWorkspace *Workspace) ToolWorkTree() string {
	return filepath.Join(locatedWorkspace.MetadataDirectory(), toolDirectoryNameConstant)
}

// ToolGitDirectory returns the metadata directory of the tool's own repository.
func (locatedWorkspace *Workspace) ToolGitDirectory() string {
	return filepath.Join(locatedWorkspace.ToolWorkTree(), gitDirectoryNameConstant)
}

// ProjectListPath returns the persisted declared-path record.
func (locatedWorkspace *Workspace) ProjectListPath() string {
	return filepath.Join(locatedWorkspace.MetadataDirectory(), projectListFileNameConstant)
}

// ProjectWorkTree returns the working tree for a declared relative path.
func (locatedWorkspace *Workspace) ProjectWorkTree(relativePath string) string {
	return filepath.Join(locatedWorkspace.rootDirectory, filepath.FromSlash(relativePath))
}

// ProjectGitDirectory returns the metadata directory for a declared relative path.
func (locatedWorkspace *Workspace) ProjectGitDirectory(relativePath string) string {
	return filepath.Join(locatedWorkspace.MetadataDirectory(), projectsDirectoryNameConstant, filepath.FromSlash(relativePath)+gitDirectorySuffixConstant)
}
