package manifest

import (
	"encoding/xml"
	"errors"
	"fmt"
	"os"
	"strings"
)

const (
	duplicateProjectPathMessageConstant = "manifest declares duplicate project path"
	unknownRemoteMessageConstant        = "manifest project references unknown remote"
	missingRevisionMessageConstant      = "manifest project has no resolvable revision"
	missingProjectNameMessageConstant   = "manifest project has no name"
	readManifestErrorTemplateConstant   = "unable to read manifest %s: %w"
	parseManifestErrorTemplateConstant  = "unable to parse manifest %s: %w"
	projectErrorTemplateConstant        = "%w: %s"
)

// ErrDuplicateProjectPath indicates two manifest projects resolve to the same relative path.
var ErrDuplicateProjectPath = errors.New(duplicateProjectPathMessageConstant)

// ErrUnknownRemote indicates a project references a remote the manifest does not declare.
var ErrUnknownRemote = errors.New(unknownRemoteMessageConstant)

// ErrMissingRevision indicates neither the project nor the manifest default supplies a revision.
var ErrMissingRevision = errors.New(missingRevisionMessageConstant)

// ErrMissingProjectName indicates a project element without a name attribute.
var ErrMissingProjectName = errors.New(missingProjectNameMessageConstant)

type remoteElement struct {
	Name     string `xml:"name,attr"`
	FetchURL string `xml:"fetch,attr"`
}

type defaultElement struct {
	Remote   string `xml:"remote,attr"`
	Revision string `xml:"revision,attr"`
}

type manifestServerElement struct {
	URL string `xml:"url,attr"`
}

type projectElement struct {
	Name     string `xml:"name,attr"`
	Path     string `xml:"path,attr"`
	Remote   string `xml:"remote,attr"`
	Revision string `xml:"revision,attr"`
}

type manifestDocument struct {
	XMLName        xml.Name              `xml:"manifest"`
	Remotes        []remoteElement       `xml:"remote"`
	Defaults       defaultElement        `xml:"default"`
	ManifestServer manifestServerElement `xml:"manifest-server"`
	Projects       []projectElement      `xml:"project"`
	Notice         string                `xml:"notice"`
}

// ProjectRecord is one declared project with remote and revision defaults resolved.
type ProjectRecord struct {
	Name               string
	RelativePath       string
	RemoteName         string
	RemoteFetchURL     string
	RevisionExpression string
}

// Manifest is a parsed manifest document.
type Manifest struct {
	projects          []ProjectRecord
	manifestServerURL string
	notice            string
}

// Load reads and parses the manifest file at the given path.
func Load(manifestPath string) (*Manifest, error) {
	manifestContent, readError := os.ReadFile(manifestPath)
	if readError != nil {
		return nil, fmt.Errorf(readManifestErrorTemplateConstant, manifestPath, readError)
	}

	parsedManifest, parseError := Parse(manifestContent)
	if parseError != nil {
		return nil, fmt.Errorf(parseManifestErrorTemplateConstant, manifestPath, parseError)
	}
	return parsedManifest, nil
}

// Parse decodes manifest XML and resolves remote and revision defaults for every project.
func Parse(manifestContent []byte) (*Manifest, error) {
	document := manifestDocument{}
	if unmarshalError := xml.Unmarshal(manifestContent, &document); unmarshalError != nil {
		return nil, unmarshalError
	}

	remoteFetchURLsByName := map[string]string{}
	for _, declaredRemote := range document.Remotes {
		remoteFetchURLsByName[declaredRemote.Name] = declaredRemote.FetchURL
	}

	seenRelativePaths := map[string]struct{}{}
	projectRecords := make([]ProjectRecord, 0, len(document.Projects))
	for _, declaredProject := range document.Projects {
		if len(declaredProject.Name) == 0 {
			return nil, ErrMissingProjectName
		}

		relativePath := declaredProject.Path
		if len(relativePath) == 0 {
			relativePath = declaredProject.Name
		}
		if _, alreadySeen := seenRelativePaths[relativePath]; alreadySeen {
			return nil, fmt.Errorf(projectErrorTemplateConstant, ErrDuplicateProjectPath, relativePath)
		}
		seenRelativePaths[relativePath] = struct{}{}

		remoteName := declaredProject.Remote
		if len(remoteName) == 0 {
			remoteName = document.Defaults.Remote
		}
		remoteFetchURL, remoteKnown := remoteFetchURLsByName[remoteName]
		if !remoteKnown {
			return nil, fmt.Errorf(projectErrorTemplateConstant, ErrUnknownRemote, declaredProject.Name)
		}

		revisionExpression := declaredProject.Revision
		if len(revisionExpression) == 0 {
			revisionExpression = document.Defaults.Revision
		}
		if len(revisionExpression) == 0 {
			return nil, fmt.Errorf(projectErrorTemplateConstant, ErrMissingRevision, declaredProject.Name)
		}

		projectRecords = append(projectRecords, ProjectRecord{
			Name:               declaredProject.Name,
			RelativePath:       relativePath,
			RemoteName:         remoteName,
			RemoteFetchURL:     remoteFetchURL,
			RevisionExpression: revisionExpression,
		})
	}

	return &Manifest{
		projects:          projectRecords,
		manifestServerURL: document.ManifestServer.URL,
		notice:            strings.TrimSpace(document.Notice),
	}, nil
}

// Projects returns the declared project records in manifest order.
func (parsedManifest *Manifest) Projects() []ProjectRecord {
	return parsedManifest.projects
}

// ManifestServerURL returns the manifest-server endpoint, empty when undeclared.
func (parsedManifest *Manifest) ManifestServerURL() string {
	return parsedManifest.manifestServerURL
}

// Notice returns the end-of-sync notice text, empty when undeclared.
func (parsedManifest *Manifest) Notice() string {
	return parsedManifest.notice
}
