package syncer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
)

const (
	dirtyWorkTreeMessageConstant          = "working tree has uncommitted changes; refusing to delete"
	reconcilerIncompleteMessageConstant   = "reconciler requires a workspace root, a record path, and a dirty checker"
	obsoleteTreeRemovedMessageConstant    = "removed working tree no longer declared by the manifest"
	dirtyAbortErrorTemplateConstant       = "%w: %s"
	readRecordErrorTemplateConstant       = "unable to read project record %s: %w"
	writeRecordErrorTemplateConstant      = "unable to write project record %s: %w"
	removeTreeErrorTemplateConstant       = "unable to remove working tree %s: %w"
	reconcilePathFieldConstant            = "path"
	projectListTemporaryPatternConstant   = "project.list.*"
)

// ErrDirtyWorkTree indicates an obsolete working tree holds uncommitted changes.
var ErrDirtyWorkTree = errors.New(dirtyWorkTreeMessageConstant)

// ErrReconcilerNotConfigured indicates the reconciler was built without its dependencies.
var ErrReconcilerNotConfigured = errors.New(reconcilerIncompleteMessageConstant)

// DirtyChecker reports whether the working tree at the given path has
// uncommitted changes.
type DirtyChecker func(executionContext context.Context, workTreePath string) (bool, error)

// Reconciler aligns the on-disk working-tree set with the manifest's declared
// set and persists the declared paths.
type Reconciler struct {
	logger          *zap.Logger
	workspaceRoot   string
	projectListPath string
	dirtyChecker    DirtyChecker
}

// NewReconciler constructs a reconciler for one workspace.
func NewReconciler(logger *zap.Logger, workspaceRoot string, projectListPath string, dirtyChecker DirtyChecker) (*Reconciler, error) {
	if len(workspaceRoot) == 0 || len(projectListPath) == 0 || dirtyChecker == nil {
		return nil, ErrReconcilerNotConfigured
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		logger:          logger,
		workspaceRoot:   workspaceRoot,
		projectListPath: projectListPath,
		dirtyChecker:    dirtyChecker,
	}, nil
}

// Reconcile deletes clean working trees no longer declared, prunes their empty
// parents, and rewrites the persisted record. A dirty obsolete tree aborts the
// whole reconciliation before anything is deleted.
func (reconciler *Reconciler) Reconcile(executionContext context.Context, declaredRelativePaths []string) error {
	declaredPaths := sortedUniquePaths(declaredRelativePaths)
	declaredSet := make(map[string]struct{}, len(declaredPaths))
	for _, declaredPath := range declaredPaths {
		declaredSet[declaredPath] = struct{}{}
	}

	previousPaths, readError := reconciler.readRecord()
	if readError != nil {
		return readError
	}

	obsoleteWorkTrees := []string{}
	for _, previousPath := range previousPaths {
		if _, stillDeclared := declaredSet[previousPath]; stillDeclared {
			continue
		}
		workTreePath := filepath.Join(reconciler.workspaceRoot, filepath.FromSlash(previousPath))
		if _, statError := os.Stat(workTreePath); statError != nil {
			continue
		}

		dirty, dirtyError := reconciler.dirtyChecker(executionContext, workTreePath)
		if dirtyError != nil {
			return dirtyError
		}
		if dirty {
			return fmt.Errorf(dirtyAbortErrorTemplateConstant, ErrDirtyWorkTree, previousPath)
		}
		obsoleteWorkTrees = append(obsoleteWorkTrees, workTreePath)
	}

	for _, workTreePath := range obsoleteWorkTrees {
		if removeError := os.RemoveAll(workTreePath); removeError != nil {
			return fmt.Errorf(removeTreeErrorTemplateConstant, workTreePath, removeError)
		}
		reconciler.pruneEmptyParents(workTreePath)
		reconciler.logger.Info(obsoleteTreeRemovedMessageConstant, zap.String(reconcilePathFieldConstant, workTreePath))
	}

	return reconciler.writeRecord(declaredPaths)
}

func (reconciler *Reconciler) readRecord() ([]string, error) {
	recordContent, readError := os.ReadFile(reconciler.projectListPath)
	if readError != nil {
		if errors.Is(readError, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf(readRecordErrorTemplateConstant, reconciler.projectListPath, readError)
	}

	recordedPaths := []string{}
	for _, recordLine := range strings.Split(string(recordContent), "\n") {
		trimmedLine := strings.TrimSpace(recordLine)
		if len(trimmedLine) > 0 {
			recordedPaths = append(recordedPaths, trimmedLine)
		}
	}
	return recordedPaths, nil
}

func (reconciler *Reconciler) writeRecord(declaredPaths []string) error {
	recordContent := strings.Join(declaredPaths, "\n")
	if len(declaredPaths) > 0 {
		recordContent += "\n"
	}

	temporaryFile, temporaryError := os.CreateTemp(filepath.Dir(reconciler.projectListPath), projectListTemporaryPatternConstant)
	if temporaryError != nil {
		return fmt.Errorf(writeRecordErrorTemplateConstant, reconciler.projectListPath, temporaryError)
	}
	temporaryPath := temporaryFile.Name()

	if _, writeError := temporaryFile.WriteString(recordContent); writeError != nil {
		_ = temporaryFile.Close()
		_ = os.Remove(temporaryPath)
		return fmt.Errorf(writeRecordErrorTemplateConstant, reconciler.projectListPath, writeError)
	}
	if closeError := temporaryFile.Close(); closeError != nil {
		_ = os.Remove(temporaryPath)
		return fmt.Errorf(writeRecordErrorTemplateConstant, reconciler.projectListPath, closeError)
	}
	if renameError := os.Rename(temporaryPath, reconciler.projectListPath); renameError != nil {
		_ = os.Remove(temporaryPath)
		return fmt.Errorf(writeRecordErrorTemplateConstant, reconciler.projectListPath, renameError)
	}
	return nil
}

func (reconciler *Reconciler) pruneEmptyParents(deletedWorkTreePath string) {
	parentDirectory := filepath.Dir(deletedWorkTreePath)
	for parentDirectory != reconciler.workspaceRoot && strings.HasPrefix(parentDirectory, reconciler.workspaceRoot) {
		directoryEntries, readError := os.ReadDir(parentDirectory)
		if readError != nil || len(directoryEntries) > 0 {
			return
		}
		if removeError := os.Remove(parentDirectory); removeError != nil {
			return
		}
		parentDirectory = filepath.Dir(parentDirectory)
	}
}

func sortedUniquePaths(relativePaths []string) []string {
	uniquePathSet := make(map[string]struct{}, len(relativePaths))
	for _, relativePath := range relativePaths {
		trimmedPath := strings.TrimSpace(relativePath)
		if len(trimmedPath) > 0 {
			uniquePathSet[trimmedPath] = struct{}{}
		}
	}

	uniquePaths := make([]string, 0, len(uniquePathSet))
	for uniquePath := range uniquePathSet {
		uniquePaths = append(uniquePaths, uniquePath)
	}
	sort.Strings(uniquePaths)
	return uniquePaths
}
