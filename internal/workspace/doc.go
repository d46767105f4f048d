// Package workspace locates the workspace metadata directory and exposes the
// filesystem layout and settings of a located workspace.
package workspace
