// Package selfupdate gates adoption of a newly fetched version of the tool
// behind signed-tag verification and signals the restart that follows adoption.
package selfupdate
