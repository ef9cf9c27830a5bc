// Package storage defines the vault file-system abstraction.
package storage

import "github.com/starford/synapse/internal/models"

// Provider is the interface for vault file operations. Every path is relative
// to the vault root; implementations must reject paths that resolve outside it.
type Provider interface {
	// List returns catalog info for every .md file under dir.
	List(dir string) ([]models.DocumentInfo, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path, creating parent directories.
	Write(path string, content []byte) error
	// Stat returns catalog info for a single file.
	Stat(path string) (models.DocumentInfo, error)
	// Exists reports whether a regular file exists at path.
	Exists(path string) bool
	// Root returns the absolute vault root.
	Root() string
}
