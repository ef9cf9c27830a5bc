package index

// Catalog is the set of catalog operations the rest of the engine uses.
// Consumers depend on this interface rather than *DB.
type Catalog interface {
	Upsert(r Row) error
	Delete(path string) error
	Get(path string) (*Row, error)
	GetChecksum(path string) (string, error)
	AllChecksums() (map[string]string, error)
	List(folders []string) ([]Row, error)
	FindByFilename(filename, folder string) ([]string, error)
	Count() (int, error)
	Close() error
}

var _ Catalog = (*DB)(nil)
