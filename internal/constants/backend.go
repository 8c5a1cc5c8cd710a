package constants

// StoreBackend names a run-history storage implementation.
type StoreBackend string

const (
	// BackendSQLite persists run history in a SQLite database file.
	BackendSQLite StoreBackend = "sqlite"

	// BackendMemory keeps run history in process memory only.
	BackendMemory StoreBackend = "memory"
)

// Valid returns true if the backend is a recognized value.
func (b StoreBackend) Valid() bool {
	switch b {
	case BackendSQLite, BackendMemory:
		return true
	}
	return false
}

// String returns the string representation of the backend.
func (b StoreBackend) String() string {
	return string(b)
}
