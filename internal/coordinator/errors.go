package coordinator

import (
	"fmt"

	"github.com/loykin/swupdate/internal/row"
)

// RowNotFoundError means the fetched document has no row at Address.
// Retrying cannot create a row, so it is returned on the first attempt.
type RowNotFoundError struct {
	Address row.Address
}

func (e *RowNotFoundError) Error() string {
	return fmt.Sprintf("row not found: machine=%s package_manager=%s", e.Address.Machine, e.Address.PackageManager)
}

// ExhaustedError is returned after every attempt failed.
type ExhaustedError struct {
	Address  row.Address
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("failed to update issue body for %s after %d attempts: %v", e.Address, e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }
