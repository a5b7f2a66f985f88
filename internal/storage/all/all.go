// Package all registers every indicator store backend with the storage
// factory. Commands blank-import this package; config decides which backend
// actually runs.
package all

import (
	_ "secint/internal/storage/mssql"
	_ "secint/internal/storage/postgres"
	_ "secint/internal/storage/sqlite"
)
