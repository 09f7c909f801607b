// Package all links every warehouse backend into the binary.
package all

import (
	_ "tmdbetl/internal/storage/bigquery"
	_ "tmdbetl/internal/storage/mssql"
	_ "tmdbetl/internal/storage/mysql"
	_ "tmdbetl/internal/storage/postgres"
	_ "tmdbetl/internal/storage/sqlite"
)
