// Package database manages the pgx connection pool for the shared
// simulation database.
package database
