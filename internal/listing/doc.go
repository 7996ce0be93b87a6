// Package listing defines the listing domain shared by the HTTP backend and the
// scraper: entities, the denormalized ingest payload with its validation, the
// query filter, and the Repository interface implemented under
// internal/storage. This package must not import database drivers.
package listing
