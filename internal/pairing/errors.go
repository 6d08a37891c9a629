package pairing

import "codeberg.org/mutker/ridelogger/internal/errors"

const (
	// Configuration Errors
	ErrInvalidConfig = errors.ErrInvalidConfig
	ErrInvalidDBPath = errors.ErrorCode("pairing_invalid_db_path")

	// Schema Errors
	ErrSchemaInitFailed       = errors.ErrorCode("pairing_schema_init_failed")
	ErrSchemaValidationFailed = errors.ErrorCode("pairing_schema_validation_failed")
	ErrSchemaMigrationFailed  = errors.ErrorCode("pairing_schema_migration_failed")

	// Storage Errors
	ErrStorageAccess = errors.ErrorCode("pairing_storage_access_failed")
	ErrStorageInit   = errors.ErrInitFailed
	ErrStorageClose  = errors.ErrShutdownFailed

	// Input Errors
	ErrInvalidPairing = errors.ErrorCode("pairing_invalid_pairing")

	// Operation Errors
	ErrOperationTimeout = errors.ErrTimeout
)
