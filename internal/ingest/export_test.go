package ingest

// ValidateAt exposes the injectable-clock validator for tests.
var ValidateAt = validateAt

// RetriableStorageError exposes the consumer's requeue decision for tests.
var RetriableStorageError = retriableStorageError
