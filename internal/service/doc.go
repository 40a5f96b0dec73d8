// Package service contains the submission front door of the batch pipeline.
//
// RequestService accepts a raw batch payload, stores it in blob storage,
// records a PENDING request and enqueues a job for the dispatcher. It also
// answers status queries by combining the request record with its row
// results.
//
// The service depends on the store and queue interfaces, never on a
// specific implementation. Unexpected failures are wrapped in ServiceError;
// expected conditions are reported through sentinel errors that the API
// layer maps to HTTP status codes.
package service
