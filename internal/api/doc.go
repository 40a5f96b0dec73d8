// Package api exposes the batch image service over HTTP. Handlers translate
// requests into calls on service.RequestService and map service errors to
// status codes without leaking internal details to clients.
package api
