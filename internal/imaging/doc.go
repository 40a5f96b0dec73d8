// Package imaging fetches remote images, normalises them to JPEG and writes
// the results to blob storage. Each call handles exactly one URL and reports
// failures as *Error values classified by domain.ErrorKind.
package imaging
