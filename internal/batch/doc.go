// Package batch parses uploaded batch payloads (CSV text with a header line
// and "serial,product,url;url;..." data lines) into domain rows.
package batch
