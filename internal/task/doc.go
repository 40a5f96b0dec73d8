// Package task runs the asynchronous side of the batch pipeline.
//
// A Runner owns the worker goroutines that receive jobs from the queue and
// hand each delivery to the Dispatcher. The Dispatcher drives a request
// through PENDING, PROCESSING and a terminal status, using the Coordinator
// to fan every row's image URLs out to the image processor under a single
// concurrency limit. The Runner also re-enqueues unfinished requests at
// start-up and periodically re-enqueues requests that look stuck.
package task
