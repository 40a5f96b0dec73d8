// Package events carries request lifecycle events from the dispatcher to
// interested components, such as the webhook notifier, without the
// dispatcher depending on them.
//
// The primary components are:
// - RequestEvent: a request reached COMPLETED or FAILED
// - EventHandler: interface for components that can handle events
// - EventEmitter: interface for components that can emit events
package events
