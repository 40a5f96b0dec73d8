// Package notify delivers best-effort completion webhooks. A Notifier is an
// events.EventHandler: terminal request events are buffered and POSTed to a
// configured URL by a background goroutine, so a slow or unreachable
// receiver never delays the dispatcher.
package notify
