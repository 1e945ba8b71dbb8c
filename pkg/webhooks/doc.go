// Package webhooks posts account events to an outbound webhook.
//
// A Notifier is configured with a single URL. The body is shaped for the
// service behind it: Slack gets {"text"}, Discord gets {"content"}, Microsoft
// Teams gets a connector card, and anything else receives the event as JSON:
//
//	{"action": "signup", "message": "New user signed up: Ada", "user": "{...}"}
//
// Generic targets also get X-WebUI-Event and, when a secret is configured, an
// HMAC-SHA256 X-WebUI-Signature header that receivers can check with
// VerifySignature.
//
// Deliveries are best-effort. They run in a background goroutine detached from
// the request context, retry with exponential backoff, and only log failures.
package webhooks
