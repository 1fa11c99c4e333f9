package middleware

import (
	"crypto/subtle"
	"net/http"
)

// WebhookSecretHeader is the header the chat-protocol edge sets on
// every delivery when a webhook secret is configured.
const WebhookSecretHeader = "X-Webhook-Secret-Token"

// WebhookAuth rejects event deliveries that do not carry the shared
// secret. With an empty secret the middleware is a passthrough, which
// keeps local development working without edge configuration.
func WebhookAuth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if secret == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(WebhookSecretHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
