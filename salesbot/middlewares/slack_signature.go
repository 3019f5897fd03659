package middlewares

import (
	"bytes"
	"io"
	"net/http"

	"salesbot/salesbot/utils/logging"

	"github.com/slack-go/slack"
	"go.uber.org/zap"
)

const maxWebhookBody = 1 << 20

// SlackSignature checks X-Slack-Signature against the signing secret and
// hands the untouched body to the next handler.
func SlackSignature(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sv, err := slack.NewSecretsVerifier(r.Header, secret)
			if err != nil {
				logging.AppLogger.Warn("slack signature headers rejected", zap.Error(err))
				http.Error(w, "invalid signature", http.StatusUnauthorized)
				return
			}
			body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
			if err != nil {
				http.Error(w, "failed to read body", http.StatusBadRequest)
				return
			}
			if _, err := sv.Write(body); err != nil {
				http.Error(w, "invalid signature", http.StatusUnauthorized)
				return
			}
			if err := sv.Ensure(); err != nil {
				logging.AppLogger.Warn("slack signature mismatch", zap.Error(err))
				http.Error(w, "invalid signature", http.StatusUnauthorized)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			next.ServeHTTP(w, r)
		})
	}
}
