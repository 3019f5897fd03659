package routes

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"salesbot/salesbot/config"
	"salesbot/salesbot/controllers"
	"salesbot/salesbot/middlewares"
	"salesbot/salesbot/services/persona"
	"salesbot/salesbot/services/tasks"
	"salesbot/salesbot/sources/storage"
	"salesbot/salesbot/types"
	"salesbot/salesbot/utils/logging"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"go.uber.org/zap"
)

const (
	levelPrompt    = "Por favor, elija entre 'Basico', 'Medio' o 'Complejo'."
	invalidRequest = "Invalid request: missing user_name or text."
	maxFormBody    = 1 << 20
)

// handleText writes plain-text bodies; slash-command clients render them verbatim.
func handleText(handler func(r *http.Request) (string, int, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, status, err := handler(r)
		if err != nil {
			http.Error(w, err.Error(), status)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(status)
		io.WriteString(w, res)
	}
}

// generic wrapper to reduce boilerplate
func handleJSON(handler func(r *http.Request) (any, int, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, status, err := handler(r)
		if err != nil {
			http.Error(w, err.Error(), status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(res)
	}
}

// readSlashCommand parses the form body regardless of the declared content type.
// A malformed body is logged and read leniently rather than rejected.
func readSlashCommand(r *http.Request) (types.SlashCommand, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxFormBody))
	if err != nil {
		return types.SlashCommand{}, err
	}
	form, err := url.ParseQuery(string(body))
	if err != nil {
		logging.ErrorLogger.Error("malformed form body",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		keepRawPairs(form, string(body))
	}
	return types.SlashCommandFromForm(form), nil
}

// keepRawPairs adds the pairs url.ParseQuery skipped, with bad escapes left as sent.
func keepRawPairs(form url.Values, body string) {
	for _, pair := range strings.Split(body, "&") {
		k, v, _ := strings.Cut(pair, "=")
		key, err := url.QueryUnescape(k)
		if err != nil || key == "" || form.Has(key) {
			continue
		}
		if val, err := url.QueryUnescape(v); err == nil {
			form.Add(key, val)
			continue
		}
		form.Add(key, strings.ReplaceAll(v, "+", " "))
	}
}

func ChatRoutes(ctrl *controllers.ChatController, runner *tasks.Runner, cfg config.Config) chi.Router {
	r := chi.NewRouter()

	r.Group(func(gr chi.Router) {
		if cfg.SlackVerifySignature {
			gr.Use(middlewares.SlackSignature(cfg.SlackSigningSecret))
		}
		if cfg.WebhookRateLimit > 0 {
			gr.Use(httprate.LimitByIP(cfg.WebhookRateLimit, time.Minute))
		}

		// POST /chat/create-chat : start or reset the caller's session
		gr.Post("/create-chat", handleText(func(r *http.Request) (string, int, error) {
			cmd, err := readSlashCommand(r)
			if err != nil {
				return "", http.StatusBadRequest, err
			}
			level := strings.ToUpper(cmd.Text)
			if _, ok := persona.Parse(level); !ok {
				return levelPrompt, http.StatusOK, nil
			}
			msg, err := ctrl.CreateSession(r.Context(), cmd.UserName, level)
			if errors.Is(err, controllers.ErrInvalidUsername) {
				return invalidRequest, http.StatusOK, nil
			}
			if err != nil {
				return "", http.StatusInternalServerError, err
			}
			return msg, http.StatusOK, nil
		}))

		// POST /chat/chat-bot : reply arrives later through the notifier
		gr.Post("/chat-bot", handleText(func(r *http.Request) (string, int, error) {
			cmd, err := readSlashCommand(r)
			if err != nil {
				return "", http.StatusBadRequest, err
			}
			if cmd.UserName == "" || cmd.Text == "" {
				return invalidRequest, http.StatusOK, nil
			}
			scheduled := runner.Go(r.Context(), "chat-bot", func(ctx context.Context) error {
				_, err := ctrl.ChatBot(ctx, cmd.UserName, cmd.Text)
				return err
			})
			if !scheduled {
				return "", http.StatusServiceUnavailable, errors.New("server is shutting down")
			}
			return controllers.NormalizeText(cmd.Text) + " (Sent)", http.StatusOK, nil
		}))
	})

	r.Group(func(gr chi.Router) {
		gr.Use(middlewares.AdminAuth(cfg.AdminJWTSecret))

		// GET /chat/history/{user_name} : ordered history of the active session
		gr.Get("/history/{user_name}", handleJSON(func(r *http.Request) (any, int, error) {
			resp, err := ctrl.History(r.Context(), chi.URLParam(r, "user_name"))
			if errors.Is(err, controllers.ErrInvalidUsername) {
				return nil, http.StatusBadRequest, err
			}
			if errors.Is(err, controllers.ErrNoActiveSession) {
				return nil, http.StatusNotFound, err
			}
			if err != nil {
				return nil, http.StatusInternalServerError, err
			}
			return resp, http.StatusOK, nil
		}))

		// GET /chat/archive/{user_name}/{session_id} : transcript of a replaced session
		gr.Get("/archive/{user_name}/{session_id}", handleJSON(func(r *http.Request) (any, int, error) {
			resp, err := ctrl.Transcript(r.Context(), chi.URLParam(r, "user_name"), chi.URLParam(r, "session_id"))
			switch {
			case errors.Is(err, controllers.ErrInvalidUsername), errors.Is(err, controllers.ErrInvalidSessionID):
				return nil, http.StatusBadRequest, err
			case errors.Is(err, controllers.ErrArchiveDisabled), errors.Is(err, storage.ErrTranscriptNotFound):
				return nil, http.StatusNotFound, err
			case err != nil:
				return nil, http.StatusInternalServerError, err
			}
			return resp, http.StatusOK, nil
		}))
	})

	return r
}
