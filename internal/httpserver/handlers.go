package httpserver

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bubelovv/fcp-bot/internal/commands"
	"github.com/bubelovv/fcp-bot/internal/service"
	"go.uber.org/zap"
)

const maxPayloadBytes = 1 << 20

type handler struct {
	svc    Service
	secret []byte
	logger *zap.Logger
}

func (h *handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// commentPayload is the slice of the issue_comment and
// pull_request_review_comment event shapes the bot consumes.
type commentPayload struct {
	Action  string `json:"action"`
	Comment struct {
		ID   int64 `json:"id"`
		User struct {
			Login string `json:"login"`
		} `json:"user"`
		Body      string    `json:"body"`
		UpdatedAt time.Time `json:"updated_at"`
	} `json:"comment"`
	Issue       *issueRef `json:"issue"`
	PullRequest *issueRef `json:"pull_request"`
	Sender      struct {
		Login string `json:"login"`
	} `json:"sender"`
}

type issueRef struct {
	Number int `json:"number"`
	Labels []struct {
		Name string `json:"name"`
	} `json:"labels"`
}

// handleWebhook verifies the delivery signature over the raw body before
// any parsing; a bad or missing signature never reaches the state machine.
func (h *handler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_PAYLOAD", "cannot read body")
		return
	}

	if !h.verifySignature(r.Header.Get("X-Hub-Signature-256"), body) {
		h.logger.Warn("webhook signature verification failed",
			zap.String("delivery", r.Header.Get("X-GitHub-Delivery")))
		writeError(w, http.StatusUnauthorized, "BAD_SIGNATURE", "signature verification failed")
		return
	}

	eventType := r.Header.Get("X-GitHub-Event")
	switch eventType {
	case "issue_comment", "pull_request_review_comment":
	default:
		// Not a comment event; acknowledged and dropped.
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "ignored"})
		return
	}

	var payload commentPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_PAYLOAD", "cannot decode payload")
		return
	}

	target := payload.Issue
	if target == nil {
		target = payload.PullRequest
	}
	if target == nil || payload.Comment.ID == 0 {
		writeError(w, http.StatusBadRequest, "BAD_PAYLOAD", "payload missing issue or comment")
		return
	}

	if payload.Action == "deleted" {
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "ignored"})
		return
	}

	labels := make([]string, 0, len(target.Labels))
	for _, l := range target.Labels {
		labels = append(labels, l.Name)
	}

	ev := service.CommentEvent{
		Action:   payload.Action,
		Proposal: target.Number,
		Labels:   labels,
		Comment: commands.Comment{
			ID:       payload.Comment.ID,
			Author:   payload.Sender.Login,
			Body:     payload.Comment.Body,
			EditedAt: payload.Comment.UpdatedAt,
		},
	}

	if err := h.svc.HandleComment(r.Context(), ev); err != nil {
		// The delivery will be retried or the next sweep repairs state;
		// report the failure so the sender redelivers.
		h.logger.Error("processing delivery failed",
			zap.Int("proposal", ev.Proposal), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "EVALUATION_FAILED", "processing failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "processed"})
}

func (h *handler) verifySignature(header string, body []byte) bool {
	sig, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}
	want, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, h.secret)
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), want)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}
