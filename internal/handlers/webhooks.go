package handlers

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/asjpl/pcl-portal/internal/apperr"
	"github.com/asjpl/pcl-portal/internal/services/sms"
)

// InboundSMS receives ClickSend inbound message callbacks
func (h *Handler) InboundSMS(w http.ResponseWriter, r *http.Request) {
	if err := h.messaging.CheckWebhookToken(r.URL.Query().Get("token")); err != nil {
		writeError(w, r, err)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		jsonError(w, "Invalid request body.", http.StatusBadRequest)
		return
	}

	inbound, err := sms.ParseInbound(r.Header.Get("Content-Type"), body, h.cfg.ClickSendFrom)
	if err != nil {
		writeError(w, r, apperr.Wrap(apperr.ErrValidation, "Invalid webhook payload.", err))
		return
	}

	result, err := h.messaging.ReceiveInbound(r.Context(), inbound)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if result.Unmatched {
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true, "unmatched": true})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "smsId": result.SmsID})
}

// RunLateFees is the scheduler trigger. It marks overdue payments, accrues
// the day's late fees and prunes expired sign-out records. A run cut short
// still reports how far it got.
func (h *Handler) RunLateFees(w http.ResponseWriter, r *http.Request) {
	if err := h.lateFees.Authorize(r.Header.Get("Authorization")); err != nil {
		jsonError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	result, err := h.lateFees.Run(r.Context(), h.now())
	body := map[string]any{
		"ok":            err == nil,
		"created":       result.Created,
		"markedOverdue": result.MarkedOverdue,
		"failed":        result.Failed,
		"skipped":       result.Skipped,
	}
	if err != nil {
		slog.Error("late fee run failed", "error", err, "created", result.Created, "failed", result.Failed)
		body["error"] = "Late fee run did not finish."
		writeJSON(w, http.StatusInternalServerError, body)
		return
	}

	pruned, err := h.auth.CleanupRevocations(r.Context())
	if err != nil {
		slog.Warn("failed to prune expired sessions", "error", err)
	}
	body["sessionsPruned"] = pruned
	writeJSON(w, http.StatusOK, body)
}
