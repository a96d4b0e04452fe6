package server

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorodbot/server/internal/agent/graph"
	logx "github.com/gorodbot/server/pkg/logger"
)

// ChatRequest is the public chat payload.
type ChatRequest struct {
	UserID  string `json:"user_id"`
	Message string `json:"message"`
}

// ChatResponse mirrors model.TurnResult for the wire.
type ChatResponse struct {
	Response              string `json:"response"`
	Category              string `json:"category,omitempty"`
	AwaitingClarification bool   `json:"awaiting_clarification"`
}

// ChatHandlers serves the conversational endpoint.
type ChatHandlers struct {
	Runner graph.Runner
}

func (h *ChatHandlers) HandleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_json"})
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	req.Message = strings.TrimSpace(req.Message)
	if req.UserID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "user_id_required"})
		return
	}
	if req.Message == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "message_required"})
		return
	}

	result, err := h.Runner.HandleTurn(r.Context(), ThreadKey(req.UserID), req.Message)
	if err != nil {
		logx.Error().Err(err).Msg("chat turn failed")
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "chat_failed"})
		return
	}

	writeJSON(w, http.StatusOK, ChatResponse{
		Response:              result.ResponseText,
		Category:              string(result.Category),
		AwaitingClarification: result.AwaitingClarification,
	})
}

// ThreadKey derives a stable opaque thread id from a raw user id, keeping
// external identifiers out of storage keys.
func ThreadKey(userID string) string {
	sum := sha256.Sum256([]byte(userID))
	return hex.EncodeToString(sum[:16])
}
