package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"gwi.com/kbchat/internal/apperr"
	"gwi.com/kbchat/internal/auth"
	"gwi.com/kbchat/internal/core"
	"gwi.com/kbchat/internal/store"
)

type contextKey string

const userIDKey contextKey = "userID"

type APIHandler struct {
	chats        *core.ChatService
	rag          *core.RAGService
	entitlements *core.Entitlements
	tokens       core.TokenVerifier
	apiKeys      *auth.APIKeyAuthenticator
	logger       *zap.Logger
}

func NewAPIHandler(chats *core.ChatService, rag *core.RAGService, entitlements *core.Entitlements, tokens core.TokenVerifier, apiKeys *auth.APIKeyAuthenticator, logger *zap.Logger) *APIHandler {
	return &APIHandler{
		chats:        chats,
		rag:          rag,
		entitlements: entitlements,
		tokens:       tokens,
		apiKeys:      apiKeys,
		logger:       logger,
	}
}

type errorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps a classified error to its status. Internal detail is logged, not returned.
func (h *APIHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(kind)

	fields := []zap.Field{
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.String("kind", kind.String()),
		zap.Error(err),
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		for k, v := range ae.Fields {
			fields = append(fields, zap.String(k, v))
		}
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", fields...)
	} else {
		h.logger.Info("Request rejected", fields...)
	}

	writeJSON(w, status, errorResponse{Code: kind.String(), Error: http.StatusText(status)})
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.New(apperr.Validation, "api.decodeBody", fmt.Errorf("invalid request body: %w", err))
	}
	return nil
}

func (h *APIHandler) TokenAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := h.tokens.Verify(r.Header.Get("Authorization"))
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// modelView is what callers without detail access may see of a model.
type modelView struct {
	ID        store.ID        `json:"_id"`
	Name      string          `json:"name"`
	Avatar    string          `json:"avatar"`
	Intro     string          `json:"intro"`
	ChatModel store.ChatModel `json:"chatModel"`
}

func newModelView(m *store.Model) modelView {
	return modelView{ID: m.ID, Name: m.Name, Avatar: m.Avatar, Intro: m.Share.Intro, ChatModel: m.Chat.ChatModel}
}

type InitChatRequest struct {
	ModelID store.ID `json:"modelId"`
	ChatID  store.ID `json:"chatId"`
}

type InitChatResponse struct {
	UserID          store.ID               `json:"userId"`
	Model           any                    `json:"model"`
	ShowModelDetail bool                   `json:"showModelDetail"`
	History         []store.ChatItemSimple `json:"history"`
	UsesOwnKey      bool                   `json:"usesOwnKey"`
}

func (h *APIHandler) InitChatHandler(w http.ResponseWriter, r *http.Request) {
	var req InitChatRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	access, err := h.chats.AuthChat(r.Context(), core.AuthChatInput{
		ModelID:       req.ModelID,
		ChatID:        req.ChatID,
		Authorization: r.Header.Get("Authorization"),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := InitChatResponse{
		UserID:          access.UserID,
		Model:           newModelView(access.Model),
		ShowModelDetail: access.ShowModelDetail,
		History:         access.Content,
		UsesOwnKey:      access.UserKey != "",
	}
	if access.ShowModelDetail {
		resp.Model = access.Model
	}
	writeJSON(w, http.StatusOK, resp)
}

type SearchChatRequest struct {
	ModelID store.ID               `json:"modelId"`
	ChatID  store.ID               `json:"chatId"`
	Prompts []store.ChatItemSimple `json:"prompts"`
}

func (h *APIHandler) SearchChatHandler(w http.ResponseWriter, r *http.Request) {
	var req SearchChatRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	access, err := h.chats.AuthChat(r.Context(), core.AuthChatInput{
		ModelID:       req.ModelID,
		ChatID:        req.ChatID,
		Authorization: r.Header.Get("Authorization"),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if !access.Model.Chat.UseKB {
		writeJSON(w, http.StatusOK, core.SearchOutcome{Code: core.CodeProceed})
		return
	}

	prompts := req.Prompts
	if len(prompts) == 0 {
		prompts = access.Content
	}
	outcome, err := h.rag.SearchKB(r.Context(), core.SearchKBInput{
		UserKey: access.UserKey,
		Prompts: prompts,
		Model:   access.Model,
		UserID:  access.UserID,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

type SaveChatRequest struct {
	ChatID    store.ID         `json:"chatId"`
	NewChatID store.ID         `json:"newChatId"`
	ModelID   store.ID         `json:"modelId"`
	Prompts   []store.ChatItem `json:"prompts"`
}

func (h *APIHandler) SaveChatHandler(w http.ResponseWriter, r *http.Request) {
	var req SaveChatRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	chatID, err := h.chats.SaveChat(r.Context(), core.SaveChatInput{
		ChatID:        req.ChatID,
		NewChatID:     req.NewChatID,
		ModelID:       req.ModelID,
		Prompts:       req.Prompts,
		Authorization: r.Header.Get("Authorization"),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]store.ID{"chatId": chatID})
}

func (h *APIHandler) GetModelHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(userIDKey).(store.ID)
	modelID := store.ID(chi.URLParam(r, "modelID"))

	access, err := h.entitlements.AuthModel(r.Context(), modelID, userID, core.AuthModelOptions{AuthUser: true})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, access)
}

type OpenAPISearchRequest struct {
	ModelID    store.ID               `json:"modelId"`
	Prompts    []store.ChatItemSimple `json:"prompts"`
	Similarity float64                `json:"similarity"`
}

// OpenAPISearchHandler serves knowledge base lookups for open-API keys.
func (h *APIHandler) OpenAPISearchHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := h.apiKeys.Authenticate(r.Context(), r.Header.Get("apikey"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req OpenAPISearchRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	access, err := h.entitlements.AuthModel(r.Context(), req.ModelID, userID, core.AuthModelOptions{AuthUser: true, ReserveDetail: true})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	keys, err := h.entitlements.GetAPIKey(r.Context(), access.Model.Chat.ChatModel, userID, false)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	outcome, err := h.rag.SearchKB(r.Context(), core.SearchKBInput{
		UserKey:    keys.UserKey,
		Prompts:    req.Prompts,
		Model:      access.Model,
		UserID:     userID,
		Similarity: req.Similarity,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}
