package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ultima-ai/ultima-broker/internal/generator"
	"github.com/ultima-ai/ultima-broker/internal/pricing"
	"github.com/ultima-ai/ultima-broker/internal/version"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": version.Version,
	})
}

type authSessionRequest struct {
	UserID string `json:"user_id"`
}

func (s *Server) handleAuthSession(w http.ResponseWriter, r *http.Request) {
	if s.auth == nil || s.authDisabled {
		s.respondError(w, http.StatusServiceUnavailable, errors.New("session auth disabled"))
		return
	}
	var req authSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, err)
		return
	}
	token, expires, err := s.auth.IssueToken(strings.TrimSpace(req.UserID))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"token":      token,
		"expires_at": expires,
	})
}

type chatRequest struct {
	UserID  string              `json:"user_id"`
	Message string              `json:"message"`
	History []generator.Message `json:"history,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, err)
		return
	}
	userID := s.userID(r, req.UserID)
	if userID == "" {
		s.respondError(w, http.StatusBadRequest, errors.New("user_id required"))
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		s.respondError(w, http.StatusBadRequest, errors.New("message required"))
		return
	}
	completion, err := s.broker.Chat(r.Context(), userID, req.Message, req.History)
	if err != nil {
		s.respondBrokerError(w, err)
		return
	}
	s.debugf("chat user=%s cost=%d balance=%d", userID, completion.Cost, completion.Balance)
	s.respondJSON(w, http.StatusOK, completion)
}

type codeSuggestRequest struct {
	UserID            string `json:"user_id"`
	FileContent       string `json:"file_content"`
	ChangeDescription string `json:"change_description"`
}

func (s *Server) handleCodeSuggest(w http.ResponseWriter, r *http.Request) {
	var req codeSuggestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, err)
		return
	}
	userID := s.userID(r, req.UserID)
	if userID == "" {
		s.respondError(w, http.StatusBadRequest, errors.New("user_id required"))
		return
	}
	if strings.TrimSpace(req.ChangeDescription) == "" {
		s.respondError(w, http.StatusBadRequest, errors.New("change_description required"))
		return
	}
	completion, err := s.broker.SuggestCode(r.Context(), userID, req.FileContent, req.ChangeDescription)
	if err != nil {
		s.respondBrokerError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, completion)
}

type toolSuggestRequest struct {
	UserID      string `json:"user_id"`
	Description string `json:"description"`
}

func (s *Server) handleToolSuggest(w http.ResponseWriter, r *http.Request) {
	var req toolSuggestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, err)
		return
	}
	userID := s.userID(r, req.UserID)
	if userID == "" {
		s.respondError(w, http.StatusBadRequest, errors.New("user_id required"))
		return
	}
	if strings.TrimSpace(req.Description) == "" {
		s.respondError(w, http.StatusBadRequest, errors.New("description required"))
		return
	}
	completion, err := s.broker.SuggestTool(r.Context(), userID, req.Description)
	if err != nil {
		s.respondBrokerError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, completion)
}

func (s *Server) handlePromptGet(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]any{
		"system_prompt": s.broker.SystemPrompt(),
	})
}

func (s *Server) handlePromptSuggest(w http.ResponseWriter, r *http.Request) {
	userID := s.userID(r, "")
	if userID == "" {
		s.respondError(w, http.StatusBadRequest, errors.New("user_id required"))
		return
	}
	completion, err := s.broker.SuggestPrompt(r.Context(), userID)
	if err != nil {
		s.respondBrokerError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, completion)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	userID := s.userID(r, "")
	if userID == "" {
		s.respondError(w, http.StatusBadRequest, errors.New("user_id required"))
		return
	}
	balance, err := s.broker.Balance(r.Context(), userID)
	if err != nil {
		s.respondBrokerError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"user_id": userID,
		"balance": balance,
	})
}

func (s *Server) handlePricing(w http.ResponseWriter, r *http.Request) {
	table := s.broker.Pricing()
	costs := make(map[string]int64)
	for _, op := range []pricing.Operation{
		pricing.OpChat,
		pricing.OpPromptSuggestion,
		pricing.OpCodeSuggestion,
		pricing.OpToolSuggestion,
	} {
		if cost, err := table.CostOf(op); err == nil {
			costs[string(op)] = cost
		}
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"costs":           costs,
		"packages":        table.Packages(),
		"price_per_token": table.PricePerToken(),
	})
}

type purchaseRequest struct {
	UserID  string `json:"user_id"`
	Package string `json:"package"`
}

func (s *Server) handlePurchase(w http.ResponseWriter, r *http.Request) {
	var req purchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, err)
		return
	}
	userID := s.userID(r, req.UserID)
	if userID == "" {
		s.respondError(w, http.StatusBadRequest, errors.New("user_id required"))
		return
	}
	result, err := s.broker.Purchase(r.Context(), userID, strings.TrimSpace(req.Package))
	if err != nil {
		s.respondBrokerError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	userID := s.userID(r, "")
	if userID == "" {
		s.respondError(w, http.StatusBadRequest, errors.New("user_id required"))
		return
	}
	history, err := s.broker.History(r.Context(), userID)
	if err != nil {
		s.respondBrokerError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"user_id":      userID,
		"transactions": history,
	})
}
