package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/iliagerman/mordecai-sub000/internal/core"
	"github.com/iliagerman/mordecai-sub000/internal/service/conversation"
)

// CreateConversationRequest is the body of POST /api/v1/conversations.
type CreateConversationRequest struct {
	CreatorID           string            `json:"creator_id"`
	CreatorAddress      string            `json:"creator_address,omitempty"`
	Topic               string            `json:"topic"`
	Participants        []string          `json:"participants"`
	DisplayNames        map[string]string `json:"display_names,omitempty"`
	GeneralInstructions string            `json:"general_instructions,omitempty"`
	MaxIterations       int               `json:"max_iterations,omitempty"`
	// InstructionTimeout is a Go duration string such as "5m".
	InstructionTimeout string `json:"instruction_timeout,omitempty"`
}

// CreateConversationResponse is returned after a successful create.
type CreateConversationResponse struct {
	ID string `json:"id"`
}

// ConversationResponse describes one persisted conversation.
type ConversationResponse struct {
	*core.Conversation
	Active       bool                 `json:"active"`
	Participants []*core.Participant  `json:"participants,omitempty"`
	Live         *conversation.Status `json:"live,omitempty"`
}

// AddParticipantRequest is the body of POST .../participants.
type AddParticipantRequest struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name,omitempty"`
}

// CancelRequest is the body of POST .../cancel.
type CancelRequest struct {
	Reason string `json:"reason,omitempty"`
}

// InstructionRequest is the body of POST /api/v1/instructions.
type InstructionRequest struct {
	UserID         string `json:"user_id"`
	Text           string `json:"text"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// InstructionResponse carries the acknowledgement shown to the owner.
type InstructionResponse struct {
	Acknowledgement string `json:"acknowledgement"`
}

func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var req CreateConversationRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondDomainError(w, err)
		return
	}

	var timeout time.Duration
	if req.InstructionTimeout != "" {
		d, err := time.ParseDuration(req.InstructionTimeout)
		if err != nil || d <= 0 {
			s.respondDomainError(w, core.ErrValidation(core.CodeInvalidTimeout, "instruction_timeout must be a positive duration"))
			return
		}
		timeout = d
	}

	id, err := s.service.Create(r.Context(), conversation.CreateRequest{
		CreatorID:           req.CreatorID,
		CreatorAddress:      req.CreatorAddress,
		Topic:               req.Topic,
		MaxIterations:       req.MaxIterations,
		Participants:        req.Participants,
		DisplayNames:        req.DisplayNames,
		GeneralInstructions: req.GeneralInstructions,
		InstructionTimeout:  timeout,
		Source:              "api",
	})
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, CreateConversationResponse{ID: id})
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	convs, err := s.store.ListConversations(r.Context())
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	activeOnly := strings.EqualFold(r.URL.Query().Get("active"), "true")

	out := make([]ConversationResponse, 0, len(convs))
	for _, c := range convs {
		active := s.service.IsActive(c.ID)
		if activeOnly && !active {
			continue
		}
		out = append(out, ConversationResponse{Conversation: c, Active: active})
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "conversationID")
	conv, err := s.store.GetConversation(r.Context(), id)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	participants, err := s.store.ListParticipants(r.Context(), id)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}

	resp := ConversationResponse{Conversation: conv, Participants: participants}
	if status, err := s.service.Status(r.Context(), id); err == nil {
		resp.Active = true
		resp.Live = status
	} else if !core.IsNotActive(err) {
		s.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	text, err := s.service.Transcript(r.Context(), chi.URLParam(r, "conversationID"))
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	respondText(w, text)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	text, err := s.service.Summary(r.Context(), chi.URLParam(r, "conversationID"))
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	respondText(w, text)
}

func (s *Server) handleAddParticipant(w http.ResponseWriter, r *http.Request) {
	var req AddParticipantRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondDomainError(w, err)
		return
	}
	id := chi.URLParam(r, "conversationID")
	if err := s.service.AddParticipant(r.Context(), id, req.UserID, req.DisplayName); err != nil {
		s.respondDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	var req CancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.respondDomainError(w, core.ErrValidation("INVALID_BODY", "invalid request body: "+err.Error()))
		return
	}
	id := chi.URLParam(r, "conversationID")
	if err := s.service.Cancel(r.Context(), id, req.Reason); err != nil {
		s.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": string(core.StatusCancelled)})
}

func (s *Server) handleInstruction(w http.ResponseWriter, r *http.Request) {
	var req InstructionRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondDomainError(w, err)
		return
	}
	ack, err := s.service.HandlePrivateInstruction(r.Context(), req.UserID, req.Text, req.ConversationID)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, InstructionResponse{Acknowledgement: ack})
}
