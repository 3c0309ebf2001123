package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ordo-ai/ordo/pkg/llm"
	"github.com/ordo-ai/ordo/pkg/orchestrator"
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatSettings struct {
	SystemPrompt string  `json:"systemPrompt"`
	Temperature  float32 `json:"temperature"`
}

type chatRequest struct {
	Message        string        `json:"message"`
	Model          string        `json:"model"`
	Provider       string        `json:"provider"`
	APIKey         string        `json:"apiKey"`
	HistoryMessage []chatMessage `json:"historyMessage"`
	Settings       chatSettings  `json:"settings"`
}

// ChatStream answers a chat message as a server-sent event stream, one
// data frame per chunk.
func (s *Server) ChatStream(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	if req.Message == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
		return
	}

	runner, err := s.pickRunner(req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	systemPrompt := req.Settings.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = s.cfg.Server.SystemPrompt
	}

	history := make([]llm.Message, 0, len(req.HistoryMessage))
	for _, msg := range req.HistoryMessage {
		history = append(history, llm.Message{Role: msg.Role, Content: msg.Content})
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)

	chunks := runner.Run(c.Request.Context(), orchestrator.Request{
		Query:        req.Message,
		SystemPrompt: systemPrompt,
		Temperature:  req.Settings.Temperature,
		History:      history,
	})
	for chunk := range chunks {
		payload, err := json.Marshal(gin.H{"content": chunk.Content})
		if err != nil {
			continue
		}
		if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", payload); err != nil {
			s.logger.Warn("Client disconnected during stream", "error", err)
			return
		}
		c.Writer.Flush()
	}
}

// pickRunner uses the shared runner unless the request overrides the LLM
// gateway settings.
func (s *Server) pickRunner(req chatRequest) (Runner, error) {
	if req.Provider == "" && req.Model == "" && req.APIKey == "" {
		return s.runner, nil
	}
	if s.newRunner == nil {
		return s.runner, nil
	}

	override := s.cfg.LLM
	if req.Provider != "" {
		override.Provider = req.Provider
		override.BaseURL = "" // let the provider map pick the URL
	}
	if req.Model != "" {
		override.Model = req.Model
	}
	if req.APIKey != "" {
		override.APIKey = req.APIKey
	}
	runner, err := s.newRunner(override)
	if err != nil {
		return nil, fmt.Errorf("invalid llm settings: %w", err)
	}
	return runner, nil
}
