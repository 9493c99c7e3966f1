// Package httpapi exposes the runtime over HTTP: submitting a turn,
// probing queue/scheduler health, and streaming tool-call events.
package httpapi

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	oasis "github.com/lattice-run/agentcore"
)

// Server wraps a *gin.Engine around a Runtime.
type Server struct {
	rt     *oasis.Runtime
	engine *gin.Engine
	logger *slog.Logger
}

// New builds a Server with the standard three routes wired: POST
// /tasks, GET /status, GET /events. A nil logger discards output.
func New(rt *oasis.Runtime, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Server{rt: rt, engine: gin.Default(), logger: logger}
	s.engine.POST("/tasks", s.handleSubmitTask)
	s.engine.GET("/status", s.handleStatus)
	s.engine.GET("/events", s.handleEvents)
	return s
}

// Engine returns the underlying gin.Engine, e.g. for httptest.
func (s *Server) Engine() *gin.Engine { return s.engine }

// Run starts the HTTP server on addr. It blocks until the server
// stops or errors.
func (s *Server) Run(addr string) error {
	s.logger.Info("httpapi: listening", "addr", addr)
	return s.engine.Run(addr)
}

type submitTaskRequest struct {
	Message string             `json:"message" binding:"required"`
	History []oasis.ChatMessage `json:"history,omitempty"`
	Lane    string             `json:"lane,omitempty"`
}

// handleSubmitTask handles POST /tasks: submitTask(userMessage,
// history, lane) -> TaskResult. A client that sends
// "Accept: text/event-stream" gets the reply relayed token-by-token
// over SSE instead of a single JSON body.
func (s *Server) handleSubmitTask(c *gin.Context) {
	var req submitTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	lane, err := parseLane(req.Lane)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id := oasis.NewID()

	if c.GetHeader("Accept") == "text/event-stream" {
		s.streamTask(c, lane, id, req.Message, req.History)
		return
	}

	resultC := s.rt.Submit(c.Request.Context(), lane, id, req.Message, req.History)
	select {
	case result := <-resultC:
		c.JSON(http.StatusOK, result)
	case <-c.Request.Context().Done():
		c.JSON(http.StatusRequestTimeout, gin.H{"error": "request cancelled"})
	}
}

// streamTask relays each token as an SSE "delta" event, then a final
// "result" event carrying the full TaskResult.
func (s *Server) streamTask(c *gin.Context, lane oasis.Lane, id, message string, history []oasis.ChatMessage) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	tokens := make(chan string, 64)
	resultC := s.rt.SubmitStream(c.Request.Context(), lane, id, message, history, func(tok string) {
		select {
		case tokens <- tok:
		default:
		}
	})

	c.Stream(func(w io.Writer) bool {
		select {
		case tok, ok := <-tokens:
			if !ok {
				return false
			}
			c.SSEvent("delta", tok)
			return true
		case result := <-resultC:
			for len(tokens) > 0 {
				c.SSEvent("delta", <-tokens)
			}
			c.SSEvent("result", result)
			return false
		case <-c.Request.Context().Done():
			return false
		}
	})
}

// handleStatus handles GET /status: {agent, queue, heartbeat}.
func (s *Server) handleStatus(c *gin.Context) {
	queue := gin.H{}
	for _, lane := range []oasis.Lane{oasis.LaneFast, oasis.LaneSlow, oasis.LaneBackground} {
		pending, queued := s.rt.LaneCounters(lane)
		queue[string(lane)] = gin.H{"pending": pending, "queued": queued}
	}

	c.JSON(http.StatusOK, gin.H{
		"agent": gin.H{
			"scheduler_metrics": s.rt.Scheduler().GetHealthMetrics(),
		},
		"queue":     queue,
		"heartbeat": s.rt.Scheduler().Heartbeat(),
	})
}

// handleEvents handles GET /events: an SSE stream of tool:start/
// tool:end events from the Event Bus.
func (s *Server) handleEvents(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	events, unsubscribe := s.rt.EventBus().Subscribe()
	defer unsubscribe()

	c.Stream(func(w io.Writer) bool {
		select {
		case event, ok := <-events:
			if !ok {
				return false
			}
			name := "event"
			switch event.(type) {
			case oasis.ToolStartEvent:
				name = "tool.start"
			case oasis.ToolEndEvent:
				name = "tool.end"
			}
			c.SSEvent(name, event)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

func parseLane(s string) (oasis.Lane, error) {
	switch oasis.Lane(s) {
	case "":
		return oasis.LaneFast, nil
	case oasis.LaneFast, oasis.LaneSlow, oasis.LaneBackground:
		return oasis.Lane(s), nil
	default:
		return "", fmt.Errorf("unknown lane %q", s)
	}
}
