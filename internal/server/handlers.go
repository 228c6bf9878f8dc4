package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/five82/eaglebridge/internal/wire"
)

// staleAfter is how long after the last poll the Initiator still counts as
// connected.
const staleAfter = 5 * time.Second

func (s *Server) routes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/ping", s.handlePing)
	router.GET("/messages", s.handleMessages)
	router.GET("/ae-status", s.handleStatus)
	router.POST("/settings-sync", s.handleSettings)
	router.POST("/ae-port-info", s.handlePortInfo)
	router.POST("/eagle-logs", s.handleLogs)
	router.POST("/clear-logs", s.handleClearLogs)
	router.POST("/export-files", s.handleExport)
	router.POST("/copy-to-clipboard", s.handleClipboard)
	// Any other /<event>-message path delivers an envelope.
	router.POST("/:event", s.handleEvent)
	return router
}

func reject(c *gin.Context, status int, msg string) {
	c.JSON(status, wire.Ack{Success: false, Error: msg})
}

func (s *Server) handlePing(c *gin.Context) {
	c.JSON(http.StatusOK, wire.PingResponse{
		Pong:      true,
		Service:   s.opts.Service,
		Version:   s.opts.Version,
		Timestamp: s.now().UnixMilli(),
		Port:      s.Port(),
	})
}

func (s *Server) handleMessages(c *gin.Context) {
	clientID := strings.TrimSpace(c.Query("clientId"))
	if clientID == "" {
		clientID = uuid.NewString()
	}
	if s.clients.touch(clientID, s.now()) {
		s.logger.Info("client registered", "client_id", clientID)
	}

	messages := s.queue.Drain()
	if messages == nil {
		messages = []wire.Envelope{}
	}
	c.JSON(http.StatusOK, wire.MessagesResponse{
		Messages:            messages,
		Logs:                s.logs.take(),
		ClientID:            clientID,
		WebsocketCompatible: false,
	})
}

func (s *Server) handleEvent(c *gin.Context) {
	event, ok := strings.CutSuffix(c.Param("event"), "-message")
	if !ok || event == "" {
		reject(c, http.StatusNotFound, "unknown endpoint")
		return
	}

	var env wire.Envelope
	if err := c.ShouldBindJSON(&env); err != nil {
		reject(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if env.Type == "" {
		reject(c, http.StatusBadRequest, "missing message type")
		return
	}

	msg, err := wire.Decode(env)
	if err != nil {
		s.logger.Warn("malformed inbound message", "event", event, "type", env.Type, "error", err)
		reject(c, http.StatusBadRequest, err.Error())
		return
	}

	switch m := msg.(type) {
	case wire.AEStatus:
		s.clients.setAEStatus(m)
	case wire.Unknown:
		s.logger.Warn("unknown message type dropped", "event", event, "type", m.Type)
		c.JSON(http.StatusOK, wire.Ack{Success: true})
		return
	}

	if s.opts.Inbound != nil {
		if err := s.opts.Inbound.HandleInbound(c.Request.Context(), event, env, msg); err != nil {
			reject(c, http.StatusInternalServerError, err.Error())
			return
		}
	} else {
		s.logger.Debug("inbound message", "event", event, "type", env.Type, "client_id", env.ClientID)
	}
	c.JSON(http.StatusOK, wire.Ack{Success: true})
}

func (s *Server) handleStatus(c *gin.Context) {
	lastPoll := s.clients.lastPollAt()
	resp := wire.StatusResponse{
		Connected:     !lastPoll.IsZero() && s.now().Sub(lastPoll) < staleAfter,
		SelectedFiles: []string{},
		EagleStatus:   "running",
		Clients:       s.clients.count(),
		PeerPort:      s.clients.peer(),
	}
	if !lastPoll.IsZero() {
		resp.LastPollAt = lastPoll.UnixMilli()
	}
	if s.opts.Collaborators != nil {
		if files := s.opts.Collaborators.SelectedFiles(); files != nil {
			resp.SelectedFiles = files
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleSettings(c *gin.Context) {
	var update wire.SettingsUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		reject(c, http.StatusBadRequest, "invalid request body")
		return
	}

	// A push without a settings body only moves the port; see Mirror.Apply.
	change, err := s.mirror.Apply(update)
	if err != nil {
		s.logger.Warn("settings push rejected", "error", err)
		reject(c, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Info("settings applied", "mode", change.Snapshot.Mode, "port", change.NewPort)

	if err := s.Enqueue(wire.KindSettingsAck, wire.SettingsAck{Port: change.NewPort, Applied: true}); err != nil {
		s.logger.Warn("settings ack not queued", "error", err)
	}

	moved := change.PortChanged()
	c.JSON(http.StatusOK, wire.Ack{Success: true, PortChanged: moved})
	if moved {
		s.restartAfterReply(change.NewPort)
	}
}

// restartAfterReply moves the listener in the background so the reply can
// leave on the old listener before it shuts down.
func (s *Server) restartAfterReply(port int) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), restartMaxHold)
		defer cancel()
		if err := s.Restart(ctx, port); err != nil {
			s.logger.Warn("port switch failed", "port", port, "error", err)
		}
	}()
}

func (s *Server) handlePortInfo(c *gin.Context) {
	var info wire.PortInfo
	if err := c.ShouldBindJSON(&info); err != nil {
		reject(c, http.StatusBadRequest, "invalid port info")
		return
	}
	prev := s.clients.setPeerPort(info.AEPort)
	if prev != info.AEPort {
		s.logger.Info("initiator port advertised", "peer_port", info.AEPort, "previous", prev, "source", info.Source)
	}

	// Only a strictly newer choice moves the listener; the move restamps
	// this side, so the same advertisement never moves it twice.
	move := s.opts.PortStamp != nil && info.AEPort != s.Port() && info.LastUpdated > s.opts.PortStamp()
	c.JSON(http.StatusOK, wire.Ack{Success: true, PortChanged: move})
	if move {
		s.logger.Info("adopting newer advertised port", "port", info.AEPort, "listening", s.Port())
		s.restartAfterReply(info.AEPort)
	}
}

func (s *Server) handleLogs(c *gin.Context) {
	var payload wire.LogsPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		reject(c, http.StatusBadRequest, "invalid request body")
		return
	}
	for i := range payload.Logs {
		if payload.Logs[i].Source == "" {
			payload.Logs[i].Source = wire.SourceInitiator
		}
	}
	s.buffer.Append(payload.Logs...)
	c.JSON(http.StatusOK, wire.Ack{Success: true, Received: len(payload.Logs)})
}

func (s *Server) handleClearLogs(c *gin.Context) {
	s.buffer.Clear()
	s.logs.clear()
	c.JSON(http.StatusOK, wire.Ack{Success: true, Message: "logs cleared"})
}

func (s *Server) handleExport(c *gin.Context) {
	raw, ok := s.rawBody(c)
	if !ok {
		return
	}
	if s.opts.Collaborators == nil {
		reject(c, http.StatusNotImplemented, "not supported")
		return
	}
	result, err := s.opts.Collaborators.ExportFiles(c.Request.Context(), raw)
	if err != nil {
		reject(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "result": result})
}

func (s *Server) handleClipboard(c *gin.Context) {
	raw, ok := s.rawBody(c)
	if !ok {
		return
	}
	if s.opts.Collaborators == nil {
		reject(c, http.StatusNotImplemented, "not supported")
		return
	}
	if err := s.opts.Collaborators.CopyToClipboard(c.Request.Context(), raw); err != nil {
		reject(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, wire.Ack{Success: true})
}

func (s *Server) rawBody(c *gin.Context) (json.RawMessage, bool) {
	raw, err := c.GetRawData()
	if err != nil || !json.Valid(raw) {
		reject(c, http.StatusBadRequest, "invalid request body")
		return nil, false
	}
	return raw, true
}
