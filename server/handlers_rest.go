package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dotside-studios/davi-ndef-viewer/buildinfo"
	"github.com/dotside-studios/davi-ndef-viewer/ndef"
	"github.com/dotside-studios/davi-ndef-viewer/protocol"
	"github.com/dotside-studios/davi-ndef-viewer/scanlog"
	"github.com/dotside-studios/davi-ndef-viewer/session"
)

func abortError(c *gin.Context, status int, code string, err error) {
	c.AbortWithStatusJSON(status, protocol.ErrorResponse{Error: err.Error(), ErrorCode: code})
}

// indexParam reads a non-negative path index. Negative values are left to
// the store so they report as out of range.
func indexParam(c *gin.Context, name string) (int, bool) {
	i, err := strconv.Atoi(c.Param(name))
	if err != nil {
		abortError(c, http.StatusBadRequest, protocol.ErrCodeInvalidRequest, errors.New("invalid "+name+" index"))
		return 0, false
	}
	return i, true
}

// storeError maps scan log errors to a status and code.
func storeError(c *gin.Context, err error) {
	if scanlog.IsIndexOutOfRange(err) {
		abortError(c, http.StatusNotFound, protocol.ErrCodeIndexOutOfRange, err)
		return
	}
	abortError(c, http.StatusInternalServerError, protocol.ErrCodeInternalError, err)
}

// sessionError maps scanner lifecycle errors to a status and code.
func sessionError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, session.ErrAlreadyActive) || errors.Is(err, session.ErrNotActive) {
		status = http.StatusConflict
	}
	abortError(c, status, protocol.ErrCodeSessionError, err)
}

// GET /api/v1/health
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"version":   buildinfo.Version,
		"timestamp": time.Now().Format(time.RFC3339),
		"session":   sessionState(s.scanner),
	})
}

// GET /api/v1/batches
func (s *Server) handleListBatches(c *gin.Context) {
	c.JSON(http.StatusOK, batchSummaries(s.store))
}

// GET /api/v1/batches/:batch
func (s *Server) handleGetBatch(c *gin.Context) {
	batch, ok := indexParam(c, "batch")
	if !ok {
		return
	}
	detail, err := batchDetail(s.store, batch)
	if err != nil {
		storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// GET /api/v1/batches/:batch/messages/:message
func (s *Server) handleGetMessage(c *gin.Context) {
	batch, ok := indexParam(c, "batch")
	if !ok {
		return
	}
	message, ok := indexParam(c, "message")
	if !ok {
		return
	}
	detail, err := messageDetail(s.store, batch, message)
	if err != nil {
		storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// POST /api/v1/batches
func (s *Server) handleInjectBatch(c *gin.Context) {
	var req protocol.BatchInputRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, protocol.BatchInputResponse{
			Error:     "invalid JSON: " + err.Error(),
			ErrorCode: protocol.ErrCodeInvalidRequest,
		})
		return
	}
	if len(req.Messages) == 0 {
		c.JSON(http.StatusBadRequest, protocol.BatchInputResponse{
			Error:     "messages is required",
			ErrorCode: protocol.ErrCodeInvalidRequest,
		})
		return
	}

	messages := make([]ndef.Message, 0, len(req.Messages))
	for i, in := range req.Messages {
		m, err := in.ToMessage()
		if err != nil {
			log.WithError(err).WithField("message", i).Debug("Rejected injected batch")
			c.JSON(http.StatusBadRequest, protocol.BatchInputResponse{
				Error:     "message " + strconv.Itoa(i) + ": " + err.Error(),
				ErrorCode: protocol.ErrCodeInvalidNDEF,
			})
			return
		}
		messages = append(messages, m)
	}

	source := req.Source
	if source == "" {
		source = session.SourceHTTP
	}
	b := scanlog.NewBatch(source, messages)
	if req.ScannedAt != nil {
		b.ScannedAt = *req.ScannedAt
	}
	s.scanner.DeliverBatch(b)

	c.JSON(http.StatusOK, protocol.BatchInputResponse{Success: true, MessageCount: len(messages)})
}

// DELETE /api/v1/batches
func (s *Server) handleClearLog(c *gin.Context) {
	s.store.Clear()
	log.Info("Scan log cleared")
	c.Status(http.StatusNoContent)
}

// GET /api/v1/session
func (s *Server) handleGetSession(c *gin.Context) {
	c.JSON(http.StatusOK, sessionState(s.scanner))
}

// POST /api/v1/session/start
func (s *Server) handleStartSession(c *gin.Context) {
	if err := s.scanner.Start(s.ctx); err != nil {
		sessionError(c, err)
		return
	}
	s.broadcastSessionState()
	c.JSON(http.StatusOK, sessionState(s.scanner))
}

// POST /api/v1/session/stop
func (s *Server) handleStopSession(c *gin.Context) {
	if err := s.scanner.Stop(); err != nil {
		sessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionState(s.scanner))
}
