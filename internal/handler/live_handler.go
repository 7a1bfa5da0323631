package handler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/isdm-app/isdm-api/internal/directory"
	"github.com/isdm-app/isdm-api/internal/models"
	"github.com/isdm-app/isdm-api/internal/repository"
	"github.com/isdm-app/isdm-api/internal/service"
	appErrors "github.com/isdm-app/isdm-api/pkg/errors"
	"github.com/isdm-app/isdm-api/pkg/middleware/cors"
)

// Client actions accepted on a live session.
const (
	ActionQuery       = "query"
	ActionDelete      = "delete"
	ActionConfirm     = "confirm"
	ActionCancel      = "cancel"
	ActionAcknowledge = "acknowledge"
)

// Server message types sent on a live session.
const (
	MessageView     = "view"
	MessageDeletion = "deletion"
	MessageError    = "error"
)

type subscriber interface {
	Subscribe(ctx context.Context, onChange repository.SnapshotFunc) (repository.Unsubscribe, error)
}

// LiveRequest is a client frame. Query fields left out keep their current value.
type LiveRequest struct {
	Action string  `json:"action"`
	ID     string  `json:"id,omitempty"`
	Search *string `json:"search,omitempty"`
	SortBy *string `json:"sortBy,omitempty"`
	Status *string `json:"status,omitempty"`
	Career *string `json:"career,omitempty"`
}

// LiveMessage is a server frame; which fields are set depends on Type.
type LiveMessage struct {
	Type     string                  `json:"type"`
	Query    *directory.Query        `json:"query,omitempty"`
	Students []models.Student        `json:"students,omitempty"`
	Total    *int                    `json:"total,omitempty"`
	State    directory.DeletionState `json:"state,omitempty"`
	Student  *models.Student         `json:"student,omitempty"`
	Prompt   string                  `json:"prompt,omitempty"`
	Message  string                  `json:"message,omitempty"`
	Error    *appErrors.Error        `json:"error,omitempty"`
}

// LiveConfig tunes live sessions.
type LiveConfig struct {
	WriteTimeout   time.Duration
	PongWait       time.Duration
	AllowedOrigins []string
}

// LiveHandler serves one websocket per directory screen. Each session owns its
// own subscription, view engine and deletion dialog.
type LiveHandler struct {
	store    subscriber
	remover  directory.Remover
	metrics  *service.MetricsService
	logger   *zap.Logger
	cfg      LiveConfig
	upgrader websocket.Upgrader
}

// NewLiveHandler constructs a LiveHandler.
func NewLiveHandler(store subscriber, remover directory.Remover, metrics *service.MetricsService, logger *zap.Logger, cfg LiveConfig) *LiveHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = 60 * time.Second
	}
	return &LiveHandler{
		store:   store,
		remover: remover,
		metrics: metrics,
		logger:  logger,
		cfg:     cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     cors.NewOrigins(cfg.AllowedOrigins).CheckOrigin,
		},
	}
}

// Serve godoc
// @Summary Live directory session
// @Description Upgrades to a websocket. The server pushes a view frame after every
// @Description snapshot or query change and a deletion frame after every dialog change.
// @Tags Students
// @Param access_token query string false "Bearer token when headers cannot be set"
// @Success 101
// @Router /students/live [get]
func (h *LiveHandler) Serve(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	session := &liveSession{
		conn:         conn,
		writeTimeout: h.cfg.WriteTimeout,
		flow:         directory.NewDeletionFlow(h.remover),
		logger:       h.logger,
	}
	session.engine = directory.NewEngine(session.sendView)

	h.metrics.LiveSessionOpened()
	defer h.metrics.LiveSessionClosed()
	session.run(c.Request.Context(), h.store, h.cfg.PongWait)
}

type liveSession struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	engine       *directory.Engine
	flow         *directory.DeletionFlow
	logger       *zap.Logger

	writeMu sync.Mutex
	closed  bool
}

func (s *liveSession) run(ctx context.Context, store subscriber, pongWait time.Duration) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer s.close()

	unsubscribe, err := store.Subscribe(ctx, s.engine.SetRecords)
	if err != nil {
		s.logger.Warn("live session subscription failed", zap.Error(err))
		s.send(LiveMessage{Type: MessageError, Error: appErrors.ErrStoreSubscription.With(err, "could not subscribe to students")})
		return
	}
	defer unsubscribe()

	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go s.keepAlive(ctx, pongWait*9/10)
	go func() {
		<-ctx.Done()
		s.close()
	}()

	for {
		var req LiveRequest
		if err := s.conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("live session read failed", zap.Error(err))
			}
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
		s.handle(ctx, req)
	}
}

func (s *liveSession) keepAlive(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.writeTimeout)); err != nil {
				return
			}
		}
	}
}

func (s *liveSession) handle(ctx context.Context, req LiveRequest) {
	switch req.Action {
	case ActionQuery:
		s.applyQuery(req)
	case ActionDelete:
		student, ok := s.engine.Lookup(req.ID)
		if !ok {
			s.sendError(appErrors.Clone(appErrors.ErrNotFound, "student not found"))
			return
		}
		if err := s.flow.Request(student); err != nil {
			s.sendError(transitionError(err))
			return
		}
		s.sendDeletion()
	case ActionConfirm:
		pending, err := s.flow.BeginDelete()
		if err != nil {
			s.sendError(transitionError(err))
			return
		}
		s.send(LiveMessage{Type: MessageDeletion, State: directory.DeletionDeleting, Student: &pending})
		// The removal outlives the session if the socket closes meanwhile.
		go func() {
			if err := s.flow.CompleteDelete(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn("live delete failed", zap.String("id", pending.ID), zap.Error(err))
			}
			s.sendDeletion()
		}()
	case ActionCancel:
		if err := s.flow.Cancel(); err != nil {
			s.sendError(transitionError(err))
			return
		}
		s.sendDeletion()
	case ActionAcknowledge:
		if err := s.flow.Acknowledge(); err != nil {
			s.sendError(transitionError(err))
			return
		}
		s.sendDeletion()
	default:
		s.sendError(appErrors.Clone(appErrors.ErrValidation, "unknown action "+req.Action))
	}
}

func (s *liveSession) applyQuery(req LiveRequest) {
	current := s.engine.Query()
	search, sortBy, status, career := current.Search, string(current.SortBy), current.Status, current.Career
	if req.Search != nil {
		search = *req.Search
	}
	if req.SortBy != nil {
		sortBy = *req.SortBy
	}
	if req.Status != nil {
		status = *req.Status
	}
	if req.Career != nil {
		career = *req.Career
	}
	q, err := directory.ParseQuery(search, sortBy, status, career)
	if err != nil {
		s.sendError(appErrors.ErrValidation.With(err, err.Error()))
		return
	}
	s.engine.SetQuery(q)
}

func transitionError(err error) *appErrors.Error {
	if errors.Is(err, directory.ErrInvalidTransition) {
		return appErrors.ErrConflict.With(err, "action not allowed in the current dialog state")
	}
	return appErrors.FromError(err)
}

func (s *liveSession) sendView(students []models.Student, q directory.Query) {
	total := len(students)
	if students == nil {
		students = []models.Student{}
	}
	s.send(LiveMessage{Type: MessageView, Query: &q, Students: students, Total: &total})
}

func (s *liveSession) sendDeletion() {
	msg := LiveMessage{Type: MessageDeletion, State: s.flow.State(), Message: s.flow.Message()}
	if pending, ok := s.flow.Pending(); ok {
		msg.Student = &pending
		if msg.State == directory.DeletionPendingConfirmation {
			msg.Prompt = directory.ConfirmationPrompt(pending)
		}
	}
	s.send(msg)
}

func (s *liveSession) sendError(err *appErrors.Error) {
	s.send(LiveMessage{Type: MessageError, Error: err})
}

func (s *liveSession) send(msg LiveMessage) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closed {
		return
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	if err := s.conn.WriteJSON(msg); err != nil {
		s.logger.Debug("live session write failed", zap.Error(err))
		s.closed = true
		_ = s.conn.Close()
	}
}

func (s *liveSession) close() {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	_ = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	_ = s.conn.Close()
}
