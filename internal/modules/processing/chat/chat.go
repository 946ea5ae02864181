package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/itorigin/site/internal/pkg/metrics"
	"github.com/itorigin/site/internal/pkg/response"
	"go.uber.org/zap"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"

	MaxMessages      = 20
	MaxMessageLength = 2000

	replyTimeout = 30 * time.Second
)

var (
	ErrDisabled = errors.New("chat is not configured")
	ErrUpstream = errors.New("chat provider failed")
)

// ValidationError carries per-field messages for a rejected input.
type ValidationError = response.ValidationError

type Message struct {
	Role    string `json:"role"    binding:"required"`
	Content string `json:"content" binding:"required"`
}

type RequestDTO struct {
	Messages []Message `json:"messages" binding:"required,dive"`
}

type Service struct {
	completer Completer
	system    string
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// NewService returns a Service. completer may be nil when no provider is
// configured; every reply then fails with ErrDisabled.
func NewService(completer Completer, siteName string, m *metrics.Metrics, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		completer: completer,
		system:    systemPrompt(siteName),
		metrics:   m,
		logger:    logger.Named("chat"),
	}
}

// Enabled reports whether a provider is configured.
func (s *Service) Enabled() bool { return s.completer != nil }

// Reply answers the last user message of a conversation.
func (s *Service) Reply(ctx context.Context, turns []Message) (string, error) {
	if s.completer == nil {
		return "", ErrDisabled
	}
	turns, err := validate(turns)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, replyTimeout)
	defer cancel()
	reply, err := s.completer.Complete(ctx, s.system, turns)
	s.metrics.RecordChat(ctx, err == nil)
	if err != nil {
		s.logger.Warn("chat completion failed", zap.Int("turns", len(turns)), zap.Error(err))
		return "", fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	return reply, nil
}

func validate(turns []Message) ([]Message, error) {
	fields := map[string]string{}
	switch {
	case len(turns) == 0:
		fields["messages"] = "is required"
	case len(turns) > MaxMessages:
		fields["messages"] = fmt.Sprintf("must contain at most %d messages", MaxMessages)
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	out := make([]Message, 0, len(turns))
	for i, t := range turns {
		role := strings.ToLower(strings.TrimSpace(t.Role))
		content := strings.TrimSpace(t.Content)
		if role != RoleUser && role != RoleAssistant {
			fields[fmt.Sprintf("messages[%d].role", i)] = "must be one of user assistant"
		}
		switch {
		case content == "":
			fields[fmt.Sprintf("messages[%d].content", i)] = "is required"
		case utf8.RuneCountInString(content) > MaxMessageLength:
			fields[fmt.Sprintf("messages[%d].content", i)] = fmt.Sprintf("must be at most %d characters", MaxMessageLength)
		}
		out = append(out, Message{Role: role, Content: content})
	}
	if last := out[len(out)-1]; last.Role != RoleUser {
		fields["messages"] = "last message must be from the user"
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}
	return out, nil
}

type Handler struct {
	svc    *Service
	logger *zap.Logger
}

func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger.Named("chat.http")}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, limitMW gin.HandlerFunc) {
	rg.POST("/chat", limitMW, h.chat)
}

// chat POST /chat
func (h *Handler) chat(c *gin.Context) {
	if !h.svc.Enabled() {
		response.ServiceUnavailable(c, ErrDisabled.Error())
		return
	}
	var dto RequestDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BindError(c, err)
		return
	}
	reply, err := h.svc.Reply(c.Request.Context(), dto.Messages)
	if err != nil {
		var verr *ValidationError
		switch {
		case errors.As(err, &verr):
			response.Validation(c, verr.Fields)
		case errors.Is(err, ErrDisabled):
			response.ServiceUnavailable(c, err.Error())
		case errors.Is(err, ErrUpstream):
			response.ServiceUnavailable(c, "the assistant is unavailable, please try again later")
		default:
			response.InternalError(c, err)
		}
		return
	}
	response.OK(c, gin.H{"reply": reply})
}
