package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"time"

	"github.com/messageapi/apiserver/internal/logging"
	"github.com/messageapi/apiserver/internal/store"
	"github.com/messageapi/apiserver/types"
)

// HistoryPageSize is the fixed number of messages per history page.
const HistoryPageSize = 10

const eventPublishTimeout = 5 * time.Second

// MessageRepository defines persistence operations for messages.
type MessageRepository interface {
	Create(ctx context.Context, msg types.Message) (types.Message, error)
	ClaimUnread(ctx context.Context, recipient string) ([]types.Message, error)
	History(ctx context.Context, recipient string, offset, limit int) ([]types.Message, error)
	CountUnread(ctx context.Context, recipient string) (int, error)
}

// AttachmentStore saves and removes message attachments.
type AttachmentStore interface {
	Store(ctx context.Context, filename string, r io.Reader, size int64, contentType string) (string, error)
	Remove(ctx context.Context, ref string) error
}

// EventPublisher publishes message-sent notifications.
type EventPublisher interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
}

// Attachment is an uploaded file sent along with a message.
type Attachment struct {
	Filename    string
	Content     io.Reader
	Size        int64
	ContentType string
}

// SendRequest describes a message to store. Sender must already be
// authenticated.
type SendRequest struct {
	Sender     string
	Recipient  string
	Content    *string
	Attachment *Attachment
}

// MessageOption configures a MessageService.
type MessageOption func(*MessageService)

// WithEvents publishes a MessageSentEvent to topic after every stored message.
func WithEvents(publisher EventPublisher, topic string) MessageOption {
	return func(s *MessageService) {
		s.events = publisher
		s.topic = topic
	}
}

// MessageService implements sending and reading messages.
type MessageService struct {
	repo        MessageRepository
	attachments AttachmentStore
	events      EventPublisher
	topic       string
	logger      logging.Logger
}

func NewMessageService(repo MessageRepository, attachments AttachmentStore, logger logging.Logger, opts ...MessageOption) *MessageService {
	s := &MessageService{
		repo:        repo,
		attachments: attachments,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send stores the attachment, if any, and then the message row. When the row
// cannot be written the attachment is removed again; if that also fails the
// orphaned file is logged and left behind.
func (s *MessageService) Send(ctx context.Context, req SendRequest) (types.Message, error) {
	if req.Sender == "" {
		return types.Message{}, ErrInvalidInput
	}
	if err := validateName(req.Recipient); err != nil {
		return types.Message{}, err
	}

	msg := types.Message{
		Sender:    req.Sender,
		Recipient: req.Recipient,
		Content:   req.Content,
	}

	if req.Attachment != nil {
		a := req.Attachment
		ref, err := s.attachments.Store(ctx, a.Filename, a.Content, a.Size, a.ContentType)
		if err != nil {
			return types.Message{}, fmt.Errorf("store attachment: %w", err)
		}
		msg.FilePath = &ref
	}

	created, err := s.repo.Create(ctx, msg)
	if err != nil {
		if msg.FilePath != nil {
			s.discardAttachment(ctx, *msg.FilePath)
		}
		if errors.Is(err, store.ErrValueTooLong) {
			return types.Message{}, fmt.Errorf("%w: recipient too long", ErrInvalidInput)
		}
		return types.Message{}, fmt.Errorf("create message: %w", err)
	}

	s.publishSent(ctx, created)
	return created, nil
}

// Unread returns the recipient's unread messages and marks them read in the
// same step. A message is returned by exactly one call.
func (s *MessageService) Unread(ctx context.Context, recipient string) ([]types.Message, error) {
	msgs, err := s.repo.ClaimUnread(ctx, recipient)
	if err != nil {
		return nil, fmt.Errorf("claim unread: %w", err)
	}
	return msgs, nil
}

// CountUnread reports how many messages are waiting without marking them read.
func (s *MessageService) CountUnread(ctx context.Context, recipient string) (int, error) {
	total, err := s.repo.CountUnread(ctx, recipient)
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return total, nil
}

// History returns one page (1-indexed) of the recipient's messages, newest
// first. Pages past the end are empty.
func (s *MessageService) History(ctx context.Context, recipient string, page int) ([]types.Message, error) {
	if page < 1 {
		return nil, fmt.Errorf("%w: page must be at least 1", ErrInvalidInput)
	}
	if page-1 > math.MaxInt32/HistoryPageSize {
		return []types.Message{}, nil
	}

	msgs, err := s.repo.History(ctx, recipient, (page-1)*HistoryPageSize, HistoryPageSize)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return msgs, nil
}

func (s *MessageService) discardAttachment(ctx context.Context, ref string) {
	// The request context may already be cancelled; cleanup still has to run.
	if err := s.attachments.Remove(context.WithoutCancel(ctx), ref); err != nil {
		s.logger.Error(ctx, "orphaned attachment", "file_path", ref, "error", err)
	}
}

func (s *MessageService) publishSent(ctx context.Context, msg types.Message) {
	if s.events == nil {
		return
	}

	data, err := json.Marshal(types.MessageSentEvent{
		ID:        msg.ID,
		Sender:    msg.Sender,
		Recipient: msg.Recipient,
		HasFile:   msg.FilePath != nil,
		Timestamp: msg.CreatedAt,
	})
	if err != nil {
		s.logger.Error(ctx, "encode message event", "id", msg.ID, "error", err)
		return
	}

	attrs := map[string]string{
		"recipient":  msg.Recipient,
		"message_id": strconv.FormatInt(msg.ID, 10),
	}
	// The message is already stored; a dropped client or slow broker must not
	// cancel the event or hold the response open.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), eventPublishTimeout)
	defer cancel()
	if _, err := s.events.Publish(pubCtx, s.topic, data, attrs); err != nil {
		s.logger.Warn(ctx, "publish message event", "id", msg.ID, "topic", s.topic, "error", err)
	}
}
