package handlers

import (
	"encoding/json"
	"errors"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/messageapi/apiserver/internal/logging"
	"github.com/messageapi/apiserver/internal/services"
	"github.com/messageapi/apiserver/types"
)

const (
	defaultPage        = 1
	defaultUploadBytes = 32 << 20
	maxMultipartMemory = 8 << 20
	// multipartOverhead covers the non-file form fields and part headers.
	multipartOverhead = 1 << 20
	formFieldLogin    = "login"
	formFieldPassword = "password"
	formFieldTo       = "recipient"
	formFieldContent  = "content"
	formFieldFile     = "file"
)

var (
	errUploadTooLarge = errors.New("uploaded file too large")
	errInvalidPage    = errors.New("page must be a positive integer")
)

// MessageHandler provides HTTP handlers for sending and reading messages.
type MessageHandler struct {
	userService    *services.UserService
	messageService *services.MessageService
	logger         logging.Logger
	maxUploadBytes int64
}

// NewMessageHandler constructs a handler with the provided services.
func NewMessageHandler(
	userService *services.UserService,
	messageService *services.MessageService,
	logger logging.Logger,
	maxUploadBytes int64,
) *MessageHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = defaultUploadBytes
	}
	return &MessageHandler{
		userService:    userService,
		messageService: messageService,
		logger:         logger,
		maxUploadBytes: maxUploadBytes,
	}
}

// MessageRouter registers message routes on the given router.
func MessageRouter(
	r chi.Router,
	userService *services.UserService,
	messageService *services.MessageService,
	logger logging.Logger,
	maxUploadBytes int64,
) {
	handler := NewMessageHandler(userService, messageService, logger, maxUploadBytes)

	r.Post("/send", handler.Send)
	r.Post("/unread", handler.Unread)
	r.Post("/unread/count", handler.UnreadCount)
	r.Post("/history", handler.History)
}

// Send stores a message from the authenticated caller. It accepts either a
// JSON body or a multipart form with an optional file part.
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	var (
		req  SendRequest
		file *multipart.FileHeader
		err  error
	)
	if isMultipart(r) {
		req, file, err = h.parseSendForm(w, r)
		if r.MultipartForm != nil {
			defer func() { _ = r.MultipartForm.RemoveAll() }()
		}
	} else if decodeErr := decodeJSON(w, r, &req); decodeErr != nil {
		err = errors.New("invalid request")
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if req.missing() || strings.TrimSpace(req.Recipient) == "" {
		writeError(w, http.StatusBadRequest, "login, password and recipient are required")
		return
	}

	user, ok := authenticate(w, r, h.userService, h.logger, req.Credentials)
	if !ok {
		return
	}

	sendReq := services.SendRequest{
		Sender:    user.Username,
		Recipient: req.Recipient,
		Content:   req.Content,
	}
	if file != nil {
		f, err := file.Open()
		if err != nil {
			writeError(w, http.StatusBadRequest, "failed to read upload")
			return
		}
		defer f.Close()

		sendReq.Attachment = &services.Attachment{
			Filename:    file.Filename,
			Content:     f,
			Size:        file.Size,
			ContentType: file.Header.Get("Content-Type"),
		}
	}

	msg, err := h.messageService.Send(r.Context(), sendReq)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	h.logger.Debug(r.Context(), "message stored", "id", msg.ID, "recipient", msg.Recipient, "has_file", msg.FilePath != nil)
	writeJSON(w, http.StatusCreated, MessageResponse{Message: "message sent successfully"})
}

// Unread returns the caller's unread messages and marks them read.
func (h *MessageHandler) Unread(w http.ResponseWriter, r *http.Request) {
	user, ok := h.authenticateJSON(w, r)
	if !ok {
		return
	}

	msgs, err := h.messageService.Unread(r.Context(), user.Username)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	resp := make([]UnreadMessage, 0, len(msgs))
	for _, m := range msgs {
		resp = append(resp, UnreadMessage{
			ID:        m.ID,
			Sender:    m.Sender,
			Content:   m.Content,
			Timestamp: m.CreatedAt.UTC(),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// UnreadCount reports the number of unread messages without marking them.
func (h *MessageHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	user, ok := h.authenticateJSON(w, r)
	if !ok {
		return
	}

	total, err := h.messageService.CountUnread(r.Context(), user.Username)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, UnreadCountResponse{Unread: total})
}

// History returns one page of the caller's messages, newest first.
func (h *MessageHandler) History(w http.ResponseWriter, r *http.Request) {
	var req HistoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if req.missing() {
		writeError(w, http.StatusBadRequest, "login and password are required")
		return
	}

	page, err := parsePage(req.Page)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, ok := authenticate(w, r, h.userService, h.logger, req.Credentials)
	if !ok {
		return
	}

	msgs, err := h.messageService.History(r.Context(), user.Username, page)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	resp := make([]HistoryMessage, 0, len(msgs))
	for _, m := range msgs {
		resp = append(resp, HistoryMessage{
			ID:        m.ID,
			Sender:    m.Sender,
			Content:   m.Content,
			Timestamp: m.CreatedAt.UTC(),
			FilePath:  m.FilePath,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *MessageHandler) authenticateJSON(w http.ResponseWriter, r *http.Request) (types.User, bool) {
	var creds Credentials
	if err := decodeJSON(w, r, &creds); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return types.User{}, false
	}
	if creds.missing() {
		writeError(w, http.StatusBadRequest, "login and password are required")
		return types.User{}, false
	}
	return authenticate(w, r, h.userService, h.logger, creds)
}

func (h *MessageHandler) parseSendForm(w http.ResponseWriter, r *http.Request) (SendRequest, *multipart.FileHeader, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+multipartOverhead)
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return SendRequest{}, nil, errUploadTooLarge
		}
		return SendRequest{}, nil, errors.New("invalid multipart form")
	}

	req := SendRequest{
		Credentials: Credentials{
			Login:    r.FormValue(formFieldLogin),
			Password: r.FormValue(formFieldPassword),
		},
		Recipient: r.FormValue(formFieldTo),
	}
	if values, ok := r.MultipartForm.Value[formFieldContent]; ok && len(values) > 0 {
		content := values[0]
		req.Content = &content
	}

	files := r.MultipartForm.File[formFieldFile]
	switch {
	case len(files) == 0:
		return req, nil, nil
	case len(files) > 1:
		return SendRequest{}, nil, errors.New("only one file is allowed")
	case files[0].Size > h.maxUploadBytes:
		return SendRequest{}, nil, errUploadTooLarge
	}
	return req, files[0], nil
}

func isMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "multipart/form-data"
}

// parsePage accepts a JSON number or a numeric string. A missing or null page
// means the first page.
func parsePage(raw json.RawMessage) (int, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return defaultPage, nil
	}

	var number json.Number
	if err := json.Unmarshal(raw, &number); err != nil {
		return 0, errInvalidPage
	}
	page, err := strconv.Atoi(number.String())
	if err != nil || page < 1 {
		return 0, errInvalidPage
	}
	return page, nil
}

type SendRequest struct {
	Credentials
	Recipient string  `json:"recipient"`
	Content   *string `json:"content"`
}

type HistoryRequest struct {
	Credentials
	Page json.RawMessage `json:"page"`
}

type UnreadMessage struct {
	ID        int64     `json:"id"`
	Sender    string    `json:"sender"`
	Content   *string   `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

type HistoryMessage struct {
	ID        int64     `json:"id"`
	Sender    string    `json:"sender"`
	Content   *string   `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	FilePath  *string   `json:"file_path"`
}

type UnreadCountResponse struct {
	Unread int `json:"unread"`
}
