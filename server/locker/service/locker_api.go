package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"hospital_locker/server/common/infra/backend"
	"hospital_locker/server/locker/domain"
)

// LockerAPI is one call per backend capability. Each call sends exactly one
// request with the given bearer token; nothing is retried.
type LockerAPI interface {
	ListFiles(ctx context.Context, token string) ([]domain.Document, error)
	UploadFile(ctx context.Context, token string, file domain.UploadedFile, patientEmail string) (domain.UploadResult, error)
	DownloadFile(ctx context.Context, token, docID string) ([]byte, error)
	ListConversations(ctx context.Context, token string) ([]domain.Conversation, error)
	ListMessages(ctx context.Context, token, conversationID string) ([]domain.Message, error)
	SendMessage(ctx context.Context, token string, msg domain.OutgoingMessage) (string, error)
	ToggleVisibility(ctx context.Context, token, docID string, visible bool) (string, error)
	ListAssignments(ctx context.Context, token string) ([]domain.Assignment, error)
	CreateUser(ctx context.Context, token, email, password string, role domain.Role) (domain.CreatedUser, error)
	AssignPatient(ctx context.Context, token, doctorUID, patientUID string) (string, error)
	SetRole(ctx context.Context, token, uid string, role domain.Role) (string, error)
}

type HTTPLockerAPI struct {
	client *backend.Client
}

func NewHTTPLockerAPI(timeout time.Duration, baseURLs ...string) *HTTPLockerAPI {
	return &HTTPLockerAPI{client: backend.NewClient(timeout, baseURLs...)}
}

func (a *HTTPLockerAPI) ListFiles(ctx context.Context, token string) ([]domain.Document, error) {
	var out []domain.Document
	if err := a.call(ctx, "list-files", backend.Request{Path: "/api/files/list", Token: token}, &out); err != nil {
		return nil, err
	}
	return nonNil(out), nil
}

func (a *HTTPLockerAPI) UploadFile(ctx context.Context, token string, file domain.UploadedFile, patientEmail string) (domain.UploadResult, error) {
	body, contentType, err := uploadBody(file, patientEmail)
	if err != nil {
		return domain.UploadResult{}, domain.WrapError(domain.ErrValidation, "upload-file", err)
	}
	var out domain.UploadResult
	req := backend.Request{Method: http.MethodPost, Path: "/api/files/upload", Token: token, Body: body, ContentType: contentType}
	if err := a.call(ctx, "upload-file", req, &out); err != nil {
		return domain.UploadResult{}, err
	}
	return out, nil
}

func uploadBody(file domain.UploadedFile, patientEmail string) ([]byte, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	part, err := w.CreateFormFile("file", file.Filename)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(file.Content); err != nil {
		return nil, "", err
	}
	if patientEmail != "" {
		if err := w.WriteField("patientEmail", patientEmail); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

func (a *HTTPLockerAPI) DownloadFile(ctx context.Context, token, docID string) ([]byte, error) {
	var out []byte
	path := "/api/files/" + url.PathEscape(docID) + "/download"
	if err := a.call(ctx, "download-file", backend.Request{Path: path, Token: token}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *HTTPLockerAPI) ListConversations(ctx context.Context, token string) ([]domain.Conversation, error) {
	var out []domain.Conversation
	if err := a.call(ctx, "list-conversations", backend.Request{Path: "/api/messages/conversations", Token: token}, &out); err != nil {
		return nil, err
	}
	return nonNil(out), nil
}

type wireMessage struct {
	MessageID        string          `json:"messageId"`
	SenderUID        string          `json:"senderUid"`
	TextMessage      string          `json:"textMessage"`
	DocID            string          `json:"docId"`
	OriginalFilename string          `json:"originalFilename"`
	Timestamp        json.RawMessage `json:"timestamp"`
}

func (a *HTTPLockerAPI) ListMessages(ctx context.Context, token, conversationID string) ([]domain.Message, error) {
	var wire []wireMessage
	path := "/api/messages/conversations/" + url.PathEscape(conversationID) + "/messages"
	if err := a.call(ctx, "list-messages", backend.Request{Path: path, Token: token}, &wire); err != nil {
		return nil, err
	}
	out := make([]domain.Message, 0, len(wire))
	for _, m := range wire {
		out = append(out, domain.Message{
			MessageID:        m.MessageID,
			SenderUID:        m.SenderUID,
			TextMessage:      m.TextMessage,
			DocID:            m.DocID,
			OriginalFilename: m.OriginalFilename,
			Timestamp:        parseTimestamp(m.Timestamp),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].MessageID < out[j].MessageID
	})
	return out, nil
}

// parseTimestamp accepts RFC3339 strings, epoch milliseconds and the
// {seconds,nanos} object shapes document stores emit. Unparseable values
// become the zero time.
func parseTimestamp(raw json.RawMessage) time.Time {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return time.Time{}
	}
	switch raw[0] {
	case '"':
		var s string
		if json.Unmarshal(raw, &s) != nil {
			return time.Time{}
		}
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t.UTC()
		}
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.UnixMilli(ms).UTC()
		}
		return time.Time{}
	case '{':
		var obj struct {
			Seconds      *int64 `json:"seconds"`
			Nanos        int64  `json:"nanos"`
			USeconds     *int64 `json:"_seconds"`
			UNanoseconds int64  `json:"_nanoseconds"`
		}
		if json.Unmarshal(raw, &obj) != nil {
			return time.Time{}
		}
		if obj.Seconds != nil {
			return time.Unix(*obj.Seconds, obj.Nanos).UTC()
		}
		if obj.USeconds != nil {
			return time.Unix(*obj.USeconds, obj.UNanoseconds).UTC()
		}
		return time.Time{}
	default:
		var ms float64
		if json.Unmarshal(raw, &ms) != nil {
			return time.Time{}
		}
		return time.UnixMilli(int64(ms)).UTC()
	}
}

type sendRequest struct {
	RecipientEmail   string `json:"recipientEmail"`
	TextMessage      string `json:"textMessage"`
	DocID            string `json:"docId,omitempty"`
	OriginalFilename string `json:"originalFilename,omitempty"`
}

func (a *HTTPLockerAPI) SendMessage(ctx context.Context, token string, msg domain.OutgoingMessage) (string, error) {
	payload := sendRequest{RecipientEmail: msg.RecipientEmail, TextMessage: msg.Text}
	path := "/api/messages/send"
	op := "send-message"
	if msg.Attachment != nil {
		payload.DocID = msg.Attachment.DocID
		payload.OriginalFilename = msg.Attachment.Filename
		path = "/api/messages/share"
		op = "share-document"
	}
	var out string
	if err := a.call(ctx, op, backend.Request{Method: http.MethodPost, Path: path, Token: token, JSON: payload}, &out); err != nil {
		return "", err
	}
	return out, nil
}

func (a *HTTPLockerAPI) ToggleVisibility(ctx context.Context, token, docID string, visible bool) (string, error) {
	var out string
	path := "/api/admin/documents/" + url.PathEscape(docID) + "/toggle-visibility"
	req := backend.Request{Method: http.MethodPost, Path: path, Token: token, JSON: map[string]bool{"isVisible": visible}}
	if err := a.call(ctx, "toggle-visibility", req, &out); err != nil {
		return "", err
	}
	return out, nil
}

type wireAssignment struct {
	ID   string `json:"id"`
	Data struct {
		PatientUIDs []string `json:"patientUids"`
	} `json:"data"`
}

func (a *HTTPLockerAPI) ListAssignments(ctx context.Context, token string) ([]domain.Assignment, error) {
	var wire []wireAssignment
	if err := a.call(ctx, "list-assignments", backend.Request{Path: "/api/admin/assignments", Token: token}, &wire); err != nil {
		return nil, err
	}
	out := make([]domain.Assignment, 0, len(wire))
	for _, w := range wire {
		out = append(out, domain.Assignment{DoctorID: w.ID, PatientUIDs: nonNil(w.Data.PatientUIDs)})
	}
	return out, nil
}

func (a *HTTPLockerAPI) CreateUser(ctx context.Context, token, email, password string, role domain.Role) (domain.CreatedUser, error) {
	var out domain.CreatedUser
	payload := map[string]string{"email": email, "password": password, "role": role.String()}
	if err := a.call(ctx, "create-user", backend.Request{Method: http.MethodPost, Path: "/api/admin/create-user", Token: token, JSON: payload}, &out); err != nil {
		return domain.CreatedUser{}, err
	}
	return out, nil
}

func (a *HTTPLockerAPI) AssignPatient(ctx context.Context, token, doctorUID, patientUID string) (string, error) {
	var out string
	payload := map[string]string{"doctorUid": doctorUID, "patientUid": patientUID}
	if err := a.call(ctx, "assign-patient", backend.Request{Method: http.MethodPost, Path: "/api/admin/assign-patient", Token: token, JSON: payload}, &out); err != nil {
		return "", err
	}
	return out, nil
}

func (a *HTTPLockerAPI) SetRole(ctx context.Context, token, uid string, role domain.Role) (string, error) {
	var out string
	payload := map[string]string{"uid": uid, "role": role.String()}
	if err := a.call(ctx, "set-role", backend.Request{Method: http.MethodPost, Path: "/api/admin/set-role", Token: token, JSON: payload}, &out); err != nil {
		return "", err
	}
	return out, nil
}

// Endpoint is the base URL the next call goes to.
func (a *HTTPLockerAPI) Endpoint() string {
	return a.client.Endpoint()
}

func (a *HTTPLockerAPI) call(ctx context.Context, op string, req backend.Request, out any) error {
	if err := a.client.Do(ctx, req, out); err != nil {
		return classify(op, err)
	}
	return nil
}

// classify maps transport and status failures onto the domain error kinds.
func classify(op string, err error) error {
	if errors.Is(err, backend.ErrMissingToken) {
		return domain.NewError(domain.ErrUnauthorized, op, "not signed in")
	}
	var statusErr *backend.StatusError
	if errors.As(err, &statusErr) {
		kind := domain.ErrBackend
		switch statusErr.Status {
		case http.StatusUnauthorized, http.StatusForbidden:
			kind = domain.ErrUnauthorized
		case http.StatusNotFound:
			kind = domain.ErrNotFound
		case http.StatusBadRequest:
			kind = domain.ErrValidation
		}
		e := &domain.Error{Kind: kind, Op: op, Message: serverMessage(statusErr), Status: statusErr.Status, Err: err}
		return e
	}
	if errors.Is(err, backend.ErrTransport) || errors.Is(err, backend.ErrNoEndpoint) ||
		errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return domain.WrapError(domain.ErrNetwork, op, err)
	}
	return domain.WrapError(domain.ErrBackend, op, fmt.Errorf("unexpected response: %w", err))
}

// serverMessage prefers the backend's {"error": "..."} body over raw text.
func serverMessage(statusErr *backend.StatusError) string {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal([]byte(statusErr.Message), &body) == nil {
		if body.Error != "" {
			return body.Error
		}
		if body.Message != "" {
			return body.Message
		}
	}
	if msg := strings.TrimSpace(statusErr.Message); msg != "" {
		return msg
	}
	return http.StatusText(statusErr.Status)
}

func nonNil[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
