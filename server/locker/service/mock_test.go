package service

import (
	"context"

	"github.com/stretchr/testify/mock"

	"hospital_locker/server/locker/domain"
)

type mockAPI struct {
	mock.Mock
}

func (m *mockAPI) ListFiles(ctx context.Context, token string) ([]domain.Document, error) {
	args := m.Called(ctx, token)
	files, _ := args.Get(0).([]domain.Document)
	return files, args.Error(1)
}

func (m *mockAPI) UploadFile(ctx context.Context, token string, file domain.UploadedFile, patientEmail string) (domain.UploadResult, error) {
	args := m.Called(ctx, token, file, patientEmail)
	res, _ := args.Get(0).(domain.UploadResult)
	return res, args.Error(1)
}

func (m *mockAPI) DownloadFile(ctx context.Context, token, docID string) ([]byte, error) {
	args := m.Called(ctx, token, docID)
	blob, _ := args.Get(0).([]byte)
	return blob, args.Error(1)
}

func (m *mockAPI) ListConversations(ctx context.Context, token string) ([]domain.Conversation, error) {
	args := m.Called(ctx, token)
	convos, _ := args.Get(0).([]domain.Conversation)
	return convos, args.Error(1)
}

func (m *mockAPI) ListMessages(ctx context.Context, token, conversationID string) ([]domain.Message, error) {
	args := m.Called(ctx, token, conversationID)
	msgs, _ := args.Get(0).([]domain.Message)
	return msgs, args.Error(1)
}

func (m *mockAPI) SendMessage(ctx context.Context, token string, msg domain.OutgoingMessage) (string, error) {
	args := m.Called(ctx, token, msg)
	return args.String(0), args.Error(1)
}

func (m *mockAPI) ToggleVisibility(ctx context.Context, token, docID string, visible bool) (string, error) {
	args := m.Called(ctx, token, docID, visible)
	return args.String(0), args.Error(1)
}

func (m *mockAPI) ListAssignments(ctx context.Context, token string) ([]domain.Assignment, error) {
	args := m.Called(ctx, token)
	out, _ := args.Get(0).([]domain.Assignment)
	return out, args.Error(1)
}

func (m *mockAPI) CreateUser(ctx context.Context, token, email, password string, role domain.Role) (domain.CreatedUser, error) {
	args := m.Called(ctx, token, email, password, role)
	out, _ := args.Get(0).(domain.CreatedUser)
	return out, args.Error(1)
}

func (m *mockAPI) AssignPatient(ctx context.Context, token, doctorUID, patientUID string) (string, error) {
	args := m.Called(ctx, token, doctorUID, patientUID)
	return args.String(0), args.Error(1)
}

func (m *mockAPI) SetRole(ctx context.Context, token, uid string, role domain.Role) (string, error) {
	args := m.Called(ctx, token, uid, role)
	return args.String(0), args.Error(1)
}

type fakeIdentity struct {
	creds Credentials
	err   error
	calls int
}

func (f *fakeIdentity) SignIn(_ context.Context, _, _ string) (Credentials, error) {
	f.calls++
	return f.creds, f.err
}

type recordingReporter struct {
	statuses []Status
}

func (r *recordingReporter) Report(st Status) {
	r.statuses = append(r.statuses, st)
}

type recordingPublisher struct {
	keys []string
}

func (p *recordingPublisher) Publish(_ context.Context, role, key string, _ any) error {
	p.keys = append(p.keys, role+"."+key)
	return nil
}
