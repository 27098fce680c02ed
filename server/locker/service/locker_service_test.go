package service

import (
	"bytes"
	"context"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"hospital_locker/server/locker/doccache"
	"hospital_locker/server/locker/domain"
	"hospital_locker/server/locker/viewmodel"
)

var (
	doctorCreds  = Credentials{Token: "doctor-token", UID: "d1", Email: "d1@example.org", Role: domain.RoleDoctor}
	adminCreds   = Credentials{Token: "admin-token", UID: "a1", Email: "a1@example.org", Role: domain.RoleAdmin}
	patientCreds = Credentials{Token: "patient-token", UID: "p1", Email: "p1@example.org", Role: domain.RolePatient}
)

type fixture struct {
	svc      *LockerService
	api      *mockAPI
	identity *fakeIdentity
	store    *doccache.MemoryStore
	reporter *recordingReporter
	events   *recordingPublisher
}

func newFixture(creds Credentials) *fixture {
	api := &mockAPI{}
	identity := &fakeIdentity{creds: creds}
	store := doccache.NewMemoryStore()
	svc := NewLockerService(NewSession(), identity, api, doccache.New(store))
	reporter := &recordingReporter{}
	events := &recordingPublisher{}
	svc.UseStatus(reporter)
	svc.UseEvents(events)
	return &fixture{svc: svc, api: api, identity: identity, store: store, reporter: reporter, events: events}
}

func (f *fixture) lastMessage() string {
	if len(f.reporter.statuses) == 0 {
		return ""
	}
	return f.reporter.statuses[len(f.reporter.statuses)-1].Message
}

func (f *fixture) signIn(t *testing.T) {
	t.Helper()
	_, err := f.svc.SignIn(context.Background(), f.identity.creds.Email, "pw")
	require.NoError(t, err)
}

func TestSignInDoctorFetchesFilesAndConversations(t *testing.T) {
	f := newFixture(doctorCreds)
	files := []domain.Document{
		{DocID: "doc1", OwnerUID: "p1", AccessType: domain.AccessAssigned},
		{DocID: "doc2", OwnerUID: "p2", AccessType: domain.AccessShared},
	}
	convos := []domain.Conversation{{ConversationID: "c1", Participants: []string{"d1", "d2"}}}
	f.api.On("ListFiles", mock.Anything, "doctor-token").Return(files, nil).Once()
	f.api.On("ListConversations", mock.Anything, "doctor-token").Return(convos, nil).Once()

	creds, err := f.svc.SignIn(context.Background(), "d1@example.org", "pw")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleDoctor, creds.Role)
	f.api.AssertExpectations(t)
	f.api.AssertNotCalled(t, "ListAssignments", mock.Anything, mock.Anything)

	state, err := f.svc.View()
	require.NoError(t, err)
	view, ok := state.View.(viewmodel.DoctorView)
	require.True(t, ok)
	assert.Equal(t, []domain.Document{files[0]}, view.Files.Assigned["p1"])
	assert.Equal(t, []domain.Document{files[1]}, view.Files.Shared)
	require.Len(t, view.Conversations, 1)
	assert.Equal(t, "d2", view.Conversations[0].With)
	assert.Equal(t, "No message content", view.Conversations[0].LastMessage)
	assert.Equal(t, "Conversations loaded successfully.", state.Status.Message)
	assert.Contains(t, f.events.keys, "doctor.session.signed_in")
}

func TestSignInAdminBuildsDashboard(t *testing.T) {
	f := newFixture(adminCreds)
	doc := domain.Document{DocID: "doc1", OwnerUID: "p1"}
	f.api.On("ListFiles", mock.Anything, "admin-token").Return([]domain.Document{doc}, nil)
	f.api.On("ListAssignments", mock.Anything, "admin-token").Return([]domain.Assignment{{DoctorID: "d1", PatientUIDs: []string{"p1", "p2"}}}, nil)

	f.signIn(t)

	state, err := f.svc.View()
	require.NoError(t, err)
	view, ok := state.View.(viewmodel.AdminView)
	require.True(t, ok)
	assert.Equal(t, viewmodel.Dashboard{{
		DoctorID: "d1",
		Patients: []viewmodel.PatientFiles{
			{UID: "p1", Files: []domain.Document{doc}},
			{UID: "p2", Files: []domain.Document{}},
		},
	}}, view.Dashboard)
	f.api.AssertNotCalled(t, "ListConversations", mock.Anything, mock.Anything)
}

func TestSignInAdminWithFailedAssignmentsLeavesDashboardEmpty(t *testing.T) {
	f := newFixture(adminCreds)
	f.api.On("ListFiles", mock.Anything, "admin-token").Return([]domain.Document{{DocID: "doc1", OwnerUID: "p1"}}, nil)
	f.api.On("ListAssignments", mock.Anything, "admin-token").Return(nil, domain.NewError(domain.ErrNetwork, "list-assignments", "down"))

	f.signIn(t)

	assert.Empty(t, f.svc.Snapshot().Dashboard)
	assert.Equal(t, "Failed to load assignments.", f.lastMessage())
	_, ok := f.svc.Session().Current()
	assert.True(t, ok)
}

func TestSignInFailureLeavesNoSession(t *testing.T) {
	f := newFixture(Credentials{})
	f.identity.err = domain.NewError(domain.ErrAuth, "sign-in", "INVALID_PASSWORD")

	_, err := f.svc.SignIn(context.Background(), "x@example.org", "bad")
	assert.ErrorIs(t, err, domain.ErrAuth)
	_, ok := f.svc.Session().Current()
	assert.False(t, ok)
	assert.Equal(t, "Login failed: INVALID_PASSWORD", f.lastMessage())
	f.api.AssertNotCalled(t, "ListFiles", mock.Anything, mock.Anything)
}

func TestSignInRequiresCredentials(t *testing.T) {
	f := newFixture(patientCreds)

	_, err := f.svc.SignIn(context.Background(), " ", "")
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Zero(t, f.identity.calls)
	assert.Equal(t, "Please enter both email and password.", f.lastMessage())
}

func TestSignOutClearsEverything(t *testing.T) {
	f := newFixture(patientCreds)
	f.api.On("ListFiles", mock.Anything, "patient-token").Return([]domain.Document{{DocID: "doc1", OwnerUID: "p1"}}, nil)
	f.signIn(t)
	require.True(t, f.svc.Snapshot().FilesLoaded)

	f.svc.SignOut(context.Background())

	assert.Equal(t, viewmodel.Snapshot{}, f.svc.Snapshot())
	_, err := f.svc.View()
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.Equal(t, "Logged out successfully.", f.lastMessage())
}

func TestLateFetchAfterSignOutIsDiscarded(t *testing.T) {
	f := newFixture(patientCreds)
	f.api.On("ListFiles", mock.Anything, "patient-token").Return([]domain.Document{}, nil).Once()
	f.signIn(t)

	f.api.On("ListFiles", mock.Anything, "patient-token").
		Run(func(mock.Arguments) { f.svc.SignOut(context.Background()) }).
		Return([]domain.Document{{DocID: "late", OwnerUID: "p1"}}, nil).Once()

	require.NoError(t, f.svc.RefreshFiles(context.Background()))
	assert.Nil(t, f.svc.Snapshot().Files)
	assert.False(t, f.svc.Snapshot().FilesLoaded)
}

func TestFailedRefreshKeepsPreviousSnapshot(t *testing.T) {
	f := newFixture(patientCreds)
	files := []domain.Document{{DocID: "doc1", OwnerUID: "p1"}}
	f.api.On("ListFiles", mock.Anything, "patient-token").Return(files, nil).Once()
	f.signIn(t)

	f.api.On("ListFiles", mock.Anything, "patient-token").Return(nil, domain.NewError(domain.ErrNetwork, "list-files", "offline")).Once()
	err := f.svc.RefreshFiles(context.Background())
	assert.ErrorIs(t, err, domain.ErrNetwork)
	assert.Equal(t, files, f.svc.Snapshot().Files)
	assert.Equal(t, "Failed to fetch files.", f.lastMessage())
}

func TestOperationsRequireSession(t *testing.T) {
	f := newFixture(patientCreds)
	ctx := context.Background()

	assert.ErrorIs(t, f.svc.RefreshFiles(ctx), domain.ErrUnauthorized)
	_, err := f.svc.Download(ctx, "doc1", "a.pdf")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.ErrorIs(t, f.svc.SendMessage(ctx, "x@example.org", "hi"), domain.ErrUnauthorized)
	_, err = f.svc.ToggleVisibility(ctx, "doc1")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.Empty(t, f.api.Calls)
}

func TestDownloadCacheHitNeverCallsNetwork(t *testing.T) {
	f := newFixture(patientCreds)
	f.api.On("ListFiles", mock.Anything, "patient-token").Return([]domain.Document{}, nil)
	f.signIn(t)
	require.NoError(t, f.store.Put(context.Background(), "doc1", []byte("cached")))

	blob, err := f.svc.Download(context.Background(), "doc1", "scan.pdf")
	require.NoError(t, err)
	assert.Equal(t, []byte("cached"), blob)
	f.api.AssertNumberOfCalls(t, "DownloadFile", 0)
	assert.Equal(t, "scan.pdf loaded from cache.", f.lastMessage())
}

func TestDownloadMissPopulatesCache(t *testing.T) {
	f := newFixture(patientCreds)
	f.api.On("ListFiles", mock.Anything, "patient-token").Return([]domain.Document{}, nil)
	f.api.On("DownloadFile", mock.Anything, "patient-token", "doc1").Return([]byte("from network"), nil).Once()
	f.signIn(t)

	first, err := f.svc.Download(context.Background(), "doc1", "scan.pdf")
	require.NoError(t, err)
	assert.Equal(t, "Saved scan.pdf to local cache.", f.lastMessage())

	second, err := f.svc.Download(context.Background(), "doc1", "scan.pdf")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	f.api.AssertNumberOfCalls(t, "DownloadFile", 1)
	assert.Equal(t, 1, f.store.Len())
}

func TestDownloadAfterSignOutIsDiscarded(t *testing.T) {
	f := newFixture(patientCreds)
	f.api.On("ListFiles", mock.Anything, "patient-token").Return([]domain.Document{}, nil)
	f.signIn(t)

	f.api.On("DownloadFile", mock.Anything, "patient-token", "doc1").
		Run(func(mock.Arguments) { f.svc.SignOut(context.Background()) }).
		Return([]byte("secret"), nil).Once()

	blob, err := f.svc.Download(context.Background(), "doc1", "x.pdf")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.Nil(t, blob)
	assert.Zero(t, f.store.Len())
	assert.Equal(t, "Logged out successfully.", f.lastMessage())
}

func TestDownloadFailureLeavesCacheUntouched(t *testing.T) {
	f := newFixture(patientCreds)
	f.api.On("ListFiles", mock.Anything, "patient-token").Return([]domain.Document{}, nil)
	f.api.On("DownloadFile", mock.Anything, "patient-token", "doc1").Return(nil, domain.NewError(domain.ErrNotFound, "download-file", "gone"))
	f.signIn(t)

	_, err := f.svc.Download(context.Background(), "doc1", "scan.pdf")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Zero(t, f.store.Len())
	assert.Equal(t, "Failed to view or download scan.pdf.", f.lastMessage())
}

func TestUploadAsDoctorRequiresPatientEmail(t *testing.T) {
	f := newFixture(doctorCreds)
	f.api.On("ListFiles", mock.Anything, "doctor-token").Return([]domain.Document{}, nil)
	f.api.On("ListConversations", mock.Anything, "doctor-token").Return([]domain.Conversation{}, nil)
	f.signIn(t)

	_, err := f.svc.Upload(context.Background(), domain.UploadedFile{Filename: "a.pdf", Content: []byte("x")}, "")
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, "Please enter the Patient Email to assign the document to.", f.lastMessage())
	f.api.AssertNotCalled(t, "UploadFile", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestUploadRejectsEmptyFile(t *testing.T) {
	f := newFixture(patientCreds)
	f.api.On("ListFiles", mock.Anything, "patient-token").Return([]domain.Document{}, nil)
	f.signIn(t)

	_, err := f.svc.Upload(context.Background(), domain.UploadedFile{Filename: "a.pdf"}, "")
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, "Please select a file first.", f.lastMessage())
}

func TestUploadRefreshesAfterCompletion(t *testing.T) {
	f := newFixture(patientCreds)
	file := domain.UploadedFile{Filename: "a.pdf", Content: []byte("x")}
	uploaded := domain.Document{DocID: "new", OwnerUID: "p1", OriginalFilename: "a.pdf"}
	f.api.On("ListFiles", mock.Anything, "patient-token").Return([]domain.Document{}, nil).Once()
	f.signIn(t)

	f.api.On("UploadFile", mock.Anything, "patient-token", file, "").Return(domain.UploadResult{Message: "ok", DocID: "new"}, nil).Once()
	f.api.On("ListFiles", mock.Anything, "patient-token").Return([]domain.Document{uploaded}, nil).Once()

	res, err := f.svc.Upload(context.Background(), file, "")
	require.NoError(t, err)
	assert.Equal(t, "new", res.DocID)
	assert.Equal(t, []domain.Document{uploaded}, f.svc.Snapshot().Files)

	calls := f.api.Calls
	require.Len(t, calls, 3)
	assert.Equal(t, "UploadFile", calls[1].Method)
	assert.Equal(t, "ListFiles", calls[2].Method)
}

func TestShareAsDoctorRefreshesConversations(t *testing.T) {
	f := newFixture(doctorCreds)
	f.api.On("ListFiles", mock.Anything, "doctor-token").Return([]domain.Document{}, nil)
	f.api.On("ListConversations", mock.Anything, "doctor-token").Return([]domain.Conversation{}, nil)
	f.signIn(t)

	want := domain.OutgoingMessage{
		RecipientEmail: "d2@example.org",
		Text:           "see attached",
		Attachment:     &domain.Attachment{DocID: "doc1", Filename: "scan.pdf"},
	}
	f.api.On("SendMessage", mock.Anything, "doctor-token", want).Return("Shared", nil).Once()

	confirmation, err := f.svc.Share(context.Background(), "doc1", "scan.pdf", "d2@example.org", "see attached")
	require.NoError(t, err)
	assert.Equal(t, "Document successfully shared with d2@example.org.", confirmation)
	f.api.AssertNumberOfCalls(t, "ListConversations", 2)
	assert.Contains(t, f.events.keys, "doctor.document.shared")
}

func TestShareRejectsBadRecipient(t *testing.T) {
	f := newFixture(patientCreds)
	f.api.On("ListFiles", mock.Anything, "patient-token").Return([]domain.Document{}, nil)
	f.signIn(t)

	_, err := f.svc.Share(context.Background(), "doc1", "scan.pdf", "not-an-email", "")
	assert.ErrorIs(t, err, domain.ErrValidation)
	f.api.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything, mock.Anything)
}

func TestSendMessageRequiresText(t *testing.T) {
	f := newFixture(doctorCreds)
	f.api.On("ListFiles", mock.Anything, "doctor-token").Return([]domain.Document{}, nil)
	f.api.On("ListConversations", mock.Anything, "doctor-token").Return([]domain.Conversation{}, nil)
	f.signIn(t)

	err := f.svc.SendMessage(context.Background(), "d2@example.org", "  ")
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, "Please enter a recipient email and a message.", f.lastMessage())
}

func TestToggleVisibilityUnknownDocumentIsNotFound(t *testing.T) {
	f := newFixture(adminCreds)
	f.api.On("ListFiles", mock.Anything, "admin-token").Return([]domain.Document{}, nil)
	f.api.On("ListAssignments", mock.Anything, "admin-token").Return([]domain.Assignment{}, nil)
	f.signIn(t)

	_, err := f.svc.ToggleVisibility(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	f.api.AssertNotCalled(t, "ToggleVisibility", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestToggleVisibilityAppliesAfterConfirmation(t *testing.T) {
	f := newFixture(adminCreds)
	doc1 := domain.Document{DocID: "doc1", OwnerUID: "p1", IsVisibleToPatient: false}
	doc2 := domain.Document{DocID: "doc2", OwnerUID: "p2", IsVisibleToPatient: true}
	f.api.On("ListFiles", mock.Anything, "admin-token").Return([]domain.Document{doc1, doc2}, nil)
	f.api.On("ListAssignments", mock.Anything, "admin-token").Return([]domain.Assignment{{DoctorID: "d1", PatientUIDs: []string{"p1", "p2"}}}, nil)
	f.signIn(t)
	before := f.svc.Snapshot().Dashboard

	f.api.On("ToggleVisibility", mock.Anything, "admin-token", "doc1", true).Return("Visibility updated", nil).Once()
	visible, err := f.svc.ToggleVisibility(context.Background(), "doc1")
	require.NoError(t, err)
	assert.True(t, visible)

	after := f.svc.Snapshot()
	assert.True(t, after.Dashboard[0].Patients[0].Files[0].IsVisibleToPatient)
	assert.Same(t, &before[0].Patients[1].Files[0], &after.Dashboard[0].Patients[1].Files[0])
	got, _ := viewmodel.FindDocument(after.Files, "doc1")
	assert.True(t, got.IsVisibleToPatient)
	assert.Equal(t, "Visibility updated successfully.", f.lastMessage())
}

func TestToggleVisibilityAfterSignOutIsDiscarded(t *testing.T) {
	f := newFixture(adminCreds)
	doc := domain.Document{DocID: "doc1", OwnerUID: "p1"}
	f.api.On("ListFiles", mock.Anything, "admin-token").Return([]domain.Document{doc}, nil)
	f.api.On("ListAssignments", mock.Anything, "admin-token").Return([]domain.Assignment{{DoctorID: "d1", PatientUIDs: []string{"p1"}}}, nil)
	f.signIn(t)

	f.api.On("ToggleVisibility", mock.Anything, "admin-token", "doc1", true).
		Run(func(mock.Arguments) { f.svc.SignOut(context.Background()) }).
		Return("Visibility updated", nil).Once()

	_, err := f.svc.ToggleVisibility(context.Background(), "doc1")
	require.NoError(t, err)
	snap := f.svc.Snapshot()
	assert.Nil(t, snap.Files)
	assert.Nil(t, snap.Dashboard)
	assert.Equal(t, "Logged out successfully.", f.lastMessage())
	assert.NotContains(t, f.events.keys, "admin.document.visibility_changed")
	assert.NotContains(t, f.events.keys, ".document.visibility_changed")
}

func TestToggleVisibilityBackendFailureChangesNothing(t *testing.T) {
	f := newFixture(adminCreds)
	doc := domain.Document{DocID: "doc1", OwnerUID: "p1"}
	f.api.On("ListFiles", mock.Anything, "admin-token").Return([]domain.Document{doc}, nil)
	f.api.On("ListAssignments", mock.Anything, "admin-token").Return([]domain.Assignment{{DoctorID: "d1", PatientUIDs: []string{"p1"}}}, nil)
	f.api.On("ToggleVisibility", mock.Anything, "admin-token", "doc1", true).Return("", domain.NewError(domain.ErrBackend, "toggle-visibility", "boom"))
	f.signIn(t)

	_, err := f.svc.ToggleVisibility(context.Background(), "doc1")
	assert.ErrorIs(t, err, domain.ErrBackend)
	assert.False(t, f.svc.Snapshot().Dashboard[0].Patients[0].Files[0].IsVisibleToPatient)
	assert.Equal(t, "Failed to update visibility.", f.lastMessage())
}

func TestCreateUserReportsUID(t *testing.T) {
	f := newFixture(adminCreds)
	f.api.On("ListFiles", mock.Anything, "admin-token").Return([]domain.Document{}, nil)
	f.api.On("ListAssignments", mock.Anything, "admin-token").Return([]domain.Assignment{}, nil)
	f.api.On("CreateUser", mock.Anything, "admin-token", "new@example.org", "secret", domain.RoleDoctor).
		Return(domain.CreatedUser{Message: "User created", UID: "u42"}, nil)
	f.signIn(t)

	created, err := f.svc.CreateUser(context.Background(), "new@example.org", "secret", "Doctor")
	require.NoError(t, err)
	assert.Equal(t, "u42", created.UID)
	assert.Equal(t, "User created (UID: u42)", f.lastMessage())
}

func TestCreateUserRejectsAdminRole(t *testing.T) {
	f := newFixture(adminCreds)
	f.api.On("ListFiles", mock.Anything, "admin-token").Return([]domain.Document{}, nil)
	f.api.On("ListAssignments", mock.Anything, "admin-token").Return([]domain.Assignment{}, nil)
	f.signIn(t)

	_, err := f.svc.CreateUser(context.Background(), "new@example.org", "secret", "admin")
	assert.ErrorIs(t, err, domain.ErrValidation)
	f.api.AssertNotCalled(t, "CreateUser", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestAssignPatientRefreshesAssignments(t *testing.T) {
	f := newFixture(adminCreds)
	f.api.On("ListFiles", mock.Anything, "admin-token").Return([]domain.Document{}, nil)
	f.api.On("ListAssignments", mock.Anything, "admin-token").Return([]domain.Assignment{}, nil).Once()
	f.signIn(t)

	f.api.On("AssignPatient", mock.Anything, "admin-token", "d1", "p1").Return("Patient assigned successfully", nil).Once()
	f.api.On("ListAssignments", mock.Anything, "admin-token").Return([]domain.Assignment{{DoctorID: "d1", PatientUIDs: []string{"p1"}}}, nil).Once()

	require.NoError(t, f.svc.AssignPatient(context.Background(), "d1", "p1"))
	snap := f.svc.Snapshot()
	require.Len(t, snap.Dashboard, 1)
	assert.Equal(t, "d1", snap.Dashboard[0].DoctorID)
}

func TestAssignPatientRequiresBothIDs(t *testing.T) {
	f := newFixture(adminCreds)
	f.api.On("ListFiles", mock.Anything, "admin-token").Return([]domain.Document{}, nil)
	f.api.On("ListAssignments", mock.Anything, "admin-token").Return([]domain.Assignment{}, nil)
	f.signIn(t)

	err := f.svc.AssignPatient(context.Background(), "d1", "")
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, "Please enter both Doctor UID and Patient UID to assign.", f.lastMessage())
}

func TestSetRole(t *testing.T) {
	f := newFixture(adminCreds)
	f.api.On("ListFiles", mock.Anything, "admin-token").Return([]domain.Document{}, nil)
	f.api.On("ListAssignments", mock.Anything, "admin-token").Return([]domain.Assignment{}, nil)
	f.api.On("SetRole", mock.Anything, "admin-token", "u1", domain.RoleAdmin).Return("", nil)
	f.signIn(t)

	text, err := f.svc.SetRole(context.Background(), "u1", "admin")
	require.NoError(t, err)
	assert.Equal(t, "Role updated.", text)
	assert.Equal(t, "Role updated.", f.lastMessage())

	_, err = f.svc.SetRole(context.Background(), "u1", "nurse")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestOpenConversationReturnsMessages(t *testing.T) {
	f := newFixture(doctorCreds)
	f.api.On("ListFiles", mock.Anything, "doctor-token").Return([]domain.Document{}, nil)
	f.api.On("ListConversations", mock.Anything, "doctor-token").Return([]domain.Conversation{}, nil)
	msgs := []domain.Message{{MessageID: "m1", TextMessage: "hi"}}
	f.api.On("ListMessages", mock.Anything, "doctor-token", "c1").Return(msgs, nil)
	f.signIn(t)

	got, err := f.svc.OpenConversation(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, msgs, got)
}

func TestThumbnailRejectsNonImages(t *testing.T) {
	f := newFixture(patientCreds)
	f.api.On("ListFiles", mock.Anything, "patient-token").Return([]domain.Document{}, nil)
	f.signIn(t)

	_, err := f.svc.Thumbnail(context.Background(), "doc1", "report.pdf")
	assert.ErrorIs(t, err, domain.ErrValidation)
	f.api.AssertNotCalled(t, "DownloadFile", mock.Anything, mock.Anything, mock.Anything)
}

func TestThumbnailScalesImage(t *testing.T) {
	f := newFixture(patientCreds)
	f.api.On("ListFiles", mock.Anything, "patient-token").Return([]domain.Document{}, nil)
	f.signIn(t)

	img := image.NewRGBA(image.Rect(0, 0, 800, 600))
	for x := 0; x < 800; x++ {
		img.Set(x, 300, color.RGBA{R: 255, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	f.api.On("DownloadFile", mock.Anything, "patient-token", "doc1").Return(buf.Bytes(), nil).Once()

	thumb, err := f.svc.Thumbnail(context.Background(), "doc1", "xray.png")
	require.NoError(t, err)
	cfg, format, err := image.DecodeConfig(bytes.NewReader(thumb))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 320, cfg.Width)
	assert.Equal(t, 320, cfg.Height)
	assert.Equal(t, 1, f.store.Len())
}

func TestClearCache(t *testing.T) {
	f := newFixture(patientCreds)
	require.NoError(t, f.store.Put(context.Background(), "doc1", []byte("x")))

	require.NoError(t, f.svc.ClearCache(context.Background()))
	assert.Zero(t, f.store.Len())
	assert.Equal(t, "Local cache cleared.", f.svc.LastStatus().Message)
}
