package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	commonlog "hospital_locker/server/common/log"
	"hospital_locker/server/locker/doccache"
	"hospital_locker/server/locker/domain"
	"hospital_locker/server/locker/viewmodel"
)

type Authenticator interface {
	SignIn(ctx context.Context, email, password string) (Credentials, error)
}

// ViewState is what the presentation layer renders: the role-tagged view
// plus the latest status line.
type ViewState struct {
	Role   domain.Role    `json:"role"`
	UID    string         `json:"uid"`
	Email  string         `json:"email"`
	View   viewmodel.View `json:"view"`
	Status Status         `json:"status"`
}

// LockerService is the session context every user action runs through. It
// owns the snapshot of the last successful fetches and discards results
// that arrive after the session they were started under has ended.
type LockerService struct {
	session  *Session
	identity Authenticator
	api      LockerAPI
	cache    *doccache.Cache
	status   StatusReporter
	events   EventPublisher

	mu         sync.RWMutex
	snap       viewmodel.Snapshot
	lastStatus Status
}

func NewLockerService(session *Session, identity Authenticator, api LockerAPI, cache *doccache.Cache) *LockerService {
	return &LockerService{
		session:  session,
		identity: identity,
		api:      api,
		cache:    cache,
		events:   NopPublisher{},
	}
}

func (s *LockerService) UseStatus(r StatusReporter) {
	s.status = r
}

func (s *LockerService) UseEvents(p EventPublisher) {
	if p == nil {
		p = NopPublisher{}
	}
	s.events = p
}

func (s *LockerService) Session() *Session {
	return s.session
}

func (s *LockerService) SignIn(ctx context.Context, email, password string) (Credentials, error) {
	const op = "sign-in"
	email = strings.TrimSpace(email)
	if err := check(op, signInInput{Email: email, Password: password}, "Please enter both email and password."); err != nil {
		s.fail(op, domain.UserMessage(err), err)
		return Credentials{}, err
	}
	s.info(op, "Signing in...")
	creds, err := s.identity.SignIn(ctx, email, password)
	if err != nil {
		s.reset(viewmodel.Snapshot{}, nil)
		s.fail(op, "Login failed: "+domain.UserMessage(err), err)
		return Credentials{}, err
	}

	gen := s.reset(viewmodel.Snapshot{SelfUID: creds.UID}, &creds)
	commonlog.Infof("event=locker action=sign_in status=ok uid=%s role=%s generation=%d", creds.UID, creds.Role, gen)
	s.info(op, "Sign in successful!")
	s.publish(ctx, creds.Role, "session.signed_in", map[string]any{"uid": creds.UID})

	// Fetch failures after sign-in are reported but do not undo it.
	_ = s.initialFetch(ctx, creds.Role)
	return creds, nil
}

func (s *LockerService) initialFetch(ctx context.Context, role domain.Role) error {
	var errs []error
	if err := s.RefreshFiles(ctx); err != nil {
		errs = append(errs, err)
	}
	switch role {
	case domain.RoleAdmin:
		if err := s.RefreshAssignments(ctx); err != nil {
			errs = append(errs, err)
		}
	case domain.RoleDoctor:
		if err := s.RefreshConversations(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SignOut drops the token and every derived list. It cannot fail.
func (s *LockerService) SignOut(ctx context.Context) {
	creds, _ := s.session.Current()
	gen := s.reset(viewmodel.Snapshot{}, nil)
	commonlog.Infof("event=locker action=sign_out status=ok uid=%s generation=%d", creds.UID, gen)
	s.info("sign-out", "Logged out successfully.")
	if creds.UID != "" {
		s.publish(ctx, creds.Role, "session.signed_out", map[string]any{"uid": creds.UID})
	}
}

// reset swaps session and snapshot together so no commit can land between
// the two.
func (s *LockerService) reset(snap viewmodel.Snapshot, creds *Credentials) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = snap
	if creds == nil {
		return s.session.End()
	}
	return s.session.Begin(*creds)
}

// commit applies fn to the snapshot only if the session is still the one
// identified by gen.
func (s *LockerService) commit(op string, gen uint64, fn func(snap *viewmodel.Snapshot)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.session.IsCurrent(gen) {
		commonlog.Debugf("event=locker action=%s status=discarded reason=stale_session generation=%d", op, gen)
		return false
	}
	fn(&s.snap)
	return true
}

func (s *LockerService) requireSession(op string) (Credentials, uint64, error) {
	creds, ok, gen := s.session.state()
	if !ok || creds.Token == "" {
		err := domain.NewError(domain.ErrUnauthorized, op, "Please sign in first.")
		s.fail(op, err.Message, err)
		return Credentials{}, 0, err
	}
	return creds, gen, nil
}

func (s *LockerService) RefreshFiles(ctx context.Context) error {
	const op = "list-files"
	creds, gen, err := s.requireSession(op)
	if err != nil {
		return err
	}
	s.info(op, "Fetching files...")
	files, err := s.api.ListFiles(ctx, creds.Token)
	if err != nil {
		s.fail(op, "Failed to fetch files.", err)
		return err
	}
	if !s.commit(op, gen, func(snap *viewmodel.Snapshot) {
		snap.Files = files
		snap.FilesLoaded = true
		rebuildDashboard(snap, creds.Role)
	}) {
		return nil
	}
	s.info(op, "Files loaded successfully.")
	return nil
}

func (s *LockerService) RefreshConversations(ctx context.Context) error {
	const op = "list-conversations"
	creds, gen, err := s.requireSession(op)
	if err != nil {
		return err
	}
	s.info(op, "Fetching conversations...")
	convos, err := s.api.ListConversations(ctx, creds.Token)
	if err != nil {
		s.fail(op, "Failed to load conversations.", err)
		return err
	}
	if !s.commit(op, gen, func(snap *viewmodel.Snapshot) {
		snap.Conversations = convos
		snap.ConversationsLoaded = true
	}) {
		return nil
	}
	s.info(op, "Conversations loaded successfully.")
	return nil
}

func (s *LockerService) RefreshAssignments(ctx context.Context) error {
	const op = "list-assignments"
	creds, gen, err := s.requireSession(op)
	if err != nil {
		return err
	}
	assignments, err := s.api.ListAssignments(ctx, creds.Token)
	if err != nil {
		s.fail(op, "Failed to load assignments.", err)
		return err
	}
	s.commit(op, gen, func(snap *viewmodel.Snapshot) {
		snap.Assignments = assignments
		snap.AssignmentsLoaded = true
		rebuildDashboard(snap, creds.Role)
	})
	return nil
}

// Refresh re-runs the per-role fetches done at sign-in.
func (s *LockerService) Refresh(ctx context.Context) error {
	creds, _, err := s.requireSession("refresh")
	if err != nil {
		return err
	}
	return s.initialFetch(ctx, creds.Role)
}

func rebuildDashboard(snap *viewmodel.Snapshot, role domain.Role) {
	if role != domain.RoleAdmin {
		return
	}
	snap.Dashboard = viewmodel.BuildAdminDashboard(*snap)
}

// Upload sends a file and refreshes the file list once the upload has
// completed. Admins and doctors must name the patient the file belongs to.
func (s *LockerService) Upload(ctx context.Context, file domain.UploadedFile, patientEmail string) (domain.UploadResult, error) {
	const op = "upload-file"
	creds, _, err := s.requireSession(op)
	if err != nil {
		return domain.UploadResult{}, err
	}
	if err := check(op, uploadInput{Filename: strings.TrimSpace(file.Filename), Content: file.Content}, "Please select a file first."); err != nil {
		s.fail(op, domain.UserMessage(err), err)
		return domain.UploadResult{}, err
	}
	patientEmail = strings.TrimSpace(patientEmail)
	if creds.Role != domain.RolePatient {
		if err := check(op, recipientInput{RecipientEmail: patientEmail}, "Please enter the Patient Email to assign the document to."); err != nil {
			s.fail(op, domain.UserMessage(err), err)
			return domain.UploadResult{}, err
		}
	}

	s.info(op, "Uploading file...")
	result, err := s.api.UploadFile(ctx, creds.Token, file, patientEmail)
	if err != nil {
		s.fail(op, "Upload failed: "+domain.UserMessage(err), err)
		return domain.UploadResult{}, err
	}
	s.info(op, "File uploaded successfully! Refreshing file list...")
	s.publish(ctx, creds.Role, "document.uploaded", map[string]any{"docId": result.DocID, "filename": file.Filename})
	_ = s.RefreshFiles(ctx)
	return result, nil
}

// Download is the read-through path: a cache hit is returned without any
// network call; a miss is downloaded and then written to the cache. Entries
// are never invalidated.
func (s *LockerService) Download(ctx context.Context, docID, filename string) ([]byte, error) {
	const op = "download-file"
	creds, gen, err := s.requireSession(op)
	if err != nil {
		return nil, err
	}
	docID = strings.TrimSpace(docID)
	if docID == "" {
		err := domain.Validation(op, "A document id is required.")
		s.fail(op, err.Message, err)
		return nil, err
	}
	if filename = strings.TrimSpace(filename); filename == "" {
		filename = docID
	}

	blob, ok, err := s.cache.Get(ctx, docID)
	if err != nil {
		commonlog.Warnf("event=locker action=cache_get status=failed doc_id=%s error=%v", docID, err)
	}
	if ok {
		s.info(op, fmt.Sprintf("%s loaded from cache.", filename))
		return blob, nil
	}

	s.info(op, fmt.Sprintf("Downloading %s...", filename))
	blob, err = s.api.DownloadFile(ctx, creds.Token, docID)
	if err != nil {
		s.fail(op, fmt.Sprintf("Failed to view or download %s.", filename), err)
		return nil, err
	}
	if !s.session.IsCurrent(gen) {
		commonlog.Debugf("event=locker action=%s status=discarded reason=stale_session generation=%d", op, gen)
		return nil, domain.NewError(domain.ErrUnauthorized, op, "Session changed while downloading.")
	}
	if err := s.cache.Put(ctx, docID, blob); err != nil {
		commonlog.Warnf("event=locker action=cache_put status=failed doc_id=%s error=%v", docID, err)
		s.info(op, fmt.Sprintf("Downloaded %s (local cache unavailable).", filename))
		return blob, nil
	}
	s.info(op, fmt.Sprintf("Saved %s to local cache.", filename))
	return blob, nil
}

func (s *LockerService) Thumbnail(ctx context.Context, docID, filename string) ([]byte, error) {
	const op = "thumbnail"
	if !isImageFilename(filename) {
		err := domain.Validation(op, "Previews are only available for image documents.")
		s.fail(op, err.Message, err)
		return nil, err
	}
	blob, err := s.Download(ctx, docID, filename)
	if err != nil {
		return nil, err
	}
	thumb, err := makeThumbnail(blob)
	if err != nil {
		verr := &domain.Error{Kind: domain.ErrValidation, Op: op, Message: fmt.Sprintf("Could not render a preview of %s.", filename), Err: err}
		s.fail(op, verr.Message, verr)
		return nil, verr
	}
	return thumb, nil
}

// Share sends a document to another user as a message attachment and
// returns the confirmation text. Doctors get their conversation list
// refreshed afterwards.
func (s *LockerService) Share(ctx context.Context, docID, filename, recipientEmail, text string) (string, error) {
	const op = "share-document"
	creds, _, err := s.requireSession(op)
	if err != nil {
		return "", err
	}
	recipientEmail = strings.TrimSpace(recipientEmail)
	docID = strings.TrimSpace(docID)
	if err := check(op, shareInput{DocID: docID, RecipientEmail: recipientEmail}, "Please enter a valid recipient email to share with."); err != nil {
		s.fail(op, domain.UserMessage(err), err)
		return "", err
	}
	if strings.TrimSpace(filename) == "" {
		filename = docID
	}

	s.info(op, "Sharing document...")
	msg := domain.OutgoingMessage{
		RecipientEmail: recipientEmail,
		Text:           text,
		Attachment:     &domain.Attachment{DocID: docID, Filename: filename},
	}
	if _, err := s.api.SendMessage(ctx, creds.Token, msg); err != nil {
		s.fail(op, "Failed to share document.", err)
		return "", err
	}
	confirmation := fmt.Sprintf("Document successfully shared with %s.", recipientEmail)
	s.info(op, confirmation)
	s.publish(ctx, creds.Role, "document.shared", map[string]any{"docId": docID, "recipient": recipientEmail})
	if creds.Role == domain.RoleDoctor {
		_ = s.RefreshConversations(ctx)
	}
	return confirmation, nil
}

func (s *LockerService) SendMessage(ctx context.Context, recipientEmail, text string) error {
	const op = "send-message"
	creds, _, err := s.requireSession(op)
	if err != nil {
		return err
	}
	recipientEmail = strings.TrimSpace(recipientEmail)
	if err := check(op, sendInput{RecipientEmail: recipientEmail, Text: strings.TrimSpace(text)}, "Please enter a recipient email and a message."); err != nil {
		s.fail(op, domain.UserMessage(err), err)
		return err
	}

	s.info(op, "Sending message...")
	if _, err := s.api.SendMessage(ctx, creds.Token, domain.OutgoingMessage{RecipientEmail: recipientEmail, Text: text}); err != nil {
		s.fail(op, "Failed to send message.", err)
		return err
	}
	s.info(op, "Message sent successfully.")
	s.publish(ctx, creds.Role, "message.sent", map[string]any{"recipient": recipientEmail})
	_ = s.RefreshConversations(ctx)
	return nil
}

// OpenConversation returns the thread ordered by timestamp. Messages are
// not kept in the snapshot.
func (s *LockerService) OpenConversation(ctx context.Context, conversationID string) ([]domain.Message, error) {
	const op = "list-messages"
	creds, gen, err := s.requireSession(op)
	if err != nil {
		return nil, err
	}
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		err := domain.Validation(op, "A conversation id is required.")
		s.fail(op, err.Message, err)
		return nil, err
	}
	s.info(op, "Loading messages...")
	msgs, err := s.api.ListMessages(ctx, creds.Token, conversationID)
	if err != nil {
		s.fail(op, "Failed to load messages.", err)
		return nil, err
	}
	if !s.session.IsCurrent(gen) {
		return nil, domain.NewError(domain.ErrUnauthorized, op, "Session changed while loading messages.")
	}
	s.info(op, "Messages loaded.")
	return msgs, nil
}

// ToggleVisibility flips whether the owning patient can see a document.
// The local dashboard and file list change only after the backend
// confirms, and only along the path to that document.
func (s *LockerService) ToggleVisibility(ctx context.Context, docID string) (bool, error) {
	const op = "toggle-visibility"
	creds, gen, err := s.requireSession(op)
	if err != nil {
		return false, err
	}
	docID = strings.TrimSpace(docID)
	if docID == "" {
		err := domain.Validation(op, "A document id is required.")
		s.fail(op, err.Message, err)
		return false, err
	}
	s.mu.RLock()
	doc, found := viewmodel.FindDocument(s.snap.Files, docID)
	s.mu.RUnlock()
	if !found {
		err := domain.NewError(domain.ErrNotFound, op, "Document is not in the current file list.")
		s.fail(op, err.Message, err)
		return false, err
	}
	visible := !doc.IsVisibleToPatient

	s.info(op, "Updating visibility for document...")
	if _, err := s.api.ToggleVisibility(ctx, creds.Token, docID, visible); err != nil {
		s.fail(op, "Failed to update visibility.", err)
		return false, err
	}
	if !s.commit(op, gen, func(snap *viewmodel.Snapshot) {
		snap.Dashboard, _ = viewmodel.ApplyVisibilityToggle(snap.Dashboard, docID, visible)
		snap.Files, _ = viewmodel.ApplyVisibilityToFiles(snap.Files, docID, visible)
	}) {
		return visible, nil
	}
	s.info(op, "Visibility updated successfully.")
	s.publish(ctx, creds.Role, "document.visibility_changed", map[string]any{"docId": docID, "isVisible": visible})
	return visible, nil
}

func (s *LockerService) CreateUser(ctx context.Context, email, password, role string) (domain.CreatedUser, error) {
	const op = "create-user"
	creds, _, err := s.requireSession(op)
	if err != nil {
		return domain.CreatedUser{}, err
	}
	role = strings.ToLower(strings.TrimSpace(role))
	if err := validate.Var(role, "required,oneof=doctor patient"); err != nil {
		verr := &domain.Error{Kind: domain.ErrValidation, Op: op, Message: "New users must be a doctor or a patient.", Err: err}
		s.fail(op, verr.Message, verr)
		return domain.CreatedUser{}, verr
	}
	email = strings.TrimSpace(email)
	if err := check(op, createUserInput{Email: email, Password: password, Role: role}, fmt.Sprintf("Please enter email and password for the new %s.", role)); err != nil {
		s.fail(op, domain.UserMessage(err), err)
		return domain.CreatedUser{}, err
	}
	parsed, _ := domain.ParseRole(role)

	s.info(op, fmt.Sprintf("Creating new %s...", role))
	created, err := s.api.CreateUser(ctx, creds.Token, email, password, parsed)
	if err != nil {
		s.fail(op, fmt.Sprintf("Failed to create %s: %s", role, domain.UserMessage(err)), err)
		return domain.CreatedUser{}, err
	}
	msg := created.Message
	if msg == "" {
		msg = fmt.Sprintf("Created %s.", role)
	}
	s.info(op, fmt.Sprintf("%s (UID: %s)", msg, created.UID))
	s.publish(ctx, creds.Role, "admin.user_created", map[string]any{"uid": created.UID, "role": role})
	return created, nil
}

func (s *LockerService) AssignPatient(ctx context.Context, doctorUID, patientUID string) error {
	const op = "assign-patient"
	creds, _, err := s.requireSession(op)
	if err != nil {
		return err
	}
	doctorUID, patientUID = strings.TrimSpace(doctorUID), strings.TrimSpace(patientUID)
	if err := check(op, assignInput{DoctorUID: doctorUID, PatientUID: patientUID}, "Please enter both Doctor UID and Patient UID to assign."); err != nil {
		s.fail(op, domain.UserMessage(err), err)
		return err
	}

	s.info(op, fmt.Sprintf("Assigning patient %s to doctor %s...", patientUID, doctorUID))
	text, err := s.api.AssignPatient(ctx, creds.Token, doctorUID, patientUID)
	if err != nil {
		s.fail(op, "Failed to assign patient: "+domain.UserMessage(err), err)
		return err
	}
	if text = strings.TrimSpace(text); text == "" {
		text = "Patient assigned."
	}
	s.info(op, text)
	s.publish(ctx, creds.Role, "admin.patient_assigned", map[string]any{"doctorUid": doctorUID, "patientUid": patientUID})
	_ = s.RefreshAssignments(ctx)
	return nil
}

func (s *LockerService) SetRole(ctx context.Context, uid, role string) (string, error) {
	const op = "set-role"
	creds, _, err := s.requireSession(op)
	if err != nil {
		return "", err
	}
	uid = strings.TrimSpace(uid)
	role = strings.ToLower(strings.TrimSpace(role))
	if err := check(op, setRoleInput{UID: uid, Role: role}, "Please enter a UID and a valid role."); err != nil {
		s.fail(op, domain.UserMessage(err), err)
		return "", err
	}
	parsed, _ := domain.ParseRole(role)

	s.info(op, fmt.Sprintf("Setting role %s for %s...", role, uid))
	text, err := s.api.SetRole(ctx, creds.Token, uid, parsed)
	if err != nil {
		s.fail(op, "Failed to set role: "+domain.UserMessage(err), err)
		return "", err
	}
	if text = strings.TrimSpace(text); text == "" {
		text = "Role updated."
	}
	s.info(op, text)
	s.publish(ctx, creds.Role, "admin.role_set", map[string]any{"uid": uid, "role": role})
	return text, nil
}

func (s *LockerService) View() (ViewState, error) {
	creds, ok := s.session.Current()
	if !ok {
		return ViewState{}, domain.NewError(domain.ErrUnauthorized, "view", "Please sign in first.")
	}
	s.mu.RLock()
	snap := s.snap
	last := s.lastStatus
	s.mu.RUnlock()

	view, err := viewmodel.Derive(creds.Role, snap)
	if err != nil {
		return ViewState{}, domain.WrapError(domain.ErrAuth, "view", err)
	}
	return ViewState{Role: creds.Role, UID: creds.UID, Email: creds.Email, View: view, Status: last}, nil
}

// Snapshot returns a shallow copy of the current snapshot.
func (s *LockerService) Snapshot() viewmodel.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

func (s *LockerService) ClearCache(ctx context.Context) error {
	const op = "clear-cache"
	if err := s.cache.Clear(ctx); err != nil {
		s.fail(op, "Failed to clear local cache.", err)
		return err
	}
	s.info(op, "Local cache cleared.")
	return nil
}

func (s *LockerService) LastStatus() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastStatus
}

func (s *LockerService) info(op, msg string) {
	s.report(Status{Level: StatusInfo, Op: op, Message: msg})
}

func (s *LockerService) fail(op, msg string, err error) {
	commonlog.Errorf("event=locker action=%s status=failed error=%v", op, err)
	s.report(Status{Level: StatusError, Op: op, Message: msg})
}

func (s *LockerService) report(st Status) {
	st.At = time.Now().UTC()
	s.mu.Lock()
	s.lastStatus = st
	s.mu.Unlock()
	if s.status != nil {
		s.status.Report(st)
	}
}

func (s *LockerService) publish(ctx context.Context, role domain.Role, key string, payload map[string]any) {
	payload["type"] = key
	payload["occurred_at"] = time.Now().UTC()
	if err := s.events.Publish(ctx, role.String(), key, payload); err != nil {
		commonlog.Warnf("event=locker action=publish status=failed key=%s error=%v", key, err)
	}
}
