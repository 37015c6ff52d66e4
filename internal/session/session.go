// Package session wires one connected socket to the realtime hub and
// database: it is the per-connection handler layer, grounded on the
// teacher's pkg/server/connection.go (one handler struct per accepted
// connection, a send mutex, a cleanup path) but driven by endpoint
// callbacks registered on internal/wire.Socket instead of a read loop the
// handler owns itself.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/fountainhead/scriptsync/internal/auth"
	"github.com/fountainhead/scriptsync/internal/docstore"
	"github.com/fountainhead/scriptsync/internal/endpoint"
	"github.com/fountainhead/scriptsync/internal/fountain"
	"github.com/fountainhead/scriptsync/internal/realtime"
	"github.com/fountainhead/scriptsync/internal/wire"
	"github.com/fountainhead/scriptsync/pkg/database"
	"github.com/fountainhead/scriptsync/pkg/logger"
)

const (
	errInvalidCredentials byte = 1
	errNotFound           byte = 2
	errNameTooLong        byte = 3
	errDuplicate          byte = 4
)

// joinedDoc is one currently-joined document's bookkeeping for this session.
type joinedDoc struct {
	project *realtime.Project
	doc     *realtime.RealTimeDocument
	user    *realtime.RealTimeUser
}

// Session is one authenticated connection's state. It implements
// realtime.ClientHandle so the hub can address it directly.
type Session struct {
	socket *wire.Socket
	hub    *realtime.Server
	db     *database.Database
	docs   *docstore.Store

	mu              sync.Mutex
	username        string
	visibleName     string
	openedProjectID string
	joined          map[string]*joinedDoc

	lastPong time.Time
}

// New wraps conn's socket with the document/project protocol. The returned
// Session has no identity until LOGIN succeeds.
func New(socket *wire.Socket, hub *realtime.Server, db *database.Database, docs *docstore.Store) *Session {
	s := &Session{
		socket:   socket,
		hub:      hub,
		db:       db,
		docs:     docs,
		joined:   make(map[string]*joinedDoc),
		lastPong: time.Now(),
	}
	socket.Handle(endpoint.PING, s.handlePing)
	socket.Handle(endpoint.I_AM_ALIVE, s.handleIAmAlive)
	socket.Handle(endpoint.LOGIN, s.handleLogin)
	socket.Handle(endpoint.CREATE_PROJECT, s.handleCreateProject)
	socket.Handle(endpoint.DELETE_PROJECT, s.handleDeleteProject)
	socket.Handle(endpoint.OPEN_PROJECT, s.handleOpenProject)
	socket.Handle(endpoint.RENAME_PROJECT, s.handleRenameProject)
	socket.Handle(endpoint.CREATE_DOC, s.handleCreateDoc)
	socket.Handle(endpoint.DELETE_DOC, s.handleDeleteDoc)
	socket.Handle(endpoint.CREATE_FOLDER, s.handleCreateFolder)
	socket.Handle(endpoint.JOIN_DOC, s.handleJoinDoc)
	socket.Handle(endpoint.LEAVE_DOC, s.handleLeaveDoc)
	socket.Handle(endpoint.SCRIPT_PATCH, s.handlePatchUpload)
	return s
}

// --- realtime.ClientHandle ---

func (s *Session) Send(id endpoint.ID, payload any) error { return s.socket.Send(id, payload) }
func (s *Session) Username() string                       { s.mu.Lock(); defer s.mu.Unlock(); return s.username }
func (s *Session) VisibleName() string                    { s.mu.Lock(); defer s.mu.Unlock(); return s.visibleName }

// LastSeen reports when this session last replied I_AM_ALIVE, for the
// cmd-level keepalive ticker to act on (spec §5's 5s/7s probe).
func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastPong
}

func (s *Session) handlePing(any) error { return s.socket.Send(endpoint.PONG, nil) }

func (s *Session) handleIAmAlive(any) error {
	s.mu.Lock()
	s.lastPong = time.Now()
	s.mu.Unlock()
	return nil
}

func (s *Session) handleLogin(payload any) error {
	req, ok := payload.(endpoint.LoginRequest)
	if !ok {
		return fmt.Errorf("session: LOGIN payload has unexpected type %T", payload)
	}

	user, err := s.db.GetUser(req.Username)
	if err != nil {
		return fmt.Errorf("session: lookup user: %w", err)
	}
	if user == nil || !auth.Check(user.PasswordHash, req.Password) {
		return s.socket.Send(endpoint.LOGIN_RESULT, endpoint.LoginResult{ErrorCode: errInvalidCredentials})
	}

	rows, err := s.db.ListProjects()
	if err != nil {
		return fmt.Errorf("session: list projects: %w", err)
	}
	projects := make([]endpoint.ProjectSummary, len(rows))
	for i, r := range rows {
		projects[i] = endpoint.ProjectSummary{ID: r.ID, Name: r.Name}
	}

	s.mu.Lock()
	s.username = user.Username
	s.visibleName = user.VisibleName
	s.mu.Unlock()

	s.hub.Connect(user.Username, s)

	return s.socket.Send(endpoint.LOGIN_RESULT, endpoint.LoginResult{
		ErrorCode: 0,
		Projects:  projects,
		User:      endpoint.UserPublicForm{Username: user.Username, VisibleName: user.VisibleName},
	})
}

func (s *Session) handleCreateProject(payload any) error {
	req, ok := payload.(endpoint.NamePayload)
	if !ok {
		return fmt.Errorf("session: CREATE_PROJECT payload has unexpected type %T", payload)
	}
	if len(req.Name) > 255 {
		return s.sendServerError(errNameTooLong, "project name too long")
	}

	proj, err := s.hub.CreateProject(req.Name)
	if err != nil {
		return s.sendServerError(errDuplicate, "could not create project")
	}
	return s.socket.Send(endpoint.CREATED_PROJECT, endpoint.IDAndName{ID: proj.ID, Name: proj.Name})
}

func (s *Session) handleDeleteProject(payload any) error {
	req, ok := payload.(endpoint.IDPayload)
	if !ok {
		return fmt.Errorf("session: DELETE_PROJECT payload has unexpected type %T", payload)
	}
	if err := s.hub.DeleteProject(req.ID); err != nil {
		return s.sendServerError(errNotFound, "project not found")
	}
	return s.socket.Send(endpoint.DELETED_PROJECT, endpoint.IDPayload{ID: req.ID})
}

func (s *Session) handleOpenProject(payload any) error {
	req, ok := payload.(endpoint.IDPayload)
	if !ok {
		return fmt.Errorf("session: OPEN_PROJECT payload has unexpected type %T", payload)
	}

	proj, err := s.hub.OpenProject(req.ID, s.Username(), s)
	if err != nil {
		return s.sendProjectError(errNotFound, "project not found")
	}

	s.mu.Lock()
	s.openedProjectID = req.ID
	s.mu.Unlock()

	return s.socket.Send(endpoint.OPENED_PROJECT, projectSnapshot(proj))
}

func (s *Session) handleRenameProject(payload any) error {
	req, ok := payload.(endpoint.IDAndName)
	if !ok {
		return fmt.Errorf("session: RENAME_PROJECT payload has unexpected type %T", payload)
	}
	if err := s.db.RenameProject(req.ID, req.Name); err != nil {
		return s.sendProjectError(errNotFound, "project not found")
	}
	return s.socket.Send(endpoint.RENAMED_PROJECT, req)
}

func (s *Session) handleCreateDoc(payload any) error {
	return s.createDocumentLike(payload, endpoint.CREATED_DOC)
}

func (s *Session) handleCreateFolder(payload any) error {
	return s.createDocumentLike(payload, endpoint.CREATED_FOLDER)
}

// createDocumentLike backs both CREATE_DOC and CREATE_FOLDER: the wire
// layout is identical (IDAndName: the owning project's id plus the new
// entry's name), and this module's metadata model has no separate folder
// table, so a folder is recorded as a document row whose file never
// acquires a joined editor or a .fountain file until something is actually
// written into it.
func (s *Session) createDocumentLike(payload any, replyID endpoint.ID) error {
	req, ok := payload.(endpoint.IDAndName)
	if !ok {
		return fmt.Errorf("session: create-document payload has unexpected type %T", payload)
	}
	doc := database.Document{ID: realtime.NewID(), ProjectID: req.ID, Name: req.Name}
	if err := s.db.CreateDocument(doc); err != nil {
		return s.sendProjectError(errDuplicate, "could not create document")
	}
	return s.socket.Send(replyID, endpoint.IDAndName{ID: doc.ID, Name: doc.Name})
}

func (s *Session) handleDeleteDoc(payload any) error {
	req, ok := payload.(endpoint.IDPayload)
	if !ok {
		return fmt.Errorf("session: DELETE_DOC payload has unexpected type %T", payload)
	}
	if err := s.db.DeleteDocument(req.ID); err != nil {
		return s.sendProjectError(errNotFound, "document not found")
	}
	if err := s.docs.Delete(req.ID); err != nil {
		logger.Error("session: delete document file %s: %v", req.ID, err)
	}
	return s.socket.Send(endpoint.DELETED_DOC, endpoint.IDPayload{ID: req.ID})
}

func (s *Session) handleJoinDoc(payload any) error {
	req, ok := payload.(endpoint.IDPayload)
	if !ok {
		return fmt.Errorf("session: JOIN_DOC payload has unexpected type %T", payload)
	}

	s.mu.Lock()
	projectID := s.openedProjectID
	_, already := s.joined[req.ID]
	s.mu.Unlock()
	if already {
		return nil
	}
	if projectID == "" {
		return s.sendProjectError(errNotFound, "no project open")
	}

	proj, err := s.hub.OpenProject(projectID, s.Username(), s)
	if err != nil {
		return s.sendProjectError(errNotFound, "project not found")
	}

	rtd, user, err := proj.JoinDocument(req.ID, s, s.docs.Load)
	if err != nil {
		return s.sendProjectError(errNotFound, "document not found")
	}

	s.mu.Lock()
	s.joined[req.ID] = &joinedDoc{project: proj, doc: rtd, user: user}
	s.mu.Unlock()
	return nil
}

func (s *Session) handleLeaveDoc(payload any) error {
	req, ok := payload.(endpoint.IDPayload)
	if !ok {
		return fmt.Errorf("session: LEAVE_DOC payload has unexpected type %T", payload)
	}
	s.leaveDocument(req.ID)
	return s.socket.Send(endpoint.LEFT_DOC, endpoint.UserPublicForm{Username: s.Username(), VisibleName: s.VisibleName()})
}

func (s *Session) leaveDocument(fileID string) {
	s.mu.Lock()
	jd, ok := s.joined[fileID]
	if ok {
		delete(s.joined, fileID)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	jd.project.LeaveDocument(fileID, jd.user, func(rtd *realtime.RealTimeDocument) error {
		return rtd.Save(fountain.Write, func(data []byte) error { return s.docs.SaveRaw(fileID, data) })
	})
}

func (s *Session) handlePatchUpload(payload any) error {
	req, ok := payload.(endpoint.PatchUpload)
	if !ok {
		return fmt.Errorf("session: SCRIPT_PATCH payload has unexpected type %T", payload)
	}

	s.mu.Lock()
	jd, joined := s.joined[req.FileID]
	s.mu.Unlock()
	if !joined {
		return s.sendProjectError(errNotFound, "document not joined")
	}

	ack, err := jd.user.Upload(jd.doc, req.Patch, req.BranchID, req.DocumentTimestamp)
	if err != nil {
		return s.sendProjectError(errNotFound, fmt.Sprintf("patch rejected: %v", err))
	}
	return s.socket.Send(endpoint.SCRIPT_PATCH_ACK, endpoint.PatchAck{FileID: req.FileID, Patch: ack})
}

// Close tears down the connection. The cascade itself runs in Shutdown,
// invoked exactly once via the socket's onClose hook regardless of whether
// the close was requested here, provoked by a read error, or forced by a
// keepalive timeout.
func (s *Session) Close() error { return s.socket.Close() }

// Shutdown cascades a disconnect per spec §5: leave every joined document
// (saving if this session was the last editor), close the opened project,
// remove from the connected set. Pass this as the onClose hook given to
// wire.New so it fires under the socket's own idempotency guard.
func (s *Session) Shutdown() {
	s.mu.Lock()
	fileIDs := make([]string, 0, len(s.joined))
	for id := range s.joined {
		fileIDs = append(fileIDs, id)
	}
	projectID := s.openedProjectID
	username := s.username
	s.mu.Unlock()

	for _, id := range fileIDs {
		s.leaveDocument(id)
	}
	if projectID != "" {
		s.hub.CloseProject(projectID, username)
	}
	if username != "" {
		s.hub.Disconnect(username)
	}
}

func (s *Session) sendServerError(code byte, msg string) error {
	return s.socket.Send(endpoint.ERROR_FULFILLING_SERVER_REQUEST, endpoint.ErrorPayload{Code: code, Message: msg})
}

func (s *Session) sendProjectError(code byte, msg string) error {
	return s.socket.Send(endpoint.ERROR_FULFILLING_PROJECT_REQUEST, endpoint.ErrorPayload{Code: code, Message: msg})
}

func projectSnapshot(proj *realtime.Project) endpoint.SyncProject {
	handles := proj.OpenedUsers()
	users := make([]endpoint.UserPublicForm, len(handles))
	for i, h := range handles {
		users[i] = endpoint.UserPublicForm{Username: h.Username(), VisibleName: h.VisibleName()}
	}
	return endpoint.SyncProject{
		Project: endpoint.ProjectSummary{ID: proj.ID, Name: proj.Name},
		Users:   users,
	}
}
