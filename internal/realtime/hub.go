package realtime

import (
	"fmt"
	"sync"
	"time"

	"github.com/fountainhead/scriptsync/internal/patch"
	"github.com/fountainhead/scriptsync/pkg/database"
	"github.com/fountainhead/scriptsync/pkg/logger"
)

// Project is the in-memory hub for one open project: the set of users who
// have it open, and the documents within it that currently have at least
// one joined editor. It generalizes the teacher's single-level
// sync.Map-of-documents pattern (pkg/server/server.go ServerState) to the
// two-level project -> document hierarchy the lock-ordering rule of §5
// requires.
type Project struct {
	mu sync.Mutex

	ID   string
	Name string

	openedUsers  map[string]ClientHandle
	documents    map[string]*RealTimeDocument
	lastAccessed time.Time
}

func newProject(id, name string) *Project {
	return &Project{
		ID:           id,
		Name:         name,
		openedUsers:  make(map[string]ClientHandle),
		documents:    make(map[string]*RealTimeDocument),
		lastAccessed: time.Now(),
	}
}

// OpenedUserCount reports how many sessions currently have this project open.
func (p *Project) OpenedUserCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.openedUsers)
}

// OpenedUsers returns the handles of every session that currently has this
// project open, e.g. to populate an OPENED_PROJECT/SYNC_PROJECT snapshot.
func (p *Project) OpenedUsers() []ClientHandle {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]ClientHandle, 0, len(p.openedUsers))
	for _, h := range p.openedUsers {
		out = append(out, h)
	}
	return out
}

// LoadFunc loads the persisted block list for a newly-opened document
// (e.g. internal/docstore's Store.Load, which returns a single empty Action
// block for a document that has never been saved).
type LoadFunc func(fileID string) (patch.Blocks, error)

// JoinDocument returns the RealTimeDocument for fileID, constructing and
// loading it via load if it is not currently open in this project (it is
// evicted once its last editor leaves), then joins handle as an editor.
func (p *Project) JoinDocument(fileID string, handle ClientHandle, load LoadFunc) (*RealTimeDocument, *RealTimeUser, error) {
	p.mu.Lock()
	p.lastAccessed = time.Now()
	rtd, ok := p.documents[fileID]
	if !ok {
		blocks, err := load(fileID)
		if err != nil {
			p.mu.Unlock()
			return nil, nil, fmt.Errorf("realtime: load document %s: %w", fileID, err)
		}
		rtd = NewDocument(fileID, blocks)
		p.documents[fileID] = rtd
	}
	p.mu.Unlock()

	user, err := rtd.JoinClient(handle)
	if err != nil {
		return nil, nil, err
	}
	return rtd, user, nil
}

// LeaveDocument removes user from fileID's editor set and, if that leaves
// the document with no editors, saves and evicts it.
func (p *Project) LeaveDocument(fileID string, user *RealTimeUser, save func(*RealTimeDocument) error) {
	p.mu.Lock()
	rtd, ok := p.documents[fileID]
	p.mu.Unlock()
	if !ok {
		return
	}

	rtd.BroadcastLeaveClient(user)

	if rtd.EditorCount() > 0 {
		return
	}

	p.mu.Lock()
	// Re-check under lock: another join may have raced in after EditorCount.
	stillEmpty := rtd.EditorCount() == 0
	if stillEmpty {
		delete(p.documents, fileID)
	}
	p.mu.Unlock()

	if stillEmpty && save != nil {
		if err := save(rtd); err != nil {
			logger.Error("realtime: save document %s on last editor leaving: %v", fileID, err)
		}
	}
}

// Server is the top-level hub: the connected-client list and the
// currently-open project map, both guarded by one mutex (spec's "global
// connected/open-projects" lock, the outermost in the {global} ->
// {project} -> {document} -> {socket} ordering).
type Server struct {
	mu sync.Mutex

	connectedClients map[string]ClientHandle
	openProjects     map[string]*Project

	db *database.Database
}

// NewServer constructs a hub backed by db for project/document/user
// metadata lookups.
func NewServer(db *database.Database) *Server {
	return &Server{
		connectedClients: make(map[string]ClientHandle),
		openProjects:     make(map[string]*Project),
		db:               db,
	}
}

// Connect registers a newly-authenticated session.
func (s *Server) Connect(username string, handle ClientHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connectedClients[username] = handle
}

// Disconnect removes a session from the connected set.
func (s *Server) Disconnect(username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.connectedClients, username)
}

// ConnectedCount reports the number of connected sessions.
func (s *Server) ConnectedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.connectedClients)
}

// CreateProject inserts a new project row and returns its id.
func (s *Server) CreateProject(name string) (database.Project, error) {
	proj := database.Project{ID: NewID(), Name: name, CreatedAt: time.Now().Unix()}
	if err := s.db.CreateProject(proj); err != nil {
		return database.Project{}, err
	}
	return proj, nil
}

// DeleteProject removes the project's metadata and evicts its in-memory
// hub, if open.
func (s *Server) DeleteProject(id string) error {
	if err := s.db.DeleteProject(id); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.openProjects, id)
	s.mu.Unlock()
	return nil
}

// OpenProject returns the in-memory Project for id, constructing it from
// the database row on first open, and registers username as having it
// open.
func (s *Server) OpenProject(id, username string, handle ClientHandle) (*Project, error) {
	s.mu.Lock()
	proj, ok := s.openProjects[id]
	if !ok {
		row, err := s.db.GetProject(id)
		if err != nil {
			s.mu.Unlock()
			return nil, fmt.Errorf("realtime: load project %s: %w", id, err)
		}
		if row == nil {
			s.mu.Unlock()
			return nil, fmt.Errorf("realtime: project %s does not exist", id)
		}
		proj = newProject(row.ID, row.Name)
		s.openProjects[id] = proj
	}
	s.mu.Unlock()

	proj.mu.Lock()
	proj.openedUsers[username] = handle
	proj.mu.Unlock()
	return proj, nil
}

// CloseProject unregisters username from the project's opened-user set and,
// if no one else has it open, evicts it from the hub.
func (s *Server) CloseProject(id, username string) {
	s.mu.Lock()
	proj, ok := s.openProjects[id]
	s.mu.Unlock()
	if !ok {
		return
	}

	proj.mu.Lock()
	delete(proj.openedUsers, username)
	empty := len(proj.openedUsers) == 0
	proj.mu.Unlock()

	if empty {
		s.mu.Lock()
		delete(s.openProjects, id)
		s.mu.Unlock()
	}
}

// SweepIdleProjects evicts in-memory project hubs with no opened users and
// no open documents, untouched since before cutoff. Resolves Open Question
// 3 (the source's unscheduled MAX_TRASH_CAN_DAYS): this hub treats expiry
// as part of the core, ported from the teacher's cleanupExpiredDocuments
// ticker loop (pkg/server/server.go) and generalized from a single
// document map to the project level.
func (s *Server) SweepIdleProjects(cutoff time.Time) []string {
	s.mu.Lock()
	var evicted []string
	for id, proj := range s.openProjects {
		proj.mu.Lock()
		idle := len(proj.openedUsers) == 0 && len(proj.documents) == 0 && proj.lastAccessed.Before(cutoff)
		proj.mu.Unlock()
		if idle {
			delete(s.openProjects, id)
			evicted = append(evicted, id)
		}
	}
	s.mu.Unlock()
	if len(evicted) > 0 {
		logger.Info("realtime: swept %d idle project(s): %v", len(evicted), evicted)
	}
	return evicted
}
