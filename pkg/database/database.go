// Package database provides SQLite persistence for project, document, and
// user metadata. Document contents themselves are not stored here; they
// live on disk as plain files (see internal/docstore),
// matching the external document store's separation of metadata from
// content.
package database

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Project is a row of the project table.
type Project struct {
	ID        string
	Name      string
	CreatedAt int64
}

// Document is a row of the document table.
type Document struct {
	ID        string
	ProjectID string
	Name      string
}

// User is a row of the user table.
type User struct {
	Username     string
	PasswordHash string
	VisibleName  string
}

// Database wraps a SQLite connection holding project/document/user metadata.
type Database struct {
	db *sql.DB
}

// New opens uri and runs any pending migrations.
func New(uri string) (*Database, error) {
	db, err := sql.Open("sqlite3", uri)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &Database{db: db}, nil
}

// Close closes the database connection.
func (d *Database) Close() error {
	return d.db.Close()
}

// CreateProject inserts a new project row.
func (d *Database) CreateProject(p Project) error {
	_, err := d.db.Exec(
		"INSERT INTO project (id, name, created_at) VALUES (?, ?, ?)",
		p.ID, p.Name, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create project: %w", err)
	}
	return nil
}

// GetProject loads a project by id, returning (nil, nil) if absent.
func (d *Database) GetProject(id string) (*Project, error) {
	var p Project
	err := d.db.QueryRow("SELECT id, name, created_at FROM project WHERE id = ?", id).
		Scan(&p.ID, &p.Name, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	return &p, nil
}

// ListProjects returns every project row, ordered by creation time.
func (d *Database) ListProjects() ([]Project, error) {
	rows, err := d.db.Query("SELECT id, name, created_at FROM project ORDER BY created_at")
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var out []Project
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.Name, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// RenameProject updates a project's name.
func (d *Database) RenameProject(id, name string) error {
	result, err := d.db.Exec("UPDATE project SET name = ? WHERE id = ?", name, id)
	if err != nil {
		return fmt.Errorf("rename project: %w", err)
	}
	return expectOneRow(result)
}

// DeleteProject removes a project and its documents.
func (d *Database) DeleteProject(id string) error {
	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("delete project: begin: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM document WHERE project_id = ?", id); err != nil {
		tx.Rollback()
		return fmt.Errorf("delete project documents: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM project WHERE id = ?", id); err != nil {
		tx.Rollback()
		return fmt.Errorf("delete project: %w", err)
	}
	return tx.Commit()
}

// CreateDocument inserts a new document row.
func (d *Database) CreateDocument(doc Document) error {
	_, err := d.db.Exec(
		"INSERT INTO document (id, project_id, name) VALUES (?, ?, ?)",
		doc.ID, doc.ProjectID, doc.Name,
	)
	if err != nil {
		return fmt.Errorf("create document: %w", err)
	}
	return nil
}

// GetDocument loads a document by id, returning (nil, nil) if absent.
func (d *Database) GetDocument(id string) (*Document, error) {
	var doc Document
	err := d.db.QueryRow("SELECT id, project_id, name FROM document WHERE id = ?", id).
		Scan(&doc.ID, &doc.ProjectID, &doc.Name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return &doc, nil
}

// ListDocumentsByProject returns every document belonging to projectID.
func (d *Database) ListDocumentsByProject(projectID string) ([]Document, error) {
	rows, err := d.db.Query("SELECT id, project_id, name FROM document WHERE project_id = ?", projectID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		var doc Document
		if err := rows.Scan(&doc.ID, &doc.ProjectID, &doc.Name); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

// DeleteDocument removes a document row.
func (d *Database) DeleteDocument(id string) error {
	_, err := d.db.Exec("DELETE FROM document WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

// CreateUser inserts a new user row.
func (d *Database) CreateUser(u User) error {
	_, err := d.db.Exec(
		"INSERT INTO user (username, password_hash, visible_name) VALUES (?, ?, ?)",
		u.Username, u.PasswordHash, u.VisibleName,
	)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// GetUser loads a user by username, returning (nil, nil) if absent.
func (d *Database) GetUser(username string) (*User, error) {
	var u User
	err := d.db.QueryRow("SELECT username, password_hash, visible_name FROM user WHERE username = ?", username).
		Scan(&u.Username, &u.PasswordHash, &u.VisibleName)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

func expectOneRow(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows != 1 {
		return fmt.Errorf("expected 1 row affected, got %d", rows)
	}
	return nil
}
