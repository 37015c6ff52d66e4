package database

import "testing"

func openTestDB(t *testing.T) *Database {
	t.Helper()
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestProjectCRUD(t *testing.T) {
	db := openTestDB(t)

	if err := db.CreateProject(Project{ID: "p1", Name: "Pilot", CreatedAt: 100}); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := db.GetProject("p1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.Name != "Pilot" {
		t.Fatalf("got %+v", got)
	}

	if err := db.RenameProject("p1", "Pilot (Revised)"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	got, _ = db.GetProject("p1")
	if got.Name != "Pilot (Revised)" {
		t.Fatalf("rename did not persist, got %+v", got)
	}

	if err := db.CreateDocument(Document{ID: "d1", ProjectID: "p1", Name: "Act One"}); err != nil {
		t.Fatalf("create doc: %v", err)
	}

	docs, err := db.ListDocumentsByProject("p1")
	if err != nil || len(docs) != 1 {
		t.Fatalf("list docs: %v %v", docs, err)
	}

	if err := db.DeleteProject("p1"); err != nil {
		t.Fatalf("delete project: %v", err)
	}
	if got, _ := db.GetProject("p1"); got != nil {
		t.Fatalf("project survived delete: %+v", got)
	}
	if gotDoc, _ := db.GetDocument("d1"); gotDoc != nil {
		t.Fatalf("document survived project delete: %+v", gotDoc)
	}
}

func TestGetProjectMissingReturnsNilNil(t *testing.T) {
	db := openTestDB(t)
	p, err := db.GetProject("nope")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p != nil {
		t.Fatalf("expected nil, got %+v", p)
	}
}

func TestUserCRUD(t *testing.T) {
	db := openTestDB(t)
	if err := db.CreateUser(User{Username: "abe", PasswordHash: "hash", VisibleName: "Abe Froman"}); err != nil {
		t.Fatalf("create user: %v", err)
	}
	got, err := db.GetUser("abe")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if got == nil || got.VisibleName != "Abe Froman" {
		t.Fatalf("got %+v", got)
	}
}

func TestRenameMissingProjectFails(t *testing.T) {
	db := openTestDB(t)
	if err := db.RenameProject("missing", "x"); err == nil {
		t.Fatalf("expected error renaming a nonexistent project")
	}
}
