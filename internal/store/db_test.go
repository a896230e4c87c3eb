package store

import (
	"path/filepath"
	"testing"

	"chatconn/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUserCRUD(t *testing.T) {
	s := newTestStore(t)

	exists, err := s.UserExists("alice")
	if err != nil {
		t.Fatalf("UserExists() error = %v", err)
	}
	if exists {
		t.Fatal("expected no user named alice in a fresh store")
	}

	u := &model.User{Username: "alice", PasswordHash: "hash", IsAdmin: true}
	if err := s.CreateUser(u); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	if u.ID == 0 {
		t.Fatal("expected CreateUser to assign an id")
	}

	has, err := s.HasAnyUser()
	if err != nil || !has {
		t.Fatalf("HasAnyUser() = %v, %v, want true, nil", has, err)
	}

	byID, err := s.GetUserByID(u.ID)
	if err != nil {
		t.Fatalf("GetUserByID() error = %v", err)
	}
	if byID.Username != "alice" || !byID.IsAdmin {
		t.Fatalf("GetUserByID() = %+v, want Username=alice IsAdmin=true", byID)
	}

	byName, err := s.GetUserByUsername("alice")
	if err != nil {
		t.Fatalf("GetUserByUsername() error = %v", err)
	}
	if byName.ID != u.ID {
		t.Fatalf("GetUserByUsername() ID = %d, want %d", byName.ID, u.ID)
	}
}

func TestRegistrationStateDefaultsToNotDeregistered(t *testing.T) {
	s := newTestStore(t)
	v, err := s.IsDeregistered("identified")
	if err != nil {
		t.Fatalf("IsDeregistered() error = %v", err)
	}
	if v {
		t.Fatal("expected a kind with no row to report not deregistered")
	}
}

func TestRegistrationStateUpsert(t *testing.T) {
	s := newTestStore(t)

	if err := s.SetDeregistered("identified", true); err != nil {
		t.Fatalf("SetDeregistered(true) error = %v", err)
	}
	v, err := s.IsDeregistered("identified")
	if err != nil || !v {
		t.Fatalf("IsDeregistered() = %v, %v, want true, nil", v, err)
	}

	if err := s.SetDeregistered("identified", false); err != nil {
		t.Fatalf("SetDeregistered(false) error = %v", err)
	}
	v, err = s.IsDeregistered("identified")
	if err != nil || v {
		t.Fatalf("IsDeregistered() = %v, %v, want false, nil", v, err)
	}

	other, err := s.IsDeregistered("unidentified")
	if err != nil || other {
		t.Fatalf("unrelated kind IsDeregistered() = %v, %v, want false, nil", other, err)
	}
}

func TestLogsRoundTripAndFilterByKind(t *testing.T) {
	s := newTestStore(t)

	if err := s.AddLog(&model.LogEntry{Kind: "identified", Tag: "conn", Message: "opened", Level: "info"}); err != nil {
		t.Fatalf("AddLog() error = %v", err)
	}
	if err := s.AddLog(&model.LogEntry{Kind: "unidentified", Tag: "conn", Message: "opened", Level: "info"}); err != nil {
		t.Fatalf("AddLog() error = %v", err)
	}

	logs, err := s.GetLogs("identified", 0, 0)
	if err != nil {
		t.Fatalf("GetLogs() error = %v", err)
	}
	if len(logs) != 1 || logs[0].Kind != "identified" {
		t.Fatalf("GetLogs(identified) = %+v, want exactly one identified entry", logs)
	}
}

func TestGetLogsBeforeIDPaginates(t *testing.T) {
	s := newTestStore(t)
	var lastID int64
	for i := 0; i < 3; i++ {
		entry := &model.LogEntry{Kind: "identified", Tag: "conn", Message: "tick", Level: "info"}
		if err := s.AddLog(entry); err != nil {
			t.Fatalf("AddLog() error = %v", err)
		}
		lastID = entry.ID
	}

	logs, err := s.GetLogs("identified", 0, lastID)
	if err != nil {
		t.Fatalf("GetLogs() error = %v", err)
	}
	for _, l := range logs {
		if l.ID >= lastID {
			t.Fatalf("GetLogs(beforeID=%d) returned entry with id %d", lastID, l.ID)
		}
	}
}
