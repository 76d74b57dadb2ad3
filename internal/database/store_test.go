package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewStore(db)
}

func seedUser(t *testing.T, store *Store, email, role string) *User {
	t.Helper()
	user := &User{Name: "Test User", Email: email, PasswordHash: "x", Role: role}
	if err := store.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("seed user %s: %v", email, err)
	}
	return user
}

func seedResume(t *testing.T, store *Store, userID uint, score float64) {
	t.Helper()
	meta, _ := json.Marshal(AnalysisMetadata{Version: MetadataVersion})
	file := &File{
		UserID:   &userID,
		Filename: "resume.pdf",
		Kind:     KindResume,
		Score:    &score,
		Metadata: meta,
	}
	if err := store.CreateFile(context.Background(), file); err != nil {
		t.Fatalf("seed resume: %v", err)
	}
}

func TestCreateUser_DuplicateEmail(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := seedUser(t, store, "dup@example.com", RoleStudent)

	second := &User{Name: "Other", Email: "dup@example.com", PasswordHash: "y", Role: RoleStudent}
	if err := store.CreateUser(ctx, second); !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}

	// 首条记录不受影响。
	got, err := store.FindUserByEmail(ctx, "dup@example.com")
	if err != nil {
		t.Fatalf("first user no longer queryable: %v", err)
	}
	if got.ID != first.ID {
		t.Fatalf("expected user %d, got %d", first.ID, got.ID)
	}
}

func TestStats_ZeroRows(t *testing.T) {
	store := newTestStore(t)

	stats, err := store.Stats(context.Background())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 0 || stats.HighMatch != 0 {
		t.Fatalf("expected zero counts, got %+v", stats)
	}
	if stats.AverageScore != 0 {
		t.Fatalf("average over zero rows must be 0, got %v", stats.AverageScore)
	}
}

func TestStats_Aggregates(t *testing.T) {
	store := newTestStore(t)
	user := seedUser(t, store, "a@example.com", RoleStudent)
	seedResume(t, store, user.ID, 90)
	seedResume(t, store, user.ID, 85)
	seedResume(t, store, user.ID, 40)

	stats, err := store.Stats(context.Background())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 3 {
		t.Fatalf("expected 3 resumes, got %d", stats.Total)
	}
	if stats.HighMatch != 2 {
		t.Fatalf("expected 2 high matches, got %d", stats.HighMatch)
	}
	want := (90.0 + 85.0 + 40.0) / 3.0
	if stats.AverageScore != want {
		t.Fatalf("expected average %v, got %v", want, stats.AverageScore)
	}
}

func TestListUserResumes_FiltersKindAndOwner(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	owner := seedUser(t, store, "owner@example.com", RoleStudent)
	other := seedUser(t, store, "other@example.com", RoleStudent)

	seedResume(t, store, owner.ID, 70)
	seedResume(t, store, other.ID, 50)

	jdScore := 0.0
	jd := &File{UserID: &owner.ID, Filename: "jd.txt", Kind: KindJobDescription, Score: &jdScore}
	if err := store.CreateFile(ctx, jd); err != nil {
		t.Fatalf("seed jd: %v", err)
	}

	files, err := store.ListUserResumes(ctx, owner.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("expected 1 resume for owner, got %d", len(files))
	}
	if files[0].Kind != KindResume {
		t.Fatalf("expected kind %q, got %q", KindResume, files[0].Kind)
	}
}

func TestListStudentResumeRecords_ExportScope(t *testing.T) {
	store := newTestStore(t)
	student := seedUser(t, store, "student@example.com", RoleStudent)
	staff := seedUser(t, store, "staff@example.com", RolePlacement)

	seedResume(t, store, student.ID, 66)
	seedResume(t, store, student.ID, 91)
	// 安置账号自己的上传不应进入导出。
	seedResume(t, store, staff.ID, 88)

	records, err := store.ListStudentResumeRecords(context.Background())
	if err != nil {
		t.Fatalf("list student records: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 exportable records, got %d", len(records))
	}
	for _, r := range records {
		if r.Email != "student@example.com" {
			t.Fatalf("unexpected record owner %q", r.Email)
		}
	}
}

func TestUpdateUserName(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	user := seedUser(t, store, "rename@example.com", RoleStudent)

	if err := store.UpdateUserName(ctx, user.ID, "New Name"); err != nil {
		t.Fatalf("update name: %v", err)
	}
	got, err := store.FindUserByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.Name != "New Name" {
		t.Fatalf("expected renamed user, got %q", got.Name)
	}
	if got.Email != "rename@example.com" {
		t.Fatalf("email must be immutable, got %q", got.Email)
	}
}
