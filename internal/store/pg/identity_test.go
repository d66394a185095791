package pg

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"dyinvoice.org/internal/identity"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewWithDB(db), mock
}

func roleRows(id int64, name identity.RoleName) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "name", "short_name", "created_at"}).
		AddRow(id, string(name), name.ShortName(), time.Now())
}

func TestEnsureRoleInsertsWhenAbsent(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("select id, name, short_name, created_at").WithArgs("ADMIN").WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("insert into roles").WithArgs("ADMIN", "admin").WillReturnRows(roleRows(1, identity.RoleAdmin))

	role, err := store.EnsureRole(context.Background(), identity.RoleAdmin, "admin")
	if err != nil {
		t.Fatalf("EnsureRole: %v", err)
	}
	if role.ID != 1 || role.Name != identity.RoleAdmin {
		t.Fatalf("unexpected role: %+v", role)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestEnsureRoleRefetchesAfterLostRace(t *testing.T) {
	store, mock := newMockStore(t)

	// Not found, insert loses the on-conflict race and returns no row,
	// the surviving row is fetched afterwards.
	mock.ExpectQuery("select id, name, short_name, created_at").WithArgs("USER").WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("insert into roles").WithArgs("USER", "user").WillReturnRows(sqlmock.NewRows([]string{"id", "name", "short_name", "created_at"}))
	mock.ExpectQuery("select id, name, short_name, created_at").WithArgs("USER").WillReturnRows(roleRows(2, identity.RoleUser))

	role, err := store.EnsureRole(context.Background(), identity.RoleUser, "user")
	if err != nil {
		t.Fatalf("EnsureRole: %v", err)
	}
	if role.ID != 2 {
		t.Fatalf("unexpected role: %+v", role)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestEnsureRoleReturnsExisting(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("select id, name, short_name, created_at").WithArgs("ADMIN").WillReturnRows(roleRows(7, identity.RoleAdmin))

	role, err := store.EnsureRole(context.Background(), identity.RoleAdmin, "admin")
	if err != nil {
		t.Fatalf("EnsureRole: %v", err)
	}
	if role.ID != 7 {
		t.Fatalf("unexpected role: %+v", role)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func sampleNewUser() identity.NewUser {
	return identity.NewUser{
		Email:        "ada@example.com",
		Phone:        "+33612345678",
		FirstName:    "Ada",
		LastName:     "Martin",
		PasswordHash: "$2a$10$hash",
		Role:         identity.RoleAdmin,
		Company:      identity.NewCompany{Name: "Martin Conseil", SIRET: "84235017600012"},
	}
}

func TestCreateUserWithCompanyCommits(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery("select id from roles").WithArgs("ADMIN").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))
	mock.ExpectQuery("insert into users").
		WithArgs("ada@example.com", "+33612345678", "Ada", "Martin", "$2a$10$hash").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(int64(10), now, now))
	mock.ExpectQuery("insert into companies").
		WithArgs(int64(10), "Martin Conseil", "84235017600012", "", "", "").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(20)))
	mock.ExpectExec("insert into user_roles").WithArgs(int64(10), int64(1)).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	user, err := store.CreateUserWithCompany(context.Background(), sampleNewUser())
	if err != nil {
		t.Fatalf("CreateUserWithCompany: %v", err)
	}
	if user.ID != 10 || user.CompanyID != 20 {
		t.Fatalf("unexpected ids: %+v", user)
	}
	if len(user.Roles) != 1 || user.Roles[0] != identity.RoleAdmin {
		t.Fatalf("role not attached: %+v", user.Roles)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateUserWithCompanyRoleMissing(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("select id from roles").WithArgs("ADMIN").WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := store.CreateUserWithCompany(context.Background(), sampleNewUser())
	if !errors.Is(err, identity.ErrRoleMissing) {
		t.Fatalf("expected ErrRoleMissing, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateUserWithCompanyDuplicateEmail(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("select id from roles").WithArgs("ADMIN").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))
	mock.ExpectQuery("insert into users").
		WithArgs("ada@example.com", "+33612345678", "Ada", "Martin", "$2a$10$hash").
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation, ConstraintName: "users_email_key"})
	mock.ExpectRollback()

	_, err := store.CreateUserWithCompany(context.Background(), sampleNewUser())
	if !errors.Is(err, identity.ErrDuplicateIdentity) {
		t.Fatalf("expected ErrDuplicateIdentity, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateUserWithCompanyDuplicatePhone(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("select id from roles").WithArgs("ADMIN").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))
	mock.ExpectQuery("insert into users").
		WithArgs("ada@example.com", "+33612345678", "Ada", "Martin", "$2a$10$hash").
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation, ConstraintName: "users_phone_key"})
	mock.ExpectRollback()

	_, err := store.CreateUserWithCompany(context.Background(), sampleNewUser())
	if !errors.Is(err, identity.ErrDuplicateIdentity) {
		t.Fatalf("expected ErrDuplicateIdentity, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func userRow(now time.Time) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "email", "phone", "first_name", "last_name", "password_hash", "company_id", "created_at", "updated_at"}).
		AddRow(int64(10), "ada@example.com", "+33612345678", "Ada", "Martin", "$2a$10$hash", int64(20), now, now)
}

func TestFindUserByEmail(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery("from users u").WithArgs("ada@example.com").WillReturnRows(userRow(now))
	mock.ExpectQuery("from roles r").WithArgs(int64(10)).WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("ADMIN"))

	user, err := store.FindUser(context.Background(), identity.Identity{Email: "ada@example.com"})
	if err != nil {
		t.Fatalf("FindUser: %v", err)
	}
	if user.ID != 10 || user.CompanyID != 20 {
		t.Fatalf("unexpected user: %+v", user)
	}
	if len(user.Roles) != 1 || user.Roles[0] != identity.RoleAdmin {
		t.Fatalf("roles not loaded: %+v", user.Roles)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestFindUserByID(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery("from users u").WithArgs(int64(10)).WillReturnRows(userRow(now))
	mock.ExpectQuery("from roles r").WithArgs(int64(10)).WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("ADMIN"))

	user, err := store.FindUser(context.Background(), identity.Identity{ID: 10})
	if err != nil {
		t.Fatalf("FindUser: %v", err)
	}
	if user.Email != "ada@example.com" {
		t.Fatalf("unexpected user: %+v", user)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestFindUserNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("from users u").WithArgs("ghost@example.com").WillReturnError(sql.ErrNoRows)

	_, err := store.FindUser(context.Background(), identity.Identity{Email: "ghost@example.com"})
	if !errors.Is(err, identity.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestFindCompany(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery("from companies").WithArgs(int64(20)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "name", "siret", "address", "share_capital", "legal_form", "created_at", "updated_at"}).
			AddRow(int64(20), int64(10), "Martin Conseil", "84235017600012", "", "", "", now, now))

	company, err := store.FindCompany(context.Background(), 20)
	if err != nil {
		t.Fatalf("FindCompany: %v", err)
	}
	if company.OwnerID != 10 || company.Name != "Martin Conseil" {
		t.Fatalf("unexpected company: %+v", company)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpdateUserWithCompany(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery("for update of u").WithArgs(int64(10)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "id"}).AddRow(int64(10), int64(20)))
	mock.ExpectExec("update users set").WithArgs("Adeline", int64(10)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("update companies set").WithArgs("Martin & Fils", int64(20)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectQuery("from users u").WithArgs(int64(10)).WillReturnRows(userRow(now))
	mock.ExpectQuery("from roles r").WithArgs(int64(10)).WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("ADMIN"))

	first := "Adeline"
	companyName := "Martin & Fils"
	_, err := store.UpdateUserWithCompany(context.Background(), identity.Identity{ID: 10}, identity.UserUpdate{
		FirstName: &first,
		Company:   identity.CompanyUpdate{Name: &companyName},
	})
	if err != nil {
		t.Fatalf("UpdateUserWithCompany: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpdateUserWithCompanyNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("for update of u").WithArgs("ghost@example.com").WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	first := "Adeline"
	_, err := store.UpdateUserWithCompany(context.Background(), identity.Identity{Email: "ghost@example.com"}, identity.UserUpdate{FirstName: &first})
	if !errors.Is(err, identity.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestClassifyConnectionFailure(t *testing.T) {
	err := classify(&pgconn.PgError{Code: "08006"})
	if !errors.Is(err, identity.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if classify(nil) != nil {
		t.Fatalf("nil must stay nil")
	}
	plain := errors.New("boom")
	if classify(plain) != plain {
		t.Fatalf("unrelated errors must pass through")
	}
}
