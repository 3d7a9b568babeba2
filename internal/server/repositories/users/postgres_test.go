package users

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
)

var userCols = []string{
	"id", "email", "name", "username", "password_hash", "role", "provider", "provider_id",
	"is_email_verified", "profile", "profile_picture", "created_at", "updated_at",
}

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func TestCreate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^\s*INSERT\s+INTO\s+users\s*\(email,.*profile_picture\)\s*VALUES\s*\(\$1,.*\$10\)\s*RETURNING\s+id,\s*created_at,\s*updated_at\s*$`

	now := time.Now()
	mock.ExpectQuery(q).
		WithArgs("alice@example.com", "Alice", "alice", "hash", "user", "password", "", false, sqlmock.AnyArg(), "").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow("42", now, now))

	u := &models.User{
		Email: "  Alice@Example.com", Name: "Alice", Username: "alice", PasswordHash: "hash",
		Role: models.RoleUser, Provider: models.ProviderPassword,
	}
	got, err := repo.Create(context.Background(), u)
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if got.ID != "42" || got.Email != "alice@example.com" || !got.CreatedAt.Equal(now) {
		t.Fatalf("unexpected user: %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreate_UniqueViolation(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)INSERT\s+INTO\s+users`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "users_email_key"})

	_, err := repo.Create(context.Background(), &models.User{Email: "a@b.c"})
	if !errors.Is(err, common.ErrConflict) {
		t.Fatalf("want ErrConflict, got %v", err)
	}
}

func TestCreate_ConflictByIndex(t *testing.T) {
	tests := []struct {
		constraint string
		want       error
		notWant    error
	}{
		{constraint: "users_email_key", want: common.ErrEmailTaken, notWant: common.ErrUsernameTaken},
		{constraint: "users_username_key", want: common.ErrUsernameTaken, notWant: common.ErrEmailTaken},
	}

	for _, tt := range tests {
		t.Run(tt.constraint, func(t *testing.T) {
			repo, mock, db := newRepoWithMock(t)
			defer db.Close()

			mock.ExpectQuery(`(?s)INSERT\s+INTO\s+users`).WillReturnError(&pgconn.PgError{
				Code:           "23505",
				ConstraintName: tt.constraint,
				Message:        `duplicate key value violates unique constraint "` + tt.constraint + `"`,
			})

			_, err := repo.Create(context.Background(), &models.User{Email: "a@b.c", Username: "a"})
			if !errors.Is(err, tt.want) || errors.Is(err, tt.notWant) {
				t.Fatalf("want %v, got %v", tt.want, err)
			}
			if !errors.Is(err, common.ErrConflict) {
				t.Fatalf("want ErrConflict, got %v", err)
			}
			for _, leak := range []string{tt.constraint, "SQLSTATE", "duplicate key"} {
				if strings.Contains(err.Error(), leak) {
					t.Fatalf("error text %q exposes %q", err.Error(), leak)
				}
			}
		})
	}
}

func TestCreate_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)INSERT\s+INTO\s+users`).
		WillReturnError(errors.New("db down"))

	_, err := repo.Create(context.Background(), &models.User{Email: "a@b.c"})
	if err == nil || !regexp.MustCompile(`db error: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
	if errors.Is(err, common.ErrConflict) {
		t.Fatalf("plain db error must not be a conflict")
	}
}

func TestGetByEmail_Found(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^\s*SELECT\s+id,\s*email,.*FROM\s+users\s+WHERE\s+lower\(email\)\s*=\s*\$1\s+AND\s+deleted_at\s+IS\s+NULL$`

	now := time.Now()
	rows := sqlmock.NewRows(userCols).AddRow(
		"u1", "bob@example.com", "Bob", "bob", "hash", "admin", "password", "",
		true, []byte(`{"bio":"hi","gender":"male","links":[{"title":"gh","url":"https://github.com"}]}`), "avatars/u1", now, now,
	)
	mock.ExpectQuery(q).WithArgs("bob@example.com").WillReturnRows(rows)

	got, err := repo.GetByEmail(context.Background(), "BOB@example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != "u1" || got.Role != models.RoleAdmin || !got.IsEmailVerified {
		t.Fatalf("unexpected user: %+v", got)
	}
	if got.Profile.Bio != "hi" || got.Profile.Gender != models.GenderMale || len(got.Profile.Links) != 1 {
		t.Fatalf("unexpected profile: %+v", got.Profile)
	}
}

func TestGetByID_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)FROM\s+users\s+WHERE\s+id\s*=\s*\$1\s+AND\s+deleted_at\s+IS\s+NULL`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
}

var malformedUUID = &pgconn.PgError{
	Code:    "22P02",
	Message: `invalid input syntax for type uuid: "not-a-uuid"`,
}

func TestGetByID_MalformedID(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)FROM\s+users\s+WHERE\s+id\s*=\s*\$1`).
		WithArgs("not-a-uuid").
		WillReturnError(malformedUUID)

	_, err := repo.GetByID(context.Background(), "not-a-uuid")
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
}

func TestGetByUsername_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)FROM\s+users\s+WHERE\s+username\s*=\s*\$1`).
		WithArgs("bob").
		WillReturnError(errors.New("db err"))

	_, err := repo.GetByUsername(context.Background(), "bob")
	if err == nil || !regexp.MustCompile(`db error: .*db err`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestGetByID_BadProfile(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	rows := sqlmock.NewRows(userCols).AddRow(
		"u1", "bob@example.com", "Bob", "bob", "hash", "user", "password", "",
		false, []byte(`{not json`), "", now, now,
	)
	mock.ExpectQuery(`(?s)FROM\s+users\s+WHERE\s+id`).WithArgs("u1").WillReturnRows(rows)

	if _, err := repo.GetByID(context.Background(), "u1"); err == nil {
		t.Fatal("expected profile decode error")
	}
}

func TestUpdate(t *testing.T) {
	q := `(?s)^\s*UPDATE\s+users\s+SET\s+email\s*=\s*\$2,.*WHERE\s+id\s*=\s*\$1\s+AND\s+deleted_at\s+IS\s+NULL\s+RETURNING\s+updated_at\s*$`

	t.Run("ok", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()

		now := time.Now()
		mock.ExpectQuery(q).
			WithArgs("u1", "new@example.com", "New", "new", sqlmock.AnyArg(), "").
			WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(now))

		got, err := repo.Update(context.Background(), &models.User{ID: "u1", Email: "New@example.com", Name: "New", Username: "new"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !got.UpdatedAt.Equal(now) || got.Email != "new@example.com" {
			t.Fatalf("unexpected user: %+v", got)
		}
	})

	t.Run("missing", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()

		mock.ExpectQuery(q).WillReturnError(sql.ErrNoRows)

		_, err := repo.Update(context.Background(), &models.User{ID: "u1"})
		if !errors.Is(err, common.ErrorNotFound) {
			t.Fatalf("want ErrorNotFound, got %v", err)
		}
	})

	t.Run("email taken", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()

		mock.ExpectQuery(q).WillReturnError(&pgconn.PgError{Code: "23505"})

		_, err := repo.Update(context.Background(), &models.User{ID: "u1"})
		if !errors.Is(err, common.ErrConflict) {
			t.Fatalf("want ErrConflict, got %v", err)
		}
	})

	t.Run("malformed id", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()

		mock.ExpectQuery(q).WillReturnError(malformedUUID)

		_, err := repo.Update(context.Background(), &models.User{ID: "not-a-uuid"})
		if !errors.Is(err, common.ErrorNotFound) {
			t.Fatalf("want ErrorNotFound, got %v", err)
		}
	})
}

func TestSingleRowUpdates(t *testing.T) {
	tests := []struct {
		name string
		q    string
		call func(r *PostgresRepository) error
		args []driver.Value
	}{
		{
			name: "UpdatePassword",
			q:    `(?s)UPDATE\s+users\s+SET\s+password_hash\s*=\s*\$2`,
			call: func(r *PostgresRepository) error { return r.UpdatePassword(context.Background(), "u1", "h2") },
			args: []driver.Value{"u1", "h2"},
		},
		{
			name: "SetEmailVerified",
			q:    `(?s)UPDATE\s+users\s+SET\s+is_email_verified\s*=\s*true`,
			call: func(r *PostgresRepository) error { return r.SetEmailVerified(context.Background(), "u1") },
			args: []driver.Value{"u1"},
		},
		{
			name: "SoftDelete",
			q:    `(?s)UPDATE\s+users\s+SET\s+deleted_at\s*=\s*now\(\)`,
			call: func(r *PostgresRepository) error { return r.SoftDelete(context.Background(), "u1") },
			args: []driver.Value{"u1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name+"/ok", func(t *testing.T) {
			repo, mock, db := newRepoWithMock(t)
			defer db.Close()

			mock.ExpectExec(tt.q).WithArgs(tt.args...).WillReturnResult(sqlmock.NewResult(0, 1))
			if err := tt.call(repo); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Fatalf("unmet expectations: %v", err)
			}
		})

		t.Run(tt.name+"/missing", func(t *testing.T) {
			repo, mock, db := newRepoWithMock(t)
			defer db.Close()

			mock.ExpectExec(tt.q).WillReturnResult(sqlmock.NewResult(0, 0))
			if err := tt.call(repo); !errors.Is(err, common.ErrorNotFound) {
				t.Fatalf("want ErrorNotFound, got %v", err)
			}
		})

		t.Run(tt.name+"/db error", func(t *testing.T) {
			repo, mock, db := newRepoWithMock(t)
			defer db.Close()

			mock.ExpectExec(tt.q).WillReturnError(errors.New("db err"))
			err := tt.call(repo)
			if err == nil || !regexp.MustCompile(`db error: .*db err`).MatchString(err.Error()) {
				t.Fatalf("expected wrapped db error, got %v", err)
			}
		})

		t.Run(tt.name+"/malformed id", func(t *testing.T) {
			repo, mock, db := newRepoWithMock(t)
			defer db.Close()

			mock.ExpectExec(tt.q).WillReturnError(malformedUUID)
			if err := tt.call(repo); !errors.Is(err, common.ErrorNotFound) {
				t.Fatalf("want ErrorNotFound, got %v", err)
			}
		})
	}
}

func TestList(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)FROM\s+users\s+WHERE\s+deleted_at\s+IS\s+NULL\s+ORDER\s+BY\s+email\s+DESC,\s*id\s+LIMIT\s+\$1\s+OFFSET\s+\$2$`

	now := time.Now()
	rows := sqlmock.NewRows(append(append([]string{}, userCols...), "count")).
		AddRow("u2", "b@x.io", "B", "b", "h", "user", "password", "", false, []byte(`{}`), "", now, now, 7).
		AddRow("u1", "a@x.io", "A", "a", "h", "user", "password", "", false, []byte(`{}`), "", now, now, 7)
	mock.ExpectQuery(q).WithArgs(2, 4).WillReturnRows(rows)

	got, total, err := repo.List(context.Background(), ListOptions{SortBy: "email", Desc: true, Limit: 2, Offset: 4})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 7 || len(got) != 2 || got[0].ID != "u2" {
		t.Fatalf("unexpected page: total=%d users=%+v", total, got)
	}
}

func TestList_UnknownSortFallsBack(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)ORDER\s+BY\s+created_at\s+ASC,\s*id`
	mock.ExpectQuery(q).WithArgs(10, 0).
		WillReturnRows(sqlmock.NewRows(append(append([]string{}, userCols...), "count")))

	got, total, err := repo.List(context.Background(), ListOptions{SortBy: "password_hash; --", Limit: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 0 || len(got) != 0 {
		t.Fatalf("expected empty page, got %d/%d", len(got), total)
	}
}

func TestList_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)FROM\s+users`).WillReturnError(errors.New("db err"))

	_, _, err := repo.List(context.Background(), ListOptions{Limit: 10})
	if err == nil || !regexp.MustCompile(`db error: .*db err`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}
