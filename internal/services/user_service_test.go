package services

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/campuslib/backend/internal/config"
	"github.com/campuslib/backend/internal/models"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUserServiceMock(t *testing.T) (*UserService, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	paging := &config.CirculationConfig{DefaultPageSize: 10, MaxPageSize: 100}
	return NewUserService(NewPostgresUserStore(db), testAuthConfig(), paging), mock
}

// userRouter mounts the admin user routes the way the server does.
func userRouter(s *UserService) http.Handler {
	r := chi.NewRouter()
	r.Get("/users/me", s.GetMe)
	r.Get("/users", s.ListUsers)
	r.Post("/users", s.CreateUser)
	r.Put("/users/{id}", s.UpdateUser)
	r.Delete("/users/{id}", s.DeleteUser)
	return r
}

func TestUserService_GetMe(t *testing.T) {
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	service, mock := newUserServiceMock(t)
	mock.ExpectQuery("FROM users WHERE id = \\$1").WithArgs("STU-1").
		WillReturnRows(sqlmock.NewRows(userRowColumns).AddRow("STU-1", "Abebe", "abebe", "student", "CS", "active", true, "salt$hash", created))

	r := httptest.NewRequest(http.MethodGet, "/users/me", nil)
	r = r.WithContext(WithClaims(context.Background(), &Claims{UserID: "STU-1"}, "tok"))
	w := httptest.NewRecorder()
	userRouter(service).ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "salt$hash")
	assert.Contains(t, w.Body.String(), `"username":"abebe"`)
}

func TestUserService_ListUsers(t *testing.T) {
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	service, mock := newUserServiceMock(t)
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM users").WithArgs("%abe%", "student").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(11))
	mock.ExpectQuery("FROM users WHERE .* LIMIT \\$3 OFFSET \\$4").WithArgs("%abe%", "student", 10, 10).
		WillReturnRows(sqlmock.NewRows(userRowColumns).AddRow("STU-1", "Abebe", "abebe", "student", "CS", "active", true, "x", created))

	w := httptest.NewRecorder()
	userRouter(service).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/users?page=2&search=abe&role=student", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var page UserPage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	assert.Equal(t, 11, page.Total)
	assert.Equal(t, 2, page.Page)
	assert.Equal(t, 10, page.Limit)
	assert.Len(t, page.Users, 1)
}

func TestUserService_CreateUser(t *testing.T) {
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	payload := func() *bytes.Buffer {
		body, _ := json.Marshal(CreateUserRequest{ID: "STU-2", Name: "Kebede", Username: "kebede", Role: models.RoleStudent})
		return bytes.NewBuffer(body)
	}

	t.Run("provisions with temporary password", func(t *testing.T) {
		service, mock := newUserServiceMock(t)
		mock.ExpectQuery("FROM users WHERE id = \\$1").WithArgs("STU-2").WillReturnError(sql.ErrNoRows)
		mock.ExpectQuery("FROM users WHERE username = \\$1").WithArgs("kebede").WillReturnError(sql.ErrNoRows)
		mock.ExpectQuery("INSERT INTO users").
			WithArgs("STU-2", "Kebede", "kebede", models.RoleStudent, "", models.UserStatusActive, sqlmock.AnyArg(), false).
			WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(created))

		w := httptest.NewRecorder()
		userRouter(service).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/users", payload()))

		require.Equal(t, http.StatusCreated, w.Code)
		var user models.User
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &user))
		assert.Equal(t, models.UserStatusActive, user.Status)
		assert.False(t, user.PasswordChanged)
		assert.NotContains(t, w.Body.String(), "password\":")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("id in use", func(t *testing.T) {
		service, mock := newUserServiceMock(t)
		mock.ExpectQuery("FROM users WHERE id = \\$1").WithArgs("STU-2").
			WillReturnRows(sqlmock.NewRows(userRowColumns).AddRow("STU-2", "Other", "other", "student", "", "active", false, "x", created))

		w := httptest.NewRecorder()
		userRouter(service).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/users", payload()))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.JSONEq(t, `{"message":"ID already in use"}`, w.Body.String())
	})

	t.Run("username taken", func(t *testing.T) {
		service, mock := newUserServiceMock(t)
		mock.ExpectQuery("FROM users WHERE id = \\$1").WithArgs("STU-2").WillReturnError(sql.ErrNoRows)
		mock.ExpectQuery("FROM users WHERE username = \\$1").WithArgs("kebede").
			WillReturnRows(sqlmock.NewRows(userRowColumns).AddRow("STU-9", "Kebede", "kebede", "teacher", "", "active", true, "x", created))

		w := httptest.NewRecorder()
		userRouter(service).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/users", payload()))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.JSONEq(t, `{"message":"Username already taken"}`, w.Body.String())
	})

	t.Run("invalid role", func(t *testing.T) {
		service, _ := newUserServiceMock(t)

		w := httptest.NewRecorder()
		userRouter(service).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/users",
			bytes.NewBufferString(`{"id":"X","name":"Xy","username":"xyz","role":"dean"}`)))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestUserService_UpdateUser(t *testing.T) {
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	adminRow := func() *sqlmock.Rows {
		return sqlmock.NewRows(userRowColumns).AddRow("ADM-1", "Admin", "admin", "admin", "", "active", true, "x", created)
	}
	studentRow := func() *sqlmock.Rows {
		return sqlmock.NewRows(userRowColumns).AddRow("STU-1", "Abebe", "abebe", "student", "CS", "active", true, "x", created)
	}

	t.Run("cannot change admin role", func(t *testing.T) {
		service, mock := newUserServiceMock(t)
		mock.ExpectQuery("FROM users WHERE id = \\$1").WithArgs("ADM-1").WillReturnRows(adminRow())

		w := httptest.NewRecorder()
		userRouter(service).ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/users/ADM-1", bytes.NewBufferString(`{"role":"student"}`)))

		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.JSONEq(t, `{"message":"Cannot change admin role."}`, w.Body.String())
	})

	t.Run("cannot deactivate admin", func(t *testing.T) {
		service, mock := newUserServiceMock(t)
		mock.ExpectQuery("FROM users WHERE id = \\$1").WithArgs("ADM-1").WillReturnRows(adminRow())

		w := httptest.NewRecorder()
		userRouter(service).ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/users/ADM-1", bytes.NewBufferString(`{"status":"deactive"}`)))

		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.JSONEq(t, `{"message":"Cannot deactivate admin account."}`, w.Body.String())
	})

	t.Run("username taken", func(t *testing.T) {
		service, mock := newUserServiceMock(t)
		mock.ExpectQuery("FROM users WHERE id = \\$1").WithArgs("STU-1").WillReturnRows(studentRow())
		mock.ExpectQuery("FROM users WHERE username = \\$1").WithArgs("kebede").
			WillReturnRows(sqlmock.NewRows(userRowColumns).AddRow("STU-2", "Kebede", "kebede", "student", "", "active", true, "x", created))

		w := httptest.NewRecorder()
		userRouter(service).ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/users/STU-1", bytes.NewBufferString(`{"username":"kebede"}`)))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("partial update keeps other fields", func(t *testing.T) {
		service, mock := newUserServiceMock(t)
		mock.ExpectQuery("FROM users WHERE id = \\$1").WithArgs("STU-1").WillReturnRows(studentRow())
		mock.ExpectExec("UPDATE users SET name = \\$2").
			WithArgs("STU-1", "Abebe", "abebe", models.RoleStudent, "CS", models.UserStatusDeactive).
			WillReturnResult(sqlmock.NewResult(0, 1))

		w := httptest.NewRecorder()
		userRouter(service).ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/users/STU-1", bytes.NewBufferString(`{"status":"deactive"}`)))

		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"status":"deactive"`)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown user", func(t *testing.T) {
		service, mock := newUserServiceMock(t)
		mock.ExpectQuery("FROM users WHERE id = \\$1").WithArgs("NOPE").WillReturnError(sql.ErrNoRows)

		w := httptest.NewRecorder()
		userRouter(service).ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/users/NOPE", bytes.NewBufferString(`{}`)))

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestUserService_DeleteUser(t *testing.T) {
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("admin is protected", func(t *testing.T) {
		service, mock := newUserServiceMock(t)
		mock.ExpectQuery("FROM users WHERE id = \\$1").WithArgs("ADM-1").
			WillReturnRows(sqlmock.NewRows(userRowColumns).AddRow("ADM-1", "Admin", "admin", "admin", "", "active", true, "x", created))

		w := httptest.NewRecorder()
		userRouter(service).ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/users/ADM-1", nil))

		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.JSONEq(t, `{"message":"Cannot delete admin account."}`, w.Body.String())
	})

	t.Run("deletes member", func(t *testing.T) {
		service, mock := newUserServiceMock(t)
		mock.ExpectQuery("FROM users WHERE id = \\$1").WithArgs("STU-1").
			WillReturnRows(sqlmock.NewRows(userRowColumns).AddRow("STU-1", "Abebe", "abebe", "student", "", "active", true, "x", created))
		mock.ExpectExec("DELETE FROM users WHERE id = \\$1").WithArgs("STU-1").WillReturnResult(sqlmock.NewResult(0, 1))

		w := httptest.NewRecorder()
		userRouter(service).ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/users/STU-1", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"message":"User deleted successfully"}`, w.Body.String())
	})
}
