package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xnom/internal/model"
	"xnom/internal/store/sqlite"
)

func TestIssueAndVerify(t *testing.T) {
	iss, err := NewIssuer("s3cret", time.Hour)
	require.NoError(t, err)
	tok, err := iss.Issue(model.Account{ID: "acc1", XUserID: "x1", Username: "ann"})
	require.NoError(t, err)

	c, err := iss.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "acc1", c.UserID)
	assert.Equal(t, "ann", c.Username)

	other, err := NewIssuer("different", time.Hour)
	require.NoError(t, err)
	_, err = other.Verify(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestExpiredTokenRejected(t *testing.T) {
	iss, err := NewIssuer("s3cret", time.Minute)
	require.NoError(t, err)
	iss.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	tok, err := iss.Issue(model.Account{ID: "a"})
	require.NoError(t, err)
	_, err = iss.Verify(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestEmptySecret(t *testing.T) {
	_, err := NewIssuer("", time.Hour)
	assert.Error(t, err)
}

func TestMiddleware(t *testing.T) {
	iss, err := NewIssuer("s3cret", time.Hour)
	require.NoError(t, err)
	tok, err := iss.Issue(model.Account{ID: "acc1", Username: "ann"})
	require.NoError(t, err)

	h := iss.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, ok := FromContext(r.Context())
		if !ok {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(c.Username))
	}))

	cases := []struct {
		name   string
		setup  func(*http.Request)
		status int
	}{
		{"none", func(*http.Request) {}, http.StatusUnauthorized},
		{"garbage", func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }, http.StatusUnauthorized},
		{"header", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+tok) }, http.StatusOK},
		{"query", func(r *http.Request) { r.URL.RawQuery = "token=" + tok }, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/x", nil)
			tc.setup(req)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tc.status, rec.Code)
			if tc.status == http.StatusOK {
				assert.Equal(t, "ann", rec.Body.String())
			} else {
				assert.Contains(t, rec.Body.String(), `"success":false`)
			}
		})
	}
}

func TestEnsureAccountUpserts(t *testing.T) {
	db, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	a, err := EnsureAccount(ctx, db, model.User{ID: "x1", Username: "ann"}, now)
	require.NoError(t, err)
	b, err := EnsureAccount(ctx, db, model.User{ID: "x1", Username: "ann2", Name: "Ann"}, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, a.ID, b.ID)
	assert.Equal(t, "ann2", b.Username)
	assert.Equal(t, "Ann", b.DisplayName)

	_, err = EnsureAccount(ctx, db, model.User{}, now)
	assert.Error(t, err)
}
