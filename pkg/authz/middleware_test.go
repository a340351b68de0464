package authz_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/authzkit/pkg/authz"
	"github.com/dmitrymomot/authzkit/pkg/permcache"
)

func testHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}

func doRequest(t *testing.T, handler http.Handler, principal *authz.Principal) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/posts/1", nil)
	if principal != nil {
		req = req.WithContext(authz.WithPrincipal(req.Context(), principal))
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestRequirePermission(t *testing.T) {
	registrar, _ := seededRegistrar(t)
	checker := authz.NewChecker(registrar)

	guard := authz.RequirePermission(checker, "posts.edit|posts.delete", "web")
	handler := guard(testHandler())

	t.Run("granted passes through", func(t *testing.T) {
		principal := &authz.Principal{ID: "u1", Guard: "web", Roles: []string{"editor"}}
		rec := doRequest(t, handler, principal)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "ok", rec.Body.String())
	})

	t.Run("missing principal gets 401", func(t *testing.T) {
		rec := doRequest(t, handler, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("wrong guard gets 401", func(t *testing.T) {
		principal := &authz.Principal{ID: "u1", Guard: "api", Roles: []string{"editor"}}
		rec := doRequest(t, handler, principal)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("lacking permission gets 403", func(t *testing.T) {
		principal := &authz.Principal{ID: "u2", Guard: "web", Roles: []string{"billing"}}
		rec := doRequest(t, handler, principal)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.NotContains(t, rec.Body.String(), "posts.edit",
			"checked permission names stay out of the response body")
	})
}

func TestRequirePermission_PipeAlternatives(t *testing.T) {
	ctx := context.Background()

	manager := &permcache.Role{ID: uuid.New(), Name: "manager", Guard: "web"}
	source := permcache.NewMemorySource([]permcache.Permission{
		{ID: uuid.New(), Name: "posts.delete", Guard: "web", Roles: []*permcache.Role{manager}},
	})
	registrar := permcache.NewRegistrar(permcache.NewMemoryStore(), source)
	_, err := registrar.GetPermissions(ctx, nil)
	require.NoError(t, err)

	checker := authz.NewChecker(registrar)
	guard := authz.RequirePermission(checker, "posts.edit|posts.delete", "web")
	handler := guard(testHandler())

	// The principal only holds the second alternative.
	principal := &authz.Principal{ID: "u1", Guard: "web", Roles: []string{"manager"}}
	rec := doRequest(t, handler, principal)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequirePermission_CustomErrorHandler(t *testing.T) {
	registrar, _ := seededRegistrar(t)
	checker := authz.NewChecker(registrar)

	var capturedErr error
	guard := authz.RequirePermission(checker, "posts.edit", "web",
		authz.WithErrorHandler(func(w http.ResponseWriter, r *http.Request, err error) {
			capturedErr = err
			w.WriteHeader(http.StatusTeapot)
		}))
	handler := guard(testHandler())

	rec := doRequest(t, handler, nil)
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.ErrorIs(t, capturedErr, authz.ErrUnauthenticated)
}

func TestRequirePermission_FailsClosedOnError(t *testing.T) {
	registrar := permcache.NewRegistrar(permcache.NewMemoryStore(), brokenSource{})
	checker := authz.NewChecker(registrar)

	guard := authz.RequirePermission(checker, "posts.edit", "web")
	handler := guard(testHandler())

	principal := &authz.Principal{ID: "u1", Guard: "web", Roles: []string{"editor"}}
	rec := doRequest(t, handler, principal)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
