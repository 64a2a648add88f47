package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AuthCorePlatform/pkg/config"
	"AuthCorePlatform/services/auth-core/internal/domain"
)

func newTestRouter() *Router {
	return NewRouter(config.Default().Gateway)
}

func TestClassify(t *testing.T) {
	r := newTestRouter()

	tests := []struct {
		path      string
		kind      Kind
		namespace string
		locale    string
	}{
		{"/_next/static/chunk.js", Bypass, "", ""},
		{"/favicon.ico", Bypass, "", ""},
		{"/images/logo.png", Bypass, "", ""},
		{"/api/boards", Bypass, "", ""},
		{"/admin/auth/blacklist-stats", Bypass, "", ""},
		{"/health", Bypass, "", ""},
		{"/login", Public, "user", ""},
		{"/ru/register", Public, "user", "ru"},
		{"/admin/login", Public, "admin", ""},
		{"/business/forgot-password", Public, "business", ""},
		{"/dashboard", Protected, "user", ""},
		{"/en/boards/42", Protected, "user", "en"},
		{"/admin", Protected, "admin", ""},
		{"/admin/users", Protected, "admin", ""},
		{"/business/campaigns", Protected, "business", ""},
		{"/administrator", Locale, "", ""},
		{"/", Locale, "", ""},
		{"/ru/about", Locale, "", "ru"},
		{"/de/dashboard", Locale, "", ""},
		{"/api/../admin/users", Protected, "admin", ""},
		{"/admin/auth/../users", Protected, "admin", ""},
		{"/_next/../dashboard", Protected, "user", ""},
		{"/ru/./api/../dashboard", Protected, "user", "ru"},
		{"//admin//users", Protected, "admin", ""},
		{"/login/../admin", Protected, "admin", ""},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			route := r.Classify(tt.path)
			assert.Equal(t, tt.kind, route.Kind, route.Kind.String())
			assert.Equal(t, tt.locale, route.Locale)
			if tt.namespace == "" {
				assert.Nil(t, route.Namespace)
			} else {
				require.NotNil(t, route.Namespace)
				assert.Equal(t, tt.namespace, route.Namespace.Name)
			}
		})
	}
}

func TestCanonical(t *testing.T) {
	tests := map[string]string{
		"":                      "/",
		"/":                     "/",
		"/dashboard":            "/dashboard",
		"/dashboard/":           "/dashboard/",
		"/api/../admin/users":   "/admin/users",
		"/admin/auth/../users/": "/admin/users/",
		"/_next/./../dashboard": "/dashboard",
		"//evil.example/x":      "/evil.example/x",
		"/../../etc":            "/etc",
		"boards":                "/boards",
	}

	for in, want := range tests {
		assert.Equal(t, want, Canonical(in), in)
	}
}

func TestRoute_URLs(t *testing.T) {
	r := newTestRouter()

	route := r.Classify("/ru/business/campaigns")
	assert.Equal(t, "/ru/business/login", route.LoginURL())
	assert.Equal(t, "/ru/unauthorized", route.UnauthorizedURL())
	assert.Equal(t, "business", route.NamespaceName())

	assert.Equal(t, "/admin/login", r.Classify("/admin/settings").LoginURL())
	assert.Equal(t, "none", r.Classify("/about").NamespaceName())
}

func TestPermitted(t *testing.T) {
	r := newTestRouter()

	user := &domain.Principal{ID: "u1", Role: domain.RoleUser}
	admin := &domain.Principal{ID: "a1", Role: domain.RoleAdmin}
	business := &domain.Principal{ID: "b1", Role: domain.RoleBusiness}

	assert.True(t, r.Permitted("/about", nil))
	assert.True(t, r.Permitted("/admin/login", nil))
	assert.False(t, r.Permitted("/dashboard", nil))

	assert.True(t, r.Permitted("/dashboard", user))
	assert.True(t, r.Permitted("/dashboard", business))

	assert.True(t, r.Permitted("/admin/users", admin))
	assert.False(t, r.Permitted("/admin/users", business))
	assert.False(t, r.Permitted("/admin/users", user))

	assert.True(t, r.Permitted("/business/campaigns", business))
	assert.False(t, r.Permitted("/business/campaigns", admin))
}
