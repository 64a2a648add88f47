package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPrincipal_Validate(t *testing.T) {
	tests := []struct {
		name      string
		principal Principal
		wantErr   bool
	}{
		{"plain user", Principal{ID: "u1", Role: RoleUser}, false},
		{"admin with sub-role", Principal{ID: "a1", Role: RoleAdmin, AdminRole: AdminRoleSuperadmin}, false},
		{"admin without sub-role", Principal{ID: "a2", Role: RoleAdmin}, false},
		{"business with advertiser", Principal{ID: "b1", Role: RoleBusiness, AdvertiserID: "adv-7"}, false},
		{"missing id", Principal{Role: RoleUser}, true},
		{"id with colon", Principal{ID: "u:1", Role: RoleUser}, true},
		{"unknown role", Principal{ID: "u1", Role: "root"}, true},
		{"unknown admin role", Principal{ID: "a1", Role: RoleAdmin, AdminRole: "owner"}, true},
		{"admin role on user", Principal{ID: "u1", Role: RoleUser, AdminRole: AdminRoleSupport}, true},
		{"advertiser on admin", Principal{ID: "a1", Role: RoleAdmin, AdvertiserID: "adv"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.principal.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidPrincipal)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestScopeFor(t *testing.T) {
	assert.Equal(t, ScopeAdmin, ScopeFor(RoleAdmin))
	assert.Equal(t, ScopeUser, ScopeFor(RoleUser))
	assert.Equal(t, ScopeUser, ScopeFor(RoleBusiness))
}

func TestSessionFromPrincipal(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.FixedZone("MSK", 3*3600))
	p := Principal{ID: "b1", Email: "b@example.com", Username: "acme", DisplayName: "Acme", Role: RoleBusiness, AdvertiserID: "adv-1"}

	s := SessionFromPrincipal(p, now)

	assert.Equal(t, "adv-1", s.TenantID)
	assert.Equal(t, ScopeUser, s.Scope())
	assert.Equal(t, time.UTC, s.LastActive.Location())
	assert.True(t, Principal{ID: "x", Role: RoleAdmin, AdminRole: AdminRoleSuperadmin}.IsSuperadmin())
	assert.False(t, p.IsSuperadmin())
}
