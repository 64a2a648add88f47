package domain

import (
	"fmt"
	"strings"
	"time"
)

// Role роль субъекта. Неизменна в пределах жизни токена.
type Role string

const (
	RoleUser     Role = "user"
	RoleAdmin    Role = "admin"
	RoleBusiness Role = "business"
)

// Valid проверяет, что роль известна
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin, RoleBusiness:
		return true
	}
	return false
}

// AdminRole под-роль администратора
type AdminRole string

const (
	AdminRoleSupport    AdminRole = "support"
	AdminRoleAdsManager AdminRole = "ads_manager"
	AdminRoleSuperadmin AdminRole = "superadmin"
)

// Valid проверяет, что под-роль известна
func (r AdminRole) Valid() bool {
	switch r {
	case AdminRoleSupport, AdminRoleAdsManager, AdminRoleSuperadmin:
		return true
	}
	return false
}

// Principal субъект, для которого выпускается токен.
// Общая часть заполняется для всех ролей, AdminRole допустима только для admin,
// AdvertiserID только для business.
type Principal struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Username     string    `json:"username"`
	DisplayName  string    `json:"displayName,omitempty"`
	Role         Role      `json:"role"`
	AdminRole    AdminRole `json:"adminRole,omitempty"`
	AdvertiserID string    `json:"advertiserId,omitempty"`
}

// Validate проверяет согласованность полей субъекта
func (p Principal) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidPrincipal)
	}
	if strings.ContainsAny(p.ID, ":*?[] \t\r\n") {
		return fmt.Errorf("%w: id contains forbidden characters", ErrInvalidPrincipal)
	}
	if !p.Role.Valid() {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidPrincipal, p.Role)
	}

	switch p.Role {
	case RoleAdmin:
		if p.AdminRole != "" && !p.AdminRole.Valid() {
			return fmt.Errorf("%w: unknown admin role %q", ErrInvalidPrincipal, p.AdminRole)
		}
	default:
		if p.AdminRole != "" {
			return fmt.Errorf("%w: adminRole is only allowed for role admin", ErrInvalidPrincipal)
		}
	}

	if p.AdvertiserID != "" && p.Role != RoleBusiness {
		return fmt.Errorf("%w: advertiserId is only allowed for role business", ErrInvalidPrincipal)
	}

	return nil
}

// IsSuperadmin сообщает, что субъект является суперадминистратором
func (p Principal) IsSuperadmin() bool {
	return p.Role == RoleAdmin && p.AdminRole == AdminRoleSuperadmin
}

// SessionScope пространство ключей сессии: администраторы хранятся отдельно от остальных
type SessionScope string

const (
	ScopeUser  SessionScope = "user"
	ScopeAdmin SessionScope = "admin"
)

// ScopeFor возвращает пространство сессии для роли
func ScopeFor(role Role) SessionScope {
	if role == RoleAdmin {
		return ScopeAdmin
	}
	return ScopeUser
}

// Session денормализованная запись о субъекте. Это кэш, а не граница безопасности.
type Session struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	Username    string    `json:"username"`
	DisplayName string    `json:"displayName"`
	Role        Role      `json:"role"`
	AdminRole   AdminRole `json:"adminRole,omitempty"`
	TenantID    string    `json:"tenantId,omitempty"`
	LastActive  time.Time `json:"lastActive"`
}

// SessionFromPrincipal строит запись сессии для субъекта
func SessionFromPrincipal(p Principal, now time.Time) Session {
	return Session{
		ID:          p.ID,
		Email:       p.Email,
		Username:    p.Username,
		DisplayName: p.DisplayName,
		Role:        p.Role,
		AdminRole:   p.AdminRole,
		TenantID:    p.AdvertiserID,
		LastActive:  now.UTC(),
	}
}

// Scope возвращает пространство ключей сессии
func (s Session) Scope() SessionScope {
	return ScopeFor(s.Role)
}

// BlacklistStats сводка по черному списку
type BlacklistStats struct {
	Total             int    `json:"total"`
	ExpiringSoon      int    `json:"expiringSoon"`
	ApproxMemoryBytes int64  `json:"approxMemoryBytes"`
	ApproxMemory      string `json:"approxMemory"`
}

// ActionType тип административного действия
type ActionType string

const (
	ActionViewStats      ActionType = "view_stats"
	ActionBlacklistToken ActionType = "blacklist_token"
	ActionBlacklistUser  ActionType = "blacklist_user_tokens"
	ActionUnblacklist    ActionType = "unblacklist_token"
	ActionLogout         ActionType = "logout"
)

// AdminAction запись о действии администратора
type AdminAction struct {
	ID          string     `json:"id"`
	Type        ActionType `json:"type"`
	PerformedBy string     `json:"performedBy"`
	Target      string     `json:"target,omitempty"`
	Reason      string     `json:"reason,omitempty"`
	Result      string     `json:"result,omitempty"`
	Count       int        `json:"count,omitempty"`
	Timestamp   time.Time  `json:"timestamp"`
}
