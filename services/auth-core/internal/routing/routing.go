// Package routing классифицирует пути запросов и определяет пространство маршрутов,
// к которому они относятся.
package routing

import (
	"path"
	"sort"
	"strings"

	"AuthCorePlatform/pkg/config"
	"AuthCorePlatform/services/auth-core/internal/domain"
)

// Kind результат классификации пути
type Kind int

const (
	// Bypass статические файлы и API, аутентификация не выполняется
	Bypass Kind = iota
	// Public публичные страницы пространства (вход, регистрация)
	Public
	// Protected страницы, требующие токен
	Protected
	// Locale прочие страницы, только определение локали
	Locale
)

// String возвращает название класса
func (k Kind) String() string {
	switch k {
	case Bypass:
		return "bypass"
	case Public:
		return "public"
	case Protected:
		return "protected"
	default:
		return "locale"
	}
}

// Namespace пространство маршрутов
type Namespace struct {
	Name             string
	Prefixes         []string
	LoginPath        string
	UnauthorizedPath string
	PublicPaths      []string
	RequiredRole     domain.Role
}

// Allows сообщает, допускает ли пространство роль
func (n *Namespace) Allows(role domain.Role) bool {
	return n.RequiredRole == "" || n.RequiredRole == role
}

// Route результат классификации
type Route struct {
	Kind      Kind
	Namespace *Namespace
	// Locale префикс локали, если путь его содержит
	Locale string
	// Path путь без префикса локали
	Path string
}

type prefixEntry struct {
	prefix    string
	namespace *Namespace
}

// Router классификатор путей
type Router struct {
	namespaces       []*Namespace
	prefixes         []prefixEntry
	staticPrefixes   []string
	staticExtensions map[string]struct{}
	bypassPrefixes   []string
	locales          map[string]struct{}
}

// NewRouter строит классификатор из конфигурации шлюза
func NewRouter(cfg config.GatewayConfig) *Router {
	r := &Router{
		staticPrefixes:   cfg.StaticPrefixes,
		staticExtensions: make(map[string]struct{}, len(cfg.StaticExtensions)),
		bypassPrefixes:   cfg.BypassPrefixes,
		locales:          make(map[string]struct{}, len(cfg.Locales)),
	}
	for _, ext := range cfg.StaticExtensions {
		r.staticExtensions[strings.ToLower(ext)] = struct{}{}
	}
	for _, locale := range cfg.Locales {
		r.locales[locale] = struct{}{}
	}

	for _, nc := range cfg.Namespaces {
		ns := &Namespace{
			Name:             nc.Name,
			Prefixes:         nc.Prefixes,
			LoginPath:        nc.LoginPath,
			UnauthorizedPath: nc.UnauthorizedPath,
			PublicPaths:      nc.PublicPaths,
			RequiredRole:     domain.Role(nc.RequiredRole),
		}
		r.namespaces = append(r.namespaces, ns)
		for _, p := range nc.Prefixes {
			r.prefixes = append(r.prefixes, prefixEntry{prefix: p, namespace: ns})
		}
	}

	// Самый длинный префикс выигрывает
	sort.SliceStable(r.prefixes, func(i, j int) bool {
		return len(r.prefixes[i].prefix) > len(r.prefixes[j].prefix)
	})

	return r
}

// Namespaces возвращает пространства в порядке конфигурации
func (r *Router) Namespaces() []*Namespace {
	return r.namespaces
}

// under проверяет, что p равен prefix или лежит под ним
func under(p, prefix string) bool {
	if p == prefix {
		return true
	}
	if strings.HasSuffix(prefix, "/") {
		return strings.HasPrefix(p, prefix)
	}
	return strings.HasPrefix(p, prefix+"/")
}

// Canonical убирает точечные сегменты и повторные слэши, сохраняя завершающий слэш
func Canonical(p string) string {
	cleaned := path.Clean("/" + p)
	if strings.HasSuffix(p, "/") && cleaned != "/" {
		cleaned += "/"
	}
	return cleaned
}

// Classify определяет класс пути. Путь предварительно приводится к каноническому виду.
func (r *Router) Classify(p string) Route {
	p = Canonical(p)

	if r.isStatic(p) {
		return Route{Kind: Bypass, Path: p}
	}
	for _, prefix := range r.bypassPrefixes {
		if strings.HasPrefix(p, prefix) {
			return Route{Kind: Bypass, Path: p}
		}
	}

	locale, rest := r.splitLocale(p)
	route := Route{Locale: locale, Path: rest}

	for _, ns := range r.namespaces {
		for _, public := range ns.PublicPaths {
			if under(rest, public) {
				route.Kind = Public
				route.Namespace = ns
				return route
			}
		}
	}

	if ns := r.NamespaceFor(rest); ns != nil {
		route.Kind = Protected
		route.Namespace = ns
		return route
	}

	route.Kind = Locale
	return route
}

// NamespaceFor возвращает пространство, которому принадлежит путь без префикса локали
func (r *Router) NamespaceFor(p string) *Namespace {
	for _, entry := range r.prefixes {
		if under(p, entry.prefix) {
			return entry.namespace
		}
	}
	return nil
}

func (r *Router) isStatic(p string) bool {
	for _, prefix := range r.staticPrefixes {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	if ext := path.Ext(p); ext != "" {
		_, ok := r.staticExtensions[strings.ToLower(ext)]
		return ok
	}
	return false
}

func (r *Router) splitLocale(p string) (string, string) {
	trimmed := strings.TrimPrefix(p, "/")
	segment, rest, _ := strings.Cut(trimmed, "/")
	if _, ok := r.locales[segment]; !ok {
		return "", p
	}
	return segment, "/" + rest
}

// Permitted сообщает, разрешен ли путь субъекту.
// Публичные и непривязанные к пространству пути разрешены всем, защищенные требуют субъекта
// с подходящей ролью.
func (r *Router) Permitted(p string, principal *domain.Principal) bool {
	route := r.Classify(p)
	if route.Kind != Protected {
		return true
	}
	if principal == nil {
		return false
	}
	return route.Namespace.Allows(principal.Role)
}

// LoginURL возвращает адрес входа с учетом локали
func (rt Route) LoginURL() string {
	return rt.localized(rt.Namespace.LoginPath)
}

// UnauthorizedURL возвращает адрес страницы отказа с учетом локали
func (rt Route) UnauthorizedURL() string {
	return rt.localized(rt.Namespace.UnauthorizedPath)
}

func (rt Route) localized(p string) string {
	if rt.Locale == "" {
		return p
	}
	return "/" + rt.Locale + p
}

// NamespaceName возвращает имя пространства или "none"
func (rt Route) NamespaceName() string {
	if rt.Namespace == nil {
		return "none"
	}
	return rt.Namespace.Name
}
