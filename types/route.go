package types

import (
	"fmt"
	"strings"
)

// Route is the retrieval/answering strategy chosen for a question.
type Route string

const (
	RouteVectorstore Route = "vectorstore"
	RouteMultiQuery  Route = "multi_query"
	RouteDecompose   Route = "decompose"
	RouteWebSearch   Route = "web_search"
	RouteDirect      Route = "direct"
)

// Routes lists every valid route in declaration order.
var Routes = []Route{RouteVectorstore, RouteMultiQuery, RouteDecompose, RouteWebSearch, RouteDirect}

// Valid reports whether r is one of the five enumerated routes.
func (r Route) Valid() bool {
	switch r {
	case RouteVectorstore, RouteMultiQuery, RouteDecompose, RouteWebSearch, RouteDirect:
		return true
	}
	return false
}

func (r Route) String() string { return string(r) }

// ParseRoute 严格解析路由值，大小写与首尾空白不敏感；未知值返回 ErrRouteInvalid。
func ParseRoute(s string) (Route, error) {
	r := Route(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", NewError(ErrRouteInvalid, fmt.Sprintf("unknown route %q", s))
	}
	return r, nil
}
