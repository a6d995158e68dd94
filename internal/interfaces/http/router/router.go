// Package router assembles the versioned HTTP API out of per-domain route groups.
package router

import (
	"net/http"
	"path"

	"github.com/gin-gonic/gin"
)

// RouteRegistrar is anything that can mount itself on a gin group.
type RouteRegistrar interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

// Router owns the /api/<version> group. Middleware added with Use applies to
// that group only, so /health and /metrics on the engine stay unauthenticated.
type Router struct {
	engine    *gin.Engine
	version   string
	chain     []gin.HandlerFunc
	mountable []RouteRegistrar
}

type RouterOption func(*Router)

func WithAPIVersion(version string) RouterOption {
	return func(r *Router) { r.version = version }
}

func NewRouter(engine *gin.Engine, opts ...RouterOption) *Router {
	r := &Router{engine: engine, version: "v1"}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Router) Use(middleware ...gin.HandlerFunc) *Router {
	r.chain = append(r.chain, middleware...)
	return r
}

func (r *Router) Register(registrar RouteRegistrar) *Router {
	r.mountable = append(r.mountable, registrar)
	return r
}

// Setup mounts every registered group. Call it once, after all Register calls.
func (r *Router) Setup() {
	api := r.engine.Group(path.Join("/api", r.version), r.chain...)
	for _, m := range r.mountable {
		m.RegisterRoutes(api)
	}
}

type route struct {
	method   string
	path     string
	handlers []gin.HandlerFunc
}

// DomainGroup is a declarative route tree for one bounded context. Nothing is
// attached to gin until RegisterRoutes runs.
type DomainGroup struct {
	name     string
	prefix   string
	chain    []gin.HandlerFunc
	routes   []route
	children []*DomainGroup
}

func NewDomainGroup(name, prefix string) *DomainGroup {
	return &DomainGroup{name: name, prefix: prefix}
}

func (dg *DomainGroup) Name() string   { return dg.name }
func (dg *DomainGroup) Prefix() string { return dg.prefix }

func (dg *DomainGroup) Use(middleware ...gin.HandlerFunc) *DomainGroup {
	dg.chain = append(dg.chain, middleware...)
	return dg
}

func (dg *DomainGroup) add(method, p string, handlers []gin.HandlerFunc) *DomainGroup {
	dg.routes = append(dg.routes, route{method: method, path: p, handlers: handlers})
	return dg
}

func (dg *DomainGroup) GET(p string, handlers ...gin.HandlerFunc) *DomainGroup {
	return dg.add(http.MethodGet, p, handlers)
}

func (dg *DomainGroup) POST(p string, handlers ...gin.HandlerFunc) *DomainGroup {
	return dg.add(http.MethodPost, p, handlers)
}

func (dg *DomainGroup) PUT(p string, handlers ...gin.HandlerFunc) *DomainGroup {
	return dg.add(http.MethodPut, p, handlers)
}

// Group returns a nested group that inherits this group's middleware.
func (dg *DomainGroup) Group(name, prefix string) *DomainGroup {
	child := NewDomainGroup(name, prefix)
	dg.children = append(dg.children, child)
	return child
}

func (dg *DomainGroup) RegisterRoutes(rg *gin.RouterGroup) {
	g := rg.Group(dg.prefix, dg.chain...)
	for _, rt := range dg.routes {
		g.Handle(rt.method, rt.path, rt.handlers...)
	}
	for _, child := range dg.children {
		child.RegisterRoutes(g)
	}
}

// Routes lists "METHOD /full/path" for the group and its descendants, relative
// to wherever the group is mounted.
func (dg *DomainGroup) Routes() []string {
	return dg.collect("", nil)
}

func (dg *DomainGroup) collect(parent string, out []string) []string {
	base := parent + dg.prefix
	for _, rt := range dg.routes {
		out = append(out, rt.method+" "+base+rt.path)
	}
	for _, child := range dg.children {
		out = child.collect(base, out)
	}
	return out
}
