package handler

import (
	"context"
	"net/http"
)

// Context is the request scope handed to a HandlerFunc.
type Context interface {
	context.Context
	Request() *http.Request
	ResponseWriter() http.ResponseWriter
	Param(key string) string
	SetValue(key, val any)
}

type requestContext struct {
	context.Context
	w http.ResponseWriter
	r *http.Request
}

// NewContext wraps a request and its writer. Values stored with SetValue
// are visible through both the Context and Request().Context().
func NewContext(w http.ResponseWriter, r *http.Request) Context {
	return &requestContext{Context: r.Context(), w: w, r: r}
}

func (c *requestContext) Request() *http.Request              { return c.r }
func (c *requestContext) ResponseWriter() http.ResponseWriter { return c.w }

// Param returns a path wildcard matched by http.ServeMux.
func (c *requestContext) Param(key string) string { return c.r.PathValue(key) }

func (c *requestContext) SetValue(key, val any) {
	c.Context = context.WithValue(c.Context, key, val)
	c.r = c.r.WithContext(c.Context)
}
