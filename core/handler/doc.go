// Package handler defines the request handling types shared by the HTTP
// surface: a HandlerFunc returns a Response, and rendering errors go to an
// ErrorHandler so every endpoint reports failures in the same shape.
//
//	mux.Handle("POST /v1/admission/check",
//		handler.Handle(checkHandler(orchestrator), response.JSONErrorHandler))
//
// Handle wires a HandlerFunc into net/http. Middleware, if any, wraps the
// HandlerFunc before the adapter is built.
package handler
