// Package response builds handler.Response values for the HTTP surface:
// plain text and JSON bodies, header decorators, and HTTPError with the
// error handlers that render it.
//
// Handlers return errors through Error and let the route's ErrorHandler
// decide the shape:
//
//	func lookup(ctx handler.Context) handler.Response {
//		if ctx.Param("id") == "" {
//			return response.Error(response.ErrBadRequest.WithMessage("id is required"))
//		}
//		return response.JSON(result)
//	}
//
// Errors that are not an HTTPError keep their status when they implement
// StatusCode() int and otherwise become 500 with the cause under
// details["cause"].
package response
