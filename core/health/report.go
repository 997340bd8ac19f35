package health

import (
	"context"
	"time"

	"github.com/eduplatform/gatekeeper/core/handler"
	"github.com/eduplatform/gatekeeper/core/response"
)

// Section is one named part of a Report.
type Section struct {
	Name    string
	Collect func(context.Context) any
}

// Report serves a JSON object with one key per section plus a "timestamp".
// Sections are collected on every request and the result is never cached.
func Report(sections ...Section) handler.HandlerFunc {
	return func(ctx handler.Context) handler.Response {
		doc := make(map[string]any, len(sections)+1)
		for _, s := range sections {
			doc[s.Name] = s.Collect(ctx)
		}
		doc["timestamp"] = time.Now().UTC().Format(time.RFC3339)

		return response.WithCache(response.JSON(doc), 0)
	}
}
