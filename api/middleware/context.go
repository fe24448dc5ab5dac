package middleware

import "context"

type contextKey string

const ctxAdminSubject contextKey = "admin_subject"

// AdminSubjectFromContext returns the subject of the admin token that
// authenticated the request, if any.
func AdminSubjectFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxAdminSubject).(string); ok {
		return v
	}
	return ""
}
