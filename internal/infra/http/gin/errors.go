package ginserver

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	gin "github.com/gin-gonic/gin"

	"slotkeeper/internal/app/middleware"
	"slotkeeper/internal/app/policies"
	"slotkeeper/internal/domain/shared/errs"
)

var errIdentityRequired = errors.New("identity required")

// respondError maps the error taxonomy onto HTTP statuses.
func respondError(c *gin.Context, logger *slog.Logger, err error) {
	status := statusFor(err)
	body := gin.H{"error": err.Error(), "kind": errs.Kind(err)}

	var conflict *errs.ConflictError
	if errors.As(err, &conflict) {
		reasons := make([]string, 0, len(conflict.Reasons))
		for _, r := range conflict.Reasons {
			reasons = append(reasons, string(r))
		}
		body["reasons"] = reasons
		if len(conflict.ConflictingIDs) > 0 {
			body["conflicting_ids"] = conflict.ConflictingIDs
		}
	}
	var verr *errs.ValidationError
	if errors.As(err, &verr) && verr.HasErrors() {
		body["fields"] = verr.FieldErrors
	}

	if status >= http.StatusInternalServerError && logger != nil {
		logger.ErrorContext(c.Request.Context(), "request failed", "path", c.FullPath(), "status", status, "error", err)
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, body)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, policies.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, errIdentityRequired):
		return http.StatusUnauthorized
	case errors.Is(err, middleware.ErrIdempotencyKeyReused):
		return http.StatusUnprocessableEntity
	}
	switch errs.Kind(err) {
	case "validation":
		return http.StatusBadRequest
	case "not_found":
		return http.StatusNotFound
	case "conflict", "invalid_state", "concurrent_update":
		return http.StatusConflict
	case "deadline_expired":
		return http.StatusGone
	}
	return http.StatusInternalServerError
}

func badRequest(c *gin.Context, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error(), "kind": "validation"})
}

// parseTime accepts RFC 3339 timestamps and bare dates (midnight UTC).
func parseTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%q is not an RFC 3339 time or a date", raw)
}

// queryRange reads a [from, to) pair from the query string.
func queryRange(c *gin.Context, fromKey, toKey string) (time.Time, time.Time, error) {
	from, err := parseTime(c.Query(fromKey))
	if err != nil {
		return time.Time{}, time.Time{}, errs.Invalid(fromKey, err.Error())
	}
	to, err := parseTime(c.Query(toKey))
	if err != nil {
		return time.Time{}, time.Time{}, errs.Invalid(toKey, err.Error())
	}
	return from, to, nil
}

func queryInt(c *gin.Context, key string) (int, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errs.Invalid(key, "must be an integer")
	}
	return n, nil
}

func queryList(c *gin.Context, key string) []string {
	var out []string
	for _, v := range c.QueryArray(key) {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// requesterOf prefers an explicit id, then the forwarded caller.
func requesterOf(c *gin.Context, explicitID, explicitClass string) (string, string, error) {
	id, class := strings.TrimSpace(explicitID), strings.TrimSpace(explicitClass)
	if caller, ok := currentIdentity(c); ok {
		if id == "" {
			id = caller.ID
		}
		if class == "" && id == caller.ID {
			class = caller.PriorityClass
		}
	}
	if id == "" {
		return "", "", errIdentityRequired
	}
	return id, class, nil
}
