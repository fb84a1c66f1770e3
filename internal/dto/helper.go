package dto

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	apperrors "github.com/spanquery/spanquery/internal/pkg/errors"
	"github.com/spanquery/spanquery/internal/validator"
)

// ParseQuery parses the query string into the given struct and validates it.
// Returns a bad request AppError or validator.ValidationErrors.
func ParseQuery(c *fiber.Ctx, v any) error {
	if err := c.QueryParser(v); err != nil {
		return apperrors.BadRequest("invalid query string: " + err.Error())
	}
	return validator.Validate(v)
}

// ParseParams parses route parameters into the given struct and validates it
func ParseParams(c *fiber.Ctx, v any) error {
	if err := c.ParamsParser(v); err != nil {
		return apperrors.BadRequest("invalid path parameters: " + err.Error())
	}
	return validator.Validate(v)
}

// splitList splits a comma separated query value, dropping blanks
func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseUUIDList parses a comma separated list of uuids
func parseUUIDList(field, raw string) ([]uuid.UUID, error) {
	parts := splitList(raw)
	if len(parts) == 0 {
		return nil, nil
	}
	out := make([]uuid.UUID, len(parts))
	for i, p := range parts {
		id, err := uuid.Parse(p)
		if err != nil {
			return nil, apperrors.Validation(field + " must be a list of UUIDs").WithDetail("value", p)
		}
		out[i] = id
	}
	return out, nil
}

// parseOptionalUUID parses an already validated uuid string
func parseOptionalUUID(raw string) *uuid.UUID {
	if raw == "" {
		return nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil
	}
	return &id
}
