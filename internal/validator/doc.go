// Package validator validates request parameters before they reach the
// query engine.
//
// It wraps go-playground/validator and reports failures under the name the
// caller used (the query, params or json tag), with human-readable messages:
//
//	if err := validator.Validate(req); err != nil {
//	    // err is a validator.ValidationErrors
//	}
//
// The validator instance is package-level and safe for concurrent use.
package validator
