// Package dto contains the HTTP request and response shapes of the span
// query API.
//
// Requests arrive as path parameters and query strings. ParseParams and
// ParseQuery bind them with fiber's parsers and validate them with
// go-playground/validator before they are converted to engine input:
//
//	var q dto.ListQuery
//	if err := dto.ParseQuery(c, &q); err != nil {
//	    return err
//	}
//	in, err := q.ToListInput(workspaceID)
//
// Responses carry continuation cursors as opaque strings.
package dto
