package validation

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// ValidationResult is the outcome of validating one upstream payload.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

const errorsSchema = `{
	"type": "array",
	"items": {
		"type": "object",
		"required": ["code"],
		"properties": {
			"code": {"type": "string"},
			"message": {"type": "string"}
		}
	}
}`

// ActivitiesPageSchema describes a response of GET /rest/v1/activities.json.
var ActivitiesPageSchema = `{
	"type": "object",
	"required": ["success"],
	"properties": {
		"requestId": {"type": "string"},
		"success": {"type": "boolean"},
		"nextPageToken": {"type": "string"},
		"moreResult": {"type": "boolean"},
		"errors": ` + errorsSchema + `,
		"result": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["id", "leadId", "activityTypeId", "activityDate"],
				"properties": {
					"id": {"type": "integer"},
					"leadId": {"type": "integer"},
					"activityTypeId": {"type": "integer"},
					"activityDate": {"type": "string"},
					"primaryAttributeValueId": {"type": ["integer", "string", "null"]},
					"primaryAttributeValue": {"type": ["string", "number", "boolean", "null"]},
					"attributes": {
						"type": "array",
						"items": {
							"type": "object",
							"required": ["name"],
							"properties": {
								"name": {"type": "string"}
							}
						}
					}
				}
			}
		}
	}
}`

// PagingTokenSchema describes a response of GET /rest/v1/activities/pagingtoken.json.
var PagingTokenSchema = `{
	"type": "object",
	"required": ["success"],
	"properties": {
		"success": {"type": "boolean"},
		"nextPageToken": {"type": "string"},
		"errors": ` + errorsSchema + `
	}
}`

// ActivityTypesSchema describes a response of GET /rest/v1/activities/types.json.
var ActivityTypesSchema = `{
	"type": "object",
	"required": ["success"],
	"properties": {
		"success": {"type": "boolean"},
		"errors": ` + errorsSchema + `,
		"result": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["id", "name"],
				"properties": {
					"id": {"type": "integer"},
					"name": {"type": "string"},
					"description": {"type": "string"}
				}
			}
		}
	}
}`

var (
	activitiesPageLoader = gojsonschema.NewStringLoader(ActivitiesPageSchema)
	pagingTokenLoader    = gojsonschema.NewStringLoader(PagingTokenSchema)
	activityTypesLoader  = gojsonschema.NewStringLoader(ActivityTypesSchema)
)

// ValidateActivitiesPage validates a raw activities page body.
func ValidateActivitiesPage(body []byte) (*ValidationResult, error) {
	return validate(activitiesPageLoader, body)
}

// ValidatePagingToken validates a raw paging token body.
func ValidatePagingToken(body []byte) (*ValidationResult, error) {
	return validate(pagingTokenLoader, body)
}

// ValidateActivityTypes validates a raw activity types body.
func ValidateActivityTypes(body []byte) (*ValidationResult, error) {
	return validate(activityTypesLoader, body)
}

func validate(schema gojsonschema.JSONLoader, body []byte) (*ValidationResult, error) {
	result, err := gojsonschema.Validate(schema, gojsonschema.NewBytesLoader(body))
	if err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}

	vr := &ValidationResult{Valid: result.Valid()}
	for _, desc := range result.Errors() {
		vr.Errors = append(vr.Errors, ValidationError{
			Field:   desc.Field(),
			Message: desc.Description(),
			Code:    desc.Type(),
		})
	}
	return vr, nil
}

func (vr *ValidationResult) GetErrorMessages() []string {
	messages := make([]string, len(vr.Errors))
	for i, err := range vr.Errors {
		messages[i] = fmt.Sprintf("%s: %s", err.Field, err.Message)
	}
	return messages
}

func (vr *ValidationResult) HasErrors(field string) bool {
	for _, err := range vr.Errors {
		if err.Field == field {
			return true
		}
	}
	return false
}
