package marketo

import (
	"bytes"
	"encoding/json"
	"fmt"

	"activity-export/internal/common/errors"
)

// Value is a scalar upstream value rendered as text. Strings, numbers and booleans
// are accepted; null decodes to the empty string.
type Value string

func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*v = ""
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = Value(s)
	case '{', '[':
		return fmt.Errorf("marketo: expected scalar value, got %s", string(data))
	default:
		// numbers keep their literal form, so 42 stays "42" rather than "42.0"
		*v = Value(data)
	}
	return nil
}

func (v Value) String() string {
	return string(v)
}

// Attribute is one name/value pair attached to an activity.
type Attribute struct {
	Name  string `json:"name"`
	Value Value  `json:"value"`
}

// ActivityRecord is one event on one lead, as returned by the activities endpoint.
type ActivityRecord struct {
	ID                    int64       `json:"id"`
	MarketoGUID           string      `json:"marketoGUID,omitempty"`
	LeadID                int64       `json:"leadId"`
	ActivityTypeID        int         `json:"activityTypeId"`
	ActivityDate          string      `json:"activityDate"`
	PrimaryAttributeValue Value       `json:"primaryAttributeValue"`
	Attributes            []Attribute `json:"attributes"`
}

// Attribute returns the value of the first attribute with the given name.
func (r *ActivityRecord) Attribute(name string) (string, bool) {
	for _, a := range r.Attributes {
		if a.Name == name {
			return a.Value.String(), true
		}
	}
	return "", false
}

// ActivityPage is one page of GET /rest/v1/activities.json.
// Result is nil when the response carried no result section.
type ActivityPage struct {
	RequestID     string            `json:"requestId"`
	Success       bool              `json:"success"`
	Errors        []errors.APIError `json:"errors,omitempty"`
	Result        []ActivityRecord  `json:"result"`
	NextPageToken string            `json:"nextPageToken"`
	MoreResult    bool              `json:"moreResult"`
}

// PagingTokenResponse is the body of GET /rest/v1/activities/pagingtoken.json.
type PagingTokenResponse struct {
	RequestID     string            `json:"requestId"`
	Success       bool              `json:"success"`
	Errors        []errors.APIError `json:"errors,omitempty"`
	NextPageToken string            `json:"nextPageToken"`
}

// ActivityType describes one activity type defined on the instance.
type ActivityType struct {
	ID               int    `json:"id"`
	Name             string `json:"name"`
	Description      string `json:"description"`
	PrimaryAttribute *struct {
		Name     string `json:"name"`
		DataType string `json:"dataType"`
	} `json:"primaryAttribute,omitempty"`
}

// ActivityTypesResponse is the body of GET /rest/v1/activities/types.json.
type ActivityTypesResponse struct {
	RequestID string            `json:"requestId"`
	Success   bool              `json:"success"`
	Errors    []errors.APIError `json:"errors,omitempty"`
	Result    []ActivityType    `json:"result"`
}
