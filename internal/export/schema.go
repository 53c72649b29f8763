package export

import (
	"strconv"
	"strings"
	"time"
)

// Base column names. Every row starts with these five values.
const (
	ColumnActivityID       = "ActivityId"
	ColumnActivityDate     = "ActivityDate"
	ColumnActivityTypeID   = "ActivityTypeId"
	ColumnActivityTypeName = "ActivityTypeName"
	ColumnLeadID           = "LeadId"

	ColumnMail            = "Mail"
	ColumnLinkInMail      = "LinkInMail"
	ColumnWebPage         = "WebPage"
	ColumnLinkOnPage      = "LinkOnPage"
	ColumnQueryParameters = "QueryParameters"
)

// DefaultTrackedField is carried forward when no tracked fields are configured.
const DefaultTrackedField = "Lead Score"

// DefaultTimezone is the zone activity dates are converted to unless configured otherwise.
const DefaultTimezone = "Asia/Tokyo"

// RunConfig is immutable for the duration of one export run.
type RunConfig struct {
	TrackedFields          []string
	IncludeMailActivity    bool
	IncludeWebActivity     bool
	ConvertToLocalTimezone bool
	// Location is the destination zone; nil means DefaultTimezone.
	Location  *time.Location
	SinceDate string // YYYY-MM-DD
}

// Row is one output record. Its length always equals the schema width.
type Row []string

// Schema is the fixed column layout and request set of one run.
type Schema struct {
	Columns         []string
	TrackedFields   []string
	Mail            bool
	Web             bool
	ActivityTypeIDs []ActivityType
}

// BuildSchema computes the output columns and the activity types to request.
func BuildSchema(cfg RunConfig) Schema {
	tracked := cfg.TrackedFields
	if len(tracked) == 0 {
		tracked = []string{DefaultTrackedField}
	}

	columns := []string{ColumnActivityID, ColumnActivityDate, ColumnActivityTypeID, ColumnActivityTypeName, ColumnLeadID}
	columns = append(columns, tracked...)
	types := []ActivityType{NewLead, ChangeDataValue}

	if cfg.IncludeMailActivity {
		columns = append(columns, ColumnMail, ColumnLinkInMail)
		types = append(types, OpenEmail, ClickEmail)
	}
	if cfg.IncludeWebActivity {
		columns = append(columns, ColumnWebPage, ColumnLinkOnPage, ColumnQueryParameters)
		types = append(types, VisitWebpage, ClickLink)
	}

	return Schema{
		Columns:         columns,
		TrackedFields:   append([]string(nil), tracked...),
		Mail:            cfg.IncludeMailActivity,
		Web:             cfg.IncludeWebActivity,
		ActivityTypeIDs: types,
	}
}

// Width is the number of columns in every row.
func (s Schema) Width() int {
	return len(s.Columns)
}

// ActivityTypeIDsParam renders the request set as comma-joined integers.
func (s Schema) ActivityTypeIDsParam() string {
	ids := make([]string, len(s.ActivityTypeIDs))
	for i, t := range s.ActivityTypeIDs {
		ids[i] = strconv.Itoa(int(t))
	}
	return strings.Join(ids, ",")
}

// Requests reports whether t is part of this run's request set.
func (s Schema) Requests(t ActivityType) bool {
	for _, id := range s.ActivityTypeIDs {
		if id == t {
			return true
		}
	}
	return false
}

// Tracks reports whether field is a tracked field.
func (s Schema) Tracks(field string) bool {
	for _, f := range s.TrackedFields {
		if f == field {
			return true
		}
	}
	return false
}
