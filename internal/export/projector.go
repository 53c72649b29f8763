package export

import (
	"strconv"
	"time"

	"activity-export/internal/common/errors"
	"activity-export/internal/common/marketo"
)

// Attribute names read from activity records.
const (
	attrNewValue        = "New Value"
	attrLink            = "Link"
	attrQueryParameters = "Query Parameters"
)

// Projector turns activity records into rows, mutating lead state as it goes.
type Projector struct {
	schema Schema
	state  *LeadState
	loc    *time.Location
}

// NewProjector returns a projector for schema. cfg.Location is only used when
// cfg.ConvertToLocalTimezone is set.
func NewProjector(schema Schema, state *LeadState, cfg RunConfig) (*Projector, error) {
	p := &Projector{schema: schema, state: state}
	if cfg.ConvertToLocalTimezone {
		p.loc = cfg.Location
		if p.loc == nil {
			loc, err := time.LoadLocation(DefaultTimezone)
			if err != nil {
				return nil, err
			}
			p.loc = loc
		}
	}
	return p, nil
}

// Project returns the row for rec. A nil row with a nil error means the record
// was discarded. Types outside the request set yield an UNSUPPORTED_ACTIVITY_TYPE
// error and leave state untouched.
func (p *Projector) Project(rec *marketo.ActivityRecord) (Row, error) {
	typ := ActivityType(rec.ActivityTypeID)
	if !typ.Known() || !p.schema.Requests(typ) {
		return nil, errors.NewUnsupportedActivityTypeError(rec.ActivityTypeID)
	}

	field := rec.PrimaryAttributeValue.String()
	if typ == ChangeDataValue && !p.schema.Tracks(field) {
		return nil, nil
	}

	row, err := p.prefix(rec, typ)
	if err != nil {
		return nil, err
	}

	switch typ {
	case NewLead:
		p.state.Initialize(rec.LeadID)
		row = p.appendTracked(row, rec.LeadID)
		row = p.appendActivityColumns(row, Placeholder, Placeholder, Placeholder, Placeholder, Placeholder)

	case ChangeDataValue:
		newValue, _ := rec.Attribute(attrNewValue)
		for _, f := range p.schema.TrackedFields {
			if f == field {
				row = append(row, newValue)
				continue
			}
			row = append(row, p.state.Get(rec.LeadID, f))
		}
		p.state.Set(rec.LeadID, field, newValue)
		row = p.appendActivityColumns(row, Placeholder, Placeholder, Placeholder, Placeholder, Placeholder)

	case OpenEmail:
		row = p.appendTracked(row, rec.LeadID)
		row = p.appendActivityColumns(row, field, Placeholder, Placeholder, Placeholder, Placeholder)

	case ClickEmail:
		link, _ := rec.Attribute(attrLink)
		row = p.appendTracked(row, rec.LeadID)
		row = p.appendActivityColumns(row, field, link, Placeholder, Placeholder, Placeholder)

	case VisitWebpage:
		query, _ := rec.Attribute(attrQueryParameters)
		row = p.appendTracked(row, rec.LeadID)
		row = p.appendActivityColumns(row, Placeholder, Placeholder, field, Placeholder, query)

	case ClickLink:
		query, _ := rec.Attribute(attrQueryParameters)
		row = p.appendTracked(row, rec.LeadID)
		row = p.appendActivityColumns(row, Placeholder, Placeholder, Placeholder, field, query)
	}

	return row, nil
}

func (p *Projector) prefix(rec *marketo.ActivityRecord, typ ActivityType) (Row, error) {
	date, err := NormalizeDate(rec.ActivityDate, p.loc)
	if err != nil {
		return nil, err
	}
	name, _ := typ.Name()

	row := make(Row, 0, p.schema.Width())
	return append(row,
		strconv.FormatInt(rec.ID, 10),
		date,
		strconv.Itoa(rec.ActivityTypeID),
		name,
		strconv.FormatInt(rec.LeadID, 10),
	), nil
}

func (p *Projector) appendTracked(row Row, leadID int64) Row {
	for _, f := range p.schema.TrackedFields {
		row = append(row, p.state.Get(leadID, f))
	}
	return row
}

// appendActivityColumns fills only the groups enabled in the schema.
func (p *Projector) appendActivityColumns(row Row, mail, linkInMail, page, linkOnPage, query string) Row {
	if p.schema.Mail {
		row = append(row, mail, linkInMail)
	}
	if p.schema.Web {
		row = append(row, page, linkOnPage, query)
	}
	return row
}
