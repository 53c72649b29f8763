package export

import "strconv"

// ActivityType is an upstream activity type identifier.
type ActivityType int

// Activity types the exporter knows how to project.
const (
	VisitWebpage    ActivityType = 1
	ClickLink       ActivityType = 3
	OpenEmail       ActivityType = 10
	ClickEmail      ActivityType = 11
	NewLead         ActivityType = 12
	ChangeDataValue ActivityType = 13
)

var activityTypeNames = map[ActivityType]string{
	VisitWebpage:    "Visit Webpage",
	ClickLink:       "Click Link",
	OpenEmail:       "Open Email",
	ClickEmail:      "Click Email",
	NewLead:         "New Lead",
	ChangeDataValue: "Change Data Value",
}

// Name returns the catalog name of t, or false if t is not in the catalog.
func (t ActivityType) Name() (string, bool) {
	name, ok := activityTypeNames[t]
	return name, ok
}

// Known reports whether t is in the catalog.
func (t ActivityType) Known() bool {
	_, ok := activityTypeNames[t]
	return ok
}

func (t ActivityType) String() string {
	if name, ok := t.Name(); ok {
		return name
	}
	return "ActivityType(" + strconv.Itoa(int(t)) + ")"
}

// Catalog returns the supported activity types in ascending id order.
func Catalog() []ActivityType {
	return []ActivityType{VisitWebpage, ClickLink, OpenEmail, ClickEmail, NewLead, ChangeDataValue}
}
