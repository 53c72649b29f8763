package export

// Placeholder fills columns an event does not populate and stands for
// "unknown" in lead state.
const Placeholder = ""

// LeadState holds the last observed value of each tracked field per lead.
// It lives for one run and is not safe for concurrent use; events must be
// applied in the order the API returns them.
type LeadState struct {
	fields []string
	leads  map[int64]map[string]string
}

func NewLeadState(trackedFields []string) *LeadState {
	return &LeadState{
		fields: append([]string(nil), trackedFields...),
		leads:  make(map[int64]map[string]string),
	}
}

// Initialize resets every tracked field of leadID to the placeholder.
func (s *LeadState) Initialize(leadID int64) {
	values := make(map[string]string, len(s.fields))
	for _, f := range s.fields {
		values[f] = Placeholder
	}
	s.leads[leadID] = values
}

// Get returns the last known value, or the placeholder for unknown leads or fields.
func (s *LeadState) Get(leadID int64, field string) string {
	values, ok := s.leads[leadID]
	if !ok {
		return Placeholder
	}
	return values[field]
}

// Set overwrites the stored value, creating the lead entry if needed.
func (s *LeadState) Set(leadID int64, field, value string) {
	values, ok := s.leads[leadID]
	if !ok {
		values = make(map[string]string, len(s.fields))
		s.leads[leadID] = values
	}
	values[field] = value
}

// Known reports whether leadID has an entry.
func (s *LeadState) Known(leadID int64) bool {
	_, ok := s.leads[leadID]
	return ok
}

// Len is the number of leads with an entry.
func (s *LeadState) Len() int {
	return len(s.leads)
}
