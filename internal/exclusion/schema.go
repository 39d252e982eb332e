package exclusion

import "sort"

// FieldRule says whether a request field is required for a transition and
// how to validate it. A nil Validate accepts any value.
type FieldRule struct {
	Required bool
	Validate Validator
}

// Schema maps request field names to rules.
type Schema map[string]FieldRule

// Keys returns the schema's field names sorted.
func (s Schema) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// TransitionTable maps from-state to to-state to the schema of the request
// that performs the transition. Absent entries are forbidden transitions.
type TransitionTable map[State]map[State]Schema

// Lookup returns the schema for from -> to.
func (t TransitionTable) Lookup(from, to State) (Schema, bool) {
	s, ok := t[from][to]
	return s, ok
}

// Targets lists the states reachable from from.
func (t TransitionTable) Targets(from State) []State {
	out := make([]State, 0, len(t[from]))
	for to := range t[from] {
		out = append(out, to)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

var (
	userCreate = Schema{
		"status":         {Required: true},
		"expirationDate": {Required: true, Validate: validateExpirationDate},
		"formFields":     {Required: true, Validate: validateFormFields},
	}
	userUpdate = Schema{
		"status":         {Required: true},
		"expirationDate": {Validate: validateExpirationDate},
		"formFields":     {Validate: validateFormFields},
	}
	userRequestChanges = Schema{
		"status":          {},
		"updateRequested": {Required: true, Validate: validateUpdateRequested},
	}

	adminCreate = Schema{
		"status":         {Required: true},
		"accountId":      {Required: true, Validate: validateAccountID},
		"resourceId":     {Required: true, Validate: validateResourceID},
		"requirementId":  {Required: true, Validate: validateRequirementID},
		"expirationDate": {Required: true, Validate: validateExpirationDate},
		"formFields":     {Required: true, Validate: validateFormFields},
		"adminComments":  {Validate: validateAdminComments},
		"hidesResources": {Validate: validateHidesResources},
	}
	adminUpdate = Schema{
		"status":         {Required: true},
		"accountId":      {Validate: validateAccountID},
		"resourceId":     {Validate: validateResourceID},
		"expirationDate": {Validate: validateExpirationDate},
		"formFields":     {Validate: validateFormFields},
		"adminComments":  {Validate: validateAdminComments},
		"hidesResources": {Validate: validateHidesResources},
	}
	adminRequestChanges = Schema{
		"status":          {},
		"accountId":       {Validate: validateAccountID},
		"resourceId":      {Validate: validateResourceID},
		"expirationDate":  {Validate: validateExpirationDate},
		"formFields":      {Validate: validateFormFields},
		"adminComments":   {Validate: validateAdminComments},
		"hidesResources":  {Validate: validateHidesResources},
		"updateRequested": {Required: true, Validate: validateUpdateRequested},
	}
	adminApproveChanges = Schema{
		"updateRequested": {Required: true, Validate: validateUpdateRequested},
		"status":          {},
		"expirationDate":  {Validate: validateExpirationDate},
		"formFields":      {Validate: validateFormFields},
		"adminComments":   {Validate: validateAdminComments},
		"hidesResources":  {Validate: validateHidesResources},
	}
)

// UserTransitions is the table applied to non-admin requests.
var UserTransitions = TransitionTable{
	Start:                  {Initial: userCreate},
	Initial:                {Initial: userUpdate},
	Approved:               {ApprovedPendingChanges: userRequestChanges},
	ApprovedPendingChanges: {ApprovedPendingChanges: userRequestChanges},
	Rejected:               {Initial: userUpdate},
	Archived:               {Initial: userUpdate},
}

// AdminTransitions is the table applied to admin requests.
var AdminTransitions = TransitionTable{
	Start: {Initial: adminCreate},
	Initial: {
		Initial: adminUpdate, Approved: adminUpdate, Rejected: adminUpdate, Archived: adminUpdate,
	},
	Approved: {
		Initial: adminUpdate, Approved: adminUpdate, Rejected: adminUpdate, Archived: adminUpdate,
	},
	ApprovedPendingChanges: {
		Initial:                adminUpdate,
		Approved:               adminApproveChanges,
		ApprovedPendingChanges: adminRequestChanges,
		Rejected:               adminUpdate,
		Archived:               adminUpdate,
	},
	Rejected: {
		Initial: adminUpdate, Approved: adminUpdate, Rejected: adminUpdate, Archived: adminUpdate,
	},
	Archived: {
		Initial: adminUpdate, Approved: adminUpdate, Rejected: adminUpdate, Archived: adminUpdate,
	},
}

// TableFor returns the transition table for the caller's role.
func TableFor(isAdmin bool) TransitionTable {
	if isAdmin {
		return AdminTransitions
	}
	return UserTransitions
}
