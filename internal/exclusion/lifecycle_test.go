package exclusion

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "github.com/daimoniac/scorecard/internal/errors"
	"github.com/daimoniac/scorecard/internal/types"
)

var fixedNow = time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

var testType = types.ExclusionType{
	DisplayName:       "Exception",
	MaxDurationInDays: 90,
	FormFields: map[string]types.FormField{
		"reason": {Label: "Reason"},
	},
	States: map[string]types.StateSettings{
		types.StatusInitial: {Effective: false},
	},
}

type fakeLookup struct {
	scanID       string
	findings     map[types.FindingKey]bool
	requirements map[string]bool
}

func (f *fakeLookup) LatestCompletedScanID(context.Context) (string, error) {
	return f.scanID, nil
}

func (f *fakeLookup) FindingExists(_ context.Context, key types.FindingKey) (bool, error) {
	return f.findings[key], nil
}

func (f *fakeLookup) RequirementExists(_ context.Context, id string) (bool, error) {
	return f.requirements[id], nil
}

func newTestEngine() *Engine {
	lookup := &fakeLookup{
		scanID: "2026-10-16T00:00:00Z#abcd1234",
		findings: map[types.FindingKey]bool{
			{ScanID: "2026-10-16T00:00:00Z#abcd1234", AccountID: "111122223333", ResourceID: "sg-1", RequirementID: "R1"}: true,
		},
		requirements: map[string]bool{"R1": true},
	}
	return NewEngine(lookup, WithClock(func() time.Time { return fixedNow }))
}

func futureDate(days int) string {
	return types.FormatDate(fixedNow.AddDate(0, 0, days))
}

func TestUpdateExclusion_EmptyRequest(t *testing.T) {
	_, err := newTestEngine().UpdateExclusion(context.Background(), nil, map[string]any{}, testType, true)
	if !errors.Is(err, apperrors.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestUpdateExclusion_AdminCreate(t *testing.T) {
	req := map[string]any{
		"status":         "initial",
		"accountId":      "*",
		"requirementId":  "R1",
		"resourceId":     "*",
		"expirationDate": futureDate(30),
		"formFields":     map[string]any{"reason": "shared bucket"},
		"hidesResources": true,
	}

	got, err := newTestEngine().UpdateExclusion(context.Background(), nil, req, testType, true)
	if err != nil {
		t.Fatalf("UpdateExclusion() error = %v", err)
	}
	if got.Status != types.StatusInitial || got.AccountID != "*" || !got.HidesResources {
		t.Errorf("unexpected record %+v", got)
	}
	if got.LastStatusChangeDate != fixedNow.Format(time.RFC3339) {
		t.Errorf("LastStatusChangeDate = %q", got.LastStatusChangeDate)
	}
}

func TestUpdateExclusion_UserCreate(t *testing.T) {
	req := map[string]any{
		"status":         "initial",
		"expirationDate": futureDate(10),
		"formFields":     map[string]any{"reason": "legacy"},
	}
	got, err := newTestEngine().UpdateExclusion(context.Background(), nil, req, testType, false)
	if err != nil {
		t.Fatalf("UpdateExclusion() error = %v", err)
	}
	if got.FormFields["reason"] != "legacy" {
		t.Errorf("formFields = %v", got.FormFields)
	}
}

func TestUpdateExclusion_UserWildcardAccountRejected(t *testing.T) {
	req := map[string]any{
		"status":         "initial",
		"accountId":      "*",
		"expirationDate": futureDate(10),
		"formFields":     map[string]any{"reason": "x"},
	}
	_, err := newTestEngine().UpdateExclusion(context.Background(), nil, req, testType, false)

	var ste *apperrors.StateTransitionError
	if !errors.As(err, &ste) {
		t.Fatalf("expected StateTransitionError, got %v", err)
	}
	if len(ste.ExtraKeys) != 1 || ste.ExtraKeys[0] != "accountId" {
		t.Errorf("ExtraKeys = %v", ste.ExtraKeys)
	}

	v, _ := validateAccountID(context.Background(), &Input{Request: req})
	if v == nil || v.Message != "User endpoint cannot manage wildcard exclusions" {
		t.Errorf("accountId validator = %+v", v)
	}
}

func TestUpdateExclusion_NoSchema(t *testing.T) {
	old := &types.Exclusion{Status: types.StatusInitial, FormFields: map[string]string{"reason": "a"}}
	_, err := newTestEngine().UpdateExclusion(context.Background(), old, map[string]any{"status": "approved"}, testType, false)

	var ste *apperrors.StateTransitionError
	if !errors.As(err, &ste) {
		t.Fatalf("expected StateTransitionError, got %v", err)
	}
	if ste.OldState != "initial" || ste.NewState != "approved" {
		t.Errorf("states = %s -> %s", ste.OldState, ste.NewState)
	}
	if ste.Request["status"] != "approved" {
		t.Error("transition error should carry the request")
	}
}

func TestUpdateExclusion_MissingKeys(t *testing.T) {
	_, err := newTestEngine().UpdateExclusion(context.Background(), nil, map[string]any{"status": "initial"}, testType, false)

	var ste *apperrors.StateTransitionError
	if !errors.As(err, &ste) {
		t.Fatalf("expected StateTransitionError, got %v", err)
	}
	want := []string{"expirationDate", "formFields"}
	if len(ste.MissingKeys) != 2 || ste.MissingKeys[0] != want[0] || ste.MissingKeys[1] != want[1] {
		t.Errorf("MissingKeys = %v, want %v", ste.MissingKeys, want)
	}
}

func TestUpdateExclusion_CollectsAllViolations(t *testing.T) {
	req := map[string]any{
		"status":         "initial",
		"accountId":      "12ab",
		"requirementId":  "R*",
		"resourceId":     "sg-1",
		"expirationDate": futureDate(120),
		"formFields":     map[string]any{"reason": "a", "ticket": "b"},
		"adminComments":  5,
		"hidesResources": "yes",
	}
	_, err := newTestEngine().UpdateExclusion(context.Background(), nil, req, testType, true)

	var ste *apperrors.StateTransitionError
	if !errors.As(err, &ste) {
		t.Fatalf("expected StateTransitionError, got %v", err)
	}
	got := map[string]apperrors.FieldViolation{}
	for _, v := range ste.ValidationErrors {
		got[v.Property] = v
	}
	for _, prop := range []string{"accountId", "requirementId", "expirationDate", "formFields", "adminComments", "hidesResources"} {
		if _, ok := got[prop]; !ok {
			t.Errorf("missing violation for %s (got %v)", prop, ste.ValidationErrors)
		}
	}
	if ff := got["formFields"]; len(ff.ExtraKeys) != 1 || ff.ExtraKeys[0] != "ticket" {
		t.Errorf("formFields violation = %+v", ff)
	}
}

func TestUpdateExclusion_ExpirationRules(t *testing.T) {
	tests := []struct {
		name    string
		date    string
		wantMsg string
	}{
		{name: "past", date: futureDate(-1), wantMsg: "expirationDate must be in the future"},
		{name: "at max", date: futureDate(91), wantMsg: "expirationDate must be less than the configured maxDurationInDays: 90"},
		{name: "garbage", date: "soon", wantMsg: "Unable to parse datetime"},
		{name: "ok", date: futureDate(89)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := checkExpiration(tt.date, testType, fixedNow)
			switch {
			case tt.wantMsg == "" && v != nil:
				t.Errorf("unexpected violation %q", v.Message)
			case tt.wantMsg != "" && (v == nil || v.Message != tt.wantMsg):
				t.Errorf("violation = %+v, want %q", v, tt.wantMsg)
			}
		})
	}
}

func TestUpdateExclusion_ChangeRequestFlow(t *testing.T) {
	engine := newTestEngine()
	approved := &types.Exclusion{
		AccountID:      "111122223333",
		RequirementID:  "R1",
		ResourceID:     "sg-1",
		Status:         types.StatusApproved,
		ExpirationDate: futureDate(10),
		FormFields:     map[string]string{"reason": "legacy"},
	}

	// user proposes a new expiration date
	pending, err := engine.UpdateExclusion(context.Background(), approved, map[string]any{
		"updateRequested": map[string]any{"expirationDate": futureDate(60)},
	}, testType, false)
	if err != nil {
		t.Fatalf("request changes: %v", err)
	}
	if state, _ := StateOf(pending); state != ApprovedPendingChanges {
		t.Fatalf("state = %s, want approvedPendingChanges", state)
	}
	if pending.LastStatusChangeDate != "" {
		t.Error("status did not change, timestamp must not be stamped")
	}

	// user extends the pending request
	extended, err := engine.UpdateExclusion(context.Background(), pending, map[string]any{
		"updateRequested": map[string]any{"formFields": map[string]any{"reason": "still legacy"}},
	}, testType, false)
	if err != nil {
		t.Fatalf("extend changes: %v", err)
	}
	if extended.UpdateRequested.ExpirationDate != futureDate(60) || extended.UpdateRequested.FormFields["reason"] != "still legacy" {
		t.Errorf("change request not merged: %+v", extended.UpdateRequested)
	}

	// user cannot approve
	if _, err := engine.UpdateExclusion(context.Background(), extended, map[string]any{
		"updateRequested": nil, "status": "approved",
	}, testType, false); !errors.Is(err, apperrors.ErrInvalidStateTransition) {
		t.Fatalf("user approve: expected ErrInvalidStateTransition, got %v", err)
	}

	// admin approves, applying the change and clearing the request
	final, err := engine.UpdateExclusion(context.Background(), extended, map[string]any{
		"updateRequested": nil,
		"expirationDate":  futureDate(60),
		"formFields":      map[string]any{"reason": "still legacy"},
	}, testType, true)
	if err != nil {
		t.Fatalf("admin approve: %v", err)
	}
	if state, _ := StateOf(final); state != Approved {
		t.Errorf("state = %s, want approved", state)
	}
	if final.UpdateRequested != nil || final.ExpirationDate != futureDate(60) {
		t.Errorf("unexpected final record %+v", final)
	}
}

func TestUpdateExclusion_UpdateRequestedExtraKeys(t *testing.T) {
	approved := &types.Exclusion{Status: types.StatusApproved, FormFields: map[string]string{"reason": "a"}}
	_, err := newTestEngine().UpdateExclusion(context.Background(), approved, map[string]any{
		"updateRequested": map[string]any{"status": "approved"},
	}, testType, false)

	var ste *apperrors.StateTransitionError
	if !errors.As(err, &ste) || len(ste.ValidationErrors) != 1 {
		t.Fatalf("expected one validation error, got %v", err)
	}
	if v := ste.ValidationErrors[0]; v.Property != "updateRequested" || len(v.ExtraKeys) != 1 {
		t.Errorf("violation = %+v", v)
	}
}

func TestUpdateExclusion_UserResourceMustExist(t *testing.T) {
	engine := newTestEngine()
	in := &Input{
		Request:     map[string]any{"resourceId": "sg-2"},
		Prospective: map[string]any{"accountId": "111122223333", "requirementId": "R1"},
		Lookup:      engine.lookup,
	}
	v, err := validateResourceID(context.Background(), in)
	if err != nil || v == nil || v.Message != "Cannot find resource" {
		t.Fatalf("validateResourceID() = %+v, %v", v, err)
	}

	in.Request["resourceId"] = "sg-1"
	if v, err := validateResourceID(context.Background(), in); v != nil || err != nil {
		t.Fatalf("existing finding rejected: %+v, %v", v, err)
	}

	in.Request["resourceId"] = "sg-*"
	if v, _ := validateResourceID(context.Background(), in); v == nil || v.Message != "User cannot manage wildcard exclusions" {
		t.Fatalf("wildcard accepted: %+v", v)
	}
}

func TestRequiresReplacement(t *testing.T) {
	current := &types.Exclusion{AccountID: "111122223333", RequirementID: "R1", ResourceID: "sg-1", Status: "approved"}

	if RequiresReplacement(nil, map[string]any{"accountId": "*"}) {
		t.Error("nil current never requires replacement")
	}
	if RequiresReplacement(current, map[string]any{"status": "archived"}) {
		t.Error("non-identity change must not replace")
	}
	if RequiresReplacement(current, map[string]any{"accountId": "111122223333"}) {
		t.Error("unchanged identity must not replace")
	}
	if !RequiresReplacement(current, map[string]any{"resourceId": "sg-*"}) {
		t.Error("identity change must replace")
	}
}
