package api

import (
	"context"
	"encoding/json"
	"net/http"
	"reflect"
	"testing"

	"github.com/daimoniac/scorecard/internal/errors"
)

func TestHandleListExclusions(t *testing.T) {
	ts := newTestServer(t, false)

	w := ts.do(t, http.MethodGet, "/api/v1/exclusions?limit=25&nextToken=abc", "admin@example.com", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if ts.exclusions.listLimit != 25 || ts.exclusions.listToken != "abc" {
		t.Errorf("limit/token = %d/%q", ts.exclusions.listLimit, ts.exclusions.listToken)
	}

	w = ts.do(t, http.MethodGet, "/api/v1/exclusions?limit=bogus", "admin@example.com", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if ts.exclusions.listLimit != 100 {
		t.Errorf("default limit = %d, want 100", ts.exclusions.listLimit)
	}
}

func TestHandlePutExclusionAdmin(t *testing.T) {
	ts := newTestServer(t, false)

	body := `{"exclusionId":"111111111111#r#x","exclusion":{"status":"approved"}}`
	w := ts.do(t, http.MethodPut, "/api/v1/exclusions", "admin@example.com", body)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if ts.exclusions.adminReq.ExclusionID != "111111111111#r#x" {
		t.Errorf("exclusionId = %q", ts.exclusions.adminReq.ExclusionID)
	}
	if ts.exclusions.adminReq.Exclusion["status"] != "approved" {
		t.Errorf("exclusion = %v", ts.exclusions.adminReq.Exclusion)
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	newExclusion, _ := resp["newExclusion"].(map[string]any)
	if newExclusion["exclusionId"] != "111111111111#r#x" || newExclusion["accountId"] != "111111111111" {
		t.Errorf("newExclusion = %v", newExclusion)
	}
}

func TestHandlePutExclusionAdmin_BadBody(t *testing.T) {
	ts := newTestServer(t, false)
	w := ts.do(t, http.MethodPut, "/api/v1/exclusions", "admin@example.com", "{not json")
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestHandlePutExclusionUser_TransitionDetails(t *testing.T) {
	ts := newTestServer(t, false)
	ts.exclusions.err = &errors.StateTransitionError{
		Message:     "Invalid request keys",
		OldState:    "start",
		NewState:    "initial",
		MissingKeys: []string{"expirationDate"},
	}

	w := ts.do(t, http.MethodPut, "/api/v1/ncr/exclusion", "dev@example.com", `{"ncrId":"x","exclusion":{"status":"initial"}}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Details == nil || resp.Details.NewState != "initial" || len(resp.Details.MissingKeys) != 1 {
		t.Errorf("details = %+v", resp.Details)
	}
	if ts.exclusions.userReq.NCRID != "x" {
		t.Errorf("ncrId = %q", ts.exclusions.userReq.NCRID)
	}
}

func TestHandleListNCRs(t *testing.T) {
	ts := newTestServer(t, false)

	w := ts.do(t, http.MethodGet, "/api/v1/ncr?accountId=111111111111,222222222222&accountId=333333333333&requirementId=sg-open-ssh", "dev@example.com", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	want := []string{"111111111111", "222222222222", "333333333333"}
	if len(ts.findings.accounts) != len(want) {
		t.Fatalf("accounts = %v, want %v", ts.findings.accounts, want)
	}
	for i := range want {
		if ts.findings.accounts[i] != want[i] {
			t.Errorf("accounts[%d] = %q, want %q", i, ts.findings.accounts[i], want[i])
		}
	}
	if ts.findings.requirement != "sg-open-ssh" {
		t.Errorf("requirement = %q", ts.findings.requirement)
	}

	var resp NCRListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.NCRRecords) != 1 || resp.NCRRecords[0].NCRID != "a#b#c#d#e" {
		t.Errorf("ncrRecords = %+v", resp.NCRRecords)
	}
}

func TestHandleRemediate(t *testing.T) {
	ts := newTestServer(t, false)

	body := `{"ncrId":"n","remediationParameters":{"cidrRange":"10.0.0.0/8"},"overrideIacWarning":true}`
	w := ts.do(t, http.MethodPost, "/api/v1/remediate", "dev@example.com", body)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if ts.remediator.in.NCRID != "n" || !ts.remediator.in.OverrideIacWarning {
		t.Errorf("input = %+v", ts.remediator.in)
	}
	if ts.remediator.in.RemediationParameters["cidrRange"] != "10.0.0.0/8" {
		t.Errorf("parameters = %v", ts.remediator.in.RemediationParameters)
	}

	ts.remediator.err = errors.ErrRemediationInProgress
	w = ts.do(t, http.MethodPost, "/api/v1/remediate", "dev@example.com", body)
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
}

func TestHandleRemediate_InternalErrorIsMasked(t *testing.T) {
	ts := newTestServer(t, false)
	ts.remediator.err = errors.New("sqlite: disk I/O error")

	w := ts.do(t, http.MethodPost, "/api/v1/remediate", "dev@example.com", `{"ncrId":"n"}`)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", w.Code)
	}
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Error != "internal server error" {
		t.Errorf("error = %q", resp.Error)
	}
}

func TestHandleApplyExclusions(t *testing.T) {
	ts := newTestServer(t, false)

	tests := []struct {
		name  string
		email string
		scan  string
		want  int
	}{
		{"non admin", "dev@example.com", "done", http.StatusForbidden},
		{"unknown scan", "admin@example.com", "missing", http.StatusNotFound},
		{"scan not completed", "admin@example.com", "running", http.StatusBadRequest},
		{"queued", "admin@example.com", "done", http.StatusAccepted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, http.MethodPost, "/api/v1/scans/"+tt.scan+"/exclude", tt.email, "")
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", w.Code, tt.want, w.Body.String())
			}
		})
	}

	depth, err := ts.queue.GetQueueDepth(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if depth != 1 {
		t.Errorf("queue depth = %d, want 1", depth)
	}
}

func TestHandleListScans(t *testing.T) {
	ts := newTestServer(t, false)

	w := ts.do(t, http.MethodGet, "/api/v1/scans", "dev@example.com", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var resp ScanListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Scans) != 2 {
		t.Fatalf("scans = %d, want 2", len(resp.Scans))
	}

	w = ts.do(t, http.MethodGet, "/api/v1/scans?limit=1", "dev@example.com", "")
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Scans) != 1 || resp.Scans[0].ScanID != "done" {
		t.Errorf("limited scans = %+v", resp.Scans)
	}

	if w := ts.do(t, http.MethodGet, "/api/v1/scans", "", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("anonymous status = %d, want 401", w.Code)
	}
}

func TestHandleUserStatus(t *testing.T) {
	ts := newTestServer(t, true)

	tests := []struct {
		name  string
		email string
		want  UserStatusResponse
	}{
		{
			name:  "user sees own grants",
			email: "dev@example.com",
			want: UserStatusResponse{
				Email: "dev@example.com",
				Accounts: []AccountStatus{
					{AccountID: "111111111111", AccountName: "payments", Permissions: []string{"requestExclusion", "triggerRemediation"}},
					{AccountID: "222222222222", AccountName: "sandbox", Permissions: []string{}},
				},
			},
		},
		{
			name:  "admin sees every account",
			email: "admin@example.com",
			want: UserStatusResponse{
				Email:   "admin@example.com",
				IsAdmin: true,
				Accounts: []AccountStatus{
					{AccountID: "111111111111", AccountName: "payments", Permissions: []string{"requestExclusion", "triggerRemediation"}},
					{AccountID: "222222222222", AccountName: "sandbox", Permissions: []string{"requestExclusion", "triggerRemediation"}},
					{AccountID: "333333333333", Permissions: []string{"requestExclusion", "triggerRemediation"}},
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, http.MethodGet, "/api/v1/user/status", tt.email, "")
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d: %s", w.Code, w.Body.String())
			}
			var got UserStatusResponse
			if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("status = %+v, want %+v", got, tt.want)
			}
		})
	}
}
