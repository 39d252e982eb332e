package api

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/daimoniac/scorecard/internal/queue"
	"github.com/daimoniac/scorecard/internal/remediation"
	"github.com/daimoniac/scorecard/internal/service"
	"github.com/daimoniac/scorecard/internal/types"
)

// NCRListResponse is the body of GET /ncr
type NCRListResponse struct {
	NCRRecords []*service.FindingView `json:"ncrRecords"`
}

// ApplyExclusionsResponse reports the queued exclusion run
type ApplyExclusionsResponse struct {
	TaskID string `json:"taskId"`
	ScanID string `json:"scanId"`
}

// ScanListResponse is the body of GET /scans
type ScanListResponse struct {
	Scans []*types.Scan `json:"scans"`
}

// AccountStatus is one account the caller holds grants on
type AccountStatus struct {
	AccountID   string   `json:"accountId"`
	AccountName string   `json:"accountName,omitempty"`
	Permissions []string `json:"permissions"`
}

// UserStatusResponse is the body of GET /user/status
type UserStatusResponse struct {
	Email    string          `json:"email"`
	IsAdmin  bool            `json:"isAdmin"`
	Accounts []AccountStatus `json:"accounts"`
}

// handleListExclusions lists exclusions page by page
// @Summary List exclusions
// @Description List every exclusion (admin only). Pass nextToken from the previous page to continue.
// @Tags Exclusions
// @Produce json
// @Param limit query int false "Page size" default(100)
// @Param nextToken query string false "Opaque continuation token"
// @Success 200 {object} service.ExclusionPage
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Failure 403 {object} ErrorResponse "Not an administrator"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Security BearerAuth
// @Router /exclusions [get]
func (s *APIServer) handleListExclusions(w http.ResponseWriter, r *http.Request) {
	page, err := s.deps.Exclusions.ListExclusions(r.Context(), UserFrom(r.Context()),
		parseQueryParamInt(r, "limit", service.DefaultPageSize),
		r.URL.Query().Get("nextToken"))
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, page)
}

// handlePutExclusionAdmin creates or updates an exclusion as administrator
// @Summary Put exclusion (admin)
// @Description Create an exclusion, or update the one named by exclusionId. Changing accountId, requirementId or resourceId replaces the stored record.
// @Tags Exclusions
// @Accept json
// @Produce json
// @Param request body service.AdminPutRequest true "Exclusion update"
// @Success 200 {object} service.AdminPutResult
// @Failure 400 {object} ErrorResponse "Invalid request or state transition"
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Failure 403 {object} ErrorResponse "Forbidden or read-only mode"
// @Failure 404 {object} ErrorResponse "Exclusion or requirement not found"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Security BearerAuth
// @Router /exclusions [put]
func (s *APIServer) handlePutExclusionAdmin(w http.ResponseWriter, r *http.Request) {
	var req service.AdminPutRequest
	if !s.decode(w, r, &req) {
		return
	}
	result, err := s.deps.Exclusions.PutAdmin(r.Context(), UserFrom(r.Context()), req)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

// handleListNCRs lists non-compliant resources of the latest scan
// @Summary List NCRs
// @Description List findings of the latest completed scan for the given accounts, with the caller's allowed actions.
// @Tags NCRs
// @Produce json
// @Param accountId query string true "Comma separated account ids"
// @Param requirementId query string false "Only findings of this requirement"
// @Success 200 {object} NCRListResponse
// @Failure 400 {object} ErrorResponse "Missing accountId"
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Failure 403 {object} ErrorResponse "No read access to an account"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Security BearerAuth
// @Router /ncr [get]
func (s *APIServer) handleListNCRs(w http.ResponseWriter, r *http.Request) {
	var accountIDs []string
	for _, value := range r.URL.Query()["accountId"] {
		for _, id := range strings.Split(value, ",") {
			if id = strings.TrimSpace(id); id != "" {
				accountIDs = append(accountIDs, id)
			}
		}
	}

	records, err := s.deps.Findings.ListFindings(r.Context(), UserFrom(r.Context()),
		accountIDs, r.URL.Query().Get("requirementId"))
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, NCRListResponse{NCRRecords: records})
}

// handlePutExclusionUser requests or changes the exclusion of one NCR
// @Summary Put exclusion (user)
// @Description Request an exclusion for an NCR of the latest scan, or request a change to its approved exclusion.
// @Tags NCRs
// @Accept json
// @Produce json
// @Param request body service.UserPutRequest true "NCR id and exclusion update"
// @Success 200 {object} service.UserPutResult
// @Failure 400 {object} ErrorResponse "Invalid request or state transition"
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Failure 403 {object} ErrorResponse "Action not allowed or read-only mode"
// @Failure 404 {object} ErrorResponse "NCR or requirement not found"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Security BearerAuth
// @Router /ncr/exclusion [put]
func (s *APIServer) handlePutExclusionUser(w http.ResponseWriter, r *http.Request) {
	var req service.UserPutRequest
	if !s.decode(w, r, &req) {
		return
	}
	result, err := s.deps.Exclusions.PutForUser(r.Context(), UserFrom(r.Context()), req)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

// handleRemediate runs the remediation declared for an NCR's requirement
// @Summary Remediate NCR
// @Description Fix an NCR with its requirement's remediation worker. Only one remediation per NCR runs at a time.
// @Tags NCRs
// @Accept json
// @Produce json
// @Param request body remediation.Input true "NCR id and remediation parameters"
// @Success 200 {object} remediation.Result
// @Failure 400 {object} ErrorResponse "Invalid request"
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Failure 403 {object} ErrorResponse "Not allowed to remediate or read-only mode"
// @Failure 404 {object} ErrorResponse "NCR not found"
// @Failure 409 {object} ErrorResponse "Remediation already in progress"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Security BearerAuth
// @Router /remediate [post]
func (s *APIServer) handleRemediate(w http.ResponseWriter, r *http.Request) {
	var in remediation.Input
	if !s.decode(w, r, &in) {
		return
	}
	result, err := s.deps.Remediator.Remediate(r.Context(), UserFrom(r.Context()), in)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

// handleApplyExclusions queues an exclusion run for a scan
// @Summary Apply exclusions
// @Description Queue a run that applies all current exclusions to the findings of a completed scan (admin only).
// @Tags Scans
// @Produce json
// @Param scanId path string true "Scan id"
// @Success 202 {object} ApplyExclusionsResponse
// @Failure 400 {object} ErrorResponse "Scan is not completed"
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Failure 403 {object} ErrorResponse "Not an administrator or read-only mode"
// @Failure 404 {object} ErrorResponse "Scan not found"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Security BearerAuth
// @Router /scans/{scanId}/exclude [post]
func (s *APIServer) handleApplyExclusions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := UserFrom(ctx)
	if user == nil || !user.IsAdmin {
		s.respondError(w, http.StatusForbidden, "user is not authorized")
		return
	}

	scanID := chi.URLParam(r, "scanId")
	scan, err := s.deps.Scans.GetScan(ctx, scanID)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	if scan.ProcessState != types.ScanCompleted {
		s.respondError(w, http.StatusBadRequest, "scan is not completed")
		return
	}

	task := queue.NewExcludeTask(scanID, queue.ReasonManual)
	if err := s.deps.Queue.Enqueue(ctx, task); err != nil {
		s.respondServiceError(w, r, err)
		return
	}

	s.logger.Info("queued exclusion run",
		"user", user.Email,
		"scan_id", scanID,
		"task_id", task.ID)

	s.respondJSON(w, http.StatusAccepted, ApplyExclusionsResponse{TaskID: task.ID, ScanID: scanID})
}

// handleHealth provides health check endpoint
// @Summary Health check
// @Description Check the health status of the API server
// @Tags Health
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func (s *APIServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

func (s *APIServer) decode(w http.ResponseWriter, r *http.Request, into interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	return true
}

// handleListScans lists scans, newest first
// @Summary List scans
// @Description List recorded scans with their processing state, newest first.
// @Tags Scans
// @Produce json
// @Param limit query int false "Maximum number of scans" default(100)
// @Success 200 {object} ScanListResponse
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Security BearerAuth
// @Router /scans [get]
func (s *APIServer) handleListScans(w http.ResponseWriter, r *http.Request) {
	limit := parseQueryParamInt(r, "limit", service.DefaultPageSize)
	if limit <= 0 {
		limit = service.DefaultPageSize
	}
	if limit > service.MaxPageSize {
		limit = service.MaxPageSize
	}

	scans, err := s.deps.Scans.ListScans(r.Context(), limit)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, ScanListResponse{Scans: scans})
}

// handleUserStatus describes the caller and the accounts they may act on
// @Summary Current user
// @Description Return the authenticated user with their per-account grants. Administrators see every configured account.
// @Tags Users
// @Produce json
// @Success 200 {object} UserStatusResponse
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Security BearerAuth
// @Router /user/status [get]
func (s *APIServer) handleUserStatus(w http.ResponseWriter, r *http.Request) {
	user := UserFrom(r.Context())
	if user == nil {
		s.respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	resp := UserStatusResponse{Email: user.Email, IsAdmin: user.IsAdmin, Accounts: []AccountStatus{}}
	if user.IsAdmin {
		for _, id := range s.deps.Users.AccountIDs() {
			resp.Accounts = append(resp.Accounts, s.accountStatus(id,
				[]string{types.PermissionRequestExclusion, types.PermissionTriggerRemediation}))
		}
		s.respondJSON(w, http.StatusOK, resp)
		return
	}

	ids := make([]string, 0, len(user.Accounts))
	for id := range user.Accounts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		var granted []string
		for perm, ok := range user.Accounts[id].Permissions {
			if ok {
				granted = append(granted, perm)
			}
		}
		sort.Strings(granted)
		if granted == nil {
			granted = []string{}
		}
		resp.Accounts = append(resp.Accounts, s.accountStatus(id, granted))
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *APIServer) accountStatus(id string, permissions []string) AccountStatus {
	status := AccountStatus{AccountID: id, Permissions: permissions}
	if account, ok := s.deps.Users.Account(id); ok {
		status.AccountName = account.Name
	}
	return status
}
