/*
handlers.go - HTTP API handlers for the leave engine

PURPOSE:
  Exposes profiles, balances, requests and approvals via REST API. Handles
  HTTP request/response, JSON serialization, and delegates to the timeoff
  services.

ENDPOINTS:
  Profiles:
    GET    /api/profiles/{id}                   Profile and contracts
    PUT    /api/profiles/{id}                   Onboard or update (hr)
    POST   /api/profiles/{id}/contracts/renew   Renew contract (hr)
    GET    /api/profiles/{id}/balances          Balances (?as_of, strict, contract_id, contract_no)
    POST   /api/profiles/{id}/balances/refresh  Recompute the stored cache
    GET    /api/profiles/{id}/days-off          Leave days (?from, to)

  Requests:
    POST   /api/requests/leave|swap|replace     Submit as the caller
    GET    /api/requests/mine                   Caller's own requests (?kind)
    GET    /api/requests/{id}                   Requester or assigned approver
    PUT    /api/requests/{id}/leave             Requester edit, unlocked only
    POST   /api/requests/{id}/cancel            Requester cancel, unlocked only
    POST   /api/requests/{id}/decision          One approver decision
    POST   /api/requests/bulk-decision          Decide many, report each
    GET    /api/inbox                           Requests waiting on the caller

  Holidays:
    GET    /api/holidays
    POST   /api/holidays                        (hr)
    DELETE /api/holidays/{id}                   (hr)

IDENTITY:
  Every /api route runs behind the JWT middleware. The caller's employee ID
  is the requester on submissions and the actor on decisions; it is never
  read from the body.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 403: Caller is not the requester or the assigned approver
  - 404: Resource not found
  - 409: Guard miss (body carries current_status) or locked request
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/timeoff"
	"github.com/warp/leave-engine/workflow"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// EmployeeWriter maintains the employee directory.
type EmployeeWriter interface {
	SaveEmployee(ctx context.Context, e timeoff.DirectoryEntry) error
}

// Resetter clears all data. Only demo scenarios use it.
type Resetter interface {
	Reset(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Profiles  *timeoff.ProfileService
	Requests  *timeoff.RequestService
	Holidays  timeoff.HolidayStore
	Directory timeoff.Directory
	Employees EmployeeWriter
	Resetter  Resetter
	Logger    *zap.Logger

	validate *validator.Validate

	// Track currently loaded scenario
	currentScenario string
}

// NewHandler creates a handler over the services.
func NewHandler(profiles *timeoff.ProfileService, requests *timeoff.RequestService, holidays timeoff.HolidayStore, directory timeoff.Directory) *Handler {
	return &Handler{
		Profiles:  profiles,
		Requests:  requests,
		Holidays:  holidays,
		Directory: directory,
		Logger:    zap.NewNop(),
		validate:  validator.New(),
	}
}

func (h *Handler) log() *zap.Logger {
	if h.Logger == nil {
		return zap.NewNop()
	}
	return h.Logger
}

// =============================================================================
// PROFILE HANDLERS
// =============================================================================

// GetProfile returns a profile to its owner or to HR.
// GET /api/profiles/{id}
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.selfOrHR(w, r, id) {
		return
	}
	p, err := h.Profiles.Get(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// PutProfile onboards or updates an employee.
// PUT /api/profiles/{id}
func (h *Handler) PutProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	var req ProfileRequest
	if !h.decode(w, r, &req) {
		return
	}

	joinDate, _ := generic.ParseDate(req.JoinDate)
	in := timeoff.ProfileInput{
		EmployeeID: id,
		JoinDate:   joinDate,
		Approvers: workflow.Approvers{
			ManagerID: req.ManagerID,
			GMID:      req.GMID,
			COOID:     req.COOID,
		},
		ApprovalMode: workflow.Mode(req.ApprovalMode),
	}
	if req.FirstContractStart != "" {
		in.FirstContractStart, _ = generic.ParseDate(req.FirstContractStart)
	}

	p, err := h.Profiles.Upsert(ctx, in)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	if req.Name != "" && h.Employees != nil {
		entry := timeoff.DirectoryEntry{EmployeeID: id, Name: req.Name, Department: req.Department}
		if err := h.Employees.SaveEmployee(ctx, entry); err != nil {
			h.writeDomainError(w, r, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, p)
}

// RenewContract closes the current contract and opens the next one.
// POST /api/profiles/{id}/contracts/renew
func (h *Handler) RenewContract(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req RenewContractRequest
	if !h.decode(w, r, &req) {
		return
	}

	in := timeoff.RenewInput{}
	in.Start, _ = generic.ParseDate(req.StartDate)
	if req.EndDate != "" {
		in.End, _ = generic.ParseDate(req.EndDate)
	}

	res, err := h.Profiles.RenewContract(r.Context(), id, in)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, RenewResultDTO{
		Profile:           res.Profile,
		Closed:            res.Closed,
		Opened:            res.Opened,
		PreviousRemaining: res.PreviousRemaining,
	})
}

// GetBalances computes balances on demand.
// GET /api/profiles/{id}/balances?as_of=2025-03-01&strict=true&contract_no=2
func (h *Handler) GetBalances(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.selfOrHR(w, r, id) {
		return
	}

	query := r.URL.Query()
	q := timeoff.BalanceQuery{ContractID: query.Get("contract_id")}
	var err error
	if q.AsOf, err = optionalDate(query.Get("as_of"), "as_of"); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if s := query.Get("strict"); s != "" {
		if q.Strict, err = strconv.ParseBool(s); err != nil {
			h.writeDomainError(w, r, generic.NewValidationError("strict", "must be true or false"))
			return
		}
	}
	if s := query.Get("contract_no"); s != "" {
		if q.ContractNo, err = strconv.Atoi(s); err != nil || q.ContractNo <= 0 {
			h.writeDomainError(w, r, generic.NewValidationError("contract_no", "must be a positive integer"))
			return
		}
	}

	sheet, err := h.Profiles.Balances(r.Context(), id, q)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sheet)
}

// RefreshBalances recomputes and stores the balance cache.
// POST /api/profiles/{id}/balances/refresh
func (h *Handler) RefreshBalances(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.selfOrHR(w, r, id) {
		return
	}
	asOf, err := optionalDate(r.URL.Query().Get("as_of"), "as_of")
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	sheet, err := h.Profiles.RefreshBalances(r.Context(), id, asOf)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sheet)
}

// GetDaysOff lists leave days in a window, defaulting to the current
// calendar year.
// GET /api/profiles/{id}/days-off?from=2025-01-01&to=2025-12-31
func (h *Handler) GetDaysOff(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.selfOrHR(w, r, id) {
		return
	}

	today := generic.Today()
	window := generic.Period{
		Start: generic.NewTimePoint(today.Year(), 1, 1),
		End:   generic.NewTimePoint(today.Year(), 12, 31),
	}
	var err error
	if s := r.URL.Query().Get("from"); s != "" {
		if window.Start, err = generic.ParseDate(s); err != nil {
			h.writeDomainError(w, r, err)
			return
		}
	}
	if s := r.URL.Query().Get("to"); s != "" {
		if window.End, err = generic.ParseDate(s); err != nil {
			h.writeDomainError(w, r, err)
			return
		}
	}

	days, err := h.Requests.DaysOff(r.Context(), id, window)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if days == nil {
		days = []timeoff.DayOff{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"days_off": days})
}

// =============================================================================
// REQUEST HANDLERS
// =============================================================================

// CreateLeave submits a leave for the caller.
// POST /api/requests/leave
func (h *Handler) CreateLeave(w http.ResponseWriter, r *http.Request) {
	caller := callerID(r)

	var req LeaveRequest
	if !h.decode(w, r, &req) {
		return
	}

	created, err := h.Requests.CreateLeave(r.Context(), caller, leaveInput(req), req.Reason)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRequestDTO(created))
}

// CreateSwap submits a swap working day request for the caller.
// POST /api/requests/swap
func (h *Handler) CreateSwap(w http.ResponseWriter, r *http.Request) {
	caller := callerID(r)

	var req SwapRequest
	if !h.decode(w, r, &req) {
		return
	}

	in := timeoff.SwapInput{}
	in.RequestStart, _ = generic.ParseDate(req.RequestStartDate)
	in.RequestEnd, _ = generic.ParseDate(req.RequestEndDate)
	in.OffStart, _ = generic.ParseDate(req.OffStartDate)
	in.OffEnd, _ = generic.ParseDate(req.OffEndDate)

	created, err := h.Requests.CreateSwap(r.Context(), caller, in, req.Reason)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRequestDTO(created))
}

// CreateReplace submits a replace day request for the caller.
// POST /api/requests/replace
func (h *Handler) CreateReplace(w http.ResponseWriter, r *http.Request) {
	caller := callerID(r)

	var req ReplaceRequest
	if !h.decode(w, r, &req) {
		return
	}

	in := timeoff.ReplaceInput{}
	in.RequestDate, _ = generic.ParseDate(req.RequestDate)
	in.CompensatoryDate, _ = generic.ParseDate(req.CompensatoryDate)

	created, err := h.Requests.CreateReplace(r.Context(), caller, in, req.Reason)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRequestDTO(created))
}

// GetRequest returns a request to its requester or an assigned approver.
// GET /api/requests/{id}
func (h *Handler) GetRequest(w http.ResponseWriter, r *http.Request) {
	req, err := h.Requests.Get(r.Context(), chi.URLParam(r, "id"), callerID(r))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(req))
}

// ListMine returns the caller's own requests.
// GET /api/requests/mine?kind=LEAVE
func (h *Handler) ListMine(w http.ResponseWriter, r *http.Request) {
	var kinds []timeoff.Kind
	for _, k := range r.URL.Query()["kind"] {
		kind := timeoff.Kind(strings.ToUpper(k))
		if !kind.IsValid() {
			h.writeDomainError(w, r, generic.NewValidationError("kind", "unknown request kind %q", k))
			return
		}
		kinds = append(kinds, kind)
	}

	rs, err := h.Requests.ListByRequester(r.Context(), callerID(r), kinds...)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"requests": toRequestDTOs(rs)})
}

// UpdateLeave edits an unlocked leave.
// PUT /api/requests/{id}/leave
func (h *Handler) UpdateLeave(w http.ResponseWriter, r *http.Request) {
	var req LeaveRequest
	if !h.decode(w, r, &req) {
		return
	}

	updated, err := h.Requests.UpdateLeave(r.Context(), chi.URLParam(r, "id"), callerID(r), leaveInput(req), req.Reason)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(updated))
}

// CancelRequest withdraws an unlocked request.
// POST /api/requests/{id}/cancel
func (h *Handler) CancelRequest(w http.ResponseWriter, r *http.Request) {
	cancelled, err := h.Requests.Cancel(r.Context(), chi.URLParam(r, "id"), callerID(r))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(cancelled))
}

// =============================================================================
// APPROVAL WORKFLOW ENDPOINTS
// =============================================================================

// Decide records the caller's decision at one level.
// POST /api/requests/{id}/decision
func (h *Handler) Decide(w http.ResponseWriter, r *http.Request) {
	var req DecisionRequest
	if !h.decode(w, r, &req) {
		return
	}

	decided, err := h.Requests.Decide(r.Context(), timeoff.DecideInput{
		RequestID: chi.URLParam(r, "id"),
		Level:     workflow.Level(req.Level),
		ActorID:   callerID(r),
		Decision:  workflow.Decision(req.Decision),
		Note:      req.Note,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(decided))
}

// BulkDecide applies one decision to many requests. The response lists
// every item as processed or skipped.
// POST /api/requests/bulk-decision
func (h *Handler) BulkDecide(w http.ResponseWriter, r *http.Request) {
	var req BulkDecisionRequest
	if !h.decode(w, r, &req) {
		return
	}

	in := timeoff.BulkDecideInput{
		ActorID:  callerID(r),
		Decision: workflow.Decision(req.Decision),
		Note:     req.Note,
		Items:    make([]timeoff.BulkItem, len(req.Items)),
	}
	for i, item := range req.Items {
		in.Items[i] = timeoff.BulkItem{RequestID: item.RequestID, Level: workflow.Level(item.Level)}
	}

	res, err := h.Requests.BulkDecide(r.Context(), in)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, BulkResultDTO{
		Processed: toRequestDTOs(res.Processed),
		Skipped:   res.Skipped,
	})
}

// Inbox returns requests waiting on the caller, with requester names.
// GET /api/inbox
func (h *Handler) Inbox(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	rs, err := h.Requests.Inbox(ctx, callerID(r))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	dtos := make([]InboxItemDTO, 0, len(rs))
	for _, req := range rs {
		item := InboxItemDTO{RequestDTO: toRequestDTO(req), RequesterName: req.RequesterID}
		if h.Directory != nil {
			if e, err := h.Directory.Lookup(ctx, req.RequesterID); err == nil {
				item.RequesterName = e.Name
				item.Department = e.Department
			}
		}
		dtos = append(dtos, item)
	}

	writeJSON(w, http.StatusOK, map[string]any{"requests": dtos})
}

// =============================================================================
// HOLIDAY ENDPOINTS
// =============================================================================

// ListHolidays returns all stored holidays.
// GET /api/holidays
func (h *Handler) ListHolidays(w http.ResponseWriter, r *http.Request) {
	holidays, err := h.Holidays.ListHolidays(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	dtos := make([]HolidayDTO, 0, len(holidays))
	for _, hol := range holidays {
		dtos = append(dtos, toHolidayDTO(hol))
	}
	writeJSON(w, http.StatusOK, map[string]any{"holidays": dtos})
}

// CreateHoliday adds a holiday. The ID is derived from the date, so one
// date holds at most one stored holiday.
// POST /api/holidays
func (h *Handler) CreateHoliday(w http.ResponseWriter, r *http.Request) {
	var req HolidayRequest
	if !h.decode(w, r, &req) {
		return
	}

	date, _ := generic.ParseDate(req.Date)
	holiday := generic.Holiday{
		ID:        "holiday-" + date.String(),
		Date:      date,
		Name:      strings.TrimSpace(req.Name),
		Recurring: req.Recurring,
	}

	if err := h.Holidays.AddHoliday(r.Context(), holiday); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toHolidayDTO(holiday))
}

// DeleteHoliday deletes a holiday.
// DELETE /api/holidays/{id}
func (h *Handler) DeleteHoliday(w http.ResponseWriter, r *http.Request) {
	if err := h.Holidays.DeleteHoliday(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "deleted"})
}

// =============================================================================
// HELPERS
// =============================================================================

func callerID(r *http.Request) string {
	id, _ := IdentityFrom(r.Context())
	return id.EmployeeID
}

// selfOrHR lets employees read their own profile data and HR read anyone's.
func (h *Handler) selfOrHR(w http.ResponseWriter, r *http.Request, employeeID string) bool {
	id, _ := IdentityFrom(r.Context())
	if id.EmployeeID == employeeID || id.HasRole(RoleHR) {
		return true
	}
	h.writeDomainError(w, r, &generic.AuthorizationError{
		ActorID: id.EmployeeID,
		Action:  "read profile " + employeeID,
		Reason:  "not the employee or HR",
	})
	return false
}

func leaveInput(req LeaveRequest) timeoff.LeaveInput {
	in := timeoff.LeaveInput{Type: timeoff.LeaveType(req.LeaveType)}
	in.Start, _ = generic.ParseDate(req.StartDate)
	in.End, _ = generic.ParseDate(req.EndDate)
	return in
}

func optionalDate(s, field string) (generic.TimePoint, error) {
	if s == "" {
		return generic.TimePoint{}, nil
	}
	d, err := generic.ParseDate(s)
	if err != nil {
		return generic.TimePoint{}, generic.NewValidationError(field, "invalid date %q (use YYYY-MM-DD)", s)
	}
	return d, nil
}

// decode reads and validates a JSON body. It writes the 400 itself and
// reports whether the handler should continue.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				fields[fe.Field()] = "failed on '" + fe.Tag() + "'"
			}
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Validation failed", Code: "validation", Fields: fields})
			return false
		}
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps the timeoff error taxonomy to HTTP statuses.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		ve *generic.ValidationError
		ce *generic.ConflictError
		le *generic.LockedError
	)
	switch {
	case errors.As(err, &ce):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "conflict", CurrentStatus: ce.Current})
	case errors.As(err, &le):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "locked", CurrentStatus: le.Status})
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "validation", Field: ve.Field})
	case errors.Is(err, generic.ErrValidation):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "validation"})
	case errors.Is(err, generic.ErrUnauthorized):
		writeJSON(w, http.StatusForbidden, ErrorResponse{Error: err.Error(), Code: "forbidden"})
	case errors.Is(err, generic.ErrNotFound):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: "not_found"})
	default:
		h.log().Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "Internal error", nil)
	}
}
