/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Request types carry go-playground/validator tags for shape checks
  (required fields, enums, date format). Domain rules (working days, caps,
  duplicate days, guards) are enforced by the timeoff package.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/timeoff"
	"github.com/warp/leave-engine/workflow"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// ProfileRequest onboards or updates an employee. Name and Department feed
// the directory.
type ProfileRequest struct {
	JoinDate           string `json:"join_date" validate:"required,datetime=2006-01-02"`
	FirstContractStart string `json:"first_contract_start,omitempty" validate:"omitempty,datetime=2006-01-02"`
	ManagerID          string `json:"manager_id,omitempty" validate:"omitempty,max=64"`
	GMID               string `json:"gm_id,omitempty" validate:"omitempty,max=64"`
	COOID              string `json:"coo_id,omitempty" validate:"omitempty,max=64"`
	ApprovalMode       string `json:"approval_mode,omitempty" validate:"omitempty,oneof=MANAGER_AND_GM MANAGER_AND_COO GM_AND_COO MANAGER_ONLY GM_ONLY"`
	Name               string `json:"name,omitempty" validate:"omitempty,max=200"`
	Department         string `json:"department,omitempty" validate:"omitempty,max=200"`
}

type RenewContractRequest struct {
	StartDate string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate   string `json:"end_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

type LeaveRequest struct {
	LeaveType string `json:"leave_type" validate:"required,oneof=AL SP MC MA UL"`
	StartDate string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate   string `json:"end_date" validate:"required,datetime=2006-01-02"`
	Reason    string `json:"reason,omitempty" validate:"max=1000"`
}

type SwapRequest struct {
	RequestStartDate string `json:"request_start_date" validate:"required,datetime=2006-01-02"`
	RequestEndDate   string `json:"request_end_date" validate:"required,datetime=2006-01-02"`
	OffStartDate     string `json:"off_start_date" validate:"required,datetime=2006-01-02"`
	OffEndDate       string `json:"off_end_date" validate:"required,datetime=2006-01-02"`
	Reason           string `json:"reason,omitempty" validate:"max=1000"`
}

type ReplaceRequest struct {
	RequestDate      string `json:"request_date" validate:"required,datetime=2006-01-02"`
	CompensatoryDate string `json:"compensatory_date" validate:"required,datetime=2006-01-02"`
	Reason           string `json:"reason,omitempty" validate:"max=1000"`
}

type DecisionRequest struct {
	Level    string `json:"level" validate:"required,oneof=MANAGER GM COO"`
	Decision string `json:"decision" validate:"required,oneof=APPROVE REJECT"`
	Note     string `json:"note,omitempty" validate:"max=1000"`
}

// BulkItemRequest names one request. An empty level means the level the
// request currently waits on.
type BulkItemRequest struct {
	RequestID string `json:"request_id" validate:"required"`
	Level     string `json:"level,omitempty" validate:"omitempty,oneof=MANAGER GM COO"`
}

type BulkDecisionRequest struct {
	Items    []BulkItemRequest `json:"items" validate:"required,min=1,max=200,dive"`
	Decision string            `json:"decision" validate:"required,oneof=APPROVE REJECT"`
	Note     string            `json:"note,omitempty" validate:"max=1000"`
}

type HolidayRequest struct {
	Date      string `json:"date" validate:"required,datetime=2006-01-02"`
	Name      string `json:"name" validate:"required,max=200"`
	Recurring bool   `json:"recurring"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// RequestDTO is a request as shown to its requester and approvers.
type RequestDTO struct {
	ID            string                 `json:"id"`
	Kind          timeoff.Kind           `json:"kind"`
	RequesterID   string                 `json:"requester_id"`
	Status        workflow.State         `json:"status"`
	ApprovalMode  workflow.Mode          `json:"approval_mode"`
	AwaitingLevel workflow.Level         `json:"awaiting_level,omitempty"`
	RejectedLevel workflow.Level         `json:"rejected_level,omitempty"`
	Approvers     workflow.Approvers     `json:"approvers"`
	Approvals     []workflow.Approval    `json:"approvals"`
	TotalDays     generic.Amount         `json:"total_days"`
	Reason        string                 `json:"reason,omitempty"`
	Locked        bool                   `json:"locked"`
	Leave         *timeoff.LeaveDetail   `json:"leave,omitempty"`
	Swap          *timeoff.SwapDetail    `json:"swap,omitempty"`
	Replace       *timeoff.ReplaceDetail `json:"replace,omitempty"`
	CreatedAt     string                 `json:"created_at"`
	UpdatedAt     string                 `json:"updated_at"`
}

// InboxItemDTO is a pending request enriched with the requester's
// directory entry.
type InboxItemDTO struct {
	RequestDTO
	RequesterName string `json:"requester_name"`
	Department    string `json:"department,omitempty"`
}

type BulkResultDTO struct {
	Processed []RequestDTO      `json:"processed"`
	Skipped   []timeoff.Skipped `json:"skipped"`
}

type RenewResultDTO struct {
	Profile           *timeoff.Profile `json:"profile"`
	Closed            timeoff.Contract `json:"closed"`
	Opened            timeoff.Contract `json:"opened"`
	PreviousRemaining generic.Amount   `json:"previous_remaining"`
}

type HolidayDTO struct {
	ID        string `json:"id"`
	Date      string `json:"date"`
	Name      string `json:"name"`
	Recurring bool   `json:"recurring"`
}

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error         string            `json:"error"`
	Code          string            `json:"code,omitempty"`
	Field         string            `json:"field,omitempty"`
	CurrentStatus string            `json:"current_status,omitempty"`
	Details       any               `json:"details,omitempty"`
	Fields        map[string]string `json:"fields,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toRequestDTO(r *timeoff.Request) RequestDTO {
	level, _ := r.AwaitingLevel()
	rejected, _ := r.RejectedLevel()
	approvals := []workflow.Approval(r.Approvals)
	if approvals == nil {
		approvals = []workflow.Approval{}
	}
	return RequestDTO{
		ID:            r.ID,
		Kind:          r.Kind,
		RequesterID:   r.RequesterID,
		Status:        r.Status,
		ApprovalMode:  r.Mode,
		AwaitingLevel: level,
		RejectedLevel: rejected,
		Approvers:     r.Approvers,
		Approvals:     approvals,
		TotalDays:     r.TotalDays,
		Reason:        r.Reason,
		Locked:        r.Locked(),
		Leave:         r.Leave,
		Swap:          r.Swap,
		Replace:       r.Replace,
		CreatedAt:     r.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:     r.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func toRequestDTOs(rs []*timeoff.Request) []RequestDTO {
	dtos := make([]RequestDTO, len(rs))
	for i, r := range rs {
		dtos[i] = toRequestDTO(r)
	}
	return dtos
}

func toHolidayDTO(h generic.Holiday) HolidayDTO {
	return HolidayDTO{ID: h.ID, Date: h.Date.String(), Name: h.Name, Recurring: h.Recurring}
}
