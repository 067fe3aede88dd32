/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the stores with realistic
	data for demos. Every scenario goes through the services, so the data
	obeys the same rules as live traffic: requests are validated, day
	counts recomputed and decisions committed through the guard.

AVAILABLE SCENARIOS:

	new-hire:           MANAGER_ONLY employee with one approved AL
	two-level-approval: MANAGER_AND_GM inbox with requests at every stage
	contract-renewal:   Overdrawn AL carried into a renewed contract
	swap-and-replace:   Holidays, a swap and a replace day under MANAGER_AND_COO

HOW SCENARIOS WORK:
 1. Reset the stores (clear all data)
 2. Add holidays and directory entries
 3. Onboard profiles (first contract opened by the profile service)
 4. Submit requests as the employees
 5. Decide as the assigned approvers

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "two-level-approval"}

NOTE:

	Scenarios reset the stores. Only use in development/demo environments.
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/timeoff"
	"github.com/warp/leave-engine/workflow"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "new-hire",
		Name:        "New Hire",
		Description: "Single-level approval, accrual from the join date, one approved AL",
	},
	{
		ID:          "two-level-approval",
		Name:        "Two-Level Approval",
		Description: "Manager then GM: requests pending, half-approved and rejected",
	},
	{
		ID:          "contract-renewal",
		Name:        "Contract Renewal",
		Description: "AL overdrawn in the first contract, debt carried into the second",
	},
	{
		ID:          "swap-and-replace",
		Name:        "Swap & Replace",
		Description: "Holiday calendar with a swap working day and a replace day",
	},
}

type scenarioLoader func(h *Handler, ctx context.Context) error

var scenarioLoaders = map[string]scenarioLoader{
	"new-hire":           (*Handler).loadNewHireScenario,
	"two-level-approval": (*Handler).loadTwoLevelScenario,
	"contract-renewal":   (*Handler).loadContractRenewalScenario,
	"swap-and-replace":   (*Handler).loadSwapAndReplaceScenario,
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	for _, s := range scenarios {
		if s.ID == h.currentScenario {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the stores and loads one scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req LoadScenarioRequest
	if !h.decode(w, r, &req) {
		return
	}

	loader, ok := scenarioLoaders[req.ScenarioID]
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario: "+req.ScenarioID, nil)
		return
	}
	if h.Resetter == nil {
		writeError(w, http.StatusInternalServerError, "Store does not support reset", nil)
		return
	}

	if err := h.Resetter.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset stores", err)
		return
	}
	if err := loader(h, ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}
	h.currentScenario = req.ScenarioID

	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "loaded",
		"scenario": req.ScenarioID,
	})
}

// =============================================================================
// SCENARIO: NEW HIRE
// =============================================================================

func (h *Handler) loadNewHireScenario(ctx context.Context) error {
	if err := h.seedEmployees(ctx,
		timeoff.DirectoryEntry{EmployeeID: "mgr-binh", Name: "Binh Tran", Department: "Engineering"},
		timeoff.DirectoryEntry{EmployeeID: "emp-an", Name: "An Nguyen", Department: "Engineering"},
	); err != nil {
		return err
	}

	if err := h.onboard(ctx, "emp-an", "2025-01-06", workflow.Approvers{ManagerID: "mgr-binh"}, workflow.ModeManagerOnly); err != nil {
		return err
	}

	leave, err := h.submitLeave(ctx, "emp-an", timeoff.LeaveAnnual, "2025-03-10", "2025-03-11", "Family trip")
	if err != nil {
		return err
	}
	return h.decide(ctx, leave.ID, workflow.LevelManager, "mgr-binh", workflow.DecisionApprove, "")
}

// =============================================================================
// SCENARIO: TWO-LEVEL APPROVAL
// =============================================================================

func (h *Handler) loadTwoLevelScenario(ctx context.Context) error {
	if err := h.seedEmployees(ctx,
		timeoff.DirectoryEntry{EmployeeID: "mgr-binh", Name: "Binh Tran", Department: "Engineering"},
		timeoff.DirectoryEntry{EmployeeID: "gm-chi", Name: "Chi Le", Department: "Management"},
		timeoff.DirectoryEntry{EmployeeID: "emp-dung", Name: "Dung Pham", Department: "Engineering"},
	); err != nil {
		return err
	}

	approvers := workflow.Approvers{ManagerID: "mgr-binh", GMID: "gm-chi"}
	if err := h.onboard(ctx, "emp-dung", "2022-02-01", approvers, workflow.ModeManagerAndGM); err != nil {
		return err
	}

	// Waiting on the manager.
	if _, err := h.submitLeave(ctx, "emp-dung", timeoff.LeaveAnnual, "2025-04-07", "2025-04-08", "Moving house"); err != nil {
		return err
	}

	// Manager approved, waiting on the GM.
	mc, err := h.submitLeave(ctx, "emp-dung", timeoff.LeaveMedical, "2025-04-14", "2025-04-14", "Clinic visit")
	if err != nil {
		return err
	}
	if err := h.decide(ctx, mc.ID, workflow.LevelManager, "mgr-binh", workflow.DecisionApprove, ""); err != nil {
		return err
	}

	// Rejected at the first level.
	sp, err := h.submitLeave(ctx, "emp-dung", timeoff.LeaveSpecial, "2025-04-21", "2025-04-21", "Personal errand")
	if err != nil {
		return err
	}
	return h.decide(ctx, sp.ID, workflow.LevelManager, "mgr-binh", workflow.DecisionReject, "Release week, please pick another day")
}

// =============================================================================
// SCENARIO: CONTRACT RENEWAL
// =============================================================================

func (h *Handler) loadContractRenewalScenario(ctx context.Context) error {
	if err := h.seedEmployees(ctx,
		timeoff.DirectoryEntry{EmployeeID: "gm-chi", Name: "Chi Le", Department: "Management"},
		timeoff.DirectoryEntry{EmployeeID: "emp-giang", Name: "Giang Vo", Department: "Sales"},
	); err != nil {
		return err
	}

	if err := h.onboard(ctx, "emp-giang", "2024-01-02", workflow.Approvers{GMID: "gm-chi"}, workflow.ModeGMOnly); err != nil {
		return err
	}

	// Six working days (Mon-Sat) against three accrued by the end of March.
	leave, err := h.submitLeave(ctx, "emp-giang", timeoff.LeaveAnnual, "2024-03-04", "2024-03-09", "Wedding")
	if err != nil {
		return err
	}
	if err := h.decide(ctx, leave.ID, workflow.LevelGM, "gm-chi", workflow.DecisionApprove, ""); err != nil {
		return err
	}

	start, _ := generic.ParseDate("2024-04-01")
	if _, err := h.Profiles.RenewContract(ctx, "emp-giang", timeoff.RenewInput{Start: start}); err != nil {
		return fmt.Errorf("failed to renew contract: %w", err)
	}
	return nil
}

// =============================================================================
// SCENARIO: SWAP AND REPLACE
// =============================================================================

func (h *Handler) loadSwapAndReplaceScenario(ctx context.Context) error {
	holidays := []generic.Holiday{
		{ID: "holiday-2025-04-30", Date: generic.NewTimePoint(2025, time.April, 30), Name: "Reunification Day"},
		{ID: "holiday-2025-05-01", Date: generic.NewTimePoint(2025, time.May, 1), Name: "Labour Day", Recurring: true},
	}
	for _, hol := range holidays {
		if err := h.Holidays.AddHoliday(ctx, hol); err != nil {
			return fmt.Errorf("failed to add holiday %s: %w", hol.ID, err)
		}
	}

	if err := h.seedEmployees(ctx,
		timeoff.DirectoryEntry{EmployeeID: "mgr-binh", Name: "Binh Tran", Department: "Engineering"},
		timeoff.DirectoryEntry{EmployeeID: "coo-khanh", Name: "Khanh Do", Department: "Operations"},
		timeoff.DirectoryEntry{EmployeeID: "emp-hoa", Name: "Hoa Ly", Department: "Support"},
	); err != nil {
		return err
	}

	approvers := workflow.Approvers{ManagerID: "mgr-binh", COOID: "coo-khanh"}
	if err := h.onboard(ctx, "emp-hoa", "2023-05-02", approvers, workflow.ModeManagerAndCOO); err != nil {
		return err
	}

	// Works Sunday 2025-05-04, takes Tuesday 2025-05-06 off.
	swap, err := h.Requests.CreateSwap(ctx, "emp-hoa", timeoff.SwapInput{
		RequestStart: generic.NewTimePoint(2025, time.May, 4),
		RequestEnd:   generic.NewTimePoint(2025, time.May, 4),
		OffStart:     generic.NewTimePoint(2025, time.May, 6),
		OffEnd:       generic.NewTimePoint(2025, time.May, 6),
	}, "Release support")
	if err != nil {
		return fmt.Errorf("failed to create swap: %w", err)
	}
	if err := h.decide(ctx, swap.ID, workflow.LevelManager, "mgr-binh", workflow.DecisionApprove, ""); err != nil {
		return err
	}

	_, err = h.Requests.CreateReplace(ctx, "emp-hoa", timeoff.ReplaceInput{
		RequestDate:      generic.NewTimePoint(2025, time.May, 11),
		CompensatoryDate: generic.NewTimePoint(2025, time.May, 12),
	}, "Customer migration")
	if err != nil {
		return fmt.Errorf("failed to create replace: %w", err)
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) seedEmployees(ctx context.Context, entries ...timeoff.DirectoryEntry) error {
	if h.Employees == nil {
		return nil
	}
	for _, e := range entries {
		if err := h.Employees.SaveEmployee(ctx, e); err != nil {
			return fmt.Errorf("failed to save employee %s: %w", e.EmployeeID, err)
		}
	}
	return nil
}

func (h *Handler) onboard(ctx context.Context, employeeID, joinDate string, approvers workflow.Approvers, mode workflow.Mode) error {
	join, err := generic.ParseDate(joinDate)
	if err != nil {
		return err
	}
	_, err = h.Profiles.Upsert(ctx, timeoff.ProfileInput{
		EmployeeID:   employeeID,
		JoinDate:     join,
		Approvers:    approvers,
		ApprovalMode: mode,
	})
	if err != nil {
		return fmt.Errorf("failed to onboard %s: %w", employeeID, err)
	}
	return nil
}

func (h *Handler) submitLeave(ctx context.Context, employeeID string, lt timeoff.LeaveType, start, end, reason string) (*timeoff.Request, error) {
	in := timeoff.LeaveInput{Type: lt}
	in.Start, _ = generic.ParseDate(start)
	in.End, _ = generic.ParseDate(end)
	r, err := h.Requests.CreateLeave(ctx, employeeID, in, reason)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s leave for %s: %w", lt, employeeID, err)
	}
	return r, nil
}

func (h *Handler) decide(ctx context.Context, id string, level workflow.Level, actorID string, d workflow.Decision, note string) error {
	_, err := h.Requests.Decide(ctx, timeoff.DecideInput{
		RequestID: id,
		Level:     level,
		ActorID:   actorID,
		Decision:  d,
		Note:      note,
	})
	if err != nil {
		return fmt.Errorf("failed to %s %s at %s: %w", d, id, level, err)
	}
	return nil
}
