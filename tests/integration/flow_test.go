//go:build integration
// +build integration

// Package integration provides end-to-end tests for the Warden
// violation engine.
//
// These tests verify the COMPLETE escalation pipeline:
//
//	Snapshot → Rules → Violation Events → Status Aggregation
//
// Run with: go test -tags=integration -v ./tests/integration/...
//
// UNDERSTANDING THE DOMAIN:
//
// 1. SNAPSHOT: Per-employee counters for an observation window
//    (timeout rate, message leads, published notes).
//
// 2. RULE CONFIGURATION: Thresholds an operator submits with a run:
//   - timeout rule: rate strictly above threshold AND enough leads
//   - shortfall rule: published notes strictly below the minimum
//   - both firing for one employee produces TWO events
//
// 3. VIOLATION EVENT: One recorded infraction. Carries its frozen
//    rule config and snapshot; can be toggled non-effective instead
//    of deleted.
//
// 4. STATUS: Derived from effective events only. Every K warnings
//    (default 3) convert into one suspension.
//
// The server must be running; point WARDEN_TEST_URL at it (defaults
// to http://localhost:8080).
package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"
)

func baseURL() string {
	if url := os.Getenv("WARDEN_TEST_URL"); url != "" {
		return url
	}
	return "http://localhost:8080"
}

type violationEvent struct {
	ID            string `json:"id"`
	EmployeeID    string `json:"employeeId"`
	EmployeeName  string `json:"employeeName"`
	Kind          string `json:"kind"`
	Reason        string `json:"reason"`
	SourceType    string `json:"sourceType"`
	SourceBatchID string `json:"sourceBatchId"`
	IsEffective   bool   `json:"isEffective"`
}

type employeeCreated struct {
	EmployeeID string           `json:"employeeId"`
	Events     []violationEvent `json:"events"`
}

type runResult struct {
	BatchID string            `json:"batchId"`
	Created []employeeCreated `json:"created"`
	Skipped []string          `json:"skipped"`
	Errors  []struct {
		ID  string `json:"id"`
		Err string `json:"error"`
	} `json:"errors"`
}

type violationStatus struct {
	EmployeeID             string `json:"employeeId"`
	Status                 string `json:"status"`
	CurrentWarningCount    int    `json:"currentWarningCount"`
	CurrentSuspensionCount int    `json:"currentSuspensionCount"`
	TotalViolations        int    `json:"totalViolations"`
	History                []struct {
		Week       string `json:"week"`
		ChangeType string `json:"changeType"`
	} `json:"statusHistory"`
}

func doRequest(t *testing.T, method, path string, body any, out any) int {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to marshal request: %v", err)
		}
	}

	req, err := http.NewRequest(method, baseURL()+path, &buf)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response: %v", err)
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			t.Fatalf("failed to unmarshal response: %v (body: %s)", err, string(data))
		}
	}
	return resp.StatusCode
}

func seedSnapshot(t *testing.T, employeeID string, rate float64, leads, notes int) {
	t.Helper()
	code := doRequest(t, "POST", "/snapshots", map[string]any{
		"employeeId":          employeeID,
		"windowStart":         "2026-02-02T00:00:00Z",
		"windowEnd":           "2026-02-08T23:59:59Z",
		"timeoutRatePercent":  rate,
		"messageLeadsCount":   leads,
		"publishedNotesCount": notes,
	}, nil)
	if code != http.StatusCreated {
		t.Fatalf("snapshot seed failed with status %d", code)
	}
}

func runBatch(t *testing.T, employeeIDs []string) runResult {
	t.Helper()
	var res runResult
	code := doRequest(t, "POST", "/runs", map[string]any{
		"employeeIds": employeeIDs,
		"ruleConfig": map[string]any{
			"timeoutRateThresholdPercent": 30.0,
			"minLeadsForTimeoutRule":      10,
			"minPublishedNotes":           3,
		},
	}, &res)
	if code != http.StatusOK {
		t.Fatalf("run failed with status %d", code)
	}
	return res
}

func getStatus(t *testing.T, employeeID string) violationStatus {
	t.Helper()
	var st violationStatus
	code := doRequest(t, "GET", "/employees/"+employeeID+"/status", nil, &st)
	if code != http.StatusOK {
		t.Fatalf("status fetch failed with status %d", code)
	}
	return st
}

// uniqueID keeps reruns against a persistent server independent.
func uniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}

func TestCleanEmployee_NoEvents(t *testing.T) {
	id := uniqueID("it-clean")
	seedSnapshot(t, id, 5.0, 50, 10)

	res := runBatch(t, []string{id})
	if len(res.Created) != 0 {
		t.Errorf("expected no events for clean metrics, got %+v", res.Created)
	}
	if len(res.Skipped) != 1 || res.Skipped[0] != id {
		t.Errorf("expected employee reported as skipped, got %v", res.Skipped)
	}

	st := getStatus(t, id)
	if st.Status != "normal" {
		t.Errorf("expected normal status, got %s", st.Status)
	}
}

func TestBothRulesFire_TwoEvents(t *testing.T) {
	id := uniqueID("it-both")
	seedSnapshot(t, id, 60.0, 20, 1)

	res := runBatch(t, []string{id})
	if len(res.Created) != 1 {
		t.Fatalf("expected one employee with events, got %+v", res.Created)
	}
	entry := res.Created[0]
	if len(entry.Events) != 2 {
		t.Fatalf("expected two events when both rules fire, got %d", len(entry.Events))
	}
	for _, ev := range entry.Events {
		if ev.SourceBatchID != res.BatchID {
			t.Errorf("event batch id %q does not match run %q", ev.SourceBatchID, res.BatchID)
		}
		if ev.SourceType != "auto_generated" {
			t.Errorf("expected auto_generated source, got %s", ev.SourceType)
		}
	}

	st := getStatus(t, id)
	if st.Status != "warned" || st.CurrentWarningCount != 2 {
		t.Errorf("expected two warnings, got %+v", st)
	}
}

func TestEscalationAndToggle(t *testing.T) {
	id := uniqueID("it-escalate")

	// Three manual violations push the employee to suspension.
	var ids []string
	for i := 0; i < 3; i++ {
		var ev violationEvent
		code := doRequest(t, "POST", "/events", map[string]any{
			"employeeId": id,
			"kind":       "response_timeout",
			"reason":     fmt.Sprintf("manual violation %d", i+1),
		}, &ev)
		if code != http.StatusCreated {
			t.Fatalf("event create failed with status %d", code)
		}
		ids = append(ids, ev.ID)
	}

	st := getStatus(t, id)
	if st.Status != "suspended" || st.CurrentSuspensionCount != 1 || st.CurrentWarningCount != 0 {
		t.Fatalf("expected suspension after three warnings, got %+v", st)
	}
	if len(st.History) != 4 {
		t.Errorf("expected 3 violation + 1 escalation history entries, got %d", len(st.History))
	}

	// Toggling one event off downgrades without destroying the record.
	code := doRequest(t, "PATCH", "/events/"+ids[2]+"/effective", map[string]any{"effective": false}, nil)
	if code != http.StatusOK {
		t.Fatalf("toggle failed with status %d", code)
	}

	st = getStatus(t, id)
	if st.Status != "warned" || st.CurrentWarningCount != 2 {
		t.Errorf("expected downgrade to two warnings, got %+v", st)
	}

	// Toggling it back restores the suspension.
	code = doRequest(t, "PATCH", "/events/"+ids[2]+"/effective", map[string]any{"effective": true}, nil)
	if code != http.StatusOK {
		t.Fatalf("toggle back failed with status %d", code)
	}

	st = getStatus(t, id)
	if st.Status != "suspended" || st.CurrentSuspensionCount != 1 {
		t.Errorf("expected suspension restored, got %+v", st)
	}
}

func TestPartialRunFailure(t *testing.T) {
	seeded := uniqueID("it-ok")
	missing := uniqueID("it-missing")
	seedSnapshot(t, seeded, 60.0, 20, 10)

	res := runBatch(t, []string{seeded, missing})
	if len(res.Created) != 1 || res.Created[0].EmployeeID != seeded {
		t.Errorf("expected seeded employee created, got %+v", res.Created)
	}
	if len(res.Errors) != 1 || res.Errors[0].ID != missing {
		t.Errorf("expected one error for missing snapshot, got %+v", res.Errors)
	}
}
