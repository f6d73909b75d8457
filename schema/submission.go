package schema

import "time"

// Backend action names
const (
	ActionMarkAttendance     = "markAttendance"
	ActionRegisterDevice     = "registerDevice"
	ActionCreateVisit        = "createVisit"
	ActionRegistrationStatus = "getRegistrationStatus"
	ActionListFormations     = "listFormations"
	ActionListDepartments    = "listDepartments"
	ActionAvailableModules   = "getAvailableModules"
)

// SubmissionOutcome - result of a single submission attempt
type SubmissionOutcome string

const (
	OutcomeAccepted SubmissionOutcome = "accepted"
	OutcomeRejected SubmissionOutcome = "rejected"
	OutcomeFailed   SubmissionOutcome = "failed"
)

// AttendancePayload is the body of a markAttendance call.
type AttendancePayload struct {
	EmployeeID  string     `json:"employeeId"`
	Token       string     `json:"token"`
	FormationID string     `json:"formationId"`
	DeviceHash  string     `json:"deviceHash"`
	Location    GeoReading `json:"location"`
}

// DevicePayload is the body of a registerDevice call.
type DevicePayload struct {
	EmployeeID string     `json:"employeeId"`
	DeviceHash string     `json:"deviceHash"`
	Location   GeoReading `json:"location"`
}

// VisitPayload is the body of a createVisit call.
type VisitPayload struct {
	Name        string `json:"name"`
	Phone       string `json:"phone"`
	Purpose     string `json:"purpose"`
	StaffToSee  string `json:"staffToSee"`
	FormationID string `json:"formationId"`
	SubUnitID   string `json:"subUnitId"`
}

// RegistrationStatus is the data part of a getRegistrationStatus response.
type RegistrationStatus struct {
	Enabled bool `json:"enabled"`
}

// SubmissionRecord is a journal entry for one submission attempt. Only the device digest is kept,
// never the raw fingerprint signals.
type SubmissionRecord struct {
	ID          string            `json:"id"`
	Action      string            `json:"action"`
	EmployeeID  string            `json:"employee_id,omitempty"`
	FormationID string            `json:"formation_id,omitempty"`
	DeviceHash  string            `json:"device_hash,omitempty"`
	Location    *GeoReading       `json:"location,omitempty"`
	Outcome     SubmissionOutcome `json:"outcome"`
	Reason      string            `json:"reason,omitempty"`
	Message     string            `json:"message,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}
