package messaging

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event types
const (
	// Attendance events
	EventAttendanceCheckedIn  = "attendance.checked_in"
	EventAttendanceCheckedOut = "attendance.checked_out"

	// Auto-checkout events
	EventAutoCheckoutProposed  = "attendance.auto_checkout.proposed"
	EventAutoCheckoutCancelled = "attendance.auto_checkout.cancelled"
	EventAutoCheckoutExecuted  = "attendance.auto_checkout.executed"

	// Company events
	EventCompanyProvisioned   = "company.provisioned"
	EventCompanySettingsSaved = "company.settings.saved"
)

// Exchange names
const (
	ExchangeAttendanceEvents = "attendance.events"
	ExchangeCompanyEvents    = "company.events"
)

// Event is the base event structure
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            GenerateEventID(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// Attendance Events

// AttendanceCheckedInEvent is published when an employee checks in
type AttendanceCheckedInEvent struct {
	AttendanceLogID string    `json:"attendance_log_id"`
	EmployeeID      string    `json:"employee_id"`
	CompanyID       string    `json:"company_id"`
	BranchID        string    `json:"branch_id"`
	ShiftID         string    `json:"shift_id"`
	CheckInTime     time.Time `json:"check_in_time"`
	LatenessMinutes int       `json:"lateness_minutes"`
}

// AttendanceCheckedOutEvent is published when a session closes, whether
// manually or by the auto-checkout reconciler
type AttendanceCheckedOutEvent struct {
	AttendanceLogID string    `json:"attendance_log_id"`
	EmployeeID      string    `json:"employee_id"`
	CompanyID       string    `json:"company_id"`
	CheckInTime     time.Time `json:"check_in_time"`
	CheckOutTime    time.Time `json:"check_out_time"`
	CheckoutType    string    `json:"checkout_type"`
	CheckoutReason  string    `json:"checkout_reason,omitempty"`
	WorkMinutes     int       `json:"work_minutes"`
}

// Auto-Checkout Events

// AutoCheckoutProposedEvent is published when a client countdown completes
// and a pending auto-checkout row is created
type AutoCheckoutProposedEvent struct {
	PendingID       string    `json:"pending_id"`
	AttendanceLogID string    `json:"attendance_log_id"`
	EmployeeID      string    `json:"employee_id"`
	CompanyID       string    `json:"company_id"`
	Reason          string    `json:"reason"`
	EndsAt          time.Time `json:"ends_at"`
}

// AutoCheckoutCancelledEvent is published when a pending auto-checkout is
// cancelled before execution
type AutoCheckoutCancelledEvent struct {
	PendingID       string `json:"pending_id"`
	AttendanceLogID string `json:"attendance_log_id"`
	EmployeeID      string `json:"employee_id"`
	CompanyID       string `json:"company_id"`
	CancelReason    string `json:"cancel_reason"`
}

// AutoCheckoutExecutedEvent is published when the reconciler executes a
// pending auto-checkout and closes the session
type AutoCheckoutExecutedEvent struct {
	PendingID       string    `json:"pending_id"`
	AttendanceLogID string    `json:"attendance_log_id"`
	EmployeeID      string    `json:"employee_id"`
	CompanyID       string    `json:"company_id"`
	Reason          string    `json:"reason"`
	CheckOutTime    time.Time `json:"check_out_time"`
}

// Company Events

// CompanyProvisionedEvent is published when a company and its default
// settings are created
type CompanyProvisionedEvent struct {
	CompanyID string `json:"company_id"`
	Name      string `json:"name"`
	Timezone  string `json:"timezone"`
}

// CompanySettingsSavedEvent is published when company settings change
type CompanySettingsSavedEvent struct {
	CompanyID string         `json:"company_id"`
	Fields    map[string]any `json:"fields"`
}

// GenerateEventID generates a unique event ID
func GenerateEventID() string {
	return fmt.Sprintf("%d-%d", time.Now().UnixNano(), time.Now().Nanosecond()%10000)
}
