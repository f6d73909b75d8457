package submission

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/formationdesk/checkin/external/backend"
	"github.com/formationdesk/checkin/fingerprint"
	"github.com/formationdesk/checkin/geo"
	"github.com/formationdesk/checkin/schema"
)

const logPrefix = "submission"

// Locator returns a reading that already passed the accuracy gate.
type Locator interface {
	Locate(ctx context.Context) (schema.GeoReading, error)
}

// DeviceIdentifier returns the device digest.
type DeviceIdentifier interface {
	Digest(ctx context.Context) (string, error)
}

// Journal keeps a record of every attempt.
type Journal interface {
	Record(ctx context.Context, r schema.SubmissionRecord) error
}

// AttendanceForm is what the attendance page collects. FormationID comes from the QR code.
type AttendanceForm struct {
	EmployeeID  string `json:"employee_id"`
	Token       string `json:"token"`
	FormationID string `json:"formation_id"`
}

// DeviceForm is what the device registration page collects.
type DeviceForm struct {
	EmployeeID string `json:"employee_id"`
}

// VisitForm is what the visitor page collects. FormationID and SubUnitID come from the QR
// code.
type VisitForm struct {
	Name        string `json:"name"`
	Phone       string `json:"phone"`
	Purpose     string `json:"purpose"`
	StaffToSee  string `json:"staff_to_see"`
	FormationID string `json:"formation_id"`
	SubUnitID   string `json:"sub_unit_id"`
}

// Receipt is an accepted submission.
type Receipt struct {
	ID       string            `json:"id"`
	Action   string            `json:"action"`
	Message  string            `json:"message"`
	Response *backend.Response `json:"-"`
}

// Flow runs the check-in workflows. Location is acquired and gated before the device is
// fingerprinted, and both happen before anything is sent.
type Flow struct {
	locator Locator
	device  DeviceIdentifier
	backend backend.Caller
	journal Journal

	now   func() time.Time
	newID func() string
}

// NewFlow returns a flow. journal may be nil.
func NewFlow(locator Locator, device DeviceIdentifier, caller backend.Caller, journal Journal) *Flow {
	return &Flow{
		locator: locator,
		device:  device,
		backend: caller,
		journal: journal,
		now:     time.Now,
		newID:   func() string { return uuid.New().String() },
	}
}

// MarkAttendance records the attendance of an employee at the formation of the scanned QR
// code.
func (f *Flow) MarkAttendance(ctx context.Context, form AttendanceForm) (*Receipt, error) {
	form.EmployeeID = strings.TrimSpace(form.EmployeeID)
	form.Token = strings.TrimSpace(form.Token)
	form.FormationID = strings.TrimSpace(form.FormationID)

	rec := f.newRecord(schema.ActionMarkAttendance)
	rec.EmployeeID = form.EmployeeID
	rec.FormationID = form.FormationID

	if form.FormationID == "" {
		return nil, f.fail(ctx, &rec, StepForm, invalidQR("invalid_qr_attendance",
			"Missing formation information. Please rescan the official QR code for your office."))
	}

	reading, hash, err := f.locateAndIdentify(ctx, &rec)
	if err != nil {
		return nil, err
	}

	var missing []string
	if form.EmployeeID == "" {
		missing = append(missing, "employee_id")
	}
	if form.Token == "" {
		missing = append(missing, "token")
	}
	if len(missing) > 0 {
		return nil, f.fail(ctx, &rec, StepForm, missingFields("Employee ID and token are required.", missing...))
	}

	payload := schema.AttendancePayload{
		EmployeeID:  form.EmployeeID,
		Token:       form.Token,
		FormationID: form.FormationID,
		DeviceHash:  hash,
		Location:    reading,
	}
	return f.submit(ctx, &rec, payload, "Your attendance has been recorded successfully.")
}

// RegisterDevice binds the current device to an employee. It refuses to proceed unless the
// backend confirms registration is open.
func (f *Flow) RegisterDevice(ctx context.Context, form DeviceForm) (*Receipt, error) {
	form.EmployeeID = strings.TrimSpace(form.EmployeeID)

	rec := f.newRecord(schema.ActionRegisterDevice)
	rec.EmployeeID = form.EmployeeID

	if err := f.registrationOpen(ctx); err != nil {
		return nil, f.fail(ctx, &rec, StepRegistration, err)
	}

	reading, hash, err := f.locateAndIdentify(ctx, &rec)
	if err != nil {
		return nil, err
	}

	if form.EmployeeID == "" {
		return nil, f.fail(ctx, &rec, StepForm, missingFields("Employee ID is required.", "employee_id"))
	}

	payload := schema.DevicePayload{
		EmployeeID: form.EmployeeID,
		DeviceHash: hash,
		Location:   reading,
	}
	return f.submit(ctx, &rec, payload, "Your device has been successfully registered.")
}

// CreateVisit files a visit request. Visitors are not location gated.
func (f *Flow) CreateVisit(ctx context.Context, form VisitForm) (*Receipt, error) {
	payload := schema.VisitPayload{
		Name:        strings.TrimSpace(form.Name),
		Phone:       strings.TrimSpace(form.Phone),
		Purpose:     strings.TrimSpace(form.Purpose),
		StaffToSee:  strings.TrimSpace(form.StaffToSee),
		FormationID: strings.TrimSpace(form.FormationID),
		SubUnitID:   strings.TrimSpace(form.SubUnitID),
	}

	rec := f.newRecord(schema.ActionCreateVisit)
	rec.FormationID = payload.FormationID

	if payload.FormationID == "" || payload.SubUnitID == "" {
		return nil, f.fail(ctx, &rec, StepForm, invalidQR("invalid_qr_visitor",
			"Missing formation or sub-unit information. Please rescan the official visitor QR code for this office."))
	}

	var missing []string
	for _, field := range []struct{ name, value string }{
		{"name", payload.Name},
		{"phone", payload.Phone},
		{"purpose", payload.Purpose},
		{"staff_to_see", payload.StaffToSee},
	} {
		if field.value == "" {
			missing = append(missing, field.name)
		}
	}
	if len(missing) > 0 {
		return nil, f.fail(ctx, &rec, StepForm, missingFields("All fields are required. Please fill in all details.", missing...))
	}

	return f.submit(ctx, &rec, payload, "Your visit request has been submitted. You will be notified once approved.")
}

func (f *Flow) registrationOpen(ctx context.Context) error {
	resp, err := f.backend.Call(ctx, schema.ActionRegistrationStatus, struct{}{})
	if err != nil {
		return &RegistrationClosedError{Cause: err}
	}

	var status schema.RegistrationStatus
	if err := resp.Decode(&status); err != nil || !status.Enabled {
		return &RegistrationClosedError{}
	}
	return nil
}

func (f *Flow) locateAndIdentify(ctx context.Context, rec *schema.SubmissionRecord) (schema.GeoReading, string, error) {
	reading, err := f.locator.Locate(ctx)
	if err != nil {
		return schema.GeoReading{}, "", f.fail(ctx, rec, StepLocation, err)
	}
	rec.Location = &reading

	hash, err := f.device.Digest(ctx)
	if err != nil {
		return schema.GeoReading{}, "", f.fail(ctx, rec, StepFingerprint, err)
	}
	rec.DeviceHash = hash

	return reading, hash, nil
}

func (f *Flow) submit(ctx context.Context, rec *schema.SubmissionRecord, payload interface{}, fallback string) (*Receipt, error) {
	resp, err := f.backend.Call(ctx, rec.Action, payload)
	if err != nil {
		return nil, f.fail(ctx, rec, StepSubmit, err)
	}

	msg := resp.Message
	if msg == "" {
		msg = fallback
	}

	rec.Outcome = schema.OutcomeAccepted
	rec.Message = msg
	f.record(ctx, *rec)

	log.WithField("prefix", logPrefix).Infof("%s accepted: %s", rec.Action, rec.ID)
	return &Receipt{ID: rec.ID, Action: rec.Action, Message: msg, Response: resp}, nil
}

func (f *Flow) fail(ctx context.Context, rec *schema.SubmissionRecord, step Step, err error) error {
	rec.Outcome, rec.Reason = classify(err)
	rec.Message = err.Error()
	f.record(ctx, *rec)

	log.WithField("prefix", logPrefix).Warnf("%s %s failed: %s", rec.Action, step, err)
	return &StepError{Step: step, Err: err}
}

func (f *Flow) newRecord(action string) schema.SubmissionRecord {
	return schema.SubmissionRecord{
		ID:        f.newID(),
		Action:    action,
		CreatedAt: f.now().UTC(),
	}
}

func (f *Flow) record(ctx context.Context, rec schema.SubmissionRecord) {
	if f.journal == nil {
		return
	}
	// the outcome stands even if it cannot be journaled
	if err := f.journal.Record(context.WithoutCancel(ctx), rec); err != nil {
		log.WithField("prefix", logPrefix).Errorf("journal %s: %s", rec.ID, err)
	}
}

// classify maps a step failure to its journal outcome and reason. Failures the user or the
// backend decided are rejections, the rest are failures.
func classify(err error) (schema.SubmissionOutcome, string) {
	var (
		failure    *geo.Failure
		crypto     *fingerprint.UnsupportedCryptoError
		validation *ValidationError
		closed     *RegistrationClosedError
		be         *backend.Error
	)

	switch {
	case errors.As(err, &failure):
		return schema.OutcomeFailed, string(failure.Kind)
	case errors.As(err, &crypto):
		return schema.OutcomeFailed, "UNSUPPORTED_CRYPTO"
	case errors.As(err, &validation):
		return schema.OutcomeRejected, "VALIDATION"
	case errors.As(err, &closed):
		return schema.OutcomeRejected, "REGISTRATION_CLOSED"
	case errors.As(err, &be):
		if be.Transient() || be.Reason == backend.ReasonInvalidResponse || be.Reason == backend.ReasonNotConfigured {
			return schema.OutcomeFailed, be.Reason
		}
		return schema.OutcomeRejected, be.Reason
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return schema.OutcomeFailed, "CANCELLED"
	}
	return schema.OutcomeFailed, "UNKNOWN"
}
