package submission

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/formationdesk/checkin/external/backend"
	backendmocks "github.com/formationdesk/checkin/external/backend/mocks"
	"github.com/formationdesk/checkin/fingerprint"
	"github.com/formationdesk/checkin/geo"
	"github.com/formationdesk/checkin/schema"
	"github.com/formationdesk/checkin/submission/mocks"
)

const (
	testID   = "6f1c2a43-7d4e-4b8e-9a51-0c5a1f0e2d11"
	testHash = "3b7e1d0c4a9f6e2b8d5c1a7f0e3b9d6c2a8f5e1b7d4c0a9e6f3b2d8c5a1f7e4b"
)

var (
	testTime     = time.Date(2026, 3, 2, 8, 15, 0, 0, time.UTC)
	abujaReading = schema.GeoReading{Latitude: 9.0579, Longitude: 7.4951, Accuracy: 35}
)

type FlowTestSuite struct {
	suite.Suite
	ctl      *gomock.Controller
	locator  *mocks.MockLocator
	device   *mocks.MockDeviceIdentifier
	backend  *backendmocks.MockCaller
	journal  *mocks.MockJournal
	flow     *Flow
	recorded []schema.SubmissionRecord
}

func (s *FlowTestSuite) SetupTest() {
	s.ctl = gomock.NewController(s.T())
	s.locator = mocks.NewMockLocator(s.ctl)
	s.device = mocks.NewMockDeviceIdentifier(s.ctl)
	s.backend = backendmocks.NewMockCaller(s.ctl)
	s.journal = mocks.NewMockJournal(s.ctl)
	s.recorded = nil

	s.flow = NewFlow(s.locator, s.device, s.backend, s.journal)
	s.flow.now = func() time.Time { return testTime }
	s.flow.newID = func() string { return testID }
}

func (s *FlowTestSuite) TearDownTest() {
	s.ctl.Finish()
}

// expectRecord captures the single journal entry of an attempt.
func (s *FlowTestSuite) expectRecord() *gomock.Call {
	return s.journal.EXPECT().Record(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, r schema.SubmissionRecord) error {
			s.recorded = append(s.recorded, r)
			return nil
		}).Times(1)
}

func (s *FlowTestSuite) lastRecord() schema.SubmissionRecord {
	s.Require().Len(s.recorded, 1)
	return s.recorded[0]
}

func (s *FlowTestSuite) TestMarkAttendance() {
	expected := schema.AttendancePayload{
		EmployeeID:  "NYSC/FC/001",
		Token:       "482913",
		FormationID: "F-12",
		DeviceHash:  testHash,
		Location:    abujaReading,
	}

	gomock.InOrder(
		s.locator.EXPECT().Locate(gomock.Any()).Return(abujaReading, nil),
		s.device.EXPECT().Digest(gomock.Any()).Return(testHash, nil),
		s.backend.EXPECT().Call(gomock.Any(), schema.ActionMarkAttendance, expected).
			Return(&backend.Response{Success: true, Message: "Welcome, Ada"}, nil),
		s.expectRecord(),
	)

	receipt, err := s.flow.MarkAttendance(context.Background(), AttendanceForm{
		EmployeeID:  "  NYSC/FC/001 ",
		Token:       "482913",
		FormationID: "F-12",
	})
	s.Require().NoError(err)
	s.Equal(testID, receipt.ID)
	s.Equal("Welcome, Ada", receipt.Message)

	r := s.lastRecord()
	s.Equal(schema.OutcomeAccepted, r.Outcome)
	s.Equal(testHash, r.DeviceHash)
	s.Equal(&abujaReading, r.Location)
	s.Equal("F-12", r.FormationID)
	s.Equal(testTime, r.CreatedAt)
}

func (s *FlowTestSuite) TestMarkAttendanceDefaultMessage() {
	s.locator.EXPECT().Locate(gomock.Any()).Return(abujaReading, nil)
	s.device.EXPECT().Digest(gomock.Any()).Return(testHash, nil)
	s.backend.EXPECT().Call(gomock.Any(), schema.ActionMarkAttendance, gomock.Any()).
		Return(&backend.Response{Success: true}, nil)
	s.expectRecord()

	receipt, err := s.flow.MarkAttendance(context.Background(), AttendanceForm{EmployeeID: "a", Token: "b", FormationID: "c"})
	s.Require().NoError(err)
	s.Equal("Your attendance has been recorded successfully.", receipt.Message)
}

func (s *FlowTestSuite) TestMarkAttendanceWithoutFormation() {
	s.expectRecord()

	_, err := s.flow.MarkAttendance(context.Background(), AttendanceForm{EmployeeID: "a", Token: "b", FormationID: "  "})

	var ve *ValidationError
	s.Require().True(errors.As(err, &ve))
	s.Equal("invalid_qr_attendance", ve.MessageID)
	s.Equal(StepForm, StepOf(err))

	r := s.lastRecord()
	s.Equal(schema.OutcomeRejected, r.Outcome)
	s.Equal("VALIDATION", r.Reason)
	s.Nil(r.Location)
}

func (s *FlowTestSuite) TestLocationFailureStopsBeforeFingerprint() {
	failure := &geo.Failure{Kind: geo.KindAccuracyTooLow, Message: "location accuracy is too low"}
	s.locator.EXPECT().Locate(gomock.Any()).Return(schema.GeoReading{}, failure)
	s.expectRecord()

	_, err := s.flow.MarkAttendance(context.Background(), AttendanceForm{EmployeeID: "a", Token: "b", FormationID: "F-12"})

	var f *geo.Failure
	s.Require().True(errors.As(err, &f))
	s.Equal(geo.KindAccuracyTooLow, f.Kind)
	s.Equal(StepLocation, StepOf(err))

	r := s.lastRecord()
	s.Equal(schema.OutcomeFailed, r.Outcome)
	s.Equal("ACCURACY_TOO_LOW", r.Reason)
	s.Empty(r.DeviceHash)
}

func (s *FlowTestSuite) TestFingerprintFailureStopsBeforeSubmit() {
	gomock.InOrder(
		s.locator.EXPECT().Locate(gomock.Any()).Return(abujaReading, nil),
		s.device.EXPECT().Digest(gomock.Any()).Return("", &fingerprint.UnsupportedCryptoError{Reason: "no digest primitive"}),
		s.expectRecord(),
	)

	_, err := s.flow.MarkAttendance(context.Background(), AttendanceForm{EmployeeID: "a", Token: "b", FormationID: "F-12"})

	s.True(errors.Is(err, fingerprint.ErrUnsupportedCrypto))
	s.Equal(StepFingerprint, StepOf(err))
	s.Equal("UNSUPPORTED_CRYPTO", s.lastRecord().Reason)
}

func (s *FlowTestSuite) TestMissingCredentialsCheckedAfterLocation() {
	gomock.InOrder(
		s.locator.EXPECT().Locate(gomock.Any()).Return(abujaReading, nil),
		s.device.EXPECT().Digest(gomock.Any()).Return(testHash, nil),
		s.expectRecord(),
	)

	_, err := s.flow.MarkAttendance(context.Background(), AttendanceForm{FormationID: "F-12", Token: " "})

	var ve *ValidationError
	s.Require().True(errors.As(err, &ve))
	s.Equal("missing_information", ve.MessageID)
	s.Equal([]string{"employee_id", "token"}, ve.Fields)
}

func (s *FlowTestSuite) TestBackendRejection() {
	s.locator.EXPECT().Locate(gomock.Any()).Return(abujaReading, nil)
	s.device.EXPECT().Digest(gomock.Any()).Return(testHash, nil)
	s.backend.EXPECT().Call(gomock.Any(), schema.ActionMarkAttendance, gomock.Any()).
		Return(nil, &backend.Error{Action: schema.ActionMarkAttendance, Reason: "DEVICE_MISMATCH", Message: "This device is not registered to you."})
	s.expectRecord()

	_, err := s.flow.MarkAttendance(context.Background(), AttendanceForm{EmployeeID: "a", Token: "b", FormationID: "F-12"})

	s.Equal("DEVICE_MISMATCH", backend.ReasonOf(err))
	s.Equal(StepSubmit, StepOf(err))

	r := s.lastRecord()
	s.Equal(schema.OutcomeRejected, r.Outcome)
	s.Equal("DEVICE_MISMATCH", r.Reason)
	s.Equal(testHash, r.DeviceHash)
}

func (s *FlowTestSuite) TestBackendUnreachable() {
	s.locator.EXPECT().Locate(gomock.Any()).Return(abujaReading, nil)
	s.device.EXPECT().Digest(gomock.Any()).Return(testHash, nil)
	s.backend.EXPECT().Call(gomock.Any(), schema.ActionMarkAttendance, gomock.Any()).
		Return(nil, &backend.Error{Reason: backend.ReasonUnreachable, Message: "Cannot connect to server."})
	s.expectRecord()

	_, err := s.flow.MarkAttendance(context.Background(), AttendanceForm{EmployeeID: "a", Token: "b", FormationID: "F-12"})
	s.Error(err)

	r := s.lastRecord()
	s.Equal(schema.OutcomeFailed, r.Outcome)
	s.Equal(backend.ReasonUnreachable, r.Reason)
}

func (s *FlowTestSuite) TestJournalFailureDoesNotFailSubmission() {
	s.locator.EXPECT().Locate(gomock.Any()).Return(abujaReading, nil)
	s.device.EXPECT().Digest(gomock.Any()).Return(testHash, nil)
	s.backend.EXPECT().Call(gomock.Any(), gomock.Any(), gomock.Any()).Return(&backend.Response{Success: true}, nil)
	s.journal.EXPECT().Record(gomock.Any(), gomock.Any()).Return(errors.New("disk full"))

	_, err := s.flow.MarkAttendance(context.Background(), AttendanceForm{EmployeeID: "a", Token: "b", FormationID: "F-12"})
	s.NoError(err)
}

func registrationStatus(enabled bool) *backend.Response {
	data, _ := json.Marshal(schema.RegistrationStatus{Enabled: enabled})
	return &backend.Response{Success: true, Data: data}
}

func (s *FlowTestSuite) TestRegisterDevice() {
	expected := schema.DevicePayload{EmployeeID: "NYSC/FC/001", DeviceHash: testHash, Location: abujaReading}

	gomock.InOrder(
		s.backend.EXPECT().Call(gomock.Any(), schema.ActionRegistrationStatus, gomock.Any()).Return(registrationStatus(true), nil),
		s.locator.EXPECT().Locate(gomock.Any()).Return(abujaReading, nil),
		s.device.EXPECT().Digest(gomock.Any()).Return(testHash, nil),
		s.backend.EXPECT().Call(gomock.Any(), schema.ActionRegisterDevice, expected).Return(&backend.Response{Success: true}, nil),
		s.expectRecord(),
	)

	receipt, err := s.flow.RegisterDevice(context.Background(), DeviceForm{EmployeeID: "NYSC/FC/001"})
	s.Require().NoError(err)
	s.Equal("Your device has been successfully registered.", receipt.Message)
	s.Equal(schema.ActionRegisterDevice, s.lastRecord().Action)
}

func (s *FlowTestSuite) TestRegisterDeviceClosed() {
	s.backend.EXPECT().Call(gomock.Any(), schema.ActionRegistrationStatus, gomock.Any()).Return(registrationStatus(false), nil)
	s.expectRecord()

	_, err := s.flow.RegisterDevice(context.Background(), DeviceForm{EmployeeID: "NYSC/FC/001"})

	s.True(errors.Is(err, ErrRegistrationClosed))
	s.Equal(StepRegistration, StepOf(err))
	s.Equal("REGISTRATION_CLOSED", s.lastRecord().Reason)
}

func (s *FlowTestSuite) TestRegisterDeviceFailsClosed() {
	unreachable := &backend.Error{Reason: backend.ReasonUnreachable, Message: "Cannot connect to server."}
	s.backend.EXPECT().Call(gomock.Any(), schema.ActionRegistrationStatus, gomock.Any()).Return(nil, unreachable)
	s.expectRecord()

	_, err := s.flow.RegisterDevice(context.Background(), DeviceForm{EmployeeID: "NYSC/FC/001"})

	s.True(errors.Is(err, ErrRegistrationClosed))
	s.Equal(backend.ReasonUnreachable, backend.ReasonOf(err))
}

func (s *FlowTestSuite) TestRegisterDeviceWithoutEmployee() {
	gomock.InOrder(
		s.backend.EXPECT().Call(gomock.Any(), schema.ActionRegistrationStatus, gomock.Any()).Return(registrationStatus(true), nil),
		s.locator.EXPECT().Locate(gomock.Any()).Return(abujaReading, nil),
		s.device.EXPECT().Digest(gomock.Any()).Return(testHash, nil),
		s.expectRecord(),
	)

	_, err := s.flow.RegisterDevice(context.Background(), DeviceForm{})

	var ve *ValidationError
	s.Require().True(errors.As(err, &ve))
	s.Equal([]string{"employee_id"}, ve.Fields)
}

func (s *FlowTestSuite) TestCreateVisit() {
	expected := schema.VisitPayload{
		Name:        "Chidi Okafor",
		Phone:       "08031234567",
		Purpose:     "Document collection",
		StaffToSee:  "Mrs. Bello",
		FormationID: "F-12",
		SubUnitID:   "S-3",
	}

	gomock.InOrder(
		s.backend.EXPECT().Call(gomock.Any(), schema.ActionCreateVisit, expected).Return(&backend.Response{Success: true}, nil),
		s.expectRecord(),
	)

	receipt, err := s.flow.CreateVisit(context.Background(), VisitForm{
		Name:        " Chidi Okafor",
		Phone:       "08031234567",
		Purpose:     "Document collection",
		StaffToSee:  "Mrs. Bello",
		FormationID: "F-12",
		SubUnitID:   "S-3",
	})
	s.Require().NoError(err)
	s.Contains(receipt.Message, "visit request has been submitted")
	s.Nil(s.lastRecord().Location)
}

func (s *FlowTestSuite) TestCreateVisitInvalidQR() {
	s.expectRecord()

	_, err := s.flow.CreateVisit(context.Background(), VisitForm{Name: "a", Phone: "b", Purpose: "c", StaffToSee: "d", FormationID: "F-12"})

	var ve *ValidationError
	s.Require().True(errors.As(err, &ve))
	s.Equal("invalid_qr_visitor", ve.MessageID)
}

func (s *FlowTestSuite) TestCreateVisitMissingFields() {
	s.expectRecord()

	_, err := s.flow.CreateVisit(context.Background(), VisitForm{Name: "a", Purpose: "c", FormationID: "F-12", SubUnitID: "S-3"})

	var ve *ValidationError
	s.Require().True(errors.As(err, &ve))
	s.Equal("missing_information", ve.MessageID)
	s.Equal([]string{"phone", "staff_to_see"}, ve.Fields)
}

func TestFlow(t *testing.T) {
	suite.Run(t, new(FlowTestSuite))
}

type kioskEnv struct{}

func (kioskEnv) UserAgent() string      { return "checkin/test (linux; amd64)" }
func (kioskEnv) ScreenSize() (int, int) { return 1080, 1920 }
func (kioskEnv) TimeZone() string       { return "Africa/Lagos" }
func (kioskEnv) Language() string       { return "en-NG" }

func TestFlowWithGateAndFingerprinter(t *testing.T) {
	ctl := gomock.NewController(t)
	defer ctl.Finish()

	caller := backendmocks.NewMockCaller(ctl)
	device := fingerprint.New(kioskEnv{})
	hash, err := device.Digest(context.Background())
	require.NoError(t, err)

	caller.EXPECT().Call(gomock.Any(), schema.ActionMarkAttendance, schema.AttendancePayload{
		EmployeeID:  "NYSC/FC/001",
		Token:       "482913",
		FormationID: "F-12",
		DeviceHash:  hash,
		Location:    abujaReading,
	}).Return(&backend.Response{Success: true}, nil)

	locator := GateLocator{
		Positioner: geo.StaticPositioner{Latitude: 9.0579, Longitude: 7.4951, Accuracy: 35},
		Options:    []geo.Option{geo.WithRequiredAccuracy(50)},
	}
	flow := NewFlow(locator, device, caller, nil)

	_, err = flow.MarkAttendance(context.Background(), AttendanceForm{EmployeeID: "NYSC/FC/001", Token: "482913", FormationID: "F-12"})
	assert.NoError(t, err)

	poor := GateLocator{Positioner: geo.StaticPositioner{Latitude: 9.0579, Longitude: 7.4951, Accuracy: 120}}
	_, err = NewFlow(poor, device, caller, nil).MarkAttendance(context.Background(), AttendanceForm{EmployeeID: "a", Token: "b", FormationID: "F-12"})
	assert.True(t, errors.Is(err, geo.ErrAccuracyTooLow))
}
