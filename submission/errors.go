package submission

import (
	"errors"
	"fmt"
	"strings"
)

// Step names a stage of a submission.
type Step string

const (
	StepForm         Step = "form"
	StepRegistration Step = "registration"
	StepLocation     Step = "location"
	StepFingerprint  Step = "fingerprint"
	StepSubmit       Step = "submit"
)

// StepError wraps the typed failure of the step that stopped a submission.
type StepError struct {
	Step Step
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %s", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// StepOf returns the failed step in err's chain, or "".
func StepOf(err error) Step {
	var se *StepError
	if errors.As(err, &se) {
		return se.Step
	}
	return ""
}

// ValidationError is a form the user has to correct. MessageID names the localized copy.
type ValidationError struct {
	MessageID string
	Message   string
	Fields    []string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, strings.Join(e.Fields, ", "))
}

var ErrRegistrationClosed = errors.New("device registration is currently closed")

// RegistrationClosedError reports that registration is disabled, or that its status could
// not be confirmed.
type RegistrationClosedError struct {
	Cause error
}

func (e *RegistrationClosedError) Error() string {
	if e.Cause == nil {
		return ErrRegistrationClosed.Error()
	}
	return fmt.Sprintf("%s: %s", ErrRegistrationClosed, e.Cause)
}

func (e *RegistrationClosedError) Unwrap() error {
	return e.Cause
}

func (e *RegistrationClosedError) Is(target error) bool {
	return target == ErrRegistrationClosed
}

func invalidQR(messageID, message string, fields ...string) *ValidationError {
	return &ValidationError{MessageID: messageID, Message: message, Fields: fields}
}

func missingFields(message string, fields ...string) *ValidationError {
	return &ValidationError{MessageID: "missing_information", Message: message, Fields: fields}
}
