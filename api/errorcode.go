package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/formationdesk/checkin/external/backend"
	"github.com/formationdesk/checkin/fingerprint"
	"github.com/formationdesk/checkin/geo"
	"github.com/formationdesk/checkin/submission"
	"github.com/formationdesk/checkin/utils"
)

var (
	errorMessageMap = map[int64]string{
		999:  "internal server error",
		1010: "invalid parameters",
		1011: "cannot parse request",

		1100: "geolocation is not supported",
		1101: "location permission denied",
		1102: "location unavailable",
		1103: "location request timed out",
		1104: "location accuracy too low",
		1105: "unable to capture location",

		1200: "device identification failed",

		1300: "invalid QR code",
		1301: "missing information",
		1302: submission.ErrRegistrationClosed.Error(),

		1400: "request rejected",
		1401: "cannot connect to server",
		1402: "request timeout",
		1403: "invalid response from server",
		1404: backend.ErrNotConfigured.Error(),
	}

	errorInternalServer     = errorJSON(999)
	errorInvalidParameters  = errorJSON(1010)
	errorCannotParseRequest = errorJSON(1011)

	errorLocationCodes = map[geo.Kind]int64{
		geo.KindUnsupported:    1100,
		geo.KindDenied:         1101,
		geo.KindUnavailable:    1102,
		geo.KindTimeout:        1103,
		geo.KindAccuracyTooLow: 1104,
		geo.KindUnknown:        1105,
	}

	errorUnsupportedCrypto = errorJSON(1200)

	errorInvalidQRCode        = errorJSON(1300)
	errorMissingInformation   = errorJSON(1301)
	errorRegistrationClosed   = errorJSON(1302)
	errorRequestRejected      = errorJSON(1400)
	errorBackendUnreachable   = errorJSON(1401)
	errorBackendTimeout       = errorJSON(1402)
	errorInvalidBackendReply  = errorJSON(1403)
	errorBackendNotConfigured = errorJSON(1404)
)

type ErrorResponse struct {
	Code    int64  `json:"code"`
	Message string `json:"message"`

	Step         string   `json:"step,omitempty"`
	Kind         string   `json:"kind,omitempty"`
	Reason       string   `json:"reason,omitempty"`
	PlatformHint bool     `json:"platform_hint,omitempty"`
	Accuracy     *float64 `json:"accuracy,omitempty"`
	Fields       []string `json:"fields,omitempty"`
	Remediation  string   `json:"remediation,omitempty"`
}

// errorJSON converts an error code to a standardized error object
func errorJSON(code int64) ErrorResponse {
	var message string
	if msg, ok := errorMessageMap[code]; ok {
		message = msg
	} else {
		message = "unknown"
	}

	return ErrorResponse{
		Code:    code,
		Message: message,
	}
}

func (s *Server) failureResponse(err error, acceptLanguage string) (int, ErrorResponse) {
	return DescribeFailure(s.catalog, err, acceptLanguage)
}

// DescribeFailure maps a submission or location failure to a status code and error object.
// Remediation is localized for acceptLanguage when a catalog is given.
func DescribeFailure(catalog *utils.Catalog, err error, acceptLanguage string) (int, ErrorResponse) {
	var (
		failure    *geo.Failure
		crypto     *fingerprint.UnsupportedCryptoError
		validation *submission.ValidationError
		closed     *submission.RegistrationClosedError
		be         *backend.Error
	)

	var (
		status int
		resp   ErrorResponse
		msgID  string
		data   map[string]interface{}
	)

	switch {
	case errors.As(err, &failure):
		status = http.StatusUnprocessableEntity
		resp = errorJSON(errorLocationCodes[failure.Kind])
		resp.Message = failure.Message
		resp.Kind = string(failure.Kind)
		resp.PlatformHint = failure.PlatformHint
		resp.Accuracy = failure.Accuracy
		msgID, data = locationRemediation(failure)

	case errors.As(err, &crypto):
		status = http.StatusUnprocessableEntity
		resp = errorUnsupportedCrypto
		resp.Message = crypto.Error()
		msgID = "device_unsupported_crypto"

	case errors.As(err, &validation):
		status = http.StatusBadRequest
		if validation.MessageID == "missing_information" {
			resp = errorMissingInformation
		} else {
			resp = errorInvalidQRCode
		}
		resp.Message = validation.Message
		resp.Fields = validation.Fields
		msgID = validation.MessageID
		data = map[string]interface{}{"Fields": strings.Join(validation.Fields, ", ")}

	case errors.As(err, &closed):
		status = http.StatusForbidden
		resp = errorRegistrationClosed
		resp.Reason = backend.ReasonOf(closed)
		msgID = "registration_closed"

	case errors.As(err, &be):
		status, resp = backendResponse(be)
		msgID = "request_failed"

	default:
		return http.StatusInternalServerError, errorInternalServer
	}

	if step := submission.StepOf(err); step != "" {
		resp.Step = string(step)
	}
	if catalog != nil && msgID != "" {
		resp.Remediation = catalog.Localize(acceptLanguage, msgID, data)
	}

	return status, resp
}

func locationRemediation(f *geo.Failure) (string, map[string]interface{}) {
	switch f.Kind {
	case geo.KindUnsupported:
		return "location_unsupported", nil
	case geo.KindDenied:
		if f.Platform == geo.PlatformIOSSafari {
			return "location_denied_ios_safari", nil
		}
		return "location_denied", nil
	case geo.KindUnavailable:
		return "location_unavailable", nil
	case geo.KindTimeout:
		return "location_timeout", nil
	case geo.KindAccuracyTooLow:
		if f.Accuracy == nil {
			return "location_accuracy_unknown", nil
		}
		return "location_accuracy_too_low", map[string]interface{}{
			"Accuracy": *f.Accuracy,
			"Required": f.RequiredAccuracy,
		}
	}
	return "location_unknown", nil
}

func backendResponse(e *backend.Error) (int, ErrorResponse) {
	var (
		status int
		resp   ErrorResponse
	)

	switch e.Reason {
	case backend.ReasonUnreachable, backend.ReasonNetwork:
		status, resp = http.StatusBadGateway, errorBackendUnreachable
	case backend.ReasonTimeout:
		status, resp = http.StatusGatewayTimeout, errorBackendTimeout
	case backend.ReasonInvalidResponse:
		status, resp = http.StatusBadGateway, errorInvalidBackendReply
	case backend.ReasonNotConfigured:
		status, resp = http.StatusServiceUnavailable, errorBackendNotConfigured
	case backend.ReasonInvalidRequest:
		return http.StatusInternalServerError, errorInternalServer
	default:
		status, resp = http.StatusUnprocessableEntity, errorRequestRejected
	}

	resp.Reason = e.Reason
	if e.Message != "" {
		resp.Message = e.Message
	}
	return status, resp
}
