package handler

import (
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/pesio-ai/be-print-rfq/internal/platform/errors"
)

// ErrorBody is the JSON error envelope.
type ErrorBody struct {
	Code    errors.ErrorCode `json:"code"`
	Message string           `json:"message"`
	Details map[string]any   `json:"details,omitempty"`
}

func httpStatus(code errors.ErrorCode) int {
	switch code {
	case errors.ErrCodeNotFound:
		return http.StatusNotFound
	case errors.ErrCodeInvalidInput:
		return http.StatusBadRequest
	case errors.ErrCodePreconditionFailed:
		return http.StatusUnprocessableEntity
	case errors.ErrCodeDispatchFailure:
		return http.StatusBadGateway
	case errors.ErrCodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func grpcCode(code errors.ErrorCode) codes.Code {
	switch code {
	case errors.ErrCodeNotFound:
		return codes.NotFound
	case errors.ErrCodeInvalidInput:
		return codes.InvalidArgument
	case errors.ErrCodePreconditionFailed:
		return codes.FailedPrecondition
	case errors.ErrCodeDispatchFailure:
		return codes.Unavailable
	case errors.ErrCodeConflict:
		return codes.Aborted
	default:
		return codes.Internal
	}
}

// errorBody renders err for clients. Internal errors hide their cause.
func errorBody(err error) ErrorBody {
	body := ErrorBody{Code: errors.CodeOf(err), Message: err.Error()}

	var appErr *errors.Error
	if errors.As(err, &appErr) {
		body.Message = appErr.Message
		body.Details = appErr.Details
		if body.Code == errors.ErrCodeDispatchFailure && appErr.Err != nil {
			body.Message = appErr.Error()
		}
	}
	if body.Code == errors.ErrCodeInternal {
		body.Message = "internal error"
		body.Details = nil
	}
	return body
}

// mapErrorToGRPC converts a service error into a gRPC status. Error details
// travel as a google.protobuf.Struct status detail.
func mapErrorToGRPC(err error) error {
	if err == nil {
		return nil
	}
	body := errorBody(err)
	st := status.New(grpcCode(body.Code), body.Message)
	if len(body.Details) == 0 {
		return st.Err()
	}

	details, convErr := toStruct(map[string]any{"code": body.Code, "details": body.Details})
	if convErr != nil {
		return st.Err()
	}
	if withDetails, detErr := st.WithDetails(details); detErr == nil {
		return withDetails.Err()
	}
	return st.Err()
}
