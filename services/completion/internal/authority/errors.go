package authority

import (
	"errors"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const errorDomain = "completion"

// Reasons carried in the ErrorInfo detail of every returned status.
const (
	ReasonInvalidArgument    = "INVALID_ARGUMENT"
	ReasonVideoNotFound      = "VIDEO_NOT_FOUND"
	ReasonPermissionDenied   = "PERMISSION_DENIED"
	ReasonNotEnabled         = "COMPLETION_NOT_ENABLED"
	ReasonThresholdChanged   = "THRESHOLD_CHANGED"
	ReasonStoreUnavailable   = "STORE_UNAVAILABLE"
	ReasonInvalidationFailed = "INVALIDATION_FAILED"
)

func errInvalidArgument(msg string, fieldViolations map[string]string) error {
	st := status.New(codes.InvalidArgument, msg)
	info := &errdetails.ErrorInfo{Reason: ReasonInvalidArgument, Domain: errorDomain}

	bad := &errdetails.BadRequest{}
	for field, desc := range fieldViolations {
		bad.FieldViolations = append(bad.FieldViolations, &errdetails.BadRequest_FieldViolation{Field: field, Description: desc})
	}

	st2, err := st.WithDetails(info, bad)
	if err != nil {
		return st.Err()
	}
	return st2.Err()
}

func errWithReason(code codes.Code, reason, msg string) error {
	st := status.New(code, msg)
	st2, err := st.WithDetails(&errdetails.ErrorInfo{Reason: reason, Domain: errorDomain})
	if err != nil {
		return st.Err()
	}
	return st2.Err()
}

func errVideoNotFound() error {
	return errWithReason(codes.NotFound, ReasonVideoNotFound, "video is not configured")
}

func errPermissionDenied(msg string) error {
	return errWithReason(codes.PermissionDenied, ReasonPermissionDenied, msg)
}

func errNotEnabled() error {
	return errWithReason(codes.FailedPrecondition, ReasonNotEnabled, "completion tracking is not enabled for this video")
}

func errThresholdChanged() error {
	return errWithReason(codes.FailedPrecondition, ReasonThresholdChanged, "the video's watch requirement changed; reload to continue")
}

func errStore() error {
	return errWithReason(codes.Unavailable, ReasonStoreUnavailable, "completion store unavailable")
}

func errInvalidation() error {
	return errWithReason(codes.Unavailable, ReasonInvalidationFailed, "state recorded but downstream caches were not invalidated; retry")
}

// Reason returns the ErrorInfo reason carried by err, or "" if none.
func Reason(err error) string {
	var se interface{ GRPCStatus() *status.Status }
	if !errors.As(err, &se) {
		return ""
	}
	for _, d := range se.GRPCStatus().Details() {
		if info, ok := d.(*errdetails.ErrorInfo); ok {
			return info.GetReason()
		}
	}
	return ""
}
