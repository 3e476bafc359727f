package authority

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/example/bunnyvideo/internal/wire"
)

// LocalSignaler delivers tracker signals to an in-process Authority.
// Unavailable errors are returned as delivery failures so a retrying
// session re-arms; every other rejection becomes a failed response.
type LocalSignaler struct {
	Authority *Authority
}

func (s LocalSignaler) Signal(ctx context.Context, req wire.Request) (wire.Response, error) {
	out, err := s.Authority.RecordSatisfied(ctx, req.VideoID, req.UserID)
	if status.Code(err) == codes.Unavailable {
		return wire.Response{}, err
	}
	if err != nil {
		return ErrorResponse(err), nil
	}
	return ResponseFor(out), nil
}

// ResponseFor renders a successful RecordSatisfied outcome on the wire.
func ResponseFor(out Outcome) wire.Response {
	resp := wire.Response{Success: true, AlreadyComplete: wire.Bool(out.AlreadyComplete)}
	switch {
	case out.NoRequirement:
		resp.Message = "video has no watch requirement"
	case out.AlreadyComplete:
		resp.Message = "already complete"
	default:
		resp.Message = "completion recorded"
	}
	return resp
}

// ErrorResponse renders a failed operation on the wire.
func ErrorResponse(err error) wire.Response {
	code := Reason(err)
	if code == "" {
		code = "INTERNAL"
	}
	return wire.Response{Success: false, Message: status.Convert(err).Message(), Code: code}
}
