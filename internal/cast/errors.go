package cast

import (
	"errors"
	"net/http"

	"github.com/strefethen/freebox-hub-go/internal/apperrors"
	"github.com/strefethen/freebox-hub-go/internal/freebox"
)

// ToAppError maps a Freebox client error onto the hub's HTTP error codes.
func ToAppError(err error) *apperrors.AppError {
	if err == nil {
		return nil
	}

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	var preErr *freebox.PreconditionError
	if errors.As(err, &preErr) {
		switch preErr.Receiver {
		case freebox.ReceiverNotFound:
			return apperrors.NewAppError(apperrors.ErrorCodeReceiverNotFound, "Receiver not found", http.StatusNotFound, map[string]any{
				"operation": preErr.Op,
			})
		case freebox.ReceiverPasswordProtected:
			return apperrors.NewAppError(apperrors.ErrorCodeReceiverProtected, "Receiver is password protected", http.StatusLocked, map[string]any{
				"operation": preErr.Op,
			})
		}
		return apperrors.NewAppError(apperrors.ErrorCodeFreeboxPrecondition, preErr.Error(), http.StatusConflict, map[string]any{
			"operation": preErr.Op,
			"missing":   preErr.Missing,
		})
	}

	if errors.Is(err, freebox.ErrDeviceNotFound) {
		return apperrors.NewAppError(apperrors.ErrorCodeFreeboxNotFound, "Freebox not found", http.StatusNotFound, map[string]any{
			"reason": err.Error(),
		})
	}

	var transportErr *freebox.TransportError
	if errors.As(err, &transportErr) {
		if transportErr.Timeout() {
			return apperrors.NewAppError(apperrors.ErrorCodeFreeboxTimeout, "Freebox did not answer in time", http.StatusGatewayTimeout, map[string]any{
				"operation": transportErr.Op,
			})
		}
		details := map[string]any{"operation": transportErr.Op}
		if transportErr.StatusCode != 0 {
			details["status_code"] = transportErr.StatusCode
		}
		return apperrors.NewAppError(apperrors.ErrorCodeFreeboxUnreachable, "Freebox unreachable", http.StatusBadGateway, details)
	}

	var boxErr *freebox.ApplicationError
	if errors.As(err, &boxErr) {
		return apperrors.NewAppError(apperrors.ErrorCodeFreeboxRejected, boxErr.Error(), http.StatusBadGateway, map[string]any{
			"operation":  boxErr.Op,
			"error_code": boxErr.Code,
		})
	}

	return apperrors.NewInternalError("Internal server error")
}
