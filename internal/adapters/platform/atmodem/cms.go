package atmodem

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"sim-sms-bridge/internal/domain"
)

// CMSError is a "+CMS ERROR: <n>" message service failure.
type CMSError struct {
	Code int
	Text string
}

func (e *CMSError) Error() string {
	if e.Code < 0 {
		return "+CMS ERROR: " + e.Text
	}
	return fmt.Sprintf("+CMS ERROR: %d", e.Code)
}

func parseCMSError(s string) *CMSError {
	s = strings.TrimSpace(s)
	n, err := strconv.Atoi(s)
	if err != nil {
		return &CMSError{Code: -1, Text: s}
	}
	return &CMSError{Code: n}
}

var cmsResultCodes = map[int]int{
	38:  domain.ResultNetworkError,
	302: domain.ResultOperationNotAllowed,
	303: domain.ResultRequestNotSupported,
	304: domain.ResultInvalidSmsFormat,
	305: domain.ResultInvalidArguments,
	310: domain.ResultRilSimAbsent,
	322: domain.ResultNoMemory,
	330: domain.ResultInvalidSmscAddress,
	331: domain.ResultErrorNoService,
	332: domain.ResultNetworkError,
	500: domain.ResultErrorGenericFailure,
}

// resultCode maps the outcome of an AT+CMGS exchange to a platform result
// code.
func resultCode(err error) int {
	if err == nil {
		return domain.ResultOK
	}
	var cms *CMSError
	if errors.As(err, &cms) {
		if code, ok := cmsResultCodes[cms.Code]; ok {
			return code
		}
		return domain.ResultErrorGenericFailure
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return domain.ResultErrorNoService
	}
	return domain.ResultErrorGenericFailure
}
