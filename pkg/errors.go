package pkg

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// Reusable errors
var (
	SqlErrForeignKeyViolation = errors.New("foreign key violation")
	SqlError                  = errors.New("sql error")
	ErrInsufficientBalance    = errors.New("insufficient balance")
	ErrPinMismatch            = errors.New("pin mismatch")
)

// ErrorCode defines a standardized error code
type ErrorCode struct {
	Code    string
	Status  int
	Message string // default message
}

var (
	// Generic app
	ErrInvalidInputCode   = ErrorCode{Code: "APP_INVALID_INPUT", Status: http.StatusBadRequest, Message: "invalid input"}
	ErrServerCode         = ErrorCode{Code: "APP_INTERNAL", Status: http.StatusInternalServerError, Message: "internal server error"}
	ErrRecordNotFoundCode = ErrorCode{Code: "APP_NOT_FOUND", Status: http.StatusNotFound, Message: "record not found"}
	ErrIdCollisionCode    = ErrorCode{Code: "APP_ID_COLLISION", Status: http.StatusInternalServerError, Message: "identifier collision retries exhausted"}

	// Business/domain rules
	ErrBusinessRuleCode      = ErrorCode{Code: "BUSINESS_RULE_VIOLATION", Status: http.StatusUnprocessableEntity, Message: "business rule violated"}
	ErrInsufficientFundsCode = ErrorCode{Code: "BUSINESS_INSUFFICIENT_FUNDS", Status: http.StatusUnprocessableEntity, Message: "insufficient balance"}
	ErrSameAccountCode       = ErrorCode{Code: "BUSINESS_SAME_ACCOUNT", Status: http.StatusUnprocessableEntity, Message: "sender and recipient are the same account"}
	ErrInvalidRecipientCode  = ErrorCode{Code: "BUSINESS_INVALID_RECIPIENT", Status: http.StatusUnprocessableEntity, Message: "invalid or inactive recipient account"}
	ErrAccountNotActiveCode  = ErrorCode{Code: "BUSINESS_ACCOUNT_NOT_ACTIVE", Status: http.StatusUnprocessableEntity, Message: "account is not active"}

	// PIN guard
	ErrPinDeniedCode    = ErrorCode{Code: "AUTH_PIN_DENIED", Status: http.StatusUnauthorized, Message: "pin verification failed"}
	ErrPinExpiredCode   = ErrorCode{Code: "AUTH_PIN_EXPIRED", Status: http.StatusUnauthorized, Message: "pin grant expired"}
	ErrPinThrottledCode = ErrorCode{Code: "AUTH_PIN_THROTTLED", Status: http.StatusTooManyRequests, Message: "too many pin attempts"}

	// SQL layer
	ErrSQLUnknownCode   = ErrorCode{Code: "SQL_UNKNOWN", Status: http.StatusInternalServerError, Message: "sql error"}
	ErrSQLConflictCode  = ErrorCode{Code: "SQL_CONFLICT", Status: http.StatusConflict, Message: "sql conflict"}
	ErrSQLDuplicateCode = ErrorCode{Code: "SQL_DUPLICATE", Status: http.StatusConflict, Message: "duplicate record"}
	ErrSQLInvalidInput  = ErrorCode{Code: "SQL_INVALID_INPUT", Status: http.StatusBadRequest, Message: "invalid input"}
)

type AppError struct {
	Code    ErrorCode
	Message string // public-facing message
	Cause   error  // internal cause (wrapped)
}

func (e AppError) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}
func (e AppError) Unwrap() error { return e.Cause }

func NewAppError(code ErrorCode, msg string, cause error) error {
	return AppError{Code: code, Message: msg, Cause: cause}
}

// IsCode reports whether err carries the given error code.
func IsCode(err error, code ErrorCode) bool {
	var appErr AppError
	return errors.As(err, &appErr) && appErr.Code.Code == code.Code
}

// Describe resolves err to its code and a caller-safe message. Non-AppError
// values collapse to a generic internal error.
func Describe(err error) (ErrorCode, string) {
	var appErr AppError
	if errors.As(err, &appErr) {
		return appErr.Code, appErr.Message
	}
	return ErrServerCode, ErrServerCode.Message
}

// IsRejection reports whether err is a recoverable validation or business
// rejection, i.e. the operation was refused without any mutation.
func IsRejection(err error) bool {
	var appErr AppError
	if !errors.As(err, &appErr) {
		return false
	}
	return appErr.Code.Status >= 400 && appErr.Code.Status < 500
}

// HandleSQLError maps pg errors -> AppError with proper codes/status.
// Errors already carrying an application code pass through untouched.
func HandleSQLError(logger *zap.Logger, op string, err error) error {
	var appErr AppError
	if errors.As(err, &appErr) {
		return err
	}

	if errors.Is(err, pgx.ErrNoRows) {
		logger.Warn("sql error : no records found", zap.String("op", op))
		return NewAppError(ErrRecordNotFoundCode, "no records found", err)
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		logger.Error("sql error : unknown", zap.String("op", op), zap.Error(err))
		return NewAppError(ErrSQLUnknownCode, "sql error", err)
	}

	// Log rich pg error context
	logger.Error("sql error",
		zap.String("op", op),
		zap.String("code", pgErr.Code),
		zap.String("message", pgErr.Message),
		zap.String("detail", pgErr.Detail),
		zap.String("table", pgErr.TableName),
		zap.String("constraint", pgErr.ConstraintName),
	)

	switch pgErr.Code {
	case "23505": // unique_violation
		return NewAppError(ErrSQLDuplicateCode, "duplicate value violates unique constraint", SqlError)
	case "23503": // foreign_key_violation
		return NewAppError(ErrSQLConflictCode, "foreign key violation", SqlErrForeignKeyViolation)
	case "23514": // check_violation, e.g. the non-negative balance guard
		return NewAppError(ErrSQLConflictCode, "check constraint violation", SqlError)
	case "22P02": // invalid_text_representation Ex: bad UUID
		return NewAppError(ErrSQLInvalidInput, "invalid input syntax", SqlError)
	case "22001": // string_data_right_truncation
		return NewAppError(ErrSQLInvalidInput, "value too long for column", SqlError)
	case "22003": // numeric_value_out_of_range
		return NewAppError(ErrSQLInvalidInput, "numeric value out of range", SqlError)
	default:
		return NewAppError(ErrSQLUnknownCode, "sql error", SqlError)
	}
}
