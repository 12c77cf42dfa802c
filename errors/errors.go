package errors

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/xraph/go-utils/errs"
)

// =============================================================================
// ERROR CODES
// =============================================================================

// Error code constants for structured errors.
const (
	CodeConfigError          = "CONFIG_ERROR"
	CodeLifecycleError       = "LIFECYCLE_ERROR"
	CodeCircularDependency   = "CIRCULAR_DEPENDENCY"
	CodeInvalidConfig        = "INVALID_CONFIG"
	CodeUnregisteredToken    = "UNREGISTERED_TOKEN"
	CodeMissingConfiguration = "MISSING_CONFIGURATION"
	CodeCyclicSubApi         = "CYCLIC_SUB_API"
	CodeServiceStartFailed   = "SERVICE_START_FAILED"
)

// =============================================================================
// DI/SERVICE ERRORS
// =============================================================================

// Standard DI/service errors.
var (
	ErrInvalidFactory = errs.New("factory must be a function")
	ErrTypeMismatch   = errs.New("service type mismatch")
	ErrNilToken       = errs.New("token cannot be nil")
	ErrNotAGateway    = errs.New("resolved instance is not a gateway unit")
	ErrNotAnApi       = errs.New("resolved instance is not an api unit")
	ErrRouteConflict  = errs.New("route conflicts with a registered route")
)

// UnregisteredTokenError is returned when a token without a registry entry is
// resolved, transformed, or referenced as a dependency.
type UnregisteredTokenError struct {
	Token string
}

func (e *UnregisteredTokenError) Error() string {
	return "invalid injection, " + strconv.Quote(e.Token) + " is not registered as injectable"
}

// Is matches any UnregisteredTokenError when target names no token, otherwise
// only the same token.
func (e *UnregisteredTokenError) Is(target error) bool {
	t, ok := target.(*UnregisteredTokenError)
	if !ok {
		return false
	}

	return t.Token == "" || t.Token == e.Token
}

// MissingConfigurationError is returned when a unit is constructed without
// having been decorated, so no configuration was stamped onto it.
type MissingConfigurationError struct {
	Unit string
}

func (e *MissingConfigurationError) Error() string {
	return strconv.Quote(e.Unit) + " is not decorated, configuration is missing"
}

func (e *MissingConfigurationError) Is(target error) bool {
	t, ok := target.(*MissingConfigurationError)
	if !ok {
		return false
	}

	return t.Unit == "" || t.Unit == e.Unit
}

// ServiceError wraps service-specific errors.
type ServiceError struct {
	Service   string
	Operation string
	Err       error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("service %s: %s: %v", e.Service, e.Operation, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is interface for ServiceError.
func (e *ServiceError) Is(target error) bool {
	t, ok := target.(*ServiceError)
	if !ok {
		return false
	}

	return (e.Service == "" || t.Service == "" || e.Service == t.Service) &&
		(e.Operation == "" || t.Operation == "" || e.Operation == t.Operation)
}

// NewServiceError creates a new service error.
func NewServiceError(service, operation string, err error) *ServiceError {
	return &ServiceError{
		Service:   service,
		Operation: operation,
		Err:       err,
	}
}

// =============================================================================
// PUZZLE ERROR (STRUCTURED ERROR)
// =============================================================================

// PuzzleError represents a structured error with a code.
type PuzzleError = errs.Error

// ErrConfigError creates a config error.
func ErrConfigError(message string, cause error) *PuzzleError {
	return errs.NewError(CodeConfigError, message, cause)
}

// ErrLifecycleError creates a lifecycle error.
func ErrLifecycleError(phase string, cause error) *PuzzleError {
	return errs.NewError(CodeLifecycleError, "lifecycle error during "+phase, cause)
}

func ErrCircularDependency(tokens []string) *PuzzleError {
	return errs.NewError(CodeCircularDependency, "circular dependency detected: "+strings.Join(tokens, " -> "), nil)
}

func ErrCyclicSubApi(units []string) *PuzzleError {
	return errs.NewError(CodeCyclicSubApi, "sub api tree is cyclic: "+strings.Join(units, " -> "), nil)
}

func ErrInvalidConfig(configKey string, cause error) *PuzzleError {
	return errs.NewError(CodeInvalidConfig, "invalid configuration for key '"+configKey+"'", cause)
}

func ErrServiceStartFailed(serviceName string, cause error) *PuzzleError {
	return errs.NewError(CodeServiceStartFailed, "failed to start service '"+serviceName+"'", cause)
}

// =============================================================================
// HTTP ERRORS
// =============================================================================

// HTTPError is an error carrying an HTTP status code.
type HTTPError = errs.HTTPError

// HTTP error constructors.
func BadRequest(message string) HTTPError {
	return errs.BadRequest(message)
}

func NotFound(message string) HTTPError {
	return errs.NotFound(message)
}

// GetHTTPStatusCode extracts HTTP status code from error, returns 500 if not found.
func GetHTTPStatusCode(err error) int {
	return errs.GetHTTPStatusCode(err)
}

// =============================================================================
// STANDARD ERRORS PACKAGE INTEGRATION
// =============================================================================

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// New returns an error that formats as the given text.
func New(text string) error {
	return errors.New(text)
}

// Join returns an error that wraps the given errors.
func Join(errs ...error) error {
	return errors.Join(errs...)
}

// =============================================================================
// SENTINEL ERRORS (for use with Is)
// =============================================================================

var (
	// ErrUnregisteredToken matches every UnregisteredTokenError.
	ErrUnregisteredToken = &UnregisteredTokenError{}

	// ErrMissingConfiguration matches every MissingConfigurationError.
	ErrMissingConfiguration = &MissingConfigurationError{}

	ErrCircularDependencySentinel = &PuzzleError{Code: CodeCircularDependency}
	ErrCyclicSubApiSentinel       = &PuzzleError{Code: CodeCyclicSubApi}
	ErrInvalidConfigSentinel      = &PuzzleError{Code: CodeInvalidConfig}
	ErrLifecycleErrorSentinel     = &PuzzleError{Code: CodeLifecycleError}
	ErrConfigErrorSentinel        = &PuzzleError{Code: CodeConfigError}
)

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsUnregisteredToken checks if the error is an unregistered token error.
func IsUnregisteredToken(err error) bool {
	return Is(err, ErrUnregisteredToken)
}

// IsMissingConfiguration checks if the error is a missing configuration error.
func IsMissingConfiguration(err error) bool {
	return Is(err, ErrMissingConfiguration)
}

// IsCircularDependency checks if the error is a circular dependency error.
func IsCircularDependency(err error) bool {
	return Is(err, ErrCircularDependencySentinel)
}

// IsCyclicSubApi checks if the error is a cyclic sub api error.
func IsCyclicSubApi(err error) bool {
	return Is(err, ErrCyclicSubApiSentinel)
}
