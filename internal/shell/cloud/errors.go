package cloud

import (
	"errors"
	"strings"

	smithy "github.com/aws/smithy-go"

	"github.com/ClayDesk/codeflowops-saas-sub001/internal/core/domain"
)

// =============================================================================
// Provider Error Classification
// =============================================================================

// API error codes that signal a capacity or quota limit. These trigger the
// deployer's path fallback instead of failing the deployment.
var quotaErrorCodes = map[string]bool{
	"LimitExceededException":        true,
	"ServiceQuotaExceededException": true,
	"TooManyRequestsException":      true,
	"Throttling":                    true,
	"ThrottlingException":           true,
	"RequestLimitExceeded":          true,
	"InsufficientCapacityException": true,
	"InstanceLimitExceeded":         true,
	"VpcLimitExceeded":              true,
}

var permissionErrorCodes = map[string]bool{
	"AccessDenied":                true,
	"AccessDeniedException":       true,
	"UnauthorizedOperation":       true,
	"InvalidClientTokenId":        true,
	"SignatureDoesNotMatch":       true,
	"UnrecognizedClientException": true,
}

var existsErrorCodes = map[string]bool{
	"ResourceAlreadyExistsException":   true,
	"RepositoryAlreadyExistsException": true,
	"EntityAlreadyExists":              true,
	"InvalidGroup.Duplicate":           true,
	"InvalidVpc.Duplicate":             true,
	"DuplicateLoadBalancerName":        true,
	"DuplicateTargetGroupName":         true,
	"DuplicateListener":                true,
	"DBInstanceAlreadyExists":          true,
	"ServiceAlreadyExistsException":    true,
	"DistributionAlreadyExists":        true,
}

var notFoundErrorCodes = map[string]bool{
	"ResourceNotFoundException":   true,
	"RepositoryNotFoundException": true,
	"LoadBalancerNotFound":        true,
	"TargetGroupNotFound":         true,
	"ListenerNotFound":            true,
	"ClusterNotFoundException":    true,
	"ServiceNotFoundException":    true,
	"DBInstanceNotFound":          true,
	"NoSuchEntity":                true,
	"NoSuchDistribution":          true,
	"InvalidVpcID.NotFound":       true,
	"InvalidGroup.NotFound":       true,
}

// Classify maps a provider API error onto the error kind taxonomy. Errors
// that carry no recognizable code classify as deploy failures.
func Classify(err error) domain.ErrorKind {
	if err == nil {
		return domain.ErrKindNone
	}

	var pe *domain.PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		switch {
		case quotaErrorCodes[code]:
			return domain.ErrKindQuotaExceeded
		case permissionErrorCodes[code]:
			return domain.ErrKindPermissionDenied
		case existsErrorCodes[code]:
			return domain.ErrKindResourceExists
		case notFoundErrorCodes[code]:
			return domain.ErrKindNotFound
		}
		// Codes vary across services; fall back on the conventional suffixes.
		switch {
		case strings.Contains(code, "AlreadyExists"):
			return domain.ErrKindResourceExists
		case strings.Contains(code, "NotFound"):
			return domain.ErrKindNotFound
		case strings.Contains(code, "LimitExceeded") || strings.Contains(code, "Throttl"):
			return domain.ErrKindQuotaExceeded
		case strings.Contains(code, "AccessDenied") || strings.Contains(code, "Unauthorized"):
			return domain.ErrKindPermissionDenied
		}
	}

	return domain.ErrKindDeployFailure
}

// IsExists reports whether the error means the named resource already exists.
func IsExists(err error) bool {
	return Classify(err) == domain.ErrKindResourceExists
}

// IsNotFound reports whether the error means the named resource is absent.
func IsNotFound(err error) bool {
	return Classify(err) == domain.ErrKindNotFound
}

// IsQuota reports whether the error is a capacity or quota limit.
func IsQuota(err error) bool {
	return Classify(err) == domain.ErrKindQuotaExceeded
}
