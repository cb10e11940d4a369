package cloud

import (
	"errors"
	"testing"

	smithy "github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"

	"github.com/ClayDesk/codeflowops-saas-sub001/internal/core/domain"
)

func apiError(code string) error {
	return &smithy.GenericAPIError{Code: code, Message: "test"}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want domain.ErrorKind
	}{
		{"nil", nil, domain.ErrKindNone},
		{"quota limit", apiError("LimitExceededException"), domain.ErrKindQuotaExceeded},
		{"throttling", apiError("ThrottlingException"), domain.ErrKindQuotaExceeded},
		{"access denied", apiError("AccessDeniedException"), domain.ErrKindPermissionDenied},
		{"unauthorized op", apiError("UnauthorizedOperation"), domain.ErrKindPermissionDenied},
		{"repo exists", apiError("RepositoryAlreadyExistsException"), domain.ErrKindResourceExists},
		{"duplicate sg", apiError("InvalidGroup.Duplicate"), domain.ErrKindResourceExists},
		{"db not found", apiError("DBInstanceNotFound"), domain.ErrKindNotFound},
		{"suffix exists fallback", apiError("SomeServiceThingAlreadyExists"), domain.ErrKindResourceExists},
		{"suffix not found fallback", apiError("SomeServiceThingNotFound"), domain.ErrKindNotFound},
		{"suffix quota fallback", apiError("FooLimitExceeded"), domain.ErrKindQuotaExceeded},
		{"plain error", errors.New("dial tcp: connection refused"), domain.ErrKindDeployFailure},
		{"wrapped api error", &wrapError{apiError("AccessDenied")}, domain.ErrKindPermissionDenied},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestClassifyPreservesPipelineKind(t *testing.T) {
	err := domain.NewPipelineError(domain.ErrKindHealthTimeout, "health_gate", errors.New("timed out"))
	assert.Equal(t, domain.ErrKindHealthTimeout, Classify(err))
}

func TestPredicates(t *testing.T) {
	assert.True(t, IsExists(apiError("EntityAlreadyExists")))
	assert.True(t, IsNotFound(apiError("NoSuchEntity")))
	assert.True(t, IsQuota(apiError("ServiceQuotaExceededException")))
	assert.False(t, IsQuota(errors.New("boom")))
}

type wrapError struct{ err error }

func (w *wrapError) Error() string { return "wrapped: " + w.err.Error() }
func (w *wrapError) Unwrap() error { return w.err }
