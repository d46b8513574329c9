package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCancelAlreadyResolved(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"not found", &TransportError{StatusCode: 404}, true},
		{"wrapped not found", fmt.Errorf("cancel: %w", &TransportError{StatusCode: 404}), true},
		{"already canceled code", &TransportError{StatusCode: 400, Code: "already_canceled"}, true},
		{"already canceled message", &TransportError{StatusCode: 409, Message: "Order already canceled"}, true},
		{"unavailable", &TransportError{StatusCode: 503}, false},
		{"plain error", errors.New("boom"), false},
		{"nil", nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, CancelAlreadyResolved(tc.err))
		})
	}
}

func TestClassify(t *testing.T) {
	assert.Equal(t, FailurePrecondition, Classify(fmt.Errorf("%w: x", ErrPrecondition)))
	assert.Equal(t, FailurePrecondition, Classify(ErrNoTicker))
	assert.Equal(t, FailureRaceResolved, Classify(ErrRaceResolved))
	assert.Equal(t, FailureTransport, Classify(&TransportError{StatusCode: 500}))
	assert.Equal(t, FailureConfig, Classify(ErrConfig))
	assert.Equal(t, FailureInternal, Classify(errors.New("x")))
	assert.Nil(t, FailureOf(nil))
	assert.Equal(t, 502, FailureOf(&TransportError{StatusCode: 502}).StatusCode)
}
