package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassification(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		class ErrorClass
	}{
		{
			name:  "missing id is invalid",
			err:   ErrMissingIDOnEntity,
			class: ErrorInvalid,
		},
		{
			name:  "cache not set is fatal",
			err:   ErrTenantCacheNotSet,
			class: ErrorFatal,
		},
		{
			name:  "connection lost is transient",
			err:   ErrConnectionLost,
			class: ErrorTransient,
		},
		{
			name:  "wrapped invalid keeps class",
			err:   WrapInvalid(ErrInvalidData, "entity", "CreateOrUpdate", "payload validation"),
			class: ErrorInvalid,
		},
		{
			name:  "wrapped fatal keeps class",
			err:   WrapFatal(nil, "graphql", "Execute", "cache not wired"),
			class: ErrorFatal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.class, Classify(tt.err))
		})
	}
}

func TestWrapPreservesChain(t *testing.T) {
	err := Wrap(ErrNoAccess, "tenant", "Authorize", "grant lookup")
	require.Error(t, err)
	assert.True(t, Is(err, ErrNoAccess))

	classified := WrapTransient(fmt.Errorf("dial tcp: refused"), "natsclient", "Connect", "initial connect")
	var ce *ClassifiedError
	require.True(t, As(classified, &ce))
	assert.Equal(t, "natsclient", ce.Component)
	assert.Equal(t, "Connect", ce.Operation)
	assert.True(t, IsTransient(classified))
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.NoError(t, Wrap(nil, "a", "b", "c"))
}

func TestClassStrings(t *testing.T) {
	assert.Equal(t, "transient", ErrorTransient.String())
	assert.Equal(t, "invalid", ErrorInvalid.String())
	assert.Equal(t, "fatal", ErrorFatal.String())
}
