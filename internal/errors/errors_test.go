package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidationErrorAggregates(t *testing.T) {
	err := NewValidationError(
		NewFieldError(1, "symbol", nil, "Missing required field 'symbol'"),
		nil,
		NewFieldError(0, "total_trades", 5, "total_trades mismatch"),
	)
	require.Error(t, err)

	var verr *ValidationError
	require.True(t, As(err, &verr))
	assert.Len(t, verr.Unwrap(), 2)

	var ferr *FieldError
	require.True(t, As(err, &ferr))
	assert.Equal(t, "symbol", ferr.Field)
	assert.Equal(t, "Trade 1: Missing required field 'symbol'", ferr.Error())
}

func TestValidationErrorEmpty(t *testing.T) {
	assert.NoError(t, NewValidationError())
	assert.NoError(t, NewValidationError(nil, nil))
}

func TestSchemaErrorMessage(t *testing.T) {
	err := Wrap(NewSchemaError("MT5", []string{"profit", "ticket"}), "normalize")
	var serr *SchemaError
	require.True(t, As(err, &serr))
	assert.Equal(t, []string{"profit", "ticket"}, serr.Missing)
	assert.Contains(t, err.Error(), "missing required fields: profit, ticket")
}

func TestParseErrorUnwrap(t *testing.T) {
	err := NewParseError("a.csv", 3, "Profit", ErrUnsupportedFormat)
	assert.True(t, Is(err, ErrUnsupportedFormat))
	assert.Contains(t, err.Error(), `row 3 column "Profit"`)
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, "x"))
	assert.Nil(t, Wrapf(nil, "x %d", 1))
}
