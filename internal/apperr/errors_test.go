package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want string
	}{
		{
			name: "message only",
			err:  New(ErrTypeNotFound, "no source file", nil),
			want: "[NOT_FOUND] no source file",
		},
		{
			name: "with cause",
			err:  NewParseError("bad close", errors.New("invalid syntax")),
			want: "[PARSING] bad close: invalid syntax",
		},
		{
			name: "context sorted by key",
			err: NewNotFoundError("no source file", nil).
				WithContext("year", 2023).
				WithContext("product", "corn").
				WithContext("month", 12),
			want: "[NOT_FOUND] no source file (month=12 product=corn year=2023)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestIsType(t *testing.T) {
	inner := NewNotFoundError("missing", nil)
	wrapped := fmt.Errorf("stitch corn/12: %w", inner)

	assert.True(t, IsType(wrapped, ErrTypeNotFound))
	assert.False(t, IsType(wrapped, ErrTypeParsing))
	assert.False(t, IsType(errors.New("plain"), ErrTypeNotFound))
	assert.False(t, IsType(nil, ErrTypeNotFound))

	// 外层是引擎错误, 内层是校验错误, 两种类型都能识别
	nested := NewForecastEngineError("engine rejected input", NewValidationError("horizon", nil))
	assert.True(t, IsType(nested, ErrTypeForecastEngine))
	assert.True(t, IsType(nested, ErrTypeValidation))

	errType, ok := TypeOf(wrapped)
	assert.True(t, ok)
	assert.Equal(t, ErrTypeNotFound, errType)
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := NewStorageError("save series", cause)
	assert.ErrorIs(t, err, cause)
}
