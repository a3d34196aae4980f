package errors_test

import (
	"errors"
	"fmt"
	"testing"

	pkgerrors "github.com/agentstation/sails/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	err := pkgerrors.New("test error")
	assert.NotNil(t, err)
	assert.Equal(t, "test error", err.Error())
}

func TestNotFoundError(t *testing.T) {
	t.Run("basic error", func(t *testing.T) {
		err := &pkgerrors.NotFoundError{
			Resource: "user",
			ID:       "42",
		}
		assert.Equal(t, "user with ID 42 not found", err.Error())
		assert.True(t, errors.Is(err, pkgerrors.ErrNotFound))
	})

	t.Run("constructor", func(t *testing.T) {
		err := pkgerrors.NewNotFoundError("model", "pet")
		assert.Equal(t, "model with ID pet not found", err.Error())
		assert.True(t, pkgerrors.IsNotFound(err))
	})

	t.Run("wrapped error", func(t *testing.T) {
		base := pkgerrors.NewNotFoundError("record", "7")
		wrapped := errors.Join(errors.New("failed"), base)
		assert.True(t, pkgerrors.IsNotFound(wrapped))
	})
}

func TestValidationError(t *testing.T) {
	t.Run("with field", func(t *testing.T) {
		err := &pkgerrors.ValidationError{
			Field:   "email",
			Message: "must be a valid email address",
		}
		assert.Equal(t, "validation failed for field email: must be a valid email address", err.Error())
		assert.True(t, errors.Is(err, pkgerrors.ErrInvalidInput))
	})

	t.Run("without field", func(t *testing.T) {
		err := &pkgerrors.ValidationError{Message: "invalid payload"}
		assert.Equal(t, "validation failed: invalid payload", err.Error())
		assert.True(t, pkgerrors.IsValidationError(err))
	})

	t.Run("constructor", func(t *testing.T) {
		err := pkgerrors.NewValidationError("age", "abc", "must be an integer")
		assert.Contains(t, err.Error(), "age")
		assert.Contains(t, err.Error(), "must be an integer")
		assert.Equal(t, "abc", err.Value)
	})
}

func TestAdapterError(t *testing.T) {
	base := errors.New("connection refused")
	err := pkgerrors.NewAdapterError("postgres", "update", "user", base)

	assert.Equal(t, "postgres adapter: update user: connection refused", err.Error())
	assert.Equal(t, base, err.Unwrap())
	assert.True(t, pkgerrors.IsAdapterError(err))
	assert.True(t, errors.Is(err, base))

	noCollection := pkgerrors.NewAdapterError("sqlite", "open", "", base)
	assert.Equal(t, "sqlite adapter: open: connection refused", noCollection.Error())
}

func TestConfigError(t *testing.T) {
	err := pkgerrors.NewConfigError("connections", "adapter is required", nil)
	assert.Contains(t, err.Error(), "connections")
	assert.Contains(t, err.Error(), "adapter is required")

	noComponent := &pkgerrors.ConfigError{Message: "bad"}
	assert.Equal(t, "configuration error: bad", noComponent.Error())
}

func TestIOError(t *testing.T) {
	t.Run("unwrap", func(t *testing.T) {
		baseErr := errors.New("disk full")
		err := pkgerrors.NewIOError("write", "/data/output.txt", baseErr)
		assert.Equal(t, baseErr, err.Unwrap())
		assert.Contains(t, err.Error(), "/data/output.txt")
	})

	t.Run("wrap helper", func(t *testing.T) {
		err := pkgerrors.WrapIO("mkdir", "/tmp/app", errors.New("permission denied"))
		ioErr, ok := err.(*pkgerrors.IOError)
		require.True(t, ok)
		assert.Equal(t, "mkdir", ioErr.Operation)
		assert.Equal(t, "/tmp/app", ioErr.Path)
		assert.Nil(t, pkgerrors.WrapIO("read", "file", nil))
	})
}

func TestResourceError(t *testing.T) {
	err := pkgerrors.WrapResource("update", "record", "42", pkgerrors.ErrAlreadyExists)
	resErr, ok := err.(*pkgerrors.ResourceError)
	require.True(t, ok)
	assert.Equal(t, "update", resErr.Operation)
	assert.Equal(t, "record", resErr.Resource)
	assert.True(t, pkgerrors.IsAlreadyExists(err))
	assert.Nil(t, pkgerrors.WrapResource("update", "record", "42", nil))
}

func TestParseError(t *testing.T) {
	t.Run("with file", func(t *testing.T) {
		err := &pkgerrors.ParseError{Format: "yaml", File: "user.yaml", Message: "invalid indentation"}
		assert.Equal(t, "parse error in yaml file user.yaml: invalid indentation", err.Error())
	})

	t.Run("format only", func(t *testing.T) {
		err := &pkgerrors.ParseError{Format: "json", Message: "syntax error"}
		assert.Equal(t, "json parse error: syntax error", err.Error())
	})

	t.Run("wrap", func(t *testing.T) {
		baseErr := errors.New("EOF")
		wrapped := pkgerrors.WrapParse("json", ".sailsrc", baseErr)
		parseErr, ok := wrapped.(*pkgerrors.ParseError)
		require.True(t, ok)
		assert.Equal(t, ".sailsrc", parseErr.File)
		assert.Equal(t, baseErr, parseErr.Unwrap())
	})
}

func TestAlreadyExistsError(t *testing.T) {
	err := pkgerrors.NewAlreadyExistsError("record", "9")
	assert.Equal(t, "record 9 already exists", err.Error())
	assert.True(t, pkgerrors.IsAlreadyExists(err))
}

func TestWrapHelpers(t *testing.T) {
	err := pkgerrors.WrapValidation("username", errors.New("too short"))
	assert.Contains(t, err.Error(), "username")
	assert.True(t, pkgerrors.IsValidationError(err))
	assert.Nil(t, pkgerrors.WrapValidation("field", nil))

	assert.Nil(t, pkgerrors.WrapAdapter("memory", "find", "user", nil))
	assert.True(t, pkgerrors.IsAdapterError(pkgerrors.WrapAdapter("memory", "find", "user", errors.New("x"))))

	assert.True(t, pkgerrors.IsTimeout(pkgerrors.ErrTimeout))
	assert.True(t, pkgerrors.IsUnauthorized(fmt.Errorf("token: %w", pkgerrors.ErrUnauthorized)))
	assert.True(t, pkgerrors.IsCanceled(pkgerrors.ErrCanceled))
}
