package errors

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifiedError(t *testing.T) {
	t.Run("Basic error creation", func(t *testing.T) {
		err := NewError(CategoryConfig, "invalid configuration").
			WithSeverity(SeverityFatal).
			WithContext("file", "base.yaml").
			Build()

		assert.Equal(t, CategoryConfig, err.Category())
		assert.Equal(t, SeverityFatal, err.Severity())
		assert.Equal(t, "invalid configuration", err.Message())

		file, ok := err.Context().GetString("file")
		require.True(t, ok)
		assert.Equal(t, "base.yaml", file)
	})

	t.Run("Wrapped errors are found through the chain", func(t *testing.T) {
		cause := errors.New("disk full")
		err := WrapError(cause, CategoryFileSystem, "write artifact").Build()
		outer := fmt.Errorf("emit: %w", err)

		assert.ErrorIs(t, outer, cause)
		assert.True(t, HasCategory(outer, CategoryFileSystem))
		assert.Equal(t, CategoryFileSystem, GetCategory(outer))
		assert.Equal(t, CategoryInternal, GetCategory(cause))
	})

	t.Run("WithCause wraps the underlying error", func(t *testing.T) {
		cause := errors.New("permission denied")
		err := FileSystemError("create output directory").WithCause(cause).Build()

		assert.ErrorIs(t, err, cause)
		assert.Equal(t, "[filesystem] create output directory: permission denied", err.Error())
	})

	t.Run("WithContext does not mutate the receiver", func(t *testing.T) {
		base := SchemaError("missing field").Build()
		derived := base.WithContext("field", "entry")

		_, ok := base.Context().Get("field")
		assert.False(t, ok)
		v, _ := derived.Context().GetString("field")
		assert.Equal(t, "entry", v)
		assert.ErrorIs(t, derived, base)
	})
}

func TestConvenienceConstructors(t *testing.T) {
	tests := []struct {
		name     string
		builder  *ErrorBuilder
		category ErrorCategory
		severity ErrorSeverity
	}{
		{"ConfigError", ConfigError("x"), CategoryConfig, SeverityFatal},
		{"SchemaError", SchemaError("x"), CategorySchema, SeverityFatal},
		{"ValidationError", ValidationError("x"), CategoryValidation, SeverityFatal},
		{"CompileError", CompileError("x"), CategoryCompile, SeverityError},
		{"ServeError", ServeError("x"), CategoryServe, SeverityError},
		{"HMRError", HMRError("x"), CategoryHMR, SeverityError},
		{"WatchError", WatchError("x"), CategoryWatch, SeverityError},
		{"InternalError", InternalError("x"), CategoryInternal, SeverityFatal},
		{"FileSystemError", FileSystemError("x"), CategoryFileSystem, SeverityError},
		{"RuntimeError", RuntimeError("x"), CategoryRuntime, SeverityFatal},
		{"Warning", ConfigError("x").Warning(), CategoryConfig, SeverityWarning},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.builder.Build()
			assert.Equal(t, tt.category, err.Category())
			assert.Equal(t, tt.severity, err.Severity())
		})
	}
}

func TestCLIErrorAdapter_ExitCodes(t *testing.T) {
	a := NewCLIErrorAdapter(false, nil)

	assert.Equal(t, 0, a.ExitCodeFor(nil))
	assert.Equal(t, 1, a.ExitCodeFor(errors.New("plain")))
	assert.Equal(t, 7, a.ExitCodeFor(SchemaError("x").Build()))
	assert.Equal(t, 11, a.ExitCodeFor(CompileError("x").Build()))
	assert.Equal(t, 2, a.ExitCodeFor(ValidationError("x").Build()))
}

func TestCLIErrorAdapter_FormatError(t *testing.T) {
	quiet := NewCLIErrorAdapter(false, nil)
	assert.Equal(t, "Error: output.path is required", quiet.FormatError(SchemaError("output.path is required").Build()))
	assert.Contains(t, quiet.FormatError(InternalError("boom").Build()), "use -v")

	verbose := NewCLIErrorAdapter(true, nil)
	assert.Contains(t, verbose.FormatError(InternalError("boom").Build()), "[internal] boom")
}

func TestHTTPErrorAdapter(t *testing.T) {
	a := NewHTTPErrorAdapter(nil)

	assert.Equal(t, http.StatusNotFound, a.StatusCodeFor(NotFoundError("no artifact").Build()))
	assert.Equal(t, http.StatusUnprocessableEntity, a.StatusCodeFor(CompileError("syntax").Build()))
	assert.Equal(t, http.StatusInternalServerError, a.StatusCodeFor(errors.New("plain")))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/main.js", nil)
	a.WriteErrorResponse(rec, req, NotFoundError("no artifact").WithContext("path", "/main.js").Build())

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":"no artifact","code":"not_found","details":{"path":"/main.js"}}`, rec.Body.String())
}
