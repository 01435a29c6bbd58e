// Package errors provides the classified error primitives used across bundledev.
//
// Errors carry a category (config, schema, compile, serve, ...), a severity and
// free-form context. The CLI and HTTP adapters map categories to exit codes and
// status codes respectively.
//
// Example usage:
//
//	err := errors.SchemaError("output.path is required").
//		WithContext("field", "output.path").
//		Build()
package errors
