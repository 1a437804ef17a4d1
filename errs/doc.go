// Package errs defines the error taxonomy shared by the registry, query,
// store and session packages.
//
// Every type carries a go-errors value with a category and text code, so
// callers may match either on the concrete type:
//
//	var nf *errs.NotFoundError
//	if errors.As(err, &nf) { ... }
//
// or on the category through go-errors:
//
//	if goerrors.IsNotFound(err) { ... }
package errs
