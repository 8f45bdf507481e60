package record

import "github.com/m-mizutani/goerr/v2"

// Error kinds surfaced by the engine. Callers match with errors.Is; call
// sites wrap these with goerr.Wrap and attach context values (id, field,
// token position).
var (
	ErrValidation        = goerr.New("invalid record field")
	ErrNotFound          = goerr.New("record not found")
	ErrDimensionMismatch = goerr.New("embedding dimension mismatch")
	ErrSyntax            = goerr.New("malformed MemQL query")
	ErrUnknownField      = goerr.New("unknown query field")
	ErrProvider          = goerr.New("embedding provider failure")
	ErrRateLimited       = goerr.New("embedding provider rate limited")
)
