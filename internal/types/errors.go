package types

import "errors"

// Sentinel error kinds. Wrap with %w and test with errors.Is; the CLI maps
// these to process exit codes.
var (
	// ErrConfig covers missing or malformed configuration. Exit code 4.
	ErrConfig = errors.New("configuration error")

	// ErrAuth covers credential helper failures and rejected tokens. Exit code 3.
	ErrAuth = errors.New("authentication error")

	// ErrBoardNotFound means the configured board does not exist and
	// auto-create is off. Exit code 2.
	ErrBoardNotFound = errors.New("board not found")

	// ErrSchema means a required field could not be resolved or created.
	ErrSchema = errors.New("board schema error")

	// ErrState covers an unreadable or unwritable state file.
	ErrState = errors.New("state file error")

	// ErrParse covers an invalid task file.
	ErrParse = errors.New("task file parse error")
)
