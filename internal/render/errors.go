package render

import "errors"

var (
	// ErrEmptyBoard rejects rendering a board with no elements.
	ErrEmptyBoard = errors.New("whiteboard has no elements to render")

	// ErrAssetsPending is retryable: a referenced asset's preview generation
	// has not finished yet. Callers should tell the user to retry shortly.
	ErrAssetsPending = errors.New("referenced assets are still processing, retry later")

	// ErrAssetsBroken is permanent: a referenced asset is missing or its
	// preview generation failed. The user must remove the offending content.
	ErrAssetsBroken = errors.New("whiteboard references missing or broken assets, remove them and retry")

	// ErrRenderFailed is permanent: worker spawn failure, non-zero exit or
	// timeout. Not retried automatically.
	ErrRenderFailed = errors.New("rendering failed")
)
