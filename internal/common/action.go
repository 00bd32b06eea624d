package common

import "context"

type ActionType string

const (
	ActionRedirectOrigin  ActionType = "REDIRECT-ORIGIN"
	ActionOverridePayload ActionType = "OVERRIDE-PAYLOAD"
)

// Action rewrites the request held by metadata in place. A non-nil error
// means the request was left as it was before Execute.
type Action interface {
	Type() ActionType
	Execute(ctx context.Context, metadata *Metadata) error
}
