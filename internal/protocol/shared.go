package protocol

import (
	"context"

	"golang.org/x/sync/singleflight"
)

// SharedValidator collapses concurrent validations of the same credential
// into one call. Pipelines that each own a coordinator, like the per-request
// pipelines of the web portal, share one of these so a browser session still
// sees a single validation however many of its requests hit a 401 together.
type SharedValidator struct {
	inner Validator
	group singleflight.Group
}

// NewSharedValidator wraps inner
func NewSharedValidator(inner Validator) *SharedValidator {
	return &SharedValidator{inner: inner}
}

// Validate joins the validation in flight for token, or starts one. Results
// are not cached; a call made after the previous one finished validates again.
func (v *SharedValidator) Validate(ctx context.Context, token string) error {
	_, err, _ := v.group.Do(token, func() (interface{}, error) {
		return nil, v.inner.Validate(ctx, token)
	})
	return err
}
