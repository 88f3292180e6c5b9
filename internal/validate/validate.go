// Package validate checks host resources against a list of named rules
// before a message is allowed to act on them.
package validate

import (
	"errors"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/wormhole-demo/corebridge/internal/derive"
)

var ErrRuleFailed = errors.New("resource validation failed")

// Handle describes a host resource the way the host presents it.
type Handle struct {
	ID          derive.Identity
	Owner       derive.Identity
	Writable    bool
	Initialized bool
}

// Rule is a named predicate over a Handle. It implements
// validation.Rule.
type Rule struct {
	Name  string
	Check func(h *Handle) error
}

// Validate runs the rule against a *Handle.
func (r Rule) Validate(value interface{}) error {
	h, ok := value.(*Handle)
	if !ok {
		return fmt.Errorf("%s: not a resource handle: %T", r.Name, value)
	}
	if err := r.Check(h); err != nil {
		return fmt.Errorf("%s: %w", r.Name, err)
	}
	return nil
}

var identified = Rule{Name: "identified", Check: func(h *Handle) error {
	if h.ID == (derive.Identity{}) {
		return errors.New("no identity")
	}
	return nil
}}

// Check applies rules to h in order and stops at the first failure.
func Check(h *Handle, rules ...Rule) error {
	if h == nil {
		return fmt.Errorf("%w: no resource", ErrRuleFailed)
	}
	all := make([]validation.Rule, 0, len(rules)+1)
	all = append(all, identified)
	for _, r := range rules {
		all = append(all, r)
	}
	if err := validation.Validate(h, all...); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrRuleFailed, h.ID, err)
	}
	return nil
}

// Owned requires the resource to belong to owner.
func Owned(owner derive.Identity) Rule {
	return Rule{Name: "owned", Check: func(h *Handle) error {
		if h.Owner != owner {
			return fmt.Errorf("owned by %s, want %s", h.Owner, owner)
		}
		return nil
	}}
}

// Mutable requires the resource to be writable.
func Mutable() Rule {
	return Rule{Name: "mutable", Check: func(h *Handle) error {
		if !h.Writable {
			return errors.New("not writable")
		}
		return nil
	}}
}

// Uninitialized requires a resource that has not been created yet.
func Uninitialized() Rule {
	return Rule{Name: "uninitialized", Check: func(h *Handle) error {
		if h.Initialized {
			return errors.New("already initialized")
		}
		return nil
	}}
}

// Derived requires the resource identity to equal d.Derive(seeds...).
func Derived(d derive.Deriver, seeds ...[]byte) Rule {
	return Rule{Name: "derived", Check: func(h *Handle) error {
		want, err := d.Derive(seeds...)
		if err != nil {
			return err
		}
		if h.ID != want {
			return fmt.Errorf("identity %s, derived %s", h.ID, want)
		}
		return nil
	}}
}
