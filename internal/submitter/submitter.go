package submitter

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

type VAASubmitter interface {
	// SubmitVAA forwards the given VAA bytes and returns a reference for the
	// delivery (a transaction hash, for example) or an error
	SubmitVAA(ctx context.Context, vaaBytes []byte) (string, error)
}

// Multi forwards every VAA to each of its submitters in order. It stops at
// the first failure.
type Multi []VAASubmitter

func (m Multi) SubmitVAA(ctx context.Context, vaaBytes []byte) (string, error) {
	if len(m) == 0 {
		return "", errors.New("no submitters configured")
	}
	refs := make([]string, 0, len(m))
	for i, s := range m {
		ref, err := s.SubmitVAA(ctx, vaaBytes)
		if err != nil {
			return strings.Join(refs, ","), fmt.Errorf("submitter %d: %w", i, err)
		}
		if ref != "" {
			refs = append(refs, ref)
		}
	}
	return strings.Join(refs, ","), nil
}
