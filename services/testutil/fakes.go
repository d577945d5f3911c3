package testutil

import (
	"context"
	"fmt"
	"sync/atomic"
)

// Sequence is an in-process sequence.Generator.
type Sequence struct {
	n atomic.Int64
}

func (s *Sequence) NextCampaignCode(ctx context.Context) (string, error) {
	return fmt.Sprintf("CMP-TEST-%03d", s.n.Add(1)), nil
}

// IDs is a deterministic gen.IDGenerator producing zero padded counters, so
// lexical and numeric order agree.
type IDs struct {
	n atomic.Int64
}

func (g *IDs) NextID() string {
	return fmt.Sprintf("%019d", g.n.Add(1))
}
