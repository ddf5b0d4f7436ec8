package cli

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/forPelevin/vidsum/internal/domain/jobs"
	"github.com/forPelevin/vidsum/internal/ports"
)

// progressPrinter writes each new step of a Job to w and forwards the
// snapshot to next.
type progressPrinter struct {
	w    io.Writer
	next ports.Publisher

	mu   sync.Mutex
	last map[string]string
}

func newProgressPrinter(w io.Writer) *progressPrinter {
	return &progressPrinter{w: w, last: map[string]string{}}
}

func (p *progressPrinter) Publish(ctx context.Context, j jobs.Job) error {
	p.mu.Lock()
	if j.Step != "" && p.last[j.ID] != j.Step {
		p.last[j.ID] = j.Step
		fmt.Fprintf(p.w, "  %s...\n", j.Step)
	}
	p.mu.Unlock()
	if p.next == nil {
		return nil
	}
	return p.next.Publish(ctx, j)
}
