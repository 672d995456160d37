// Package commentary supplies the display line folded into each snapshot
// after a draw. Providers may be slow or fail; the host calls them with a
// short deadline and keeps the previous line on error.
package commentary

import (
	"context"
	"fmt"
	"math/rand"
)

// Source produces one line for a freshly drawn number. remaining is the pool
// size after the draw.
type Source interface {
	Line(ctx context.Context, drawn, remaining int) (string, error)
}

// Canned is the built-in offline source.
type Canned struct {
	rng *rand.Rand
}

func NewCanned(rng *rand.Rand) *Canned { return &Canned{rng: rng} }

var templates = []string{
	"Number %d! %d balls left in the bag.",
	"Here comes %d, only %d to go.",
	"And it's %d. The bag still holds %d.",
	"%d joins the board, %d remain.",
}

func (c *Canned) Line(ctx context.Context, drawn, remaining int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	t := templates[c.rng.Intn(len(templates))]
	return fmt.Sprintf(t, drawn, remaining), nil
}
