package embed

import "context"

// Generator produces one vector per input text, in input order.
type Generator interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}
