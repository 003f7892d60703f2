package parser

import "github.com/rzbill/flr/internal/chunk"

// Composite parses a fixed sequence of members.
type Composite struct {
	Members []Parser
}

// NewComposite returns a composite over members.
func NewComposite(members ...Parser) *Composite {
	return &Composite{Members: members}
}

// Parse returns one value per member, in order.
func (c *Composite) Parse(r *chunk.Reader) (any, error) {
	values := make([]any, len(c.Members))
	for i, m := range c.Members {
		v, err := m.Parse(r)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return values, nil
}

func (c *Composite) Skip(r *chunk.Reader) error {
	for _, m := range c.Members {
		if err := m.Skip(r); err != nil {
			return err
		}
	}
	return nil
}

// ParseReferences collects the references of every member. No reference gives
// nil, a single one is returned bare, several come back as []any in member
// order.
func (c *Composite) ParseReferences(r *chunk.Reader) (any, error) {
	var (
		single any
		many   []any
	)
	for _, m := range c.Members {
		v, err := m.ParseReferences(r)
		if err != nil {
			return nil, err
		}
		if v == nil {
			continue
		}
		switch {
		case many != nil:
			many = append(many, v)
		case single != nil:
			many = []any{single, v}
			single = nil
		default:
			single = v
		}
	}
	if many != nil {
		return many, nil
	}
	return single, nil
}
