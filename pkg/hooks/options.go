package hooks

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/mhrivnak/orderflow/pkg/database/models"
	"github.com/mhrivnak/orderflow/pkg/errdef"
)

// Option is one (value, label) choice of a dropdown field.
type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// Options is what an option generator produces for a field.
type Options struct {
	InitialValue string   `json:"initial_value,omitempty"`
	Options      []Option `json:"options"`
}

// OptionRequest identifies the field and who is asking.
type OptionRequest struct {
	Field  string
	User   *models.User
	Group  *models.Group
	Params map[string]string
}

type OptionGenerator func(ctx context.Context, req OptionRequest) (Options, error)

// OptionRegistry maps field names to their option generators.
type OptionRegistry struct {
	mu         sync.RWMutex
	generators map[string]OptionGenerator
}

func NewOptionRegistry() *OptionRegistry {
	return &OptionRegistry{generators: make(map[string]OptionGenerator)}
}

func (r *OptionRegistry) Register(field string, gen OptionGenerator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generators[field] = gen
}

func (r *OptionRegistry) Fields() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fields := make([]string, 0, len(r.generators))
	for field := range r.generators {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fields
}

// Generate runs the generator of req.Field. An initial value that is not one of the options
// is an error.
func (r *OptionRegistry) Generate(ctx context.Context, req OptionRequest) (Options, error) {
	r.mu.RLock()
	gen, ok := r.generators[req.Field]
	r.mu.RUnlock()
	if !ok {
		return Options{}, errdef.NewNotFound("no option generator for field %q", req.Field)
	}

	opts, err := gen(ctx, req)
	if err != nil {
		return Options{}, err
	}
	if opts.Options == nil {
		opts.Options = []Option{}
	}
	if opts.InitialValue != "" && !opts.contains(opts.InitialValue) {
		return Options{}, fmt.Errorf("initial value %q of field %q is not one of its options", opts.InitialValue, req.Field)
	}
	return opts, nil
}

func (o Options) contains(value string) bool {
	for _, opt := range o.Options {
		if opt.Value == value {
			return true
		}
	}
	return false
}
