package hooks

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mhrivnak/orderflow/pkg/errdef"
)

func TestOptionRegistry(t *testing.T) {
	registry := NewOptionRegistry()
	registry.Register("size", func(ctx context.Context, req OptionRequest) (Options, error) {
		return Options{
			InitialValue: "m",
			Options:      []Option{{Value: "s", Label: "Small"}, {Value: "m", Label: "Medium"}},
		}, nil
	})
	registry.Register("bad_initial", func(ctx context.Context, req OptionRequest) (Options, error) {
		return Options{InitialValue: "xl", Options: []Option{{Value: "s", Label: "Small"}}}, nil
	})
	registry.Register("empty", func(ctx context.Context, req OptionRequest) (Options, error) {
		return Options{}, nil
	})
	registry.Register("broken", func(ctx context.Context, req OptionRequest) (Options, error) {
		return Options{}, errors.New("provider unreachable")
	})

	t.Run("generates options", func(t *testing.T) {
		opts, err := registry.Generate(context.Background(), OptionRequest{Field: "size"})
		require.NoError(t, err)
		assert.Equal(t, "m", opts.InitialValue)
		assert.Equal(t, Option{Value: "s", Label: "Small"}, opts.Options[0])
	})

	t.Run("initial value must be an option", func(t *testing.T) {
		_, err := registry.Generate(context.Background(), OptionRequest{Field: "bad_initial"})
		assert.Error(t, err)
	})

	t.Run("empty options are not nil", func(t *testing.T) {
		opts, err := registry.Generate(context.Background(), OptionRequest{Field: "empty"})
		require.NoError(t, err)
		assert.NotNil(t, opts.Options)
	})

	t.Run("generator error", func(t *testing.T) {
		_, err := registry.Generate(context.Background(), OptionRequest{Field: "broken"})
		assert.EqualError(t, err, "provider unreachable")
	})

	t.Run("unknown field", func(t *testing.T) {
		_, err := registry.Generate(context.Background(), OptionRequest{Field: "color"})
		assert.True(t, errdef.IsNotFound(err))
	})

	assert.Equal(t, []string{"bad_initial", "broken", "empty", "size"}, registry.Fields())
}
