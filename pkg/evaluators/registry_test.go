package evaluators_test

import (
	"context"
	"testing"

	"github.com/ogulcanaydogan/opsalert/pkg/evaluators"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type namedEvaluator string

func (n namedEvaluator) Name() string                            { return string(n) }
func (n namedEvaluator) Evaluate(_ context.Context) (int, error) { return 0, nil }

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := evaluators.NewRegistry()
	require.NoError(t, r.Register(namedEvaluator("payment_overdue")))

	got, err := r.Get("payment_overdue")
	require.NoError(t, err)
	assert.Equal(t, "payment_overdue", got.Name())
}

func TestRegistry_DuplicateRegister(t *testing.T) {
	r := evaluators.NewRegistry()
	require.NoError(t, r.Register(namedEvaluator("stage")))

	err := r.Register(namedEvaluator("stage"))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestRegistry_GetNotFound(t *testing.T) {
	r := evaluators.NewRegistry()
	_, err := r.Get("nonexistent")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestRegistry_Order(t *testing.T) {
	r := evaluators.NewRegistry()
	for _, name := range []string{"c", "a", "b"} {
		require.NoError(t, r.Register(namedEvaluator(name)))
	}
	assert.Equal(t, []string{"c", "a", "b"}, r.Names())

	all := r.All()
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].Name())
	assert.Equal(t, "b", all[2].Name())
}
