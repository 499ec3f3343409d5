package migrate

import (
	"context"
	"errors"
	"maps"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/wikistore/internal/apperr"
	"github.com/starford/wikistore/internal/models"
)

// memTarget keeps state in a map and commits by swapping a copy.
type memTarget struct {
	state map[string]int
}

func (m *memTarget) Versions(context.Context) (Versions, error) {
	return Versions{
		Format:      m.state[KeyFormatVersion],
		WriteCompat: m.state[KeyWriteCompat],
		ReadCompat:  m.state[KeyReadCompat],
	}, nil
}

func (m *memTarget) InTx(_ context.Context, fn func(map[string]int) error) error {
	work := maps.Clone(m.state)
	if err := fn(work); err != nil {
		return err
	}
	m.state = work
	return nil
}

func (m *memTarget) WriteVersions(_ context.Context, tx map[string]int, v Versions) error {
	tx[KeyFormatVersion] = v.Format
	tx[KeyWriteCompat] = v.WriteCompat
	tx[KeyReadCompat] = v.ReadCompat
	return nil
}

func counterPlan() Plan[map[string]int] {
	inc := func(key string) func(context.Context, map[string]int, Env) error {
		return func(_ context.Context, tx map[string]int, _ Env) error {
			tx[key]++
			return nil
		}
	}
	return Plan[map[string]int]{
		Current:    3,
		ReadCompat: 2,
		Steps: []Step[map[string]int]{
			{From: 0, To: 1, Name: "a", Apply: inc("a")},
			{From: 1, To: 2, Name: "b", Apply: inc("b")},
			{From: 2, To: 3, Name: "c", Apply: inc("c")},
		},
	}
}

func TestStatus(t *testing.T) {
	p := counterPlan()
	s, _ := p.Status(Versions{Format: 3, WriteCompat: 3, ReadCompat: 2})
	assert.Equal(t, models.FormatUpToDate, s)

	s, _ = p.Status(Versions{Format: 1, WriteCompat: 1, ReadCompat: 1})
	assert.Equal(t, models.FormatNeedsMigration, s)

	s, msg := p.Status(Versions{Format: 4, WriteCompat: 4, ReadCompat: 3})
	assert.Equal(t, models.FormatUnsupported, s)
	assert.Contains(t, msg, "newer engine")

	s, _ = p.Status(Versions{Format: 4, WriteCompat: 3, ReadCompat: 2})
	assert.Equal(t, models.FormatUpToDate, s, "newer but write-compatible format is usable")
}

func TestRunFromZero(t *testing.T) {
	target := &memTarget{state: map[string]int{}}
	require.NoError(t, Run(context.Background(), target, counterPlan(), Env{}))

	assert.Equal(t, 1, target.state["a"])
	assert.Equal(t, 1, target.state["b"])
	assert.Equal(t, 1, target.state["c"])
	assert.Equal(t, 3, target.state[KeyFormatVersion])
	assert.Equal(t, 2, target.state[KeyReadCompat])

	// Second run is a no-op.
	require.NoError(t, Run(context.Background(), target, counterPlan(), Env{}))
	assert.Equal(t, 1, target.state["a"])
}

func TestRunResumesAfterFailedStep(t *testing.T) {
	plan := counterPlan()
	boom := errors.New("disk full")
	failing := plan
	failing.Steps = append([]Step[map[string]int](nil), plan.Steps...)
	failing.Steps[1].Apply = func(_ context.Context, tx map[string]int, _ Env) error {
		tx["b"] = 99
		return boom
	}

	target := &memTarget{state: map[string]int{}}
	err := Run(context.Background(), target, failing, Env{})
	require.ErrorIs(t, err, apperr.ErrMigrationFailed)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, target.state[KeyFormatVersion], "first step committed")
	assert.Zero(t, target.state["b"], "failed step rolled back")

	require.NoError(t, Run(context.Background(), target, plan, Env{}))
	assert.Equal(t, 1, target.state["a"])
	assert.Equal(t, 1, target.state["b"])
}

func TestRunUnsupported(t *testing.T) {
	target := &memTarget{state: map[string]int{KeyFormatVersion: 9, KeyWriteCompat: 9}}
	err := Run(context.Background(), target, counterPlan(), Env{})
	require.ErrorIs(t, err, apperr.ErrUnsupportedFormat)
}

func TestRunMissingStep(t *testing.T) {
	plan := counterPlan()
	plan.Steps = plan.Steps[:1]
	target := &memTarget{state: map[string]int{}}
	err := Run(context.Background(), target, plan, Env{})
	require.ErrorIs(t, err, apperr.ErrMigrationFailed)
}
