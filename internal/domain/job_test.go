package domain_test

import (
	"testing"

	"github.com/branchvote/branchvote-api/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJob(t *testing.T) {
	type payload struct {
		NodeID uuid.UUID `json:"node_id"`
		Depth  int       `json:"depth"`
	}

	t.Run("round-trips payload", func(t *testing.T) {
		in := payload{NodeID: uuid.New(), Depth: 2}
		job, err := domain.NewJob("pregenerate", in, 0)
		require.NoError(t, err)

		assert.Equal(t, "pregenerate", job.Type)
		assert.Equal(t, domain.JobStatusPending, job.Status)
		assert.Equal(t, domain.DefaultJobMaxAttempts, job.MaxAttempts)
		assert.Zero(t, job.Attempts)

		var out payload
		require.NoError(t, job.UnmarshalPayload(&out))
		assert.Equal(t, in, out)
	})

	t.Run("empty type rejected", func(t *testing.T) {
		_, err := domain.NewJob("", payload{}, 3)
		assert.ErrorIs(t, err, domain.ErrEmptyJobType)
	})

	t.Run("explicit max attempts kept", func(t *testing.T) {
		job, err := domain.NewJob("pregenerate", payload{}, 7)
		require.NoError(t, err)
		assert.Equal(t, 7, job.MaxAttempts)
	})
}

func TestJobExhausted(t *testing.T) {
	job, err := domain.NewJob("pregenerate", struct{}{}, 2)
	require.NoError(t, err)

	assert.False(t, job.Exhausted())
	job.Attempts = 1
	assert.False(t, job.Exhausted())
	job.Attempts = 2
	assert.True(t, job.Exhausted())
}
