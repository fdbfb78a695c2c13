package oracle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"gigsafe/internal/activity/models"
	"gigsafe/internal/oracle/mocks"
	"gigsafe/pkg/platform/circuit"
)

//go:generate mockgen -source=oracle.go -destination=mocks/oracle-mocks.go -package=mocks Oracle

func TestGuardedOpensAndProbes(t *testing.T) {
	ctrl := gomock.NewController(t)
	inner := mocks.NewMockOracle(ctrl)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	g := NewGuarded(inner, time.Second,
		WithBreaker(circuit.New("test", circuit.WithFailureThreshold(2))),
		WithCooldown(time.Minute),
		WithGuardClock(func() time.Time { return now }),
	)
	ctx := context.Background()

	inner.EXPECT().Classify(gomock.Any(), gomock.Any()).Return(models.Verdict{}, errors.New("503")).Times(2)
	_, err := g.Classify(ctx, models.FeatureVector{})
	require.Error(t, err)
	_, err = g.Classify(ctx, models.FeatureVector{})
	require.Error(t, err)
	assert.Equal(t, circuit.StateOpen, g.State())

	_, err = g.Classify(ctx, models.FeatureVector{})
	assert.ErrorIs(t, err, ErrCircuitOpen, "no call while cooling down")

	now = now.Add(2 * time.Minute)
	inner.EXPECT().Classify(gomock.Any(), gomock.Any()).Return(models.Verdict{IsAnomaly: true}, nil)
	v, err := g.Classify(ctx, models.FeatureVector{})
	require.NoError(t, err)
	assert.True(t, v.IsAnomaly)
	assert.Equal(t, circuit.StateClosed, g.State())
}

func TestGuardedAppliesTimeout(t *testing.T) {
	ctrl := gomock.NewController(t)
	inner := mocks.NewMockOracle(ctrl)
	inner.EXPECT().Classify(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, _ models.FeatureVector) (models.Verdict, error) {
			deadline, ok := ctx.Deadline()
			assert.True(t, ok)
			assert.WithinDuration(t, time.Now().Add(50*time.Millisecond), deadline, 50*time.Millisecond)
			<-ctx.Done()
			return models.Verdict{}, ctx.Err()
		})

	g := NewGuarded(inner, 50*time.Millisecond)
	_, err := g.Classify(context.Background(), models.FeatureVector{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
