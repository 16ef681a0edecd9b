package inventory_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"

	"github.com/skysweep/skysweep/internal/inventory"
	"github.com/skysweep/skysweep/pkg/domain"
	"github.com/skysweep/skysweep/pkg/domain/mock"
)

func TestGetOrCollect_CollectsOncePerKey(t *testing.T) {
	assert := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	conn := mock.NewMockConnector(ctrl)
	conn.EXPECT().Provider().Return(domain.ProviderAWS).AnyTimes()
	conn.EXPECT().List(gomock.Any(), "eu-west-1", "bucket").
		Times(1).Return([]domain.Resource{{ID: "b1"}}, nil)

	inv := inventory.New(conn)

	const callers = 20
	collections := make([]*domain.Collection, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			collection, err := inv.GetOrCollect(context.Background(), domain.ProviderAWS, "eu-west-1", "bucket")
			assert.NoError(err)
			collections[i] = collection
		}(i)
	}
	wg.Wait()

	for i := 1; i < callers; i++ {
		assert.Same(collections[0], collections[i], "concurrent callers must share one collection")
	}
	assert.Len(collections[0].Resources, 1)
}

func TestGetOrCollect_DistinctKeysCollectSeparately(t *testing.T) {
	assert := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	conn := mock.NewMockConnector(ctrl)
	conn.EXPECT().Provider().Return(domain.ProviderAWS).AnyTimes()
	conn.EXPECT().List(gomock.Any(), "eu-west-1", "bucket").Times(1).Return(nil, nil)
	conn.EXPECT().List(gomock.Any(), "us-east-1", "bucket").Times(1).Return(nil, nil)
	conn.EXPECT().List(gomock.Any(), "eu-west-1", "trail").Times(1).Return(nil, nil)

	inv := inventory.New(conn)
	ctx := context.Background()
	for _, key := range []struct{ region, kind string }{
		{"eu-west-1", "bucket"},
		{"us-east-1", "bucket"},
		{"eu-west-1", "trail"},
	} {
		_, err := inv.GetOrCollect(ctx, domain.ProviderAWS, key.region, key.kind)
		assert.NoError(err)
	}
}

func TestGetOrCollect_FailureIsCached(t *testing.T) {
	assert := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	listErr := errors.New("throttled")
	conn := mock.NewMockConnector(ctrl)
	conn.EXPECT().Provider().Return(domain.ProviderAWS).AnyTimes()
	conn.EXPECT().List(gomock.Any(), "eu-west-1", "bucket").Times(1).Return(nil, listErr)

	inv := inventory.New(conn)
	ctx := context.Background()

	first, err := inv.GetOrCollect(ctx, domain.ProviderAWS, "eu-west-1", "bucket")
	assert.NoError(err)
	assert.True(first.Failed())

	// second call must serve the cached failure, not list again
	second, err := inv.GetOrCollect(ctx, domain.ProviderAWS, "eu-west-1", "bucket")
	assert.NoError(err)
	assert.Same(first, second)
}

func TestGetOrCollect_UnknownProvider(t *testing.T) {
	assert := require.New(t)
	inv := inventory.New()
	_, err := inv.GetOrCollect(context.Background(), domain.ProviderGCP, "europe-west1", "instance")
	assert.Error(err)
}

func TestGetOrCollect_CancelledContext(t *testing.T) {
	assert := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	conn := mock.NewMockConnector(ctrl)
	conn.EXPECT().Provider().Return(domain.ProviderAWS).AnyTimes()

	inv := inventory.New(conn)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := inv.GetOrCollect(ctx, domain.ProviderAWS, "eu-west-1", "bucket")
	assert.ErrorIs(err, context.Canceled)
}

func TestFailures(t *testing.T) {
	assert := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	conn := mock.NewMockConnector(ctrl)
	conn.EXPECT().Provider().Return(domain.ProviderAWS).AnyTimes()
	conn.EXPECT().List(gomock.Any(), "us-east-1", "trail").Return(nil, errors.New("throttled"))
	conn.EXPECT().List(gomock.Any(), "eu-west-1", "bucket").Return(nil, errors.New("access denied"))
	conn.EXPECT().List(gomock.Any(), "eu-west-1", "trail").Return([]domain.Resource{{ID: "t1"}}, nil)

	inv := inventory.New(conn)
	ctx := context.Background()
	inv.GetOrCollect(ctx, domain.ProviderAWS, "us-east-1", "trail")
	inv.GetOrCollect(ctx, domain.ProviderAWS, "eu-west-1", "bucket")
	inv.GetOrCollect(ctx, domain.ProviderAWS, "eu-west-1", "trail")

	failures := inv.Failures()
	assert.Equal([]domain.CollectionFailure{
		{Provider: domain.ProviderAWS, Region: "eu-west-1", Kind: "bucket", Error: "access denied"},
		{Provider: domain.ProviderAWS, Region: "us-east-1", Kind: "trail", Error: "throttled"},
	}, failures)
}
