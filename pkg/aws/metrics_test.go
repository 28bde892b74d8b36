package aws

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCloudWatch struct {
	inputs []*cloudwatch.PutMetricDataInput
	err    error
}

func (f *fakeCloudWatch) PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	f.inputs = append(f.inputs, params)
	return &cloudwatch.PutMetricDataOutput{}, f.err
}

func TestMetricsClient_DisabledSendsNothing(t *testing.T) {
	fake := &fakeCloudWatch{}
	m := &MetricsClient{client: fake, namespace: "Catalog", enabled: false}

	require.NoError(t, m.RecordCount(context.Background(), MetricUploadsCompleted, nil))
	assert.Empty(t, fake.inputs)
	assert.False(t, m.IsEnabled())
}

func TestMetricsClient_NilIsNoop(t *testing.T) {
	var m *MetricsClient
	assert.NoError(t, m.RecordLatency(context.Background(), MetricUploadMoveLatency, time.Second, nil))
}

func TestMetricsClient_RecordLatency(t *testing.T) {
	fake := &fakeCloudWatch{}
	m := &MetricsClient{client: fake, namespace: "Catalog", enabled: true}

	err := m.RecordLatency(context.Background(), MetricUploadMoveLatency, 1500*time.Millisecond, map[string]string{"driver": "local"})
	require.NoError(t, err)
	require.Len(t, fake.inputs, 1)

	in := fake.inputs[0]
	assert.Equal(t, "Catalog", *in.Namespace)
	require.Len(t, in.MetricData, 1)
	assert.Equal(t, MetricUploadMoveLatency, *in.MetricData[0].MetricName)
	assert.Equal(t, float64(1500), *in.MetricData[0].Value)
	assert.Equal(t, types.StandardUnitMilliseconds, in.MetricData[0].Unit)
	require.Len(t, in.MetricData[0].Dimensions, 1)
	assert.Equal(t, "driver", *in.MetricData[0].Dimensions[0].Name)
}

func TestMetricsClient_WrapsError(t *testing.T) {
	boom := errors.New("throttled")
	m := &MetricsClient{client: &fakeCloudWatch{err: boom}, namespace: "Catalog", enabled: true}

	err := m.RecordCount(context.Background(), MetricUploadsFailed, nil)
	assert.ErrorIs(t, err, boom)
}
