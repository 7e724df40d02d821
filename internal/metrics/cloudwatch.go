package metrics

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"greenfloor/internal/config"
)

type metricPutter interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchSink publishes one datum set per cycle.
type CloudWatchSink struct {
	Client    metricPutter
	Namespace string
}

func NewCloudWatchSink(ctx context.Context, cfg config.CloudWatchConfig) (*CloudWatchSink, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	ns := cfg.Namespace
	if ns == "" {
		ns = "GreenFloor"
	}
	return &CloudWatchSink{Client: cloudwatch.NewFromConfig(awsCfg), Namespace: ns}, nil
}

func (s *CloudWatchSink) Publish(ctx context.Context, sample Sample) error {
	if s == nil || s.Client == nil {
		return nil
	}
	count := func(name string, v float64) cwtypes.MetricDatum {
		return cwtypes.MetricDatum{MetricName: aws.String(name), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(v)}
	}
	data := []cwtypes.MetricDatum{
		count("MarketsProcessed", float64(sample.MarketsProcessed)),
		count("MarketsFailed", float64(sample.MarketsFailed)),
		count("OffersPosted", float64(sample.OffersPosted)),
		count("OffersCancelled", float64(sample.OffersCancelled)),
		count("CoinOpsExecuted", float64(sample.CoinOpsExecuted)),
		count("FeeCommittedMojos", float64(sample.FeeCommitted)),
		{MetricName: aws.String("CycleDuration"), Unit: cwtypes.StandardUnitSeconds, Value: aws.Float64(sample.Duration.Seconds())},
	}
	_, err := s.Client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(s.Namespace),
		MetricData: data,
	})
	return err
}
