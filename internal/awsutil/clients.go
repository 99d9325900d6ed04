// Package awsutil builds AWS service clients, pointing them at LocalStack
// when an endpoint is configured.
package awsutil

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	configv2 "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// Options selects the region and an optional LocalStack endpoint
// (e.g. http://localhost:4566).
type Options struct {
	Region   string
	Endpoint string
}

func loadConfig(ctx context.Context, o Options) (aws.Config, error) {
	opts := []func(*configv2.LoadOptions) error{
		configv2.WithRegion(o.Region),
	}

	// LocalStack accepts any static credentials
	if o.Endpoint != "" {
		opts = append(opts, configv2.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider("test", "test", ""),
		))
	}
	return configv2.LoadDefaultConfig(ctx, opts...)
}

func NewSQSClient(ctx context.Context, o Options) (*sqs.Client, error) {
	cfg, err := loadConfig(ctx, o)
	if err != nil {
		return nil, err
	}
	if o.Endpoint != "" {
		return sqs.NewFromConfig(cfg, func(opt *sqs.Options) {
			opt.BaseEndpoint = aws.String(o.Endpoint)
		}), nil
	}
	return sqs.NewFromConfig(cfg), nil
}

func NewDynamoDBClient(ctx context.Context, o Options) (*dynamodb.Client, error) {
	cfg, err := loadConfig(ctx, o)
	if err != nil {
		return nil, err
	}
	if o.Endpoint != "" {
		return dynamodb.NewFromConfig(cfg, func(opt *dynamodb.Options) {
			opt.BaseEndpoint = aws.String(o.Endpoint)
		}), nil
	}
	return dynamodb.NewFromConfig(cfg), nil
}
