// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package export

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/google/uuid"

	"github.com/Thermoquad/hydrostat/internal/config"
)

// LatestID is the partition key of the overwritten "current status" item
const LatestID = "status_latest"

// putter is the part of the DynamoDB client the sink uses
type putter interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// dynamoItem is a status document keyed for the table
type dynamoItem struct {
	ID        string `dynamodbav:"id"`
	Kind      string `dynamodbav:"kind"`
	ExpiresAt int64  `dynamodbav:"expires_at,omitempty"`
	Status
}

// DynamoSink keeps the latest status in one item and appends every snapshot
// as a log item that expires after the configured TTL
type DynamoSink struct {
	client putter
	table  string
	ttl    time.Duration
	newID  func() string
}

// NewDynamoSink loads AWS credentials from the default chain. Endpoint
// overrides the service URL, e.g. for DynamoDB Local.
func NewDynamoSink(ctx context.Context, cfg config.DynamoDBConfig) (*DynamoSink, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return &DynamoSink{
		client: client,
		table:  cfg.Table,
		ttl:    cfg.LogTTL,
		newID:  uuid.NewString,
	}, nil
}

// Name returns "dynamodb"
func (d *DynamoSink) Name() string {
	return "dynamodb"
}

// Export overwrites the latest item, then appends a log item
func (d *DynamoSink) Export(ctx context.Context, st Status) error {
	latest := dynamoItem{ID: LatestID, Kind: "latest", Status: st}
	if err := d.put(ctx, latest); err != nil {
		return err
	}

	entry := dynamoItem{ID: d.newID(), Kind: "log", Status: st}
	if d.ttl > 0 {
		entry.ExpiresAt = st.Timestamp.Add(d.ttl).Unix()
	}
	return d.put(ctx, entry)
}

func (d *DynamoSink) put(ctx context.Context, item dynamoItem) error {
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}

	_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.table),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("failed to store status in dynamodb: %w", err)
	}
	return nil
}

// Close is a no-op
func (d *DynamoSink) Close() error {
	return nil
}
