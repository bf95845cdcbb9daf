package repository

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront/types"
	"github.com/google/uuid"
)

// EdgeInvalidator drop cached copies of paths at the CDN
type EdgeInvalidator interface {
	Invalidate(ctx context.Context, paths ...string) error
}

// CloudFrontAPI subset of *cloudfront.Client
type CloudFrontAPI interface {
	CreateInvalidation(ctx context.Context, params *cloudfront.CreateInvalidationInput, optFns ...func(*cloudfront.Options)) (*cloudfront.CreateInvalidationOutput, error)
}

type cloudFrontInvalidator struct {
	api            CloudFrontAPI
	distributionID string
}

// NewCloudFrontInvalidator noop when distributionID is empty
func NewCloudFrontInvalidator(api CloudFrontAPI, distributionID string) EdgeInvalidator {
	if api == nil || distributionID == "" {
		return noopInvalidator{}
	}
	return &cloudFrontInvalidator{api: api, distributionID: distributionID}
}

func (c *cloudFrontInvalidator) Invalidate(ctx context.Context, paths ...string) error {
	if len(paths) == 0 {
		return nil
	}
	_, err := c.api.CreateInvalidation(ctx, &cloudfront.CreateInvalidationInput{
		DistributionId: aws.String(c.distributionID),
		InvalidationBatch: &types.InvalidationBatch{
			CallerReference: aws.String(uuid.NewString()),
			Paths: &types.Paths{
				Quantity: aws.Int32(int32(len(paths))),
				Items:    paths,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("cloudfront invalidation %v: %w", paths, err)
	}
	return nil
}

type noopInvalidator struct{}

func (noopInvalidator) Invalidate(context.Context, ...string) error { return nil }
