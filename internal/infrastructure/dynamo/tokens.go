package dynamo

import (
	"context"
	"errors"
	"fmt"

	"github.com/alerts-manage-api/internal/domain"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// TokenRepo stores management tokens. Rows are written once and never
// mutated; expiry is enforced by readers, and the table TTL on expires_at
// only reclaims storage for long-dead rows.
type TokenRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewTokenRepo(client *dynamodb.Client, tableName string) *TokenRepo {
	return &TokenRepo{client: client, tableName: tableName}
}

// Put inserts a token row. The conditional expression enforces global token
// uniqueness; a collision surfaces as domain.ErrConflict so the caller can
// regenerate and retry.
func (r *TokenRepo) Put(ctx context.Context, t *domain.ManageToken) error {
	item, err := attributevalue.MarshalMap(t)
	if err != nil {
		return fmt.Errorf("marshal manage token: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(#t)"),
		ExpressionAttributeNames: map[string]string{
			"#t": "token",
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("token already exists: %w", domain.ErrConflict)
		}
		return err
	}
	return nil
}

func (r *TokenRepo) Get(ctx context.Context, token string) (*domain.ManageToken, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey("token", token),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("manage token not found: %w", domain.ErrNotFound)
	}
	var t domain.ManageToken
	if err := attributevalue.UnmarshalMap(out.Item, &t); err != nil {
		return nil, err
	}
	return &t, nil
}
