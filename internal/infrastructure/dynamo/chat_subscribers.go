package dynamo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/alerts-manage-api/internal/domain"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// ChatSubscriberRepo provides typed DynamoDB operations for the chat
// partition. Records are keyed directly by the Telegram chat id, so lookups
// never need a secondary index.
type ChatSubscriberRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewChatSubscriberRepo(client *dynamodb.Client, tableName string) *ChatSubscriberRepo {
	return &ChatSubscriberRepo{client: client, tableName: tableName}
}

func chatKey(chatID int64) string {
	return strconv.FormatInt(chatID, 10)
}

func (r *ChatSubscriberRepo) Put(ctx context.Context, c *domain.ChatSubscriber) error {
	item, err := attributevalue.MarshalMap(c)
	if err != nil {
		return fmt.Errorf("marshal chat subscriber: %w", err)
	}
	// chat_id is numeric in the domain type but stored as the string PK.
	item["chat_id"] = strAttr(chatKey(c.ChatID))
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}

func (r *ChatSubscriberRepo) Get(ctx context.Context, chatID int64) (*domain.ChatSubscriber, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey("chat_id", chatKey(chatID)),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("chat subscriber not found: %w", domain.ErrNotFound)
	}
	var c domain.ChatSubscriber
	delete(out.Item, "chat_id")
	if err := attributevalue.UnmarshalMap(out.Item, &c); err != nil {
		return nil, err
	}
	c.ChatID = chatID
	return &c, nil
}

func (r *ChatSubscriberRepo) Update(ctx context.Context, chatID int64, updates map[string]interface{}) error {
	updates["updated_at"] = time.Now().UTC().Format(time.RFC3339)
	expr, names, values, err := buildUpdateExpr(updates)
	if err != nil {
		return err
	}
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey("chat_id", chatKey(chatID)),
		UpdateExpression:          aws.String(expr),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	return err
}

func (r *ChatSubscriberRepo) SetPendingCode(ctx context.Context, chatID int64, code string) error {
	return r.Update(ctx, chatID, map[string]interface{}{
		fieldPendingCode: code,
		fieldVerifiedAt:  nil,
	})
}

// ClearPendingCode removes a staged code, but only while it still equals the
// given value, so a delivery-failure rollback cannot erase a newer code.
func (r *ChatSubscriberRepo) ClearPendingCode(ctx context.Context, chatID int64, code string) error {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 strKey("chat_id", chatKey(chatID)),
		UpdateExpression:    aws.String("SET #u = :u REMOVE #c"),
		ConditionExpression: aws.String("#c = :code"),
		ExpressionAttributeNames: map[string]string{
			"#c": fieldPendingCode,
			"#u": "updated_at",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":code": strAttr(code),
			":u":    strAttr(time.Now().UTC().Format(time.RFC3339)),
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return nil
		}
		return err
	}
	return nil
}

func (r *ChatSubscriberRepo) MarkVerified(ctx context.Context, chatID int64, at time.Time) error {
	return r.Update(ctx, chatID, map[string]interface{}{
		fieldPendingCode: nil,
		fieldVerifiedAt:  at.UTC().Format(time.RFC3339),
	})
}

func (r *ChatSubscriberRepo) SetAlerts(ctx context.Context, chatID int64, alerts []string) error {
	return r.Update(ctx, chatID, map[string]interface{}{
		fieldAlerts: alerts,
	})
}
