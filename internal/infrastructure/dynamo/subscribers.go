package dynamo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alerts-manage-api/internal/domain"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// SubscriberRepo provides typed DynamoDB operations for the phone/platform
// subscriber partition. Records are keyed by subscriber_id; phone and
// whop_user_id are each unique within the partition, enforced by guard items
// written transactionally alongside the record (the GSIs only serve lookups,
// DynamoDB does not make index keys unique).
type SubscriberRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewSubscriberRepo(client *dynamodb.Client, tableName string) *SubscriberRepo {
	return &SubscriberRepo{client: client, tableName: tableName}
}

// guardID builds the PK of the uniqueness-guard item claiming a canonical
// key, e.g. "phone#+15551234567" or "whop#user_abc". Guard items live in the
// subscriber table but carry none of the GSI attributes, so they are
// invisible to the index queries.
func guardID(channel domain.Channel, key string) string {
	return string(channel) + "#" + key
}

func guardPut(tableName, guard, ownerID string) types.TransactWriteItem {
	return types.TransactWriteItem{Put: &types.Put{
		TableName: aws.String(tableName),
		Item: map[string]types.AttributeValue{
			"subscriber_id": strAttr(guard),
			fieldOwnerID:    strAttr(ownerID),
		},
		ConditionExpression: aws.String("attribute_not_exists(subscriber_id)"),
	}}
}

// Create inserts a subscriber together with a guard item per canonical key,
// in one transaction. If another writer already claimed a key the whole
// transaction cancels and the caller gets domain.ErrConflict; re-reading
// through GetByCanonicalKey then yields the record that won.
func (r *SubscriberRepo) Create(ctx context.Context, s *domain.Subscriber) error {
	item, err := attributevalue.MarshalMap(s)
	if err != nil {
		return fmt.Errorf("marshal subscriber: %w", err)
	}
	items := []types.TransactWriteItem{{Put: &types.Put{
		TableName:           aws.String(r.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(subscriber_id)"),
	}}}
	if s.Phone != nil && *s.Phone != "" {
		items = append(items, guardPut(r.tableName, guardID(domain.ChannelPhone, *s.Phone), s.SubscriberID))
	}
	if s.WhopUserID != nil && *s.WhopUserID != "" {
		items = append(items, guardPut(r.tableName, guardID(domain.ChannelPlatform, *s.WhopUserID), s.SubscriberID))
	}
	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})
	if err != nil {
		var canceled *types.TransactionCanceledException
		if errors.As(err, &canceled) {
			return fmt.Errorf("canonical key already claimed: %w", domain.ErrConflict)
		}
		return err
	}
	return nil
}

func (r *SubscriberRepo) Get(ctx context.Context, subscriberID string) (*domain.Subscriber, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            strKey("subscriber_id", subscriberID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("subscriber not found: %w", domain.ErrNotFound)
	}
	var s domain.Subscriber
	if err := attributevalue.UnmarshalMap(out.Item, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SubscriberRepo) GetByPhone(ctx context.Context, e164 string) (*domain.Subscriber, error) {
	return r.queryGSI(ctx, "phone-index", fieldPhone, e164)
}

func (r *SubscriberRepo) GetByWhopUserID(ctx context.Context, whopUserID string) (*domain.Subscriber, error) {
	return r.queryGSI(ctx, "whop_user_id-index", fieldWhopUserID, whopUserID)
}

// GetByCanonicalKey resolves a canonical key through its guard item and then
// fetches the owning record by id. Both reads are strongly consistent, which
// the GSI queries are not; the conflict-retry path depends on seeing the
// record the competing transaction just committed.
func (r *SubscriberRepo) GetByCanonicalKey(ctx context.Context, channel domain.Channel, key string) (*domain.Subscriber, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            strKey("subscriber_id", guardID(channel, key)),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("subscriber not found: %w", domain.ErrNotFound)
	}
	owner, ok := out.Item[fieldOwnerID].(*types.AttributeValueMemberS)
	if !ok || owner.Value == "" {
		return nil, fmt.Errorf("guard item without owner: %w", domain.ErrNotFound)
	}
	return r.Get(ctx, owner.Value)
}

func (r *SubscriberRepo) Update(ctx context.Context, subscriberID string, updates map[string]interface{}) error {
	updates["updated_at"] = time.Now().UTC().Format(time.RFC3339)
	expr, names, values, err := buildUpdateExpr(updates)
	if err != nil {
		return err
	}
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey("subscriber_id", subscriberID),
		UpdateExpression:          aws.String(expr),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	return err
}

// SetPendingCode stages a verification code on the record and clears any
// prior verification, so an outstanding code always re-proves the channel.
func (r *SubscriberRepo) SetPendingCode(ctx context.Context, subscriberID, code string) error {
	return r.Update(ctx, subscriberID, map[string]interface{}{
		fieldPendingCode: code,
		fieldVerifiedAt:  nil,
	})
}

// ClearPendingCode removes a staged code, but only while it still equals the
// given value. A rollback of an undelivered code must not erase a newer code
// staged concurrently; losing that race is a silent no-op.
func (r *SubscriberRepo) ClearPendingCode(ctx context.Context, subscriberID, code string) error {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 strKey("subscriber_id", subscriberID),
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

// MarkVerified records code confirmation: verified_at is set and the code is
// consumed in the same write.
func (r *SubscriberRepo) MarkVerified(ctx context.Context, subscriberID string, at time.Time) error {
	return r.Update(ctx, subscriberID, map[string]interface{}{
		fieldPendingCode: nil,
		fieldVerifiedAt:  at.UTC().Format(time.RFC3339),
	})
}

// SetAlerts fully replaces the stored alert-category set.
func (r *SubscriberRepo) SetAlerts(ctx context.Context, subscriberID string, alerts []string) error {
	return r.Update(ctx, subscriberID, map[string]interface{}{
		fieldAlerts: alerts,
	})
}

// AttachPhone stores the phone number on a platform record and claims its
// guard item in the same transaction. Re-attaching the same phone to the
// same record is idempotent; a phone owned by another record is a conflict.
// A replaced phone's guard is not reclaimed, so a number stays bound to the
// record that first verified it.
func (r *SubscriberRepo) AttachPhone(ctx context.Context, subscriberID, e164 string) error {
	_, err := r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Update: &types.Update{
				TableName:        aws.String(r.tableName),
				Key:              strKey("subscriber_id", subscriberID),
				UpdateExpression: aws.String("SET #p = :p, #u = :u"),
				ExpressionAttributeNames: map[string]string{
					"#p": fieldPhone,
					"#u": "updated_at",
				},
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":p": strAttr(e164),
					":u": strAttr(time.Now().UTC().Format(time.RFC3339)),
				},
			}},
			{Put: &types.Put{
				TableName: aws.String(r.tableName),
				Item: map[string]types.AttributeValue{
					"subscriber_id": strAttr(guardID(domain.ChannelPhone, e164)),
					fieldOwnerID:    strAttr(subscriberID),
				},
				ConditionExpression: aws.String("attribute_not_exists(subscriber_id) OR #o = :owner"),
				ExpressionAttributeNames: map[string]string{
					"#o": fieldOwnerID,
				},
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":owner": strAttr(subscriberID),
				},
			}},
		},
	})
	if err != nil {
		var canceled *types.TransactionCanceledException
		if errors.As(err, &canceled) {
			return fmt.Errorf("phone already claimed by another record: %w", domain.ErrConflict)
		}
		return err
	}
	return nil
}

// AttachEmail stores the account email reported by the platform.
func (r *SubscriberRepo) AttachEmail(ctx context.Context, subscriberID, email string) error {
	return r.Update(ctx, subscriberID, map[string]interface{}{
		fieldEmail: email,
	})
}

func (r *SubscriberRepo) queryGSI(ctx context.Context, index, attr, value string) (*domain.Subscriber, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		IndexName:                 aws.String(index),
		KeyConditionExpression:    aws.String("#a = :v"),
		ExpressionAttributeNames:  map[string]string{"#a": attr},
		ExpressionAttributeValues: map[string]types.AttributeValue{":v": &types.AttributeValueMemberS{Value: value}},
		Limit:                     aws.Int32(1),
	})
	if err != nil {
		return nil, err
	}
	if len(out.Items) == 0 {
		return nil, fmt.Errorf("subscriber not found: %w", domain.ErrNotFound)
	}
	var s domain.Subscriber
	if err := attributevalue.UnmarshalMap(out.Items[0], &s); err != nil {
		return nil, err
	}
	return &s, nil
}
