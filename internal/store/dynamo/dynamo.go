// Package dynamo stores seen message ids, daily logs and debt reports in a
// single DynamoDB table keyed by PK/SK.
//
//	PK USER#<user>  SK SEEN#<messageId>          claim for one inbound message
//	PK USER#<user>  SK DAY#<yyyy-mm-dd>          daily log, messages list
//	PK USER#<user>  SK REPORT#<capturedAt>#<id>  one cached debt report
package dynamo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"debtbot/internal/domain"
	"debtbot/internal/store"
)

const (
	skSeen   = "SEEN#"
	skDay    = "DAY#"
	skReport = "REPORT#"

	// Fixed width so sort keys order by time.
	sortableTime = "2006-01-02T15:04:05.000000000Z"
)

type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
	DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

type Store struct {
	api   dynamodbAPI
	table string
}

func New(api dynamodbAPI, table string) (*Store, error) {
	if api == nil {
		return nil, errors.New("dynamo: api must not be nil")
	}
	if strings.TrimSpace(table) == "" {
		return nil, errors.New("dynamo: table name must not be empty")
	}
	return &Store{api: api, table: table}, nil
}

func userPK(user string) string { return "USER#" + user }

func key(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pk},
		"SK": &types.AttributeValueMemberS{Value: sk},
	}
}

func (s *Store) HasSeen(ctx context.Context, user, messageID string) (bool, error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:            aws.String(s.table),
		Key:                  key(userPK(user), skSeen+messageID),
		ConsistentRead:       aws.Bool(true),
		ProjectionExpression: aws.String("PK"),
	})
	if err != nil {
		return false, fmt.Errorf("dynamo: HasSeen: %w", err)
	}
	return out != nil && len(out.Item) > 0, nil
}

// Append writes the SEEN# claim and the DAY# list append in one transaction.
// A failed condition on the claim means another delivery won.
func (s *Store) Append(ctx context.Context, e store.LogEntry) (bool, error) {
	pk := userPK(e.User)
	at := e.At.UTC().Format(time.RFC3339Nano)

	seen := key(pk, skSeen+e.MessageID)
	seen["day"] = &types.AttributeValueMemberS{Value: e.Day}
	seen["seenAt"] = &types.AttributeValueMemberS{Value: at}

	_, err := s.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           aws.String(s.table),
					Item:                seen,
					ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
				},
			},
			{
				Update: &types.Update{
					TableName:        aws.String(s.table),
					Key:              key(pk, skDay+e.Day),
					UpdateExpression: aws.String("SET messages = list_append(if_not_exists(messages, :empty), :msg), createdAt = if_not_exists(createdAt, :now), updatedAt = :now"),
					ExpressionAttributeValues: map[string]types.AttributeValue{
						":empty": &types.AttributeValueMemberL{Value: []types.AttributeValue{}},
						":msg":   &types.AttributeValueMemberL{Value: []types.AttributeValue{&types.AttributeValueMemberS{Value: string(e.Raw)}}},
						":now":   &types.AttributeValueMemberS{Value: at},
					},
				},
			},
		},
	})
	if err == nil {
		return true, nil
	}
	if claimLost(err) {
		return false, nil
	}
	return false, fmt.Errorf("dynamo: Append: %w", err)
}

func claimLost(err error) bool {
	var tce *types.TransactionCanceledException
	if !errors.As(err, &tce) || len(tce.CancellationReasons) == 0 {
		return false
	}
	return aws.ToString(tce.CancellationReasons[0].Code) == "ConditionalCheckFailed"
}

func (s *Store) DailyLog(ctx context.Context, user, day string) (domain.ChatLog, error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            key(userPK(user), skDay+day),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.ChatLog{}, fmt.Errorf("dynamo: DailyLog: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.ChatLog{}, store.ErrNotFound
	}

	log := domain.ChatLog{User: user, Day: day}
	if l, ok := out.Item["messages"].(*types.AttributeValueMemberL); ok {
		for _, v := range l.Value {
			if sv, ok := v.(*types.AttributeValueMemberS); ok {
				log.Messages = append(log.Messages, json.RawMessage(sv.Value))
			}
		}
	}
	log.CreatedAt = timeAttr(out.Item, "createdAt")
	log.UpdatedAt = timeAttr(out.Item, "updatedAt")
	return log, nil
}

func (s *Store) Put(ctx context.Context, r domain.DebtReport) error {
	item := key(userPK(r.User), reportSK(r))
	item["id"] = &types.AttributeValueMemberS{Value: r.ID}
	item["payload"] = &types.AttributeValueMemberS{Value: string(r.Payload)}
	item["capturedAt"] = &types.AttributeValueMemberS{Value: r.CapturedAt.UTC().Format(time.RFC3339Nano)}

	_, err := s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
	})
	if err != nil {
		return fmt.Errorf("dynamo: Put report: %w", err)
	}
	return nil
}

func reportSK(r domain.DebtReport) string {
	return skReport + r.CapturedAt.UTC().Format(sortableTime) + "#" + r.ID
}

func (s *Store) Latest(ctx context.Context, user string) (domain.DebtReport, bool, error) {
	out, err := s.api.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: userPK(user)},
			":prefix": &types.AttributeValueMemberS{Value: skReport},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(1),
		ConsistentRead:   aws.Bool(true),
	})
	if err != nil {
		return domain.DebtReport{}, false, fmt.Errorf("dynamo: Latest: %w", err)
	}
	if out == nil || len(out.Items) == 0 {
		return domain.DebtReport{}, false, nil
	}

	item := out.Items[0]
	r := domain.DebtReport{
		User:       user,
		ID:         strAttr(item, "id"),
		Payload:    json.RawMessage(strAttr(item, "payload")),
		CapturedAt: timeAttr(item, "capturedAt"),
	}
	return r, true, nil
}

func (s *Store) Ping(ctx context.Context) error {
	_, err := s.api.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.table)})
	return err
}

func (s *Store) Close() {}

func strAttr(item map[string]types.AttributeValue, name string) string {
	if v, ok := item[name].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func timeAttr(item map[string]types.AttributeValue, name string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, strAttr(item, name))
	return t
}
