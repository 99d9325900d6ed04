package dynamo

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"

	"debtbot/internal/domain"
	"debtbot/internal/store"
)

var _ store.Store = (*Store)(nil)

type fakeDynamo struct {
	getOut   *dynamodb.GetItemOutput
	getErr   error
	putErr   error
	queryOut *dynamodb.QueryOutput
	queryErr error
	txErr    error

	lastGetInput *dynamodb.GetItemInput
	lastPutInput *dynamodb.PutItemInput
	lastQueryIn  *dynamodb.QueryInput
	lastTxInput  *dynamodb.TransactWriteItemsInput
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.lastGetInput = in
	return f.getOut, f.getErr
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.lastPutInput = in
	return &dynamodb.PutItemOutput{}, f.putErr
}

func (f *fakeDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.lastQueryIn = in
	return f.queryOut, f.queryErr
}

func (f *fakeDynamo) TransactWriteItems(_ context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	f.lastTxInput = in
	return &dynamodb.TransactWriteItemsOutput{}, f.txErr
}

func (f *fakeDynamo) DescribeTable(_ context.Context, _ *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	return &dynamodb.DescribeTableOutput{}, nil
}

func mustNew(t *testing.T, db *fakeDynamo) *Store {
	t.Helper()
	s, err := New(db, "debtbot")
	require.NoError(t, err)
	return s
}

func s(v string) *types.AttributeValueMemberS { return &types.AttributeValueMemberS{Value: v} }

func TestNewValidates(t *testing.T) {
	_, err := New(nil, "t")
	require.Error(t, err)
	_, err = New(&fakeDynamo{}, " ")
	require.Error(t, err)
}

func TestAppendWritesClaimAndLogTogether(t *testing.T) {
	db := &fakeDynamo{}
	st := mustNew(t, db)

	ok, err := st.Append(context.Background(), store.LogEntry{
		User: "u1", MessageID: "wamid.1", Day: "2024-03-05",
		Raw: json.RawMessage(`{"id":"wamid.1"}`), At: time.Date(2024, 3, 5, 17, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.True(t, ok)

	items := db.lastTxInput.TransactItems
	require.Len(t, items, 2)

	put := items[0].Put
	require.NotNil(t, put)
	require.Equal(t, s("USER#u1"), put.Item["PK"])
	require.Equal(t, s("SEEN#wamid.1"), put.Item["SK"])
	require.Contains(t, aws.ToString(put.ConditionExpression), "attribute_not_exists")

	upd := items[1].Update
	require.NotNil(t, upd)
	require.Equal(t, s("DAY#2024-03-05"), upd.Key["SK"])
	require.Contains(t, aws.ToString(upd.UpdateExpression), "list_append")
	msg := upd.ExpressionAttributeValues[":msg"].(*types.AttributeValueMemberL)
	require.Equal(t, s(`{"id":"wamid.1"}`), msg.Value[0])
}

func TestAppendLosingClaimIsDuplicate(t *testing.T) {
	db := &fakeDynamo{txErr: &types.TransactionCanceledException{
		CancellationReasons: []types.CancellationReason{
			{Code: aws.String("ConditionalCheckFailed")},
			{Code: aws.String("None")},
		},
	}}
	st := mustNew(t, db)

	ok, err := st.Append(context.Background(), store.LogEntry{User: "u1", MessageID: "wamid.1", Day: "2024-03-05"})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestAppendOtherFailuresPropagate(t *testing.T) {
	db := &fakeDynamo{txErr: errors.New("throttled")}
	st := mustNew(t, db)

	_, err := st.Append(context.Background(), store.LogEntry{User: "u1", MessageID: "wamid.1", Day: "2024-03-05"})
	require.Error(t, err)
}

func TestHasSeen(t *testing.T) {
	db := &fakeDynamo{getOut: &dynamodb.GetItemOutput{Item: map[string]types.AttributeValue{"PK": s("USER#u1")}}}
	st := mustNew(t, db)

	seen, err := st.HasSeen(context.Background(), "u1", "wamid.1")
	require.NoError(t, err)
	require.True(t, seen)
	require.True(t, aws.ToBool(db.lastGetInput.ConsistentRead))
	require.Equal(t, s("SEEN#wamid.1"), db.lastGetInput.Key["SK"])

	db.getOut = &dynamodb.GetItemOutput{}
	seen, err = st.HasSeen(context.Background(), "u1", "wamid.2")
	require.NoError(t, err)
	require.False(t, seen)
}

func TestDailyLog(t *testing.T) {
	db := &fakeDynamo{getOut: &dynamodb.GetItemOutput{Item: map[string]types.AttributeValue{
		"PK":        s("USER#u1"),
		"SK":        s("DAY#2024-03-05"),
		"messages":  &types.AttributeValueMemberL{Value: []types.AttributeValue{s(`{"id":"a"}`), s(`{"id":"b"}`)}},
		"createdAt": s("2024-03-05T17:00:00Z"),
		"updatedAt": s("2024-03-05T18:00:00Z"),
	}}}
	st := mustNew(t, db)

	log, err := st.DailyLog(context.Background(), "u1", "2024-03-05")
	require.NoError(t, err)
	require.Len(t, log.Messages, 2)
	require.Equal(t, 18, log.UpdatedAt.Hour())

	db.getOut = &dynamodb.GetItemOutput{}
	_, err = st.DailyLog(context.Background(), "u1", "2024-03-06")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestPutReportSortKeyOrdersByTime(t *testing.T) {
	early := domain.DebtReport{ID: "rpt_b", CapturedAt: time.Date(2024, 3, 5, 17, 0, 0, 0, time.UTC)}
	late := domain.DebtReport{ID: "rpt_a", CapturedAt: early.CapturedAt.Add(500 * time.Millisecond)}
	require.Less(t, reportSK(early), reportSK(late))

	db := &fakeDynamo{}
	st := mustNew(t, db)
	late.User = "u1"
	late.Payload = json.RawMessage(`{"placa":"ABC123"}`)
	require.NoError(t, st.Put(context.Background(), late))
	require.Equal(t, s(reportSK(late)), db.lastPutInput.Item["SK"])
	require.Equal(t, s(`{"placa":"ABC123"}`), db.lastPutInput.Item["payload"])
}

func TestLatestQueriesNewestFirst(t *testing.T) {
	db := &fakeDynamo{queryOut: &dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{{
		"id":         s("rpt_1"),
		"payload":    s(`{"placa":"ABC123"}`),
		"capturedAt": s("2024-03-05T17:00:00Z"),
	}}}}
	st := mustNew(t, db)

	r, found, err := st.Latest(context.Background(), "u1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "rpt_1", r.ID)
	require.Equal(t, "u1", r.User)
	require.False(t, aws.ToBool(db.lastQueryIn.ScanIndexForward))
	require.EqualValues(t, 1, aws.ToInt32(db.lastQueryIn.Limit))

	db.queryOut = &dynamodb.QueryOutput{}
	_, found, err = st.Latest(context.Background(), "u2")
	require.NoError(t, err)
	require.False(t, found)
}
