package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"

	"dispatch-bot/internal/domain"
)

// fakeDynamo keeps items keyed by PK|SK so round trips can be asserted.
type fakeDynamo struct {
	items        map[string]map[string]types.AttributeValue
	getErr       error
	putErr       error
	deleteErr    error
	updateOut    *dynamodb.UpdateItemOutput
	updateErr    error
	lastGetInput *dynamodb.GetItemInput
	lastPutInput *dynamodb.PutItemInput
	lastDelInput *dynamodb.DeleteItemInput
	lastUpdateIn *dynamodb.UpdateItemInput
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: map[string]map[string]types.AttributeValue{}}
}

func itemKey(item map[string]types.AttributeValue) string {
	return item["PK"].(*types.AttributeValueMemberS).Value + "|" + item["SK"].(*types.AttributeValueMemberS).Value
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.lastGetInput = in
	if f.getErr != nil {
		return nil, f.getErr
	}
	return &dynamodb.GetItemOutput{Item: f.items[itemKey(in.Key)]}, nil
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.lastPutInput = in
	if f.putErr != nil {
		return nil, f.putErr
	}
	f.items[itemKey(in.Item)] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.lastDelInput = in
	if f.deleteErr != nil {
		return nil, f.deleteErr
	}
	delete(f.items, itemKey(in.Key))
	return &dynamodb.DeleteItemOutput{}, nil
}

func (f *fakeDynamo) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.lastUpdateIn = in
	return f.updateOut, f.updateErr
}

func mustNewClient(t *testing.T, db *fakeDynamo) *Client {
	t.Helper()
	c, err := New(db, "test-table")
	require.NoError(t, err)
	c.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }
	return c
}

func TestNew_Validates(t *testing.T) {
	_, err := New(nil, "t")
	require.Error(t, err)
	_, err = New(newFakeDynamo(), " ")
	require.Error(t, err)
}

func TestSession_RoundTrip(t *testing.T) {
	db := newFakeDynamo()
	c := mustNewClient(t, db)
	ctx := context.Background()

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s := domain.NewSession("chat-1", domain.WorkflowInvoice, "resolve_pod", now)
	s.Fields["entity"] = "Walter"
	s.Fields["row"] = "540"
	s.Attachments = []domain.Attachment{{Key: "tmp/1.jpg", Name: "pod.jpg", MimeType: "image/jpeg"}}
	s.TTL = now.Add(24 * time.Hour).Unix()

	require.NoError(t, c.SaveSession(ctx, s))
	require.Equal(t, "SESSION#chat-1", db.lastPutInput.Item["PK"].(*types.AttributeValueMemberS).Value)
	require.Equal(t, skState, db.lastPutInput.Item["SK"].(*types.AttributeValueMemberS).Value)
	require.Contains(t, db.lastPutInput.Item, "ttl")

	got, err := c.LoadSession(ctx, "chat-1")
	require.NoError(t, err)
	require.Equal(t, s.Kind, got.Kind)
	require.Equal(t, s.State, got.State)
	require.Equal(t, s.Fields, got.Fields)
	require.Equal(t, s.Attachments, got.Attachments)
	require.Equal(t, s.TTL, got.TTL)
	require.True(t, s.LastActivityAt.Equal(got.LastActivityAt))
	require.True(t, *db.lastGetInput.ConsistentRead)

	require.NoError(t, c.DeleteSession(ctx, "chat-1"))
	got, err = c.LoadSession(ctx, "chat-1")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestSaveSession_OmitsTTLWhenZero(t *testing.T) {
	db := newFakeDynamo()
	c := mustNewClient(t, db)
	require.NoError(t, c.SaveSession(context.Background(), domain.NewSession("1", domain.WorkflowIfta, "a", time.Now())))
	require.NotContains(t, db.lastPutInput.Item, "ttl")
}

func TestSaveSession_Errors(t *testing.T) {
	db := newFakeDynamo()
	c := mustNewClient(t, db)
	require.Error(t, c.SaveSession(context.Background(), &domain.Session{}))

	db.putErr = errors.New("ProvisionedThroughputExceededException")
	err := c.SaveSession(context.Background(), domain.NewSession("1", domain.WorkflowIfta, "a", time.Now()))
	require.Error(t, err)
	require.Contains(t, err.Error(), "SaveSession")
}

func TestLoadSession_Errors(t *testing.T) {
	db := newFakeDynamo()
	c := mustNewClient(t, db)
	db.getErr = errors.New("boom")
	_, err := c.LoadSession(context.Background(), "1")
	require.Error(t, err)
	require.Contains(t, err.Error(), "LoadSession")

	db.getErr = nil
	db.items["SESSION#1|"+skState] = map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: "SESSION#1"},
		"SK": &types.AttributeValueMemberS{Value: skState},
	}
	_, err = c.LoadSession(context.Background(), "1")
	require.Error(t, err)
	require.Contains(t, err.Error(), "sessionId")
}

func TestDeleteSession_Error(t *testing.T) {
	db := newFakeDynamo()
	db.deleteErr = errors.New("boom")
	c := mustNewClient(t, db)
	err := c.DeleteSession(context.Background(), "1")
	require.Error(t, err)
	require.Contains(t, err.Error(), "DeleteSession")
}

func TestAppendRow_CacheRoundTrip(t *testing.T) {
	db := newFakeDynamo()
	c := mustNewClient(t, db)
	ctx := context.Background()

	_, ok, err := c.CachedAppendRow(ctx, "Walter", "A")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, c.StoreAppendRow(ctx, "Walter", "A", 612))
	require.Equal(t, "LEDGER#Walter", db.lastPutInput.Item["PK"].(*types.AttributeValueMemberS).Value)
	require.Equal(t, "APPEND#A", db.lastPutInput.Item["SK"].(*types.AttributeValueMemberS).Value)

	row, ok, err := c.CachedAppendRow(ctx, "Walter", "A")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 612, row)
}

func TestCounter(t *testing.T) {
	db := newFakeDynamo()
	c := mustNewClient(t, db)
	ctx := context.Background()

	n, err := c.Counter(ctx, "TRAILER#OwnerOpX")
	require.NoError(t, err)
	require.Zero(t, n)

	db.items["COUNTER#TRAILER#OwnerOpX|"+skMeta] = map[string]types.AttributeValue{
		"PK":    &types.AttributeValueMemberS{Value: "COUNTER#TRAILER#OwnerOpX"},
		"SK":    &types.AttributeValueMemberS{Value: skMeta},
		"value": &types.AttributeValueMemberN{Value: "7"},
	}
	n, err = c.Counter(ctx, "TRAILER#OwnerOpX")
	require.NoError(t, err)
	require.Equal(t, 7, n)
}

func TestAdvanceCounter(t *testing.T) {
	db := newFakeDynamo()
	db.updateOut = &dynamodb.UpdateItemOutput{Attributes: map[string]types.AttributeValue{
		"value": &types.AttributeValueMemberN{Value: "8"},
	}}
	c := mustNewClient(t, db)
	n, err := c.AdvanceCounter(context.Background(), "TRAILER#OwnerOpX")
	require.NoError(t, err)
	require.Equal(t, 8, n)
	require.Equal(t, "ADD #v :one SET updatedAt = :now", *db.lastUpdateIn.UpdateExpression)
	require.Equal(t, types.ReturnValueUpdatedNew, db.lastUpdateIn.ReturnValues)

	db.updateErr = errors.New("conditional check failed")
	_, err = c.AdvanceCounter(context.Background(), "TRAILER#OwnerOpX")
	require.Error(t, err)
	require.Contains(t, err.Error(), "AdvanceCounter")
}

func TestCustomer_RoundTripCaseInsensitive(t *testing.T) {
	db := newFakeDynamo()
	c := mustNewClient(t, db)
	ctx := context.Background()

	require.Error(t, c.SaveCustomer(ctx, domain.Customer{}))
	require.NoError(t, c.SaveCustomer(ctx, domain.Customer{Broker: "TQL", Address: "Total Quality\nCincinnati, OH", AccountingEmail: "ap@tql.com"}))

	got, err := c.Customer(ctx, " tql ")
	require.NoError(t, err)
	require.Equal(t, "TQL", got.Broker)
	require.Equal(t, "ap@tql.com", got.AccountingEmail)

	missing, err := c.Customer(ctx, "CH Robinson")
	require.NoError(t, err)
	require.Nil(t, missing)
}
