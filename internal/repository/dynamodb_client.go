package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"dispatch-bot/internal/domain"
)

const (
	skState   = "STATE#"
	skMeta    = "META#"
	skAppend  = "APPEND#"
	cacheTTL  = 30 * 24 * time.Hour // 30-day TTL on append-row hints
	attrValue = "value"
)

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

// Client wraps a single DynamoDB table holding sessions, append-row hints, counters
// and customer records.
type Client struct {
	api       dynamodbAPI
	tableName string
	now       func() time.Time
}

// New creates a new repository Client.
func New(api dynamodbAPI, tableName string) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &Client{api: api, tableName: tableName, now: time.Now}, nil
}

func sessionPK(id string) string {
	return "SESSION#" + id
}

func ledgerPK(entity string) string {
	return "LEDGER#" + entity
}

func counterPK(name string) string {
	return "COUNTER#" + name
}

func customerPK(broker string) string {
	return "CUSTOMER#" + strings.ToLower(strings.TrimSpace(broker))
}

func (c *Client) key(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pk},
		"SK": &types.AttributeValueMemberS{Value: sk},
	}
}

func (c *Client) get(ctx context.Context, pk, sk string) (map[string]types.AttributeValue, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(c.tableName),
		Key:            c.key(pk, sk),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out == nil || len(out.Item) == 0 {
		return nil, nil
	}
	return out.Item, nil
}

// LoadSession returns the stored session or nil when none exists.
func (c *Client) LoadSession(ctx context.Context, id string) (*domain.Session, error) {
	item, err := c.get(ctx, sessionPK(id), skState)
	if err != nil {
		return nil, fmt.Errorf("repository: LoadSession get item: %w", err)
	}
	if item == nil {
		return nil, nil
	}
	s, err := itemToSession(item)
	if err != nil {
		return nil, fmt.Errorf("repository: LoadSession unmarshal: %w", err)
	}
	return s, nil
}

// SaveSession writes or replaces the session record. The ttl attribute comes from
// Session.TTL so DynamoDB expires idle conversations on its own.
func (c *Client) SaveSession(ctx context.Context, s *domain.Session) error {
	if s == nil || s.ID == "" {
		return errors.New("repository: SaveSession: session id is required")
	}
	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item:      sessionItem(s),
	})
	if err != nil {
		return fmt.Errorf("repository: SaveSession: %w", err)
	}
	return nil
}

// DeleteSession removes the session record. Deleting an absent record is not an error.
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	_, err := c.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(c.tableName),
		Key:       c.key(sessionPK(id), skState),
	})
	if err != nil {
		return fmt.Errorf("repository: DeleteSession: %w", err)
	}
	return nil
}

// CachedAppendRow returns the last known append row for entity/column.
func (c *Client) CachedAppendRow(ctx context.Context, entity, column string) (int, bool, error) {
	item, err := c.get(ctx, ledgerPK(entity), skAppend+column)
	if err != nil {
		return 0, false, fmt.Errorf("repository: CachedAppendRow get item: %w", err)
	}
	if item == nil {
		return 0, false, nil
	}
	row, err := intAttr(item, "row")
	if err != nil {
		return 0, false, fmt.Errorf("repository: CachedAppendRow decode row: %w", err)
	}
	return row, true, nil
}

// StoreAppendRow records the append row for entity/column.
func (c *Client) StoreAppendRow(ctx context.Context, entity, column string, row int) error {
	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item: map[string]types.AttributeValue{
			"PK":        &types.AttributeValueMemberS{Value: ledgerPK(entity)},
			"SK":        &types.AttributeValueMemberS{Value: skAppend + column},
			"row":       &types.AttributeValueMemberN{Value: strconv.Itoa(row)},
			"updatedAt": &types.AttributeValueMemberS{Value: c.now().UTC().Format(time.RFC3339)},
			"ttl":       &types.AttributeValueMemberN{Value: strconv.FormatInt(c.now().Add(cacheTTL).Unix(), 10)},
		},
	})
	if err != nil {
		return fmt.Errorf("repository: StoreAppendRow: %w", err)
	}
	return nil
}

// Counter returns the current value of a named counter, 0 when never advanced.
func (c *Client) Counter(ctx context.Context, name string) (int, error) {
	item, err := c.get(ctx, counterPK(name), skMeta)
	if err != nil {
		return 0, fmt.Errorf("repository: Counter get item: %w", err)
	}
	if item == nil {
		return 0, nil
	}
	n, err := intAttr(item, attrValue)
	if err != nil {
		return 0, fmt.Errorf("repository: Counter decode value: %w", err)
	}
	return n, nil
}

// AdvanceCounter atomically adds one to a named counter and returns the new value.
func (c *Client) AdvanceCounter(ctx context.Context, name string) (int, error) {
	out, err := c.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                aws.String(c.tableName),
		Key:                      c.key(counterPK(name), skMeta),
		UpdateExpression:         aws.String("ADD #v :one SET updatedAt = :now"),
		ExpressionAttributeNames: map[string]string{"#v": attrValue},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": &types.AttributeValueMemberN{Value: "1"},
			":now": &types.AttributeValueMemberS{Value: c.now().UTC().Format(time.RFC3339)},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return 0, fmt.Errorf("repository: AdvanceCounter: %w", err)
	}
	if out == nil {
		return 0, errors.New("repository: AdvanceCounter: empty response")
	}
	n, err := intAttr(out.Attributes, attrValue)
	if err != nil {
		return 0, fmt.Errorf("repository: AdvanceCounter decode value: %w", err)
	}
	return n, nil
}

// Customer returns the billing record for broker, or nil when unknown.
func (c *Client) Customer(ctx context.Context, broker string) (*domain.Customer, error) {
	item, err := c.get(ctx, customerPK(broker), skMeta)
	if err != nil {
		return nil, fmt.Errorf("repository: Customer get item: %w", err)
	}
	if item == nil {
		return nil, nil
	}
	name, err := strAttr(item, "broker")
	if err != nil {
		return nil, fmt.Errorf("repository: Customer unmarshal: %w", err)
	}
	address, _ := strAttr(item, "address")       // allow empty
	email, _ := strAttr(item, "accountingEmail") // allow empty
	return &domain.Customer{Broker: name, Address: address, AccountingEmail: email}, nil
}

// SaveCustomer writes or replaces a broker billing record.
func (c *Client) SaveCustomer(ctx context.Context, cust domain.Customer) error {
	if strings.TrimSpace(cust.Broker) == "" {
		return errors.New("repository: SaveCustomer: broker is required")
	}
	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item: map[string]types.AttributeValue{
			"PK":              &types.AttributeValueMemberS{Value: customerPK(cust.Broker)},
			"SK":              &types.AttributeValueMemberS{Value: skMeta},
			"broker":          &types.AttributeValueMemberS{Value: cust.Broker},
			"address":         &types.AttributeValueMemberS{Value: cust.Address},
			"accountingEmail": &types.AttributeValueMemberS{Value: cust.AccountingEmail},
		},
	})
	if err != nil {
		return fmt.Errorf("repository: SaveCustomer: %w", err)
	}
	return nil
}

func sessionItem(s *domain.Session) map[string]types.AttributeValue {
	fields := make(map[string]types.AttributeValue, len(s.Fields))
	for k, v := range s.Fields {
		fields[k] = &types.AttributeValueMemberS{Value: v}
	}
	attachments := make([]types.AttributeValue, 0, len(s.Attachments))
	for _, a := range s.Attachments {
		attachments = append(attachments, &types.AttributeValueMemberM{Value: map[string]types.AttributeValue{
			"key":  &types.AttributeValueMemberS{Value: a.Key},
			"name": &types.AttributeValueMemberS{Value: a.Name},
			"mime": &types.AttributeValueMemberS{Value: a.MimeType},
		}})
	}
	item := map[string]types.AttributeValue{
		"PK":           &types.AttributeValueMemberS{Value: sessionPK(s.ID)},
		"SK":           &types.AttributeValueMemberS{Value: skState},
		"sessionId":    &types.AttributeValueMemberS{Value: s.ID},
		"kind":         &types.AttributeValueMemberS{Value: string(s.Kind)},
		"state":        &types.AttributeValueMemberS{Value: string(s.State)},
		"fields":       &types.AttributeValueMemberM{Value: fields},
		"attachments":  &types.AttributeValueMemberL{Value: attachments},
		"createdAt":    &types.AttributeValueMemberS{Value: s.CreatedAt.UTC().Format(time.RFC3339Nano)},
		"lastActivity": &types.AttributeValueMemberS{Value: s.LastActivityAt.UTC().Format(time.RFC3339Nano)},
	}
	if s.TTL > 0 {
		item["ttl"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(s.TTL, 10)}
	}
	return item
}

func itemToSession(item map[string]types.AttributeValue) (*domain.Session, error) {
	id, err := strAttr(item, "sessionId")
	if err != nil {
		return nil, err
	}
	kind, err := strAttr(item, "kind")
	if err != nil {
		return nil, err
	}
	state, err := strAttr(item, "state")
	if err != nil {
		return nil, err
	}
	s := &domain.Session{
		ID:     id,
		Kind:   domain.WorkflowKind(kind),
		State:  domain.State(state),
		Fields: map[string]string{},
	}
	if m, ok := item["fields"].(*types.AttributeValueMemberM); ok {
		for k, v := range m.Value {
			if sv, ok := v.(*types.AttributeValueMemberS); ok {
				s.Fields[k] = sv.Value
			}
		}
	}
	if l, ok := item["attachments"].(*types.AttributeValueMemberL); ok {
		for _, v := range l.Value {
			m, ok := v.(*types.AttributeValueMemberM)
			if !ok {
				return nil, errors.New("repository: attachment is not a map")
			}
			key, err := strAttr(m.Value, "key")
			if err != nil {
				return nil, err
			}
			name, _ := strAttr(m.Value, "name") // allow empty
			mime, _ := strAttr(m.Value, "mime") // allow empty
			s.Attachments = append(s.Attachments, domain.Attachment{Key: key, Name: name, MimeType: mime})
		}
	}
	if v, err := strAttr(item, "createdAt"); err == nil {
		s.CreatedAt, _ = time.Parse(time.RFC3339Nano, v)
	}
	if v, err := strAttr(item, "lastActivity"); err == nil {
		s.LastActivityAt, _ = time.Parse(time.RFC3339Nano, v)
	}
	if _, ok := item["ttl"]; ok {
		ttl, err := intAttr(item, "ttl")
		if err != nil {
			return nil, err
		}
		s.TTL = int64(ttl)
	}
	return s, nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func intAttr(item map[string]types.AttributeValue, key string) (int, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("repository: missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("repository: attribute %q is not a number", key)
	}
	parsed, err := strconv.Atoi(n.Value)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}
