package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"nsfas-assistant/internal/domain"
)

const (
	skTicket    = "TICKET#"
	skAnalytics = "ANALYTICS#"
	ttlDuration = 30 * 24 * time.Hour // 30-day TTL on analytics only
)

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// Client stores tickets and session analytics in DynamoDB tables keyed by
// PK/SK. Both tables may be the same.
type Client struct {
	api            dynamodbAPI
	ticketsTable   string
	analyticsTable string
	now            func() time.Time
}

// New creates a new repository Client.
func New(api dynamodbAPI, ticketsTable, analyticsTable string) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(ticketsTable) == "" {
		return nil, errors.New("repository: tickets table name must not be empty")
	}
	if strings.TrimSpace(analyticsTable) == "" {
		return nil, errors.New("repository: analytics table name must not be empty")
	}
	return &Client{api: api, ticketsTable: ticketsTable, analyticsTable: analyticsTable, now: time.Now}, nil
}

func ticketPK(number string) string {
	return "TKT#" + number
}

func sessionPK(sessionID string) string {
	return "SESS#" + sessionID
}

// AppendTicket writes the ticket once; an existing ticket with the same
// number is never overwritten.
func (c *Client) AppendTicket(ctx context.Context, t domain.Ticket) error {
	if t.Number == "" {
		return errors.New("repository: AppendTicket: ticket number is required")
	}
	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(c.ticketsTable),
		Item:                ticketItem(t),
		ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
	})
	if err != nil {
		return fmt.Errorf("repository: AppendTicket: %w", err)
	}
	return nil
}

// SaveSession writes or replaces the analytics record of a session.
func (c *Client) SaveSession(ctx context.Context, sessionID string, turns []domain.Turn) error {
	if sessionID == "" {
		return errors.New("repository: SaveSession: session id is required")
	}
	if turns == nil {
		turns = []domain.Turn{}
	}
	encoded, err := json.Marshal(turns)
	if err != nil {
		return fmt.Errorf("repository: SaveSession marshal: %w", err)
	}
	now := c.now().UTC()
	_, err = c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.analyticsTable),
		Item: map[string]types.AttributeValue{
			"PK":           &types.AttributeValueMemberS{Value: sessionPK(sessionID)},
			"SK":           &types.AttributeValueMemberS{Value: skAnalytics},
			"sessionId":    &types.AttributeValueMemberS{Value: sessionID},
			"turns":        &types.AttributeValueMemberS{Value: string(encoded)},
			"turnCount":    &types.AttributeValueMemberN{Value: strconv.Itoa(len(turns))},
			"lastActivity": &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
			"ttl":          &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Add(ttlDuration).Unix(), 10)},
		},
	})
	if err != nil {
		return fmt.Errorf("repository: SaveSession: %w", err)
	}
	return nil
}

// SessionTurns reads back the analytics record of a session. A missing record
// yields no turns.
func (c *Client) SessionTurns(ctx context.Context, sessionID string) ([]domain.Turn, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.analyticsTable),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: sessionPK(sessionID)},
			"SK": &types.AttributeValueMemberS{Value: skAnalytics},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("repository: SessionTurns get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return nil, nil
	}

	raw, err := strAttr(out.Item, "turns")
	if err != nil {
		return nil, fmt.Errorf("repository: SessionTurns: %w", err)
	}
	count, err := intAttr(out.Item, "turnCount")
	if err != nil {
		return nil, fmt.Errorf("repository: SessionTurns: %w", err)
	}
	var turns []domain.Turn
	if err := json.Unmarshal([]byte(raw), &turns); err != nil {
		return nil, fmt.Errorf("repository: SessionTurns decode turns: %w", err)
	}
	if len(turns) != count {
		return nil, fmt.Errorf("repository: SessionTurns: stored %d turns, count says %d", len(turns), count)
	}
	return turns, nil
}

// PendingTickets scans the tickets table and returns every ticket oldest
// first.
func (c *Client) PendingTickets(ctx context.Context) ([]domain.Ticket, error) {
	p := dynamodb.NewScanPaginator(c.api, &dynamodb.ScanInput{
		TableName:        aws.String(c.ticketsTable),
		FilterExpression: aws.String("SK = :sk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":sk": &types.AttributeValueMemberS{Value: skTicket},
		},
		ConsistentRead: aws.Bool(true),
	})

	var out []domain.Ticket
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("repository: PendingTickets scan: %w", err)
		}
		for _, item := range page.Items {
			t, err := ticketFromItem(item)
			if err != nil {
				return nil, fmt.Errorf("repository: PendingTickets: %w", err)
			}
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].Number < out[j].Number
	})
	return out, nil
}

func ticketFromItem(item map[string]types.AttributeValue) (domain.Ticket, error) {
	var (
		t   domain.Ticket
		err error
	)
	if t.Number, err = strAttr(item, "ticketNo"); err != nil {
		return domain.Ticket{}, err
	}
	if t.StudentName, err = strAttr(item, "studentName"); err != nil {
		return domain.Ticket{}, err
	}
	if t.Email, err = strAttr(item, "email"); err != nil {
		return domain.Ticket{}, err
	}
	if t.Question, err = strAttr(item, "question"); err != nil {
		return domain.Ticket{}, err
	}
	created, err := strAttr(item, "createdAt")
	if err != nil {
		return domain.Ticket{}, err
	}
	if t.Timestamp, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return domain.Ticket{}, fmt.Errorf("repository: parse createdAt: %w", err)
	}
	return t, nil
}

func ticketItem(t domain.Ticket) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":          &types.AttributeValueMemberS{Value: ticketPK(t.Number)},
		"SK":          &types.AttributeValueMemberS{Value: skTicket},
		"ticketNo":    &types.AttributeValueMemberS{Value: t.Number},
		"studentName": &types.AttributeValueMemberS{Value: t.StudentName},
		"email":       &types.AttributeValueMemberS{Value: t.Email},
		"question":    &types.AttributeValueMemberS{Value: t.Question},
		"createdAt":   &types.AttributeValueMemberS{Value: t.Timestamp.UTC().Format(time.RFC3339Nano)},
	}
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
