package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"

	"github.com/etudekit/etude/internal/domain/model"
)

var _ Store = (*DynamoStore)(nil)

// DynamoStore implements Store on a DynamoDB table keyed by session id.
// The mistake ledger travels as a JSON blob attribute; everything queried
// for aggregation is a scalar attribute.
type DynamoStore struct {
	client *dynamodb.DynamoDB
	table  string
}

// DynamoOption applies a configuration option to the DynamoStore.
type DynamoOption func(*dynamoConfig)

type dynamoConfig struct {
	region   string
	endpoint string
	table    string
}

// WithRegion sets the AWS region.
func WithRegion(region string) DynamoOption {
	return func(c *dynamoConfig) {
		if region != "" {
			c.region = region
		}
	}
}

// WithEndpoint sets a custom endpoint, e.g. a local DynamoDB.
func WithEndpoint(endpoint string) DynamoOption {
	return func(c *dynamoConfig) {
		if endpoint != "" {
			c.endpoint = endpoint
		}
	}
}

// WithTable sets the table name.
func WithTable(table string) DynamoOption {
	return func(c *dynamoConfig) {
		if table != "" {
			c.table = table
		}
	}
}

// NewDynamoStore creates a store backed by DynamoDB.
func NewDynamoStore(opts ...DynamoOption) (*DynamoStore, error) {
	cfg := dynamoConfig{
		region: "us-east-1",
		table:  "etude-sessions",
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	awsCfg := aws.Config{Region: aws.String(cfg.region)}
	if cfg.endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.endpoint)
	}
	sess, err := session.NewSession(&awsCfg)
	if err != nil {
		return nil, fmt.Errorf("dynamodb session: %w", err)
	}
	return &DynamoStore{client: dynamodb.New(sess), table: cfg.table}, nil
}

// Save persists a finished session summary.
func (d *DynamoStore) Save(ctx context.Context, s model.SessionSummary) error {
	mistakes, err := json.Marshal(s.Mistakes)
	if err != nil {
		return fmt.Errorf("marshal mistakes: %w", err)
	}
	item := map[string]*dynamodb.AttributeValue{
		"PK":          str(s.ID),
		"LessonUID":   str(s.Lesson.UID),
		"LessonID":    str(s.Lesson.ID),
		"LessonTitle": str(s.Lesson.Title),
		"Source":      str(s.Lesson.Source),
		"StartedAt":   str(s.StartedAt.UTC().Format(time.RFC3339)),
		"EndedAt":     str(s.EndedAt.UTC().Format(time.RFC3339)),
		"DurationSec": num(s.DurationSec),
		"Attempts":    num(s.Performance.Attempts),
		"Score":       num(s.Performance.Score),
		"Aborted":     {BOOL: aws.Bool(s.Aborted)},
		"Mistakes":    str(string(mistakes)),
	}
	_, err = d.client.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.table),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("put session %s: %w", s.ID, err)
	}
	return nil
}

// Get returns the summary for a session id.
func (d *DynamoStore) Get(ctx context.Context, id string) (model.SessionSummary, error) {
	out, err := d.client.GetItemWithContext(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(d.table),
		Key:       map[string]*dynamodb.AttributeValue{"PK": str(id)},
	})
	if err != nil {
		return model.SessionSummary{}, fmt.Errorf("get session %s: %w", id, err)
	}
	if out.Item == nil {
		return model.SessionSummary{}, ErrNotFound
	}
	return itemToSummary(out.Item)
}

// History returns all summaries for a lesson, oldest first. A scan with a
// filter is acceptable here: session volume per account is small.
func (d *DynamoStore) History(ctx context.Context, lessonUID string) ([]model.SessionSummary, error) {
	out, err := d.scan(ctx, &lessonUID)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Aggregate computes attempts and average/high/last score for a lesson.
func (d *DynamoStore) Aggregate(ctx context.Context, lessonUID string) (Aggregate, error) {
	history, err := d.History(ctx, lessonUID)
	if err != nil {
		return Aggregate{}, err
	}
	return aggregateOf(history), nil
}

// Activity buckets stored practice time by day, week, or month.
func (d *DynamoStore) Activity(ctx context.Context, bucket Bucket) ([]ActivityPoint, error) {
	if !ValidBucket(bucket) {
		return nil, ErrInvalidBucket
	}
	all, err := d.scan(ctx, nil)
	if err != nil {
		return nil, err
	}
	return activityOf(all, bucket), nil
}

// Count returns the number of stored sessions.
func (d *DynamoStore) Count(ctx context.Context) int {
	all, err := d.scan(ctx, nil)
	if err != nil {
		return 0
	}
	return len(all)
}

func (d *DynamoStore) scan(ctx context.Context, lessonUID *string) ([]model.SessionSummary, error) {
	input := &dynamodb.ScanInput{TableName: aws.String(d.table)}
	if lessonUID != nil {
		input.FilterExpression = aws.String("LessonUID = :uid")
		input.ExpressionAttributeValues = map[string]*dynamodb.AttributeValue{
			":uid": str(*lessonUID),
		}
	}

	var out []model.SessionSummary
	err := d.client.ScanPagesWithContext(ctx, input, func(page *dynamodb.ScanOutput, last bool) bool {
		for _, item := range page.Items {
			s, err := itemToSummary(item)
			if err != nil {
				continue // skip rows written by incompatible versions
			}
			out = append(out, s)
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("scan sessions: %w", err)
	}
	sortByEnd(out)
	return out, nil
}

func itemToSummary(item map[string]*dynamodb.AttributeValue) (model.SessionSummary, error) {
	var s model.SessionSummary
	s.ID = strAt(item, "PK")
	if s.ID == "" {
		return s, ErrNotFound
	}
	s.Lesson = model.Lesson{
		UID:    strAt(item, "LessonUID"),
		ID:     strAt(item, "LessonID"),
		Title:  strAt(item, "LessonTitle"),
		Source: strAt(item, "Source"),
	}
	s.StartedAt, _ = time.Parse(time.RFC3339, strAt(item, "StartedAt"))
	s.EndedAt, _ = time.Parse(time.RFC3339, strAt(item, "EndedAt"))
	s.DurationSec = numAt(item, "DurationSec")
	s.Performance = model.Performance{
		Attempts: numAt(item, "Attempts"),
		Score:    numAt(item, "Score"),
	}
	if v, ok := item["Aborted"]; ok && v.BOOL != nil {
		s.Aborted = *v.BOOL
	}
	if raw := strAt(item, "Mistakes"); raw != "" {
		_ = json.Unmarshal([]byte(raw), &s.Mistakes)
	}
	return s, nil
}

func str(v string) *dynamodb.AttributeValue {
	return &dynamodb.AttributeValue{S: aws.String(v)}
}

func num(v int) *dynamodb.AttributeValue {
	return &dynamodb.AttributeValue{N: aws.String(strconv.Itoa(v))}
}

func strAt(item map[string]*dynamodb.AttributeValue, key string) string {
	if v, ok := item[key]; ok && v.S != nil {
		return *v.S
	}
	return ""
}

func numAt(item map[string]*dynamodb.AttributeValue, key string) int {
	if v, ok := item[key]; ok && v.N != nil {
		n, _ := strconv.Atoi(*v.N)
		return n
	}
	return 0
}

func sortByEnd(sessions []model.SessionSummary) {
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].EndedAt.Before(sessions[j].EndedAt)
	})
}
