// Package dynamo registers the "dynamo" storage kind, backed by Amazon
// DynamoDB through aws-sdk-go-v2.
//
// Tables are keyed by the entity's primary-key column (a HASH key) and billed
// on demand. Null values are not stored: a Null column is an absent attribute.
// Select supports full scans only; a non-empty where is rejected.
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	sdk "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"entitymap/ddl"
	"entitymap/row"
	"entitymap/storage"
)

const (
	// batchSize is BatchWriteItem's per-request limit.
	batchSize       = 25
	maxBatchRetries = 5
	defaultWait     = 5 * time.Minute
)

// ErrWhereUnsupported is returned by Select when where is not empty.
var ErrWhereUnsupported = errors.New("dynamo: where clauses are not supported")

// API is the subset of *dynamodb.Client the engine calls.
type API interface {
	DescribeTable(ctx context.Context, in *sdk.DescribeTableInput, optFns ...func(*sdk.Options)) (*sdk.DescribeTableOutput, error)
	CreateTable(ctx context.Context, in *sdk.CreateTableInput, optFns ...func(*sdk.Options)) (*sdk.CreateTableOutput, error)
	DeleteTable(ctx context.Context, in *sdk.DeleteTableInput, optFns ...func(*sdk.Options)) (*sdk.DeleteTableOutput, error)
	PutItem(ctx context.Context, in *sdk.PutItemInput, optFns ...func(*sdk.Options)) (*sdk.PutItemOutput, error)
	UpdateItem(ctx context.Context, in *sdk.UpdateItemInput, optFns ...func(*sdk.Options)) (*sdk.UpdateItemOutput, error)
	GetItem(ctx context.Context, in *sdk.GetItemInput, optFns ...func(*sdk.Options)) (*sdk.GetItemOutput, error)
	DeleteItem(ctx context.Context, in *sdk.DeleteItemInput, optFns ...func(*sdk.Options)) (*sdk.DeleteItemOutput, error)
	Scan(ctx context.Context, in *sdk.ScanInput, optFns ...func(*sdk.Options)) (*sdk.ScanOutput, error)
	BatchWriteItem(ctx context.Context, in *sdk.BatchWriteItemInput, optFns ...func(*sdk.Options)) (*sdk.BatchWriteItemOutput, error)
}

// newEngine is a test hook that points to Open by default.
var newEngine = Open

func init() {
	storage.Register("dynamo", func(ctx context.Context, cfg storage.Config) (storage.Engine, error) {
		return newEngine(ctx, cfg)
	})
}

// Open loads the AWS configuration for cfg and returns an engine. Static
// credentials are used when cfg.AccessKeyID is set; cfg.Endpoint points the
// client at DynamoDB Local or another compatible endpoint.
func Open(ctx context.Context, cfg storage.Config) (*Engine, error) {
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	client := sdk.NewFromConfig(awsCfg, func(o *sdk.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return New(client, nil), nil
}

// Engine is a storage.Engine over DynamoDB.
type Engine struct {
	client API
	logger *slog.Logger
	// wait bounds table creation and deletion.
	wait time.Duration
}

var _ storage.Engine = (*Engine)(nil)

// New returns an Engine over client. A nil logger uses slog.Default().
func New(client API, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{client: client, logger: logger.With("kind", "dynamo"), wait: defaultWait}
}

// Kind implements storage.Engine.
func (e *Engine) Kind() string { return "dynamo" }

// EnsureTable implements storage.Engine. Only the key column is declared;
// other columns are schemaless attributes.
func (e *Engine) EnsureTable(ctx context.Context, def ddl.TableDef, force bool) error {
	if err := ddl.Validate(def); err != nil {
		return err
	}
	pk, ok := def.PrimaryKey()
	if !ok {
		return fmt.Errorf("dynamo: create table %s: a primary key column is required", def.FQN)
	}
	table := aws.String(def.FQN)

	if force {
		e.logger.DebugContext(ctx, "dropping table", "table", def.FQN)
		_, err := e.client.DeleteTable(ctx, &sdk.DeleteTableInput{TableName: table})
		switch {
		case err == nil:
			if err := sdk.NewTableNotExistsWaiter(e.client).Wait(ctx, &sdk.DescribeTableInput{TableName: table}, e.wait); err != nil {
				return fmt.Errorf("dynamo: drop table: %w", err)
			}
		case !isNotFound(err):
			return fmt.Errorf("dynamo: drop table: %w", err)
		}
	}

	_, err := e.client.DescribeTable(ctx, &sdk.DescribeTableInput{TableName: table})
	if err == nil {
		return nil
	}
	if !isNotFound(err) {
		return fmt.Errorf("dynamo: describe table: %w", err)
	}

	e.logger.DebugContext(ctx, "creating table", "table", def.FQN, "key", pk.Name)
	_, err = e.client.CreateTable(ctx, &sdk.CreateTableInput{
		TableName: table,
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String(pk.Name), AttributeType: keyType(pk)},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(pk.Name), KeyType: types.KeyTypeHash},
		},
		BillingMode: types.BillingModePayPerRequest,
	})
	var inUse *types.ResourceInUseException
	if err != nil && !errors.As(err, &inUse) {
		return fmt.Errorf("dynamo: create table: %w", err)
	}
	if err := sdk.NewTableExistsWaiter(e.client).Wait(ctx, &sdk.DescribeTableInput{TableName: table}, e.wait); err != nil {
		return fmt.Errorf("dynamo: create table: %w", err)
	}
	return nil
}

// Insert implements storage.Engine. An item with the same key is replaced.
func (e *Engine) Insert(ctx context.Context, table string, r row.Row) error {
	item, err := toItem(r)
	if err != nil {
		return fmt.Errorf("dynamo: insert: %w", err)
	}
	if len(item) == 0 {
		return fmt.Errorf("dynamo: insert: empty row")
	}
	if _, err := e.client.PutItem(ctx, &sdk.PutItemInput{TableName: aws.String(table), Item: item}); err != nil {
		return fmt.Errorf("dynamo: insert: %w", err)
	}
	return nil
}

// Update implements storage.Engine. Null columns are removed from the item.
// An absent item is reported as zero rows affected.
func (e *Engine) Update(ctx context.Context, table string, key row.Pair, r row.Row) (int64, error) {
	k, err := keyOf(key)
	if err != nil {
		return 0, fmt.Errorf("dynamo: update: %w", err)
	}
	expr, names, values, err := updateExpression(r.Without(key.Column))
	if err != nil {
		return 0, fmt.Errorf("dynamo: update: %w", err)
	}
	if expr == "" {
		_, found, err := e.Get(ctx, table, []string{key.Column}, key)
		if err != nil || !found {
			return 0, err
		}
		return 1, nil
	}
	names["#k"] = key.Column

	_, err = e.client.UpdateItem(ctx, &sdk.UpdateItemInput{
		TableName:                 aws.String(table),
		Key:                       k,
		UpdateExpression:          aws.String(expr),
		ConditionExpression:       aws.String("attribute_exists(#k)"),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	if err != nil {
		var cfe *types.ConditionalCheckFailedException
		if errors.As(err, &cfe) {
			return 0, nil
		}
		return 0, fmt.Errorf("dynamo: update: %w", err)
	}
	return 1, nil
}

// Get implements storage.Engine.
func (e *Engine) Get(ctx context.Context, table string, columns []string, key row.Pair) (row.Row, bool, error) {
	k, err := keyOf(key)
	if err != nil {
		return nil, false, fmt.Errorf("dynamo: get: %w", err)
	}
	in := &sdk.GetItemInput{TableName: aws.String(table), Key: k, ConsistentRead: aws.Bool(true)}
	in.ProjectionExpression, in.ExpressionAttributeNames = projection(columns)

	out, err := e.client.GetItem(ctx, in)
	if err != nil {
		return nil, false, fmt.Errorf("dynamo: get: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, false, nil
	}
	r, err := fromItem(columns, out.Item)
	if err != nil {
		return nil, false, fmt.Errorf("dynamo: get: %w", err)
	}
	return r, true, nil
}

// Select implements storage.Engine as a paginated full-table scan.
func (e *Engine) Select(ctx context.Context, table string, columns []string, where string, _ ...any) ([]row.Row, error) {
	if where != "" {
		return nil, ErrWhereUnsupported
	}
	in := &sdk.ScanInput{TableName: aws.String(table)}
	in.ProjectionExpression, in.ExpressionAttributeNames = projection(columns)

	var out []row.Row
	p := sdk.NewScanPaginator(e.client, in)
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("dynamo: select: %w", err)
		}
		for _, item := range page.Items {
			r, err := fromItem(columns, item)
			if err != nil {
				return nil, fmt.Errorf("dynamo: select: %w", err)
			}
			out = append(out, r)
		}
	}
	return out, nil
}

// Delete implements storage.Engine.
func (e *Engine) Delete(ctx context.Context, table string, key row.Pair) (int64, error) {
	k, err := keyOf(key)
	if err != nil {
		return 0, fmt.Errorf("dynamo: delete: %w", err)
	}
	out, err := e.client.DeleteItem(ctx, &sdk.DeleteItemInput{
		TableName:    aws.String(table),
		Key:          k,
		ReturnValues: types.ReturnValueAllOld,
	})
	if err != nil {
		return 0, fmt.Errorf("dynamo: delete: %w", err)
	}
	if len(out.Attributes) == 0 {
		return 0, nil
	}
	return 1, nil
}

// CopyFrom implements storage.Engine with BatchWriteItem, resubmitting
// unprocessed items with exponential backoff.
func (e *Engine) CopyFrom(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(columns) == 0 {
		return 0, fmt.Errorf("dynamo: copy: columns must not be empty")
	}
	var written int64
	for start := 0; start < len(rows); start += batchSize {
		end := min(start+batchSize, len(rows))
		reqs := make([]types.WriteRequest, 0, end-start)
		for i, vals := range rows[start:end] {
			if len(vals) != len(columns) {
				return written, fmt.Errorf("dynamo: copy: row %d has %d values, want %d", start+i, len(vals), len(columns))
			}
			r := make(row.Row, len(columns))
			for j, c := range columns {
				r[j] = row.Pair{Column: c, Value: vals[j]}
			}
			item, err := toItem(r)
			if err != nil {
				return written, fmt.Errorf("dynamo: copy: row %d: %w", start+i, err)
			}
			reqs = append(reqs, types.WriteRequest{PutRequest: &types.PutRequest{Item: item}})
		}
		if err := e.batchWrite(ctx, table, reqs); err != nil {
			return written, fmt.Errorf("dynamo: copy: %w", err)
		}
		written += int64(len(reqs))
	}
	return written, nil
}

func (e *Engine) batchWrite(ctx context.Context, table string, reqs []types.WriteRequest) error {
	pending := map[string][]types.WriteRequest{table: reqs}
	backoff := 50 * time.Millisecond
	for attempt := 0; ; attempt++ {
		out, err := e.client.BatchWriteItem(ctx, &sdk.BatchWriteItemInput{RequestItems: pending})
		if err != nil {
			return err
		}
		left := len(out.UnprocessedItems[table])
		if left == 0 {
			return nil
		}
		if attempt == maxBatchRetries {
			return fmt.Errorf("%d items unprocessed after %d retries", left, maxBatchRetries)
		}
		e.logger.DebugContext(ctx, "retrying unprocessed items", "table", table, "items", left, "attempt", attempt+1)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		pending = out.UnprocessedItems
	}
}

// Close implements storage.Engine. The SDK client holds no resources.
func (e *Engine) Close() {}

func isNotFound(err error) bool {
	var nf *types.ResourceNotFoundException
	return errors.As(err, &nf)
}

func keyType(c ddl.ColumnDef) types.ScalarAttributeType {
	switch strings.ToUpper(strings.TrimSpace(c.Kind)) {
	case "INTEGER", "REAL":
		return types.ScalarAttributeTypeN
	case "BLOB":
		return types.ScalarAttributeTypeB
	default:
		return types.ScalarAttributeTypeS
	}
}
