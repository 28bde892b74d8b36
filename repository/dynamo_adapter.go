package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"catalog-service/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CodeIndex is the GSI keyed by product code.
const CodeIndex = "code-index"

// DynamoAPI is the subset of the DynamoDB client the adapter uses.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// DynamoAdapter is a DynamoDB-backed ProductRepo. Items are keyed by `id`
// with a `code` GSI. Code uniqueness is checked before the put, not enforced
// by the table.
type DynamoAdapter struct {
	client DynamoAPI
	table  string
	now    func() time.Time
}

func NewDynamoAdapter(client DynamoAPI, table string) *DynamoAdapter {
	return &DynamoAdapter{client: client, table: table, now: time.Now}
}

type ddbProduct struct {
	ID           string  `dynamodbav:"id"`
	Code         string  `dynamodbav:"code"`
	Name         string  `dynamodbav:"name"`
	Description  string  `dynamodbav:"description"`
	Stock        int     `dynamodbav:"stock"`
	Price        string  `dynamodbav:"price"`
	Category     string  `dynamodbav:"category"`
	Image        *string `dynamodbav:"image,omitempty"`
	Status       string  `dynamodbav:"status"`
	UploadTarget *string `dynamodbav:"upload_target,omitempty"`
	IsDeleted    bool    `dynamodbav:"is_deleted"`
	CreatedAt    string  `dynamodbav:"created_at"`
	UpdatedAt    string  `dynamodbav:"updated_at"`
}

func toDDB(p *models.Product) ddbProduct {
	return ddbProduct{
		ID:           p.ID.String(),
		Code:         p.Code,
		Name:         p.Name,
		Description:  p.Description,
		Stock:        p.Stock,
		Price:        p.Price.String(),
		Category:     p.Category,
		Image:        p.Image,
		Status:       string(p.Status),
		UploadTarget: p.UploadTarget,
		IsDeleted:    p.IsDeleted,
		CreatedAt:    p.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:    p.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func fromDDB(dp ddbProduct) *models.Product {
	p := &models.Product{
		Code:         dp.Code,
		Name:         dp.Name,
		Description:  dp.Description,
		Stock:        dp.Stock,
		Category:     dp.Category,
		Image:        dp.Image,
		Status:       models.ProductStatus(dp.Status),
		UploadTarget: dp.UploadTarget,
		IsDeleted:    dp.IsDeleted,
	}
	p.ID, _ = uuid.Parse(dp.ID)
	p.Price, _ = decimal.NewFromString(dp.Price)
	if t, err := time.Parse(time.RFC3339Nano, dp.CreatedAt); err == nil {
		p.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, dp.UpdatedAt); err == nil {
		p.UpdatedAt = t
	}
	return p
}

func (d *DynamoAdapter) Create(ctx context.Context, product *models.Product) error {
	if _, err := d.FindByCode(ctx, product.Code); err == nil {
		return ErrDuplicateCode
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}

	if product.ID == uuid.Nil {
		product.ID = uuid.New()
	}
	now := d.now()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now
	if product.Status == "" {
		product.Status = models.StatusPending
	}

	item, err := attributevalue.MarshalMap(toDDB(product))
	if err != nil {
		return fmt.Errorf("marshal product: %w", err)
	}
	_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           &d.table,
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if err != nil {
		return fmt.Errorf("dynamodb PutItem failed: %w", err)
	}
	return nil
}

func (d *DynamoAdapter) FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	key, err := attributevalue.MarshalMap(map[string]string{"id": id.String()})
	if err != nil {
		return nil, fmt.Errorf("marshal key: %w", err)
	}
	out, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{TableName: &d.table, Key: key, ConsistentRead: aws.Bool(true)})
	if err != nil {
		return nil, fmt.Errorf("dynamodb GetItem failed: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, ErrNotFound
	}
	var dp ddbProduct
	if err := attributevalue.UnmarshalMap(out.Item, &dp); err != nil {
		return nil, fmt.Errorf("unmarshal item: %w", err)
	}
	return fromDDB(dp), nil
}

func (d *DynamoAdapter) FindByCode(ctx context.Context, code string) (*models.Product, error) {
	out, err := d.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 &d.table,
		IndexName:                 aws.String(CodeIndex),
		KeyConditionExpression:    aws.String("#code = :code"),
		ExpressionAttributeNames:  map[string]string{"#code": ColCode},
		ExpressionAttributeValues: map[string]types.AttributeValue{":code": &types.AttributeValueMemberS{Value: code}},
		Limit:                     aws.Int32(1),
	})
	if err != nil {
		return nil, fmt.Errorf("dynamodb Query failed: %w", err)
	}
	if len(out.Items) == 0 {
		return nil, ErrNotFound
	}
	var dp ddbProduct
	if err := attributevalue.UnmarshalMap(out.Items[0], &dp); err != nil {
		return nil, fmt.Errorf("unmarshal item: %w", err)
	}
	return fromDDB(dp), nil
}

// List scans the table, orders by creation time and applies limit/offset in
// memory.
func (d *DynamoAdapter) List(ctx context.Context, filter ProductFilter, limit, offset int) ([]*models.Product, error) {
	all, err := d.scan(ctx, filter)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].Code < all[j].Code
		}
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})
	if offset >= len(all) {
		return []*models.Product{}, nil
	}
	all = all[offset:]
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (d *DynamoAdapter) Count(ctx context.Context, filter ProductFilter) (int64, error) {
	all, err := d.scan(ctx, filter)
	if err != nil {
		return 0, err
	}
	return int64(len(all)), nil
}

func (d *DynamoAdapter) UpdateByCode(ctx context.Context, code string, updates map[string]interface{}) error {
	p, err := d.FindByCode(ctx, code)
	if err != nil {
		return err
	}
	return d.Update(ctx, p.ID, updates)
}

// Update builds one UpdateItem call: SET for values, REMOVE for nil pointers.
func (d *DynamoAdapter) Update(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return nil
	}
	if code, ok := updates[ColCode].(string); ok {
		existing, err := d.FindByCode(ctx, code)
		if err == nil && existing.ID != id {
			return ErrDuplicateCode
		}
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
	}

	names := map[string]string{"#id": "id", "#updated_at": "updated_at"}
	values := map[string]types.AttributeValue{
		":updated_at": &types.AttributeValueMemberS{Value: d.now().UTC().Format(time.RFC3339Nano)},
	}
	sets := []string{"#updated_at = :updated_at"}
	var removes []string

	keys := make([]string, 0, len(updates))
	for k := range updates {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for i, k := range keys {
		name := fmt.Sprintf("#f%d", i)
		names[name] = k
		v, remove := normalize(updates[k])
		if remove {
			removes = append(removes, name)
			continue
		}
		av, err := attributevalue.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal update value: %w", err)
		}
		ph := fmt.Sprintf(":v%d", i)
		values[ph] = av
		sets = append(sets, fmt.Sprintf("%s = %s", name, ph))
	}

	expr := "SET " + strings.Join(sets, ", ")
	if len(removes) > 0 {
		expr += " REMOVE " + strings.Join(removes, ", ")
	}

	key, err := attributevalue.MarshalMap(map[string]string{"id": id.String()})
	if err != nil {
		return fmt.Errorf("marshal key: %w", err)
	}
	_, err = d.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 &d.table,
		Key:                       key,
		UpdateExpression:          &expr,
		ConditionExpression:       aws.String("attribute_exists(#id)"),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrNotFound
		}
		return fmt.Errorf("update item failed: %w", err)
	}
	return nil
}

func (d *DynamoAdapter) SetDeleted(ctx context.Context, id uuid.UUID, deleted bool) error {
	return d.Update(ctx, id, map[string]interface{}{ColIsDeleted: deleted})
}

func (d *DynamoAdapter) FindPendingWithTarget(ctx context.Context) ([]*models.Product, error) {
	all, err := d.scan(ctx, ProductFilter{IncludeDeleted: true, Status: models.StatusPending})
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, p := range all {
		if p.UploadTarget != nil && *p.UploadTarget != "" {
			out = append(out, p)
		}
	}
	return out, nil
}

func (d *DynamoAdapter) scan(ctx context.Context, filter ProductFilter) ([]*models.Product, error) {
	input := &dynamodb.ScanInput{TableName: &d.table}

	var conds []string
	names := map[string]string{}
	values := map[string]types.AttributeValue{}
	if !filter.IncludeDeleted {
		conds = append(conds, "#is_deleted = :not_deleted")
		names["#is_deleted"] = ColIsDeleted
		values[":not_deleted"] = &types.AttributeValueMemberBOOL{Value: false}
	}
	if filter.Status != "" {
		conds = append(conds, "#status = :status")
		names["#status"] = ColStatus
		values[":status"] = &types.AttributeValueMemberS{Value: string(filter.Status)}
	}
	if len(conds) > 0 {
		input.FilterExpression = aws.String(strings.Join(conds, " AND "))
		input.ExpressionAttributeNames = names
		input.ExpressionAttributeValues = values
	}

	var results []*models.Product
	paginator := dynamodb.NewScanPaginator(d.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("scan page failed: %w", err)
		}
		for _, it := range page.Items {
			var dp ddbProduct
			if err := attributevalue.UnmarshalMap(it, &dp); err != nil {
				return nil, fmt.Errorf("unmarshal item: %w", err)
			}
			results = append(results, fromDDB(dp))
		}
	}
	return results, nil
}

// normalize converts update values to their stored form. The second result
// reports whether the attribute should be removed.
func normalize(v interface{}) (interface{}, bool) {
	switch t := v.(type) {
	case nil:
		return nil, true
	case *string:
		if t == nil {
			return nil, true
		}
		return *t, false
	case decimal.Decimal:
		return t.String(), false
	case models.ProductStatus:
		return string(t), false
	default:
		return v, false
	}
}

// EnsureTable creates the products table and code index when missing.
func EnsureTable(ctx context.Context, client *dynamodb.Client, table string) error {
	_, err := client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: &table})
	if err == nil {
		return nil
	}
	var notFound *types.ResourceNotFoundException
	if !errors.As(err, &notFound) {
		return fmt.Errorf("describe table: %w", err)
	}

	_, err = client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName:   &table,
		BillingMode: types.BillingModePayPerRequest,
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String("id"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String(ColCode), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String("id"), KeyType: types.KeyTypeHash},
		},
		GlobalSecondaryIndexes: []types.GlobalSecondaryIndex{
			{
				IndexName:  aws.String(CodeIndex),
				KeySchema:  []types.KeySchemaElement{{AttributeName: aws.String(ColCode), KeyType: types.KeyTypeHash}},
				Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	return nil
}
