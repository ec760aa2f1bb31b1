package dynamo

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"entitymap/row"
)

// toItem marshals the non-Null pairs of r.
func toItem(r row.Row) (map[string]types.AttributeValue, error) {
	item := make(map[string]types.AttributeValue, len(r))
	for _, p := range r {
		if row.IsNull(p.Value) {
			continue
		}
		av, err := attributevalue.Marshal(p.Value)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", p.Column, err)
		}
		item[p.Column] = av
	}
	return item, nil
}

func keyOf(key row.Pair) (map[string]types.AttributeValue, error) {
	if row.IsNull(key.Value) {
		return nil, fmt.Errorf("key %s is NULL", key.Column)
	}
	av, err := attributevalue.Marshal(key.Value)
	if err != nil {
		return nil, fmt.Errorf("key %s: %w", key.Column, err)
	}
	return map[string]types.AttributeValue{key.Column: av}, nil
}

// fromItem reads columns from item; absent attributes become Null. With no
// columns every attribute is returned, sorted by name.
func fromItem(columns []string, item map[string]types.AttributeValue) (row.Row, error) {
	if len(columns) == 0 {
		columns = make([]string, 0, len(item))
		for name := range item {
			columns = append(columns, name)
		}
		sort.Strings(columns)
	}
	r := make(row.Row, len(columns))
	for i, c := range columns {
		r[i] = row.Pair{Column: c, Value: row.Null}
		av, ok := item[c]
		if !ok {
			continue
		}
		v, err := fromAttribute(av)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", c, err)
		}
		r[i].Value = v
	}
	return r, nil
}

// fromAttribute maps scalar attributes to storage values. Whole numbers come
// back as int64; other numbers as float64.
func fromAttribute(av types.AttributeValue) (any, error) {
	switch v := av.(type) {
	case *types.AttributeValueMemberNULL:
		return row.Null, nil
	case *types.AttributeValueMemberS:
		return v.Value, nil
	case *types.AttributeValueMemberB:
		return v.Value, nil
	case *types.AttributeValueMemberBOOL:
		return v.Value, nil
	case *types.AttributeValueMemberN:
		if n, err := strconv.ParseInt(v.Value, 10, 64); err == nil {
			return n, nil
		}
		f, err := strconv.ParseFloat(v.Value, 64)
		if err != nil {
			return nil, fmt.Errorf("number %q: %w", v.Value, err)
		}
		return f, nil
	}
	var out any
	if err := attributevalue.Unmarshal(av, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// projection renders a ProjectionExpression over placeholder names, since
// many column names ("name", "date", ...) are reserved words.
func projection(columns []string) (*string, map[string]string) {
	if len(columns) == 0 {
		return nil, nil
	}
	names := make(map[string]string, len(columns))
	parts := make([]string, len(columns))
	for i, c := range columns {
		ph := "#c" + strconv.Itoa(i)
		names[ph] = c
		parts[i] = ph
	}
	expr := strings.Join(parts, ", ")
	return &expr, names
}

// updateExpression renders `SET #c0 = :v0, ... REMOVE #c1, ...` for r. Null
// values are removed. An empty r yields an empty expression.
func updateExpression(r row.Row) (string, map[string]string, map[string]types.AttributeValue, error) {
	names := make(map[string]string, len(r)+1)
	values := make(map[string]types.AttributeValue, len(r))
	var sets, removes []string
	for i, p := range r {
		name := "#c" + strconv.Itoa(i)
		names[name] = p.Column
		if row.IsNull(p.Value) {
			removes = append(removes, name)
			continue
		}
		av, err := attributevalue.Marshal(p.Value)
		if err != nil {
			return "", nil, nil, fmt.Errorf("column %s: %w", p.Column, err)
		}
		ph := ":v" + strconv.Itoa(i)
		values[ph] = av
		sets = append(sets, name+" = "+ph)
	}

	var clauses []string
	if len(sets) > 0 {
		clauses = append(clauses, "SET "+strings.Join(sets, ", "))
	}
	if len(removes) > 0 {
		clauses = append(clauses, "REMOVE "+strings.Join(removes, ", "))
	}
	if len(values) == 0 {
		values = nil
	}
	return strings.Join(clauses, " "), names, values, nil
}
