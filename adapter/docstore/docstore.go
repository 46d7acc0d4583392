// Package docstore implements godm's document-store adapter (spec.md
// §4.9) over go.mongodb.org/mongo-driver/v2. Every operation takes a
// *mongo.Database borrowed from the pool as its native connection; table
// creation is implicit on first insert, and the reserved wire-level
// primary-key field is transparently renamed to/from the caller-facing
// "id" on every read, write, and filter translation path.
package docstore

import (
	"context"
	"strings"
	"time"

	"github.com/forbearing/godm/config"
	"github.com/forbearing/godm/metadata"
	"github.com/forbearing/godm/odmerr"
	"github.com/forbearing/godm/query"
	"github.com/forbearing/godm/value"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// reservedID is the wire-level name Mongo itself reserves for the primary
// key; godm's callers only ever see "id" (spec.md §4.9).
const reservedID = "_id"

// counterCollection holds the synthetic AutoIncrement counters for aliases
// routed to the document store, one document per collection keyed by
// _id = collection name.
const counterCollection = "__godm_counters"

// Adapter implements adapter.Adapter over a MongoDB-family document store.
type Adapter struct{}

func New() *Adapter { return &Adapter{} }

func dbOf(conn any) (*mongo.Database, error) {
	db, ok := conn.(*mongo.Database)
	if !ok {
		return nil, odmerr.NewConnectionError("docstore: expected *mongo.Database connection", nil)
	}
	return db, nil
}

// Counter implements idgen.Counter against the reserved counter
// collection, via an atomic findAndModify ($inc, upsert).
type Counter struct {
	DB *mongo.Database
}

func (c *Counter) Next(ctx context.Context, collection string) (int64, error) {
	coll := c.DB.Collection(counterCollection)
	after := options.After
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(after)
	var result struct {
		Seq int64 `bson:"seq"`
	}
	err := coll.FindOneAndUpdate(ctx, bson.M{reservedID: collection}, bson.M{"$inc": bson.M{"seq": int64(1)}}, opts).Decode(&result)
	if err != nil {
		return 0, odmerr.NewConnectionError("docstore: advancing autoincrement counter for "+collection, err)
	}
	return result.Seq, nil
}

func (a *Adapter) EnsureSchema(ctx context.Context, conn any, meta metadata.ModelMeta, idStrategy config.IDStrategyName) error {
	db, err := dbOf(conn)
	if err != nil {
		return err
	}
	coll := db.Collection(meta.Collection)

	cursor, err := coll.Indexes().List(ctx)
	if err != nil {
		return odmerr.NewConnectionError("docstore: listing existing indexes", err)
	}
	existing := make(map[string]bool)
	var raw []bson.M
	if err := cursor.All(ctx, &raw); err != nil {
		return odmerr.NewConnectionError("docstore: reading existing indexes", err)
	}
	for _, idx := range raw {
		if name, ok := idx["name"].(string); ok {
			existing[name] = true
		}
	}

	for _, idx := range meta.Indexes {
		name := idx.Name
		if name == "" {
			name = "idx_" + strings.Join(idx.Fields, "_")
		}
		if existing[name] {
			continue
		}
		keys := bson.D{}
		for _, f := range idx.Fields {
			if f == "id" {
				f = reservedID
			}
			keys = append(keys, bson.E{Key: f, Value: 1})
		}
		model := mongo.IndexModel{
			Keys:    keys,
			Options: options.Index().SetUnique(idx.Unique).SetName(name),
		}
		if _, err := coll.Indexes().CreateOne(ctx, model); err != nil {
			return odmerr.NewQueryError("docstore: creating index "+name, err)
		}
	}
	return nil
}

func (a *Adapter) DropTable(ctx context.Context, conn any, table string) error {
	db, err := dbOf(conn)
	if err != nil {
		return err
	}
	if err := db.Collection(table).Drop(ctx); err != nil {
		return odmerr.NewQueryError("docstore: dropping collection "+table, err)
	}
	return nil
}

func (a *Adapter) TableExists(ctx context.Context, conn any, table string) (bool, error) {
	db, err := dbOf(conn)
	if err != nil {
		return false, err
	}
	names, err := db.ListCollectionNames(ctx, bson.M{"name": table})
	if err != nil {
		return false, odmerr.NewConnectionError("docstore: listing collections", err)
	}
	return len(names) > 0, nil
}

func (a *Adapter) Insert(ctx context.Context, conn any, meta metadata.ModelMeta, record map[string]value.Value) (value.Value, error) {
	db, err := dbOf(conn)
	if err != nil {
		return value.Value{}, err
	}
	coll := db.Collection(meta.Collection)

	doc := bson.M{}
	for k, v := range record {
		key := k
		if k == "id" {
			key = reservedID
		}
		doc[key] = toBSON(v)
	}

	res, err := coll.InsertOne(ctx, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return value.Value{}, odmerr.NewUniqueViolation(meta.Collection)
		}
		return value.Value{}, odmerr.NewQueryError("docstore: inserting into "+meta.Collection, err)
	}

	if id, ok := record["id"]; ok && !id.IsNull() {
		return id, nil
	}
	return fromBSONID(res.InsertedID), nil
}

func fromBSONID(native any) value.Value {
	switch v := native.(type) {
	case bson.ObjectID:
		return value.String(v.Hex())
	case string:
		return value.String(v)
	case int64:
		return value.Int64(v)
	case int32:
		return value.Int64(int64(v))
	default:
		return value.Null()
	}
}

func (a *Adapter) Find(ctx context.Context, conn any, meta metadata.ModelMeta, cond *query.ConditionGroup, opts *query.Options) ([]map[string]value.Value, error) {
	db, err := dbOf(conn)
	if err != nil {
		return nil, err
	}
	coll := db.Collection(meta.Collection)

	filter, err := translateFilter(cond)
	if err != nil {
		return nil, err
	}

	findOpts := options.Find()
	if opts != nil {
		if len(opts.Sort) > 0 {
			sortDoc := bson.D{}
			for _, s := range opts.Sort {
				dir := 1
				if s.Dir == query.Desc {
					dir = -1
				}
				key := s.Field
				if key == "id" {
					key = reservedID
				}
				sortDoc = append(sortDoc, bson.E{Key: key, Value: dir})
			}
			findOpts.SetSort(sortDoc)
		}
		if opts.Pagination != nil {
			if opts.Pagination.Skip > 0 {
				findOpts.SetSkip(int64(opts.Pagination.Skip))
			}
			if opts.Pagination.Limit > 0 {
				findOpts.SetLimit(int64(opts.Pagination.Limit))
			}
		}
		if len(opts.Fields) > 0 {
			proj := bson.M{}
			for _, f := range opts.Fields {
				key := f
				if key == "id" {
					key = reservedID
				}
				proj[key] = 1
			}
			findOpts.SetProjection(proj)
		}
	}

	cursor, err := coll.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, odmerr.NewQueryError("docstore: querying "+meta.Collection, err)
	}
	defer cursor.Close(ctx)

	var out []map[string]value.Value
	for cursor.Next(ctx) {
		var raw bson.M
		if err := cursor.Decode(&raw); err != nil {
			return nil, odmerr.NewQueryError("docstore: decoding document", err)
		}
		out = append(out, fromDocument(raw, meta))
	}
	if err := cursor.Err(); err != nil {
		return nil, odmerr.NewQueryError("docstore: iterating cursor", err)
	}
	return out, nil
}

func (a *Adapter) FindByID(ctx context.Context, conn any, meta metadata.ModelMeta, id string) (map[string]value.Value, bool, error) {
	cond := query.Single(query.Condition{Field: "id", Op: query.Eq, Value: value.String(id)})
	recs, err := a.Find(ctx, conn, meta, &cond, &query.Options{Pagination: &query.Pagination{Limit: 1}})
	if err != nil {
		return nil, false, err
	}
	if len(recs) == 0 {
		return nil, false, nil
	}
	return recs[0], true, nil
}

func (a *Adapter) Update(ctx context.Context, conn any, meta metadata.ModelMeta, cond *query.ConditionGroup, ops []query.UpdateOperation) (int64, error) {
	db, err := dbOf(conn)
	if err != nil {
		return 0, err
	}
	coll := db.Collection(meta.Collection)

	filter, err := translateFilter(cond)
	if err != nil {
		return 0, err
	}
	update, err := translateUpdate(ops)
	if err != nil {
		return 0, err
	}
	if update == nil {
		return 0, nil
	}

	res, err := coll.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, odmerr.NewQueryError("docstore: updating "+meta.Collection, err)
	}
	return res.MatchedCount, nil
}

func (a *Adapter) UpdateByID(ctx context.Context, conn any, meta metadata.ModelMeta, id string, ops []query.UpdateOperation) (bool, error) {
	cond := query.Single(query.Condition{Field: "id", Op: query.Eq, Value: value.String(id)})
	n, err := a.Update(ctx, conn, meta, &cond, ops)
	return n > 0, err
}

func (a *Adapter) Delete(ctx context.Context, conn any, meta metadata.ModelMeta, cond *query.ConditionGroup) (int64, error) {
	db, err := dbOf(conn)
	if err != nil {
		return 0, err
	}
	coll := db.Collection(meta.Collection)

	filter, err := translateFilter(cond)
	if err != nil {
		return 0, err
	}
	res, err := coll.DeleteMany(ctx, filter)
	if err != nil {
		return 0, odmerr.NewQueryError("docstore: deleting from "+meta.Collection, err)
	}
	return res.DeletedCount, nil
}

func (a *Adapter) DeleteByID(ctx context.Context, conn any, meta metadata.ModelMeta, id string) (bool, error) {
	cond := query.Single(query.Condition{Field: "id", Op: query.Eq, Value: value.String(id)})
	n, err := a.Delete(ctx, conn, meta, &cond)
	return n > 0, err
}

func (a *Adapter) Count(ctx context.Context, conn any, meta metadata.ModelMeta, cond *query.ConditionGroup) (int64, error) {
	db, err := dbOf(conn)
	if err != nil {
		return 0, err
	}
	coll := db.Collection(meta.Collection)

	filter, err := translateFilter(cond)
	if err != nil {
		return 0, err
	}
	n, err := coll.CountDocuments(ctx, filter)
	if err != nil {
		return 0, odmerr.NewQueryError("docstore: counting "+meta.Collection, err)
	}
	return n, nil
}

func (a *Adapter) ServerVersion(ctx context.Context, conn any) (string, error) {
	db, err := dbOf(conn)
	if err != nil {
		return "", err
	}
	var result bson.M
	if err := db.RunCommand(ctx, bson.D{{Key: "buildInfo", Value: 1}}).Decode(&result); err != nil {
		return "", odmerr.NewConnectionError("docstore: reading server version", err)
	}
	v, _ := result["version"].(string)
	return v, nil
}

// fieldKey rewrites the caller-facing "id" field name to the reserved wire
// name; every other field name passes through unchanged.
func fieldKey(field string) string {
	if field == "id" {
		return reservedID
	}
	return field
}

// translateFilter lowers a ConditionGroup to a Mongo filter document
// (spec.md §4.9): And/Or groups become $and/$or arrays, comparisons map to
// $eq/$ne/$gt/$gte/$lt/$lte/$in/$nin, Contains/StartsWith/EndsWith become
// anchored $regex, JsonContains becomes dotted-path equality.
func translateFilter(g *query.ConditionGroup) (bson.M, error) {
	if g == nil {
		return bson.M{}, nil
	}
	if g.IsLeaf() {
		return translateCondition(*g.Leaf)
	}
	key := "$and"
	if g.Logic == query.Or {
		key = "$or"
	}
	if len(g.Children) == 0 {
		return bson.M{}, nil
	}
	var parts []bson.M
	for _, child := range g.Children {
		frag, err := translateFilter(&child)
		if err != nil {
			return nil, err
		}
		parts = append(parts, frag)
	}
	return bson.M{key: parts}, nil
}

func translateCondition(c query.Condition) (bson.M, error) {
	field := fieldKey(c.Field)

	switch c.Op {
	case query.Eq:
		return bson.M{field: toBSON(c.Value)}, nil
	case query.Ne:
		return bson.M{field: bson.M{"$ne": toBSON(c.Value)}}, nil
	case query.Gt:
		return bson.M{field: bson.M{"$gt": toBSON(c.Value)}}, nil
	case query.Gte:
		return bson.M{field: bson.M{"$gte": toBSON(c.Value)}}, nil
	case query.Lt:
		return bson.M{field: bson.M{"$lt": toBSON(c.Value)}}, nil
	case query.Lte:
		return bson.M{field: bson.M{"$lte": toBSON(c.Value)}}, nil
	case query.In:
		arr, ok := c.Value.AsArray()
		if !ok {
			return nil, odmerr.NewQueryError("docstore: In requires an array value", nil)
		}
		return bson.M{field: bson.M{"$in": toBSONArray(arr)}}, nil
	case query.NotIn:
		arr, ok := c.Value.AsArray()
		if !ok {
			return nil, odmerr.NewQueryError("docstore: NotIn requires an array value", nil)
		}
		return bson.M{field: bson.M{"$nin": toBSONArray(arr)}}, nil
	case query.Contains:
		return regexCondition(field, c, "", "")
	case query.StartsWith:
		return regexCondition(field, c, "^", "")
	case query.EndsWith:
		return regexCondition(field, c, "", "$")
	case query.Regex:
		s, _ := c.Value.AsString()
		doc := bson.M{"$regex": s}
		if c.CaseInsensitive {
			doc["$options"] = "i"
		}
		return bson.M{field: doc}, nil
	case query.IsNull:
		return bson.M{field: nil}, nil
	case query.IsNotNull:
		return bson.M{field: bson.M{"$ne": nil}}, nil
	case query.JsonContains:
		parts := strings.SplitN(c.Field, ".", 2)
		if len(parts) != 2 {
			return nil, odmerr.NewQueryError("docstore: JsonContains field must be \"field.path\"", nil)
		}
		dotted := fieldKey(parts[0]) + "." + parts[1]
		return bson.M{dotted: toBSON(c.Value)}, nil
	case query.Exists:
		return bson.M{field: bson.M{"$exists": true}}, nil
	default:
		return nil, odmerr.NewUnsupportedOperator(c.Op.String(), "docstore")
	}
}

func regexCondition(field string, c query.Condition, prefix, suffix string) (bson.M, error) {
	s, _ := c.Value.AsString()
	pattern := prefix + regexQuoteMeta(s) + suffix
	doc := bson.M{"$regex": pattern}
	if c.CaseInsensitive {
		doc["$options"] = "i"
	}
	return bson.M{field: doc}, nil
}

// regexQuoteMeta escapes Mongo/PCRE metacharacters in a literal substring
// used to build an anchored $regex for Contains/StartsWith/EndsWith.
func regexQuoteMeta(s string) string {
	special := `\.^$|()[]{}*+?`
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune(special, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// translateUpdate builds a Mongo update document from UpdateOperations:
// Set becomes $set, Increment/PercentIncrease become native atomic $inc/
// $mul, Unset becomes $unset (spec.md §4.9).
func translateUpdate(ops []query.UpdateOperation) (bson.M, error) {
	set := bson.M{}
	inc := bson.M{}
	mul := bson.M{}
	unset := bson.M{}

	for _, op := range ops {
		field := fieldKey(op.Field)
		switch op.Kind {
		case query.UpdateSet:
			set[field] = toBSON(op.Value)
		case query.UpdateIncrement:
			inc[field] = op.Delta
		case query.UpdatePercentIncrease:
			mul[field] = 1 + op.Percent/100.0
		case query.UpdateUnset:
			unset[field] = ""
		default:
			return nil, odmerr.NewQueryError("docstore: unsupported update kind", nil)
		}
	}

	update := bson.M{}
	if len(set) > 0 {
		update["$set"] = set
	}
	if len(inc) > 0 {
		update["$inc"] = inc
	}
	if len(mul) > 0 {
		update["$mul"] = mul
	}
	if len(unset) > 0 {
		update["$unset"] = unset
	}
	if len(update) == 0 {
		return nil, nil
	}
	return update, nil
}

// toBSON converts a value.Value to its native bson representation.
func toBSON(v value.Value) any {
	switch v.Kind {
	case value.KindNull:
		return nil
	case value.KindBool:
		b, _ := v.AsBool()
		return b
	case value.KindInt64:
		i, _ := v.AsInt64()
		return i
	case value.KindFloat64:
		f, _ := v.AsFloat64()
		return f
	case value.KindString:
		s, _ := v.AsString()
		return s
	case value.KindBytes:
		b, _ := v.AsBytes()
		return b
	case value.KindUuid:
		u, _ := v.AsUuid()
		return u.String()
	case value.KindDateTimeUtc:
		t, _ := v.AsTime()
		return t.UTC()
	case value.KindDateTimeWithOffset:
		t, _ := v.AsTime()
		return t
	case value.KindArray:
		arr, _ := v.AsArray()
		return toBSONArray(arr)
	case value.KindObject:
		obj, _ := v.AsObject()
		m := bson.M{}
		for k, elem := range obj {
			m[k] = toBSON(elem)
		}
		return m
	case value.KindJSON:
		j, _ := v.AsJSON()
		return j
	default:
		return nil
	}
}

func toBSONArray(vs []value.Value) bson.A {
	out := make(bson.A, len(vs))
	for i, v := range vs {
		out[i] = toBSON(v)
	}
	return out
}

// fromDocument renames the reserved id field back to "id" (recursively
// into nested documents/arrays that also carry it) and converts every
// field by its BSON type. The declared field type is consulted only for a
// BSON datetime on a DateTime field with a non-UTC TZOffset, which comes
// back as DateTimeWithOffset; a stored string is returned as String even
// when the field is declared Uuid or DateTime.
func fromDocument(doc bson.M, meta metadata.ModelMeta) map[string]value.Value {
	out := make(map[string]value.Value, len(doc))
	for k, v := range doc {
		key := k
		if k == reservedID {
			key = "id"
		}
		ft := metadata.FieldType{Kind: metadata.FieldString}
		if fd, ok := meta.Field(key); ok {
			ft = fd.Type
		}
		out[key] = fromBSONValue(v, ft)
	}
	return out
}

func fromBSONValue(native any, ft metadata.FieldType) value.Value {
	if native == nil {
		return value.Null()
	}
	switch n := native.(type) {
	case bson.ObjectID:
		return value.String(n.Hex())
	case bson.M:
		return value.Object(renameNested(n))
	case map[string]any:
		return value.Object(renameNested(bson.M(n)))
	case bson.A:
		arr := make([]value.Value, len(n))
		for i, e := range n {
			arr[i] = fromBSONValue(e, metadata.FieldType{Kind: metadata.FieldString})
		}
		return value.Array(arr)
	case []any:
		arr := make([]value.Value, len(n))
		for i, e := range n {
			arr[i] = fromBSONValue(e, metadata.FieldType{Kind: metadata.FieldString})
		}
		return value.Array(arr)
	case time.Time:
		if ft.Kind == metadata.FieldDateTime && ft.TZOffset != "" && ft.TZOffset != "+00:00" {
			return value.DateTimeWithOffset(n, ft.TZOffset)
		}
		return value.DateTimeUtc(n)
	case int32:
		return value.Int64(int64(n))
	case int64:
		return value.Int64(n)
	case float64:
		return value.Float64(n)
	case bool:
		return value.Bool(n)
	case string:
		return value.String(n)
	case []byte:
		return value.Bytes(n)
	default:
		return value.JSON(n)
	}
}

// renameNested applies the same reserved-id rename recursively inside a
// nested document (spec.md §4.9: "recursively inside nested documents if
// they carry the reserved name").
func renameNested(doc bson.M) map[string]value.Value {
	out := make(map[string]value.Value, len(doc))
	for k, v := range doc {
		key := k
		if k == reservedID {
			key = "id"
		}
		out[key] = fromBSONValue(v, metadata.FieldType{Kind: metadata.FieldString})
	}
	return out
}
