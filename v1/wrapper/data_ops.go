package wrapper

import "context"

// Create inserts a record and returns it with its generated ordinal.
func (w *Wrapper) Create(ctx context.Context, collection string, record map[string]any) (map[string]any, error) {
	return w.adapter.Create(ctx, collection, record)
}

// Find returns the first record matching the criteria shorthand, or nil
// when none matches.
func (w *Wrapper) Find(ctx context.Context, collection string, raw any) (map[string]any, error) {
	c, err := w.normalize(collection, raw)
	if err != nil {
		return nil, err
	}
	c.Limit = 1
	records, err := w.adapter.Find(ctx, collection, c)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}

// FindAll returns every record matching the criteria shorthand.
func (w *Wrapper) FindAll(ctx context.Context, collection string, raw any) ([]map[string]any, error) {
	c, err := w.normalize(collection, raw)
	if err != nil {
		return nil, err
	}
	return w.adapter.Find(ctx, collection, c)
}

// Count returns the number of matching records.
func (w *Wrapper) Count(ctx context.Context, collection string, raw any) (int64, error) {
	c, err := w.normalize(collection, raw)
	if err != nil {
		return 0, err
	}
	return w.adapter.Count(ctx, collection, c)
}

// Update applies values to every matching record.
func (w *Wrapper) Update(ctx context.Context, collection string, raw any, values map[string]any) ([]map[string]any, error) {
	c, err := w.normalize(collection, raw)
	if err != nil {
		return nil, err
	}
	return w.adapter.Update(ctx, collection, c, values)
}

// Destroy removes every matching record.
func (w *Wrapper) Destroy(ctx context.Context, collection string, raw any) error {
	c, err := w.normalize(collection, raw)
	if err != nil {
		return err
	}
	return w.adapter.Destroy(ctx, collection, c)
}
