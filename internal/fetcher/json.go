package fetcher

import (
	"context"
	"encoding/json"
	"io"
	"iter"

	"github.com/rotisserie/eris"
)

// JSONArray yields the elements of a top-level JSON array one at a time.
// A body that is empty or not an array yields a single error. Iteration
// stops at the first error or when ctx is done.
func JSONArray[T any](ctx context.Context, r io.Reader) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		dec := json.NewDecoder(r)

		tok, err := dec.Token()
		switch {
		case err == io.EOF:
			yield(zero, eris.New("json: empty body, expected '['"))
			return
		case err != nil:
			yield(zero, eris.Wrap(err, "json: read opening token"))
			return
		}
		if d, ok := tok.(json.Delim); !ok || d != '[' {
			yield(zero, eris.Errorf("json: expected '[', got %v", tok))
			return
		}

		for i := 0; dec.More(); i++ {
			if err := ctx.Err(); err != nil {
				yield(zero, eris.Wrap(err, "json: decode interrupted"))
				return
			}
			var item T
			if err := dec.Decode(&item); err != nil {
				yield(zero, eris.Wrapf(err, "json: decode element %d", i))
				return
			}
			if !yield(item, nil) {
				return
			}
		}

		if _, err := dec.Token(); err != nil {
			yield(zero, eris.Wrap(err, "json: read closing token"))
		}
	}
}

// CollectJSONArray reads every element of a JSON array into a slice. An
// empty array yields an empty, non-nil slice.
func CollectJSONArray[T any](ctx context.Context, r io.Reader) ([]T, error) {
	out := []T{}
	for item, err := range JSONArray[T](ctx, r) {
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}
