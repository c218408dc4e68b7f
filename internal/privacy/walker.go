package privacy

import "context"

// Walk pseudonymizes every string leaf of a decoded document. Maps and
// slices are rebuilt, keys are never touched and non-string leaves
// (numbers, booleans, nil) are returned unchanged. The input is not mutated.
func (e *Engine) Walk(ctx context.Context, doc any) (*WalkResult, error) {
	tally := make(Tally)
	out, err := e.walkValue(ctx, doc, tally)
	if err != nil {
		return nil, err
	}
	return &WalkResult{Document: out, Findings: tally.Findings()}, nil
}

func (e *Engine) walkValue(ctx context.Context, v any, tally Tally) (any, error) {
	switch val := v.(type) {
	case string:
		return e.walkString(ctx, val, tally)

	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			walked, err := e.walkValue(ctx, item, tally)
			if err != nil {
				return nil, err
			}
			out[k] = walked
		}
		return out, nil

	case map[any]any:
		out := make(map[any]any, len(val))
		for k, item := range val {
			walked, err := e.walkValue(ctx, item, tally)
			if err != nil {
				return nil, err
			}
			out[k] = walked
		}
		return out, nil

	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			walked, err := e.walkValue(ctx, item, tally)
			if err != nil {
				return nil, err
			}
			out[i] = walked
		}
		return out, nil

	case map[string]string:
		out := make(map[string]string, len(val))
		for k, item := range val {
			walked, err := e.walkString(ctx, item, tally)
			if err != nil {
				return nil, err
			}
			out[k] = walked
		}
		return out, nil

	case []string:
		out := make([]string, len(val))
		for i, item := range val {
			walked, err := e.walkString(ctx, item, tally)
			if err != nil {
				return nil, err
			}
			out[i] = walked
		}
		return out, nil
	}

	return v, nil
}

func (e *Engine) walkString(ctx context.Context, s string, tally Tally) (string, error) {
	res, err := e.ProcessText(ctx, s)
	if err != nil {
		return "", err
	}
	tally.Add(res.Findings)
	return res.MaskedText, nil
}
