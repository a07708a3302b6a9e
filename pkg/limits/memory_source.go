package limits

import "context"

// memorySource serves a fixed plan catalogue. Plans are cloned on the way in
// and out so callers cannot mutate the catalogue.
type memorySource map[string]Plan

// NewInMemSource returns a Source serving plans. The Starter plan is always
// present in the loaded catalogue, see NewLimitsService.
func NewInMemSource(plans ...Plan) Source {
	src := make(memorySource, len(plans))
	for _, p := range plans {
		src[p.ID] = p.clone()
	}
	return src
}

func (s memorySource) Load(context.Context) (map[string]Plan, error) {
	out := make(map[string]Plan, len(s))
	for id, p := range s {
		out[id] = p.clone()
	}
	return out, nil
}
