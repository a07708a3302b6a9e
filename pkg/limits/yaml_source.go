package limits

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// planFile is the on-disk shape of a plan catalogue:
//
//	plans:
//	  - id: pro
//	    name: Pro
//	    public: true
//	    max_boards: 20
//	    max_members: 25
//	    max_demands_per_month: -1
//	    max_services: 50
//	    max_notes: -1
type planFile struct {
	Plans []planRecord `yaml:"plans"`
}

type planRecord struct {
	ID                 string `yaml:"id"`
	Name               string `yaml:"name"`
	Description        string `yaml:"description"`
	Public             bool   `yaml:"public"`
	MaxBoards          *int64 `yaml:"max_boards"`
	MaxMembers         *int64 `yaml:"max_members"`
	MaxDemandsPerMonth *int64 `yaml:"max_demands_per_month"`
	MaxServices        *int64 `yaml:"max_services"`
	MaxNotes           *int64 `yaml:"max_notes"`
}

func (r planRecord) plan() Plan {
	p := Plan{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Public:      r.Public,
		Limits:      make(map[Resource]int64, len(Resources)),
	}
	set := func(res Resource, v *int64) {
		if v != nil {
			p.Limits[res] = *v
		}
	}
	set(ResourceBoards, r.MaxBoards)
	set(ResourceMembers, r.MaxMembers)
	set(ResourceDemands, r.MaxDemandsPerMonth)
	set(ResourceServices, r.MaxServices)
	set(ResourceNotes, r.MaxNotes)
	return p
}

type yamlSource struct {
	data []byte
}

// NewYAMLSource returns a Source that decodes a plan catalogue from r.
// The reader is consumed immediately; decoding happens on Load.
func NewYAMLSource(r io.Reader) (Source, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}
	return &yamlSource{data: data}, nil
}

// NewYAMLFileSource reads the plan catalogue at path.
func NewYAMLFileSource(path string) (Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}
	return &yamlSource{data: data}, nil
}

func (s *yamlSource) Load(_ context.Context) (map[string]Plan, error) {
	var file planFile
	dec := yaml.NewDecoder(bytes.NewReader(s.data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode plan catalogue: %w", err)
	}

	plans := make(map[string]Plan, len(file.Plans))
	for _, rec := range file.Plans {
		if rec.ID == "" {
			return nil, errors.Join(ErrInvalidPlanConfiguration, errors.New("plan without id"))
		}
		if _, dup := plans[rec.ID]; dup {
			return nil, errors.Join(ErrInvalidPlanConfiguration, fmt.Errorf("duplicate plan id %q", rec.ID))
		}
		plans[rec.ID] = rec.plan()
	}
	return plans, nil
}
