package template

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

type seedFile struct {
	Templates []Template `yaml:"templates"`
}

// DecodeYAML reads a list of templates from a seed document:
//
//	templates:
//	  - id: kitchen-open
//	    name: Kitchen opening
//	    items:
//	      - id: q1
//	        category: Hygiene
//	        title: Hand sink stocked?
//	        options: [{id: y, text: "Yes"}, {id: n, text: "No"}]
func DecodeYAML(r io.Reader) ([]Template, error) {
	var seed seedFile
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&seed); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("parse template seed: %w", err)
	}
	for i := range seed.Templates {
		for j := range seed.Templates[i].Items {
			seed.Templates[i].Items[j].Position = j
		}
		if err := Validate(&seed.Templates[i]); err != nil {
			return nil, fmt.Errorf("template %q: %w", seed.Templates[i].ID, err)
		}
	}
	return seed.Templates, nil
}
