package models

// MetricView is the parsed form of a rendered metric view definition.
type MetricView struct {
	Version    string              `yaml:"version"`
	Source     string              `yaml:"source"`
	Dimensions []Dimension         `yaml:"dimensions"`
	Measures   []Measure           `yaml:"measures"`
	Joins      []Join              `yaml:"joins,omitempty"`
	Filter     string              `yaml:"filter,omitempty"`
	Deployment *DeploymentOverride `yaml:"deployment,omitempty"`
}

// Dimension is a named, expression-backed column projection.
type Dimension struct {
	Name string `yaml:"name"`
	Expr string `yaml:"expr"`
}

// Measure is a named projection expected to carry an aggregate expression.
type Measure struct {
	Name string `yaml:"name"`
	Expr string `yaml:"expr"`
}

// Join references an additional source joined into the view.
type Join struct {
	Name   string `yaml:"name"`
	Source string `yaml:"source"`
	On     string `yaml:"on"`
}

// DeploymentOverride lets a definition redirect its own deployment target.
// It is metadata only and is stripped before the definition is serialized
// back out for deployment.
type DeploymentOverride struct {
	Catalog string `yaml:"catalog,omitempty"`
	Schema  string `yaml:"schema,omitempty"`
}

// ColumnNames returns the projected column names in declaration order,
// dimensions first.
func (v *MetricView) ColumnNames() []string {
	columns := make([]string, 0, len(v.Dimensions)+len(v.Measures))
	for _, d := range v.Dimensions {
		columns = append(columns, d.Name)
	}
	for _, m := range v.Measures {
		columns = append(columns, m.Name)
	}
	return columns
}
