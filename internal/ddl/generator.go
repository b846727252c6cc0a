// Package ddl turns parsed metric view definitions into the statements
// the warehouse understands.
package ddl

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"viewflow/pkg/errors"
)

// Target is the catalog/schema a view deploys into.
type Target struct {
	Catalog string
	Schema  string
}

// SystemTag is applied to every successfully deployed view.
const SystemTag = "system.Certified"

// ColumnNames extracts the projected column names from a parsed
// definition, dimensions first, preserving declaration order. Entries
// without a name are skipped; the validator reports those separately.
func ColumnNames(doc map[string]interface{}) []string {
	var columns []string
	for _, field := range []string{"dimensions", "measures"} {
		seq, _ := doc[field].([]interface{})
		for _, raw := range seq {
			entry, ok := raw.(map[string]interface{})
			if !ok {
				continue
			}
			if name, ok := entry["name"].(string); ok {
				columns = append(columns, name)
			}
		}
	}
	return columns
}

// ResolveTarget applies a definition's deployment override block, if
// any, on top of the environment's default target.
func ResolveTarget(doc map[string]interface{}, defaults Target) Target {
	target := defaults
	override, ok := doc["deployment"].(map[string]interface{})
	if !ok {
		return target
	}
	if catalog, ok := override["catalog"].(string); ok && catalog != "" {
		target.Catalog = catalog
	}
	if schema, ok := override["schema"].(string); ok && schema != "" {
		target.Schema = schema
	}
	return target
}

// StripDeployment removes the deployment override block from a rendered
// definition before it is embedded in DDL. The block is deployment
// metadata, not part of the view definition the warehouse stores. Key
// order and formatting of the remaining document are preserved via the
// YAML node tree.
func StripDeployment(yamlText string) (string, error) {
	if !strings.Contains(yamlText, "deployment") {
		return yamlText, nil
	}

	var root yaml.Node
	if err := yaml.Unmarshal([]byte(yamlText), &root); err != nil {
		return "", errors.Wrap(err, errors.ErrCodeParseFailed, "definition is not valid YAML")
	}
	if len(root.Content) == 0 || root.Content[0].Kind != yaml.MappingNode {
		return yamlText, nil
	}

	mapping := root.Content[0]
	content := mapping.Content[:0]
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == "deployment" {
			continue
		}
		content = append(content, mapping.Content[i], mapping.Content[i+1])
	}
	mapping.Content = content

	out, err := yaml.Marshal(&root)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeInternal, "failed to serialize definition")
	}
	return string(out), nil
}

// GenerateViewDDL builds the CREATE OR REPLACE VIEW statement embedding
// the definition YAML verbatim between dollar quotes.
func GenerateViewDDL(viewName, yamlText string, columns []string, target Target) string {
	quoted := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = fmt.Sprintf("`%s`", col)
	}

	return fmt.Sprintf(`CREATE OR REPLACE VIEW %s (
  %s
) WITH METRICS LANGUAGE YAML AS
$$
%s
$$`, QualifiedName(target, viewName), strings.Join(quoted, ", "), strings.TrimRight(yamlText, "\n"))
}

// GenerateTagDDL builds the statement tagging a deployed view.
func GenerateTagDDL(viewName string, target Target, tag string) string {
	return fmt.Sprintf("ALTER TABLE %s SET TAGS ('%s')", QualifiedName(target, viewName), tag)
}

// QualifiedName returns the backtick-quoted three-part name of a view.
func QualifiedName(target Target, viewName string) string {
	return fmt.Sprintf("`%s`.`%s`.`%s`", target.Catalog, target.Schema, viewName)
}
