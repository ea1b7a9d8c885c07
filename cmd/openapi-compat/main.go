// Command openapi-compat compares two swagger.yaml revisions and fails when
// the newer one would break existing API clients.
//
//	openapi-compat -base old/swagger.yaml -revision docs/swagger.yaml
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

var httpMethods = []string{"get", "put", "post", "delete", "patch", "head", "options"}

// operation is the part of a swagger operation clients depend on.
type operation struct {
	Responses map[string]struct{}
	Secured   bool
	Params    map[string]bool // "in:name" -> required
}

type parsedSpec struct {
	Paths map[string]map[string]operation
}

// swaggerDoc and swaggerOperation mirror just enough of the document to
// decode it with yaml.v3 directly.
type swaggerDoc struct {
	Paths map[string]map[string]yaml.Node `yaml:"paths"`
}

type swaggerOperation struct {
	Responses  map[string]yaml.Node  `yaml:"responses"`
	Security   []map[string][]string `yaml:"security"`
	Parameters []swaggerParameter    `yaml:"parameters"`
}

type swaggerParameter struct {
	Name     string `yaml:"name"`
	In       string `yaml:"in"`
	Required bool   `yaml:"required"`
}

func main() {
	basePath := flag.String("base", "", "base OpenAPI swagger.yaml path")
	revisionPath := flag.String("revision", "", "revision OpenAPI swagger.yaml path")
	flag.Parse()
	os.Exit(run(*basePath, *revisionPath, os.Stdout, os.Stderr))
}

func run(basePath, revisionPath string, stdout, stderr io.Writer) int {
	if strings.TrimSpace(basePath) == "" || strings.TrimSpace(revisionPath) == "" {
		fmt.Fprintln(stderr, "usage: openapi-compat -base <path> -revision <path>")
		return 2
	}

	base, err := loadSpec(basePath)
	if err != nil {
		fmt.Fprintf(stderr, "failed to load base spec: %v\n", err)
		return 1
	}
	revision, err := loadSpec(revisionPath)
	if err != nil {
		fmt.Fprintf(stderr, "failed to load revision spec: %v\n", err)
		return 1
	}

	issues := append(compare(base, revision), lint(revision)...)
	if len(issues) > 0 {
		fmt.Fprintln(stderr, "backward compatibility check failed:")
		for _, issue := range issues {
			fmt.Fprintf(stderr, "- %s\n", issue)
		}
		return 1
	}
	fmt.Fprintln(stdout, "openapi compatibility check passed")
	return 0
}

func loadSpec(path string) (parsedSpec, error) {
	// #nosec G304: path comes from CLI flags in a dev tool
	raw, err := os.ReadFile(path)
	if err != nil {
		return parsedSpec{}, err
	}
	return parseSpec(raw)
}

func parseSpec(raw []byte) (parsedSpec, error) {
	var doc swaggerDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return parsedSpec{}, err
	}
	if doc.Paths == nil {
		return parsedSpec{}, errors.New("missing top-level paths field")
	}

	spec := parsedSpec{Paths: make(map[string]map[string]operation, len(doc.Paths))}
	for path, item := range doc.Paths {
		ops := make(map[string]operation)
		for key, node := range item {
			method := strings.ToLower(strings.TrimSpace(key))
			if !isHTTPMethod(method) {
				continue
			}
			var raw swaggerOperation
			if err := node.Decode(&raw); err != nil {
				return parsedSpec{}, fmt.Errorf("%s %s: %w", strings.ToUpper(method), path, err)
			}
			ops[method] = raw.operation()
		}
		if len(ops) > 0 {
			spec.Paths[path] = ops
		}
	}
	return spec, nil
}

func isHTTPMethod(m string) bool {
	for _, known := range httpMethods {
		if m == known {
			return true
		}
	}
	return false
}

// operation drops body parameters; their shape is checked by schema review,
// not by this tool.
func (o swaggerOperation) operation() operation {
	op := operation{
		Responses: make(map[string]struct{}, len(o.Responses)),
		Params:    make(map[string]bool, len(o.Parameters)),
		Secured:   len(o.Security) > 0,
	}
	for code := range o.Responses {
		if c := strings.ToLower(strings.TrimSpace(code)); c != "" {
			op.Responses[c] = struct{}{}
		}
	}
	for _, p := range o.Parameters {
		if p.Name == "" || p.In == "body" {
			continue
		}
		op.Params[p.In+":"+p.Name] = p.Required
	}
	return op
}

// compare lists changes in revision that break clients written against base.
func compare(base, revision parsedSpec) []string {
	var issues []string

	for path, baseOps := range base.Paths {
		revOps, ok := revision.Paths[path]
		if !ok {
			issues = append(issues, fmt.Sprintf("removed path: %s", path))
			continue
		}

		for method, baseOp := range baseOps {
			label := strings.ToUpper(method) + " " + path
			revOp, ok := revOps[method]
			if !ok {
				issues = append(issues, fmt.Sprintf("removed operation: %s", label))
				continue
			}

			for responseCode := range baseOp.Responses {
				if _, ok := revOp.Responses[responseCode]; !ok {
					issues = append(issues, fmt.Sprintf("removed response code: %s -> %s", label, strings.ToUpper(responseCode)))
				}
			}
			if revOp.Secured && !baseOp.Secured {
				issues = append(issues, fmt.Sprintf("operation now requires authentication: %s", label))
			}
			for name, required := range revOp.Params {
				wasRequired, existed := baseOp.Params[name]
				if required && (!existed || !wasRequired) {
					issues = append(issues, fmt.Sprintf("new required parameter: %s -> %s", label, name))
				}
			}
		}
	}

	sort.Strings(issues)
	return issues
}

// lint checks rules every revision must satisfy on its own: authenticated
// operations document their 401 response.
func lint(spec parsedSpec) []string {
	var issues []string
	for path, ops := range spec.Paths {
		for method, op := range ops {
			if !op.Secured {
				continue
			}
			if _, ok := op.Responses["401"]; !ok {
				issues = append(issues, fmt.Sprintf("secured operation without 401 response: %s %s", strings.ToUpper(method), path))
			}
		}
	}
	sort.Strings(issues)
	return issues
}
