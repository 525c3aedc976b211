package render

import (
	"bytes"
	"text/template"
	"text/template/parse"
)

// TemplateRenderer renders a templated member. data is the caller's execution
// context; the renderer never looks into it, it only hands it to the template
// engine.
type TemplateRenderer struct {
	funcs template.FuncMap
}

func New() *TemplateRenderer {
	return &TemplateRenderer{funcs: funcMap}
}

func (r *TemplateRenderer) Render(path, src string, data interface{}) (string, error) {
	tmpl, err := template.New(path).
		Option("missingkey=error").
		Funcs(r.funcs).
		Parse(src)
	if err != nil {
		return "", newTemplateError(path, src, err)
	}

	if data == nil && usesData(tmpl) {
		return "", MissingContextError{Path: path}
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", newTemplateError(path, src, err)
	}
	return buf.String(), nil
}

// usesData reports whether any template in the set dereferences dot or $.
func usesData(tmpl *template.Template) bool {
	for _, t := range tmpl.Templates() {
		if t.Tree != nil && nodeUsesData(t.Tree.Root) {
			return true
		}
	}
	return false
}

func nodeUsesData(node parse.Node) bool {
	switch n := node.(type) {
	case nil:
		return false
	case *parse.ListNode:
		if n == nil {
			return false
		}
		for _, child := range n.Nodes {
			if nodeUsesData(child) {
				return true
			}
		}
	case *parse.ActionNode:
		return nodeUsesData(n.Pipe)
	case *parse.PipeNode:
		if n == nil {
			return false
		}
		for _, cmd := range n.Cmds {
			if nodeUsesData(cmd) {
				return true
			}
		}
	case *parse.CommandNode:
		for _, arg := range n.Args {
			if nodeUsesData(arg) {
				return true
			}
		}
	case *parse.ChainNode:
		return nodeUsesData(n.Node)
	case *parse.IfNode:
		return branchUsesData(&n.BranchNode)
	case *parse.RangeNode:
		return branchUsesData(&n.BranchNode)
	case *parse.WithNode:
		return branchUsesData(&n.BranchNode)
	case *parse.TemplateNode:
		// {{template "x" .}} hands dot over, the callee is checked on its own.
		return nodeUsesData(n.Pipe)
	case *parse.DotNode, *parse.FieldNode:
		return true
	case *parse.VariableNode:
		return len(n.Ident) > 0 && n.Ident[0] == "$"
	}
	return false
}

func branchUsesData(n *parse.BranchNode) bool {
	return nodeUsesData(n.Pipe) || nodeUsesData(n.List) || nodeUsesData(n.ElseList)
}
